package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"datasetAnalyzer/dataset"
	"datasetAnalyzer/queue"
	"datasetAnalyzer/repository"
	"datasetAnalyzer/store"
	"datasetAnalyzer/worker/analysis"
	"datasetAnalyzer/worker/config"
	"datasetAnalyzer/worker/pool"
	"datasetAnalyzer/worker/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Worker Service starting",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreBackend),
		zap.String("queue", cfg.QueueBackend),
		zap.Int("workers", cfg.WorkerCount),
		zap.Duration("lease_ttl", cfg.LeaseTTL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Fatal("Failed to open stores", zap.Error(err))
	}
	defer stores.Close()

	q, err := queue.Open(cfg.QueueOptions())
	if err != nil {
		logger.Fatal("Failed to open queue", zap.Error(err))
	}
	defer q.Close()

	processor := service.NewProcessor(
		repository.NewJobRepository(stores.Jobs),
		repository.NewResultRepository(stores.Results),
		analysis.NewDispatcher(dataset.NewCache(stores.Dataset, logger), logger),
		logger,
	)

	wp := pool.NewWorkerPool(cfg.WorkerCount)
	wp.Start(ctx, func(ctx context.Context, worker int) {
		service.NewLoop(q, processor, cfg.LeaseTTL, logger.With(zap.Int("worker", worker))).Run(ctx)
	})
	wp.Go(ctx, service.NewReaper(q, cfg.LeaseTTL, logger).Run)

	<-ctx.Done()
	logger.Info("Shutting down, waiting for in-flight jobs")
	wp.Wait()
	logger.Info("Worker Service stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
