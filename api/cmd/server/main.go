package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"datasetAnalyzer/api/config"
	"datasetAnalyzer/api/handlers"
	"datasetAnalyzer/api/middleware"
	"datasetAnalyzer/api/service"
	"datasetAnalyzer/dataset"
	"datasetAnalyzer/queue"
	"datasetAnalyzer/repository"
	"datasetAnalyzer/store"
)

const shutdownTimeout = 15 * time.Second

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

	logger.Info("API Service starting",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreBackend),
		zap.String("queue", cfg.QueueBackend),
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

	cache := dataset.NewCache(stores.Dataset, logger)
	client := &http.Client{Timeout: cfg.FetchTimeout}

	jobService := service.NewJobService(
		repository.NewJobRepository(stores.Jobs),
		repository.NewResultRepository(stores.Results),
		q,
		logger,
	)
	dataService := service.NewDataService(
		cache,
		dataset.NewHGNCLoader(cache, client, cfg.HGNCURL, logger),
		dataset.NewWPPLoader(cache, client, cfg.WPPURL, logger),
		logger,
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS)
	go limiter.Cleanup(ctx)

	mux := http.NewServeMux()
	handlers.Register(mux,
		handlers.NewJobHandler(jobService, logger),
		handlers.NewDataHandler(dataService, logger),
		limiter.Limit,
	)

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: middleware.Chain(mux,
			middleware.TraceID,
			middleware.Logging(logger),
			middleware.Recovery(logger),
		),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down API Service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("API Service stopped")
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
