package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"datasetAnalyzer/queue"
	"datasetAnalyzer/store"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Loop pops one job id at a time and processes it to completion.
type Loop struct {
	queue     queue.Queue
	processor *Processor
	heartbeat time.Duration
	logger    *zap.Logger

	sleep func(ctx context.Context, d time.Duration)
}

func NewLoop(q queue.Queue, processor *Processor, leaseTTL time.Duration, logger *zap.Logger) *Loop {
	heartbeat := leaseTTL / 3
	if heartbeat <= 0 {
		heartbeat = queue.DefaultLeaseTTL / 3
	}
	return &Loop{
		queue:     q,
		processor: processor,
		heartbeat: heartbeat,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Run consumes until ctx is cancelled. A job already in progress when ctx
// is cancelled is finished first.
func (l *Loop) Run(ctx context.Context) {
	backoff := time.Duration(0)
	for {
		if ctx.Err() != nil {
			return
		}

		id, err := l.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff = l.backoff(ctx, backoff, "Failed to pop job", err)
			continue
		}

		jobCtx := context.WithoutCancel(ctx)
		if err := l.handle(jobCtx, id); err != nil {
			if rerr := l.queue.Release(jobCtx, id); rerr != nil {
				// The lease expires and the reaper returns the job instead.
				l.logger.Warn("Failed to release job", zap.String("job_id", id), zap.Error(rerr))
			}
			backoff = l.backoff(ctx, backoff, "Job released for redelivery", err, zap.String("job_id", id))
			continue
		}

		if err := l.queue.Ack(jobCtx, id); err != nil {
			l.logger.Warn("Failed to ack job", zap.String("job_id", id), zap.Error(err))
		}
		backoff = 0
	}
}

func (l *Loop) handle(ctx context.Context, id string) error {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.keepAlive(hbCtx, id)

	return l.processor.Process(ctx, id)
}

func (l *Loop) keepAlive(ctx context.Context, id string) {
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.queue.Extend(ctx, id); err != nil && ctx.Err() == nil {
				l.logger.Warn("Failed to extend job lease", zap.String("job_id", id), zap.Error(err))
			}
		}
	}
}

func (l *Loop) backoff(ctx context.Context, current time.Duration, msg string, err error, fields ...zap.Field) time.Duration {
	next := nextBackoff(current, maxBackoff)
	fields = append(fields, zap.Error(err), zap.Duration("backoff", next))
	if errors.Is(err, store.ErrUnavailable) {
		l.logger.Warn(msg, fields...)
	} else {
		l.logger.Error(msg, fields...)
	}
	l.sleep(ctx, jitterDuration(next))
	return next
}

// Reaper periodically returns jobs with expired leases to the queue.
type Reaper struct {
	queue    queue.Queue
	interval time.Duration
	logger   *zap.Logger
}

func NewReaper(q queue.Queue, leaseTTL time.Duration, logger *zap.Logger) *Reaper {
	if leaseTTL <= 0 {
		leaseTTL = queue.DefaultLeaseTTL
	}
	return &Reaper{queue: q, interval: leaseTTL / 2, logger: logger}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.queue.Reap(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Warn("Failed to reap expired leases", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				r.logger.Info("Requeued jobs with expired leases", zap.Int("count", n))
			}
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	if current < minBackoff {
		return minBackoff
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func jitterDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(d/5) + 1))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
