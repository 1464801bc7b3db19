package pool

import (
	"context"
	"sync"
)

// WorkerPool runs a fixed number of long-lived consumers plus any background
// tasks, and waits for all of them on shutdown.
type WorkerPool struct {
	size int
	wg   sync.WaitGroup
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{size: size}
}

func (p *WorkerPool) Size() int {
	return p.size
}

// Start launches size copies of run. Each returns when ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context, run func(ctx context.Context, worker int)) {
	for i := 0; i < p.size; i++ {
		p.Go(ctx, func(ctx context.Context) { run(ctx, i) })
	}
}

// Go runs one background task tracked by the pool.
func (p *WorkerPool) Go(ctx context.Context, task func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		task(ctx)
	}()
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
