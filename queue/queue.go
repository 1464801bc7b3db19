package queue

import (
	"context"
	"fmt"

	"datasetAnalyzer/store"
)

// Queue is a durable FIFO of job ids with at-least-once delivery.
type Queue interface {
	// Push appends id. It never drops silently; a transport failure is
	// reported as store.ErrUnavailable.
	Push(ctx context.Context, id string) error
	// Pop blocks until an id is available or ctx is done.
	Pop(ctx context.Context) (string, error)
	// Ack tells the queue that processing of id has finished.
	Ack(ctx context.Context, id string) error
	// Extend renews the lease on an id that is still being processed.
	Extend(ctx context.Context, id string) error
	// Release hands a popped id back unfinished so it is delivered again.
	Release(ctx context.Context, id string) error
	// Reap requeues ids whose lease expired and returns how many it moved.
	Reap(ctx context.Context) (int, error)
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}
