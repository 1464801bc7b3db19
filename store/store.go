package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("record store unavailable")
	ErrConflict    = errors.New("concurrent update conflict")
)

// Namespace names one of the independent key spaces.
type Namespace string

const (
	NamespaceDataset Namespace = "dataset"
	NamespaceJobs    Namespace = "jobs"
	NamespaceResults Namespace = "results"
)

// UpdateFunc receives the current value and returns the replacement.
type UpdateFunc func(current []byte) ([]byte, error)

// Store maps opaque string keys to JSON payloads. Writes are whole-record.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX writes value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	// Update atomically replaces the value of an existing key with fn(current).
	// It fails with ErrNotFound when the key is absent.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists keys beginning with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
