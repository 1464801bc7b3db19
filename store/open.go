package store

import (
	"context"
	"errors"
	"fmt"

	"datasetAnalyzer/database"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Options struct {
	Backend     string
	Redis       database.RedisOptions
	DatabaseURL string
	SQLitePath  string
}

// Stores holds the three independent namespaces.
type Stores struct {
	Dataset Store
	Jobs    Store
	Results Store

	closers []func() error
}

// Open connects the configured backend and returns one Store per namespace.
func Open(ctx context.Context, opts Options) (*Stores, error) {
	switch opts.Backend {
	case BackendRedis, "":
		return openRedis(opts.Redis)
	case BackendPostgres:
		db, err := database.ConnectPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, unavailable("connect postgres", err)
		}
		if err := MigratePostgres(ctx, db.Pool); err != nil {
			db.Close()
			return nil, err
		}
		return &Stores{
			Dataset: NewPostgresStore(db.Pool, NamespaceDataset),
			Jobs:    NewPostgresStore(db.Pool, NamespaceJobs),
			Results: NewPostgresStore(db.Pool, NamespaceResults),
			closers: []func() error{func() error { db.Close(); return nil }},
		}, nil
	case BackendSQLite:
		db, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Dataset: db.Namespace(NamespaceDataset),
			Jobs:    db.Namespace(NamespaceJobs),
			Results: db.Namespace(NamespaceResults),
			closers: []func() error{db.Close},
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

func openRedis(opts database.RedisOptions) (*Stores, error) {
	s := &Stores{}
	for _, target := range []struct {
		db  int
		dst *Store
	}{
		{database.RedisDBDataset, &s.Dataset},
		{database.RedisDBJobs, &s.Jobs},
		{database.RedisDBResults, &s.Results},
	} {
		client, err := database.ConnectRedis(opts, target.db)
		if err != nil {
			s.Close()
			return nil, unavailable("connect redis", err)
		}
		rs := NewRedisStore(client)
		*target.dst = rs
		s.closers = append(s.closers, rs.Close)
	}
	return s, nil
}

func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
