package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logical Redis databases. Each namespace gets its own DB so keys never collide.
const (
	RedisDBDataset = 0
	RedisDBQueue   = 1
	RedisDBJobs    = 2
	RedisDBResults = 3
)

type RedisOptions struct {
	Addr     string
	Password string
	PoolSize int
}

// ConnectRedis opens a client on the given logical database and pings it.
func ConnectRedis(opts RedisOptions, db int) (*redis.Client, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis db %d: %w", db, err)
	}

	return client, nil
}
