package queue

import (
	"fmt"
	"time"

	"datasetAnalyzer/database"
)

const (
	BackendRedis = "redis"
	BackendKafka = "kafka"
)

type Options struct {
	Backend  string
	Redis    database.RedisOptions
	LeaseTTL time.Duration
	Kafka    KafkaConfig
}

func Open(opts Options) (Queue, error) {
	switch opts.Backend {
	case BackendRedis, "":
		client, err := database.ConnectRedis(opts.Redis, database.RedisDBQueue)
		if err != nil {
			return nil, unavailable("connect redis queue", err)
		}
		return NewRedisQueue(client, opts.LeaseTTL), nil
	case BackendKafka:
		return NewKafkaQueue(opts.Kafka)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", opts.Backend)
	}
}
