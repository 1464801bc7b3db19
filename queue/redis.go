package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "queue:pending"
	processingKey = "queue:processing"
	leasePrefix   = "queue:lease:"

	DefaultLeaseTTL = 60 * time.Second
	popWait         = 2 * time.Second
)

// requeueScript moves one id from processing back to the head of pending,
// unless a worker renewed its lease in the meantime.
var requeueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[3]) == 1 then
	return 0
end
local n = redis.call("LREM", KEYS[2], 1, ARGV[1])
if n > 0 then
	redis.call("RPUSH", KEYS[1], ARGV[1])
end
return n
`)

// releaseScript returns an in-flight id to the head of pending and drops its
// lease. An id the reaper already moved is left alone.
var releaseScript = redis.NewScript(`
local n = redis.call("LREM", KEYS[2], 1, ARGV[1])
if n > 0 then
	redis.call("RPUSH", KEYS[1], ARGV[1])
end
redis.call("DEL", KEYS[3])
return n
`)

// RedisQueue is the reliable-queue pattern: ids are pushed onto a pending
// list and atomically moved to a processing list when popped. Each popped
// id carries a lease key with a TTL; Reap returns ids whose lease is gone.
type RedisQueue struct {
	client   *redis.Client
	leaseTTL time.Duration

	mu       sync.Mutex
	suspects map[string]struct{}
}

func NewRedisQueue(client *redis.Client, leaseTTL time.Duration) *RedisQueue {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &RedisQueue{
		client:   client,
		leaseTTL: leaseTTL,
		suspects: make(map[string]struct{}),
	}
}

func (q *RedisQueue) Push(ctx context.Context, id string) error {
	if err := q.client.LPush(ctx, pendingKey, id).Err(); err != nil {
		return unavailable("push "+id, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := q.client.BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", popWait).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", unavailable("pop", err)
		}
		if err := q.client.Set(ctx, leasePrefix+id, time.Now().UTC().Format(time.RFC3339), q.leaseTTL).Err(); err != nil {
			// The id stays in processing without a lease and the reaper returns it.
			return "", unavailable("lease "+id, err)
		}
		return id, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, id)
		pipe.Del(ctx, leasePrefix+id)
		return nil
	})
	if err != nil {
		return unavailable("ack "+id, err)
	}
	return nil
}

func (q *RedisQueue) Extend(ctx context.Context, id string) error {
	if err := q.client.Set(ctx, leasePrefix+id, time.Now().UTC().Format(time.RFC3339), q.leaseTTL).Err(); err != nil {
		return unavailable("extend "+id, err)
	}
	return nil
}

// Release puts id back at the head of pending so the next Pop returns it.
func (q *RedisQueue) Release(ctx context.Context, id string) error {
	q.mu.Lock()
	delete(q.suspects, id)
	q.mu.Unlock()

	err := releaseScript.Run(ctx, q.client,
		[]string{pendingKey, processingKey, leasePrefix + id}, id).Err()
	if err != nil {
		return unavailable("release "+id, err)
	}
	return nil
}

// Reap requeues processing ids that had no lease on this pass and the
// previous one. The two-pass rule covers the gap between BLMOVE and the
// lease write in Pop.
func (q *RedisQueue) Reap(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		return 0, unavailable("reap", err)
	}

	exists := make([]*redis.IntCmd, len(ids))
	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			exists[i] = pipe.Exists(ctx, leasePrefix+id)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("reap", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	next := make(map[string]struct{})
	moved := 0
	for i, id := range ids {
		if exists[i].Val() == 1 {
			continue
		}
		if _, seen := q.suspects[id]; !seen {
			next[id] = struct{}{}
			continue
		}
		n, err := requeueScript.Run(ctx, q.client,
			[]string{pendingKey, processingKey, leasePrefix + id}, id).Int()
		if err != nil {
			return moved, unavailable(fmt.Sprintf("requeue %s", id), err)
		}
		moved += n
	}
	q.suspects = next
	return moved, nil
}

// Len reports the number of pending and in-flight ids.
func (q *RedisQueue) Len(ctx context.Context) (pending, processing int64, err error) {
	pending, err = q.client.LLen(ctx, pendingKey).Result()
	if err != nil {
		return 0, 0, unavailable("len", err)
	}
	processing, err = q.client.LLen(ctx, processingKey).Result()
	if err != nil {
		return 0, 0, unavailable("len", err)
	}
	return pending, processing, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
