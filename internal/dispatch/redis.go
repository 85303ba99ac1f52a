package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDispatcher is the optional external-broker transport: a list-based
// queue (RPUSH/BLPOP on a named key) so a scheduler process can enqueue
// monitor ids and a separate worker fleet can dequeue them.
//
// Run (satisfying Dispatcher) is the scheduler-side half: it drains the ids
// channel onto the Redis list. Consume is the worker-side half, run by a
// separate process; it has no equivalent on Dispatcher since there is no
// local ids channel to hand results back on.
type RedisDispatcher struct {
	client *redis.Client
	key    string
}

func NewRedisDispatcher(client *redis.Client, key string) *RedisDispatcher {
	if key == "" {
		key = "monitron:due_monitors"
	}
	return &RedisDispatcher{client: client, key: key}
}

func (d *RedisDispatcher) Run(ctx context.Context, ids <-chan int64, exec func(ctx context.Context, id int64)) error {
	for {
		select {
		case id, ok := <-ids:
			if !ok {
				return nil
			}
			if err := d.client.RPush(ctx, d.key, strconv.FormatInt(id, 10)).Err(); err != nil {
				slog.Default().ErrorContext(ctx, "dispatch.redis_enqueue_failed", "monitor_id", id, "err", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Consume runs on the worker process: blocking-pop monitor ids off the
// queue and hand each to exec. Loops until ctx is cancelled.
func (d *RedisDispatcher) Consume(ctx context.Context, exec func(ctx context.Context, id int64)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := d.client.BLPop(ctx, 2*time.Second, d.key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Default().ErrorContext(ctx, "dispatch.redis_dequeue_failed", "err", err)
			continue
		}

		// res is [key, value]
		if len(res) != 2 {
			continue
		}
		id, convErr := strconv.ParseInt(res[1], 10, 64)
		if convErr != nil {
			slog.Default().ErrorContext(ctx, "dispatch.redis_bad_payload", "payload", res[1], "err", convErr)
			continue
		}
		exec(ctx, id)
	}
}
