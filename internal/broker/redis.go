package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on top of go-redis, with read, write and
// pool timeouts set to the socket timeout, and the chunked blocking-pop
// loop RedisQueue.QueueOp._block_pop_sync uses.
type RedisBroker struct {
	client        *redis.Client
	socketTimeout time.Duration
}

// NewRedisBroker connects to addr/db with the given password and
// socket timeout, pinging once to fail fast on a bad address.
func NewRedisBroker(addr, password string, db int, socketTimeout time.Duration) (*RedisBroker, error) {
	if socketTimeout < 10*time.Second {
		return nil, fmt.Errorf("broker: socket_timeout must be at least 10 seconds")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		DialTimeout:     120 * time.Second,
		ReadTimeout:     socketTimeout,
		WriteTimeout:    socketTimeout,
		PoolTimeout:     socketTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("broker: connecting to redis: %w", err)
	}

	return &RedisBroker{client: client, socketTimeout: socketTimeout}, nil
}

func (b *RedisBroker) ListPush(ctx context.Context, queue string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return b.client.RPush(ctx, queue, args...).Err()
}

func (b *RedisBroker) ListPop(ctx context.Context, queue string) (string, bool, error) {
	v, err := b.client.LPop(ctx, queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *RedisBroker) ListBlockPop(ctx context.Context, timeout time.Duration, queues ...string) (string, string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		window := ChunkTimeout(time.Until(deadline), b.socketTimeout)
		if timeout > 0 && window <= 0 {
			return "", "", false, nil
		}

		res, err := b.client.BLPop(ctx, window, queues...).Result()
		if errors.Is(err, redis.Nil) {
			if timeout <= 0 {
				continue
			}
			if time.Now().After(deadline) {
				return "", "", false, nil
			}
			continue
		}
		if err != nil {
			return "", "", false, err
		}
		// res is [queue, value]
		return res[0], res[1], true, nil
	}
}

func (b *RedisBroker) ListLen(ctx context.Context, queue string) (int, error) {
	n, err := b.client.LLen(ctx, queue).Result()
	return int(n), err
}

func (b *RedisBroker) ZAdd(ctx context.Context, key, member string, score float64) error {
	return b.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (b *RedisBroker) ZPopMin(ctx context.Context, key string) (ZMember, bool, error) {
	zs, err := b.client.ZPopMin(ctx, key, 1).Result()
	if err != nil {
		return ZMember{}, false, err
	}
	if len(zs) == 0 {
		return ZMember{}, false, nil
	}
	member, _ := zs[0].Member.(string)
	return ZMember{Value: member, Score: zs[0].Score}, true, nil
}

func (b *RedisBroker) ZBlockPopMin(ctx context.Context, timeout time.Duration, keys ...string) (string, ZMember, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		window := ChunkTimeout(time.Until(deadline), b.socketTimeout)
		if timeout > 0 && window <= 0 {
			return "", ZMember{}, false, nil
		}

		res, err := b.client.BZPopMin(ctx, window, keys...).Result()
		if errors.Is(err, redis.Nil) {
			if timeout <= 0 {
				continue
			}
			if time.Now().After(deadline) {
				return "", ZMember{}, false, nil
			}
			continue
		}
		if err != nil {
			return "", ZMember{}, false, err
		}
		member, _ := res.Member.(string)
		return res.Key, ZMember{Value: member, Score: res.Score}, true, nil
	}
}

func (b *RedisBroker) KVSet(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBroker) KVGet(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *RedisBroker) KVDelete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

func (b *RedisBroker) KVCountMatching(ctx context.Context, pattern string) (int, error) {
	var count int
	iter := b.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

func (b *RedisBroker) ServerTime(ctx context.Context) (time.Time, error) {
	return b.client.Time(ctx).Result()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
