// Package broker abstracts the list/sorted-set/key-value primitives the
// work queue protocol is built on, so the worker pool and dispatcher
// never talk to Redis directly.
package broker

import (
	"context"
	"time"
)

// ZMember is a sorted-set member together with its score, returned by
// the priority-queue pop operations.
type ZMember struct {
	Value string
	Score float64
}

// Broker is the storage contract the work queue protocol needs: FIFO
// lists for the plain work/result queues, a sorted set for priority
// scheduling, and a key-value store with TTL for worker heartbeats and
// per-work result slots.
//
// Every blocking-pop method must internally chunk its wait into windows
// no longer than socket_timeout-2s, re-issuing the blocking call until
// either a value arrives or the caller's deadline elapses. A single
// blocking call held open longer than the client's socket timeout
// would be silently dropped by the connection, not merely slow.
type Broker interface {
	// ListPush appends one or more values to the tail of a FIFO queue.
	ListPush(ctx context.Context, queue string, values ...string) error

	// ListPop removes and returns the head of a FIFO queue, or ok=false
	// if it is empty.
	ListPop(ctx context.Context, queue string) (value string, ok bool, err error)

	// ListBlockPop blocks up to timeout across one or more queues,
	// returning the first value available on any of them. ok is false
	// if the timeout elapsed with nothing available.
	ListBlockPop(ctx context.Context, timeout time.Duration, queues ...string) (queue, value string, ok bool, err error)

	// ListLen reports the current length of a FIFO queue.
	ListLen(ctx context.Context, queue string) (int, error)

	// ZAdd adds a member to a sorted set with the given score.
	ZAdd(ctx context.Context, key string, member string, score float64) error

	// ZPopMin removes and returns the lowest-scored member, or ok=false
	// if the set is empty.
	ZPopMin(ctx context.Context, key string) (member ZMember, ok bool, err error)

	// ZBlockPopMin blocks up to timeout across one or more sorted sets,
	// returning the lowest-scored member available on any of them.
	ZBlockPopMin(ctx context.Context, timeout time.Duration, keys ...string) (key string, member ZMember, ok bool, err error)

	// KVSet stores value under key with an optional TTL (zero means no
	// expiry).
	KVSet(ctx context.Context, key, value string, ttl time.Duration) error

	// KVGet retrieves the value at key, or ok=false if absent.
	KVGet(ctx context.Context, key string) (value string, ok bool, err error)

	// KVDelete removes one or more keys. Missing keys are not an error.
	KVDelete(ctx context.Context, keys ...string) error

	// KVCountMatching counts keys matching a glob pattern, used to
	// report live worker heartbeat counts for GET /status.
	KVCountMatching(ctx context.Context, pattern string) (int, error)

	// ServerTime returns the broker's own clock, so timeout accounting
	// never depends on worker/dispatcher clock skew.
	ServerTime(ctx context.Context) (time.Time, error)

	// Close releases any underlying connection resources.
	Close() error
}

// ChunkTimeout returns the length of the next blocking-call window for
// a wait with `remaining` time left, the way
// RedisQueue._get_proper_timeout does: remaining itself, capped at
// socketTimeout-2s. A non-positive remaining gets the full cap, and a
// socketTimeout of 2s or less gives 0. It is exported so both the
// Redis-backed implementation and tests that exercise chunking
// directly can share it.
func ChunkTimeout(remaining, socketTimeout time.Duration) time.Duration {
	maxWindow := socketTimeout - 2*time.Second
	if maxWindow <= 0 {
		return 0
	}
	if remaining <= 0 || remaining > maxWindow {
		return maxWindow
	}
	return remaining
}
