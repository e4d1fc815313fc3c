package broker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker implementation backing unit
// tests for worker and dispatcher logic without a live Redis.
type MemoryBroker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	lists  map[string][]string
	zsets  map[string]map[string]float64
	kv     map[string]memEntry
	closed bool
}

type memEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	b := &MemoryBroker{
		lists: make(map[string][]string),
		zsets: make(map[string]map[string]float64),
		kv:    make(map[string]memEntry),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *MemoryBroker) ListPush(_ context.Context, queue string, values ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists[queue] = append(b.lists[queue], values...)
	b.cond.Broadcast()
	return nil
}

func (b *MemoryBroker) ListPop(_ context.Context, queue string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked(queue)
}

func (b *MemoryBroker) popLocked(queue string) (string, bool, error) {
	q := b.lists[queue]
	if len(q) == 0 {
		return "", false, nil
	}
	v := q[0]
	b.lists[queue] = q[1:]
	return v, true, nil
}

func (b *MemoryBroker) ListBlockPop(ctx context.Context, timeout time.Duration, queues ...string) (string, string, bool, error) {
	deadline := time.Now().Add(timeout)
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		for _, q := range queues {
			if v, ok, _ := b.popLocked(q); ok {
				return q, v, true, nil
			}
		}
		if timeout > 0 && time.Now().After(deadline) {
			return "", "", false, nil
		}
		if ctx.Err() != nil {
			return "", "", false, ctx.Err()
		}
		b.waitOrTimeout(deadline, timeout > 0)
	}
}

// waitOrTimeout releases the lock for one short polling interval (at
// most 5ms) so other goroutines can push, then re-acquires it. A bounded
// wait never sleeps past the caller's deadline, so tests never hang
// past it.
func (b *MemoryBroker) waitOrTimeout(deadline time.Time, bounded bool) {
	d := 5 * time.Millisecond
	if bounded {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
		if d <= 0 {
			d = time.Millisecond
		}
	}
	b.mu.Unlock()
	time.Sleep(d)
	b.mu.Lock()
}

func (b *MemoryBroker) ListLen(_ context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lists[queue]), nil
}

func (b *MemoryBroker) ZAdd(_ context.Context, key, member string, score float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.zsets[key] == nil {
		b.zsets[key] = make(map[string]float64)
	}
	b.zsets[key][member] = score
	b.cond.Broadcast()
	return nil
}

func (b *MemoryBroker) ZPopMin(_ context.Context, key string) (ZMember, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.zPopMinLocked(key)
}

func (b *MemoryBroker) zPopMinLocked(key string) (ZMember, bool, error) {
	set := b.zsets[key]
	if len(set) == 0 {
		return ZMember{}, false, nil
	}
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return set[members[i]] < set[members[j]] })
	min := members[0]
	score := set[min]
	delete(set, min)
	return ZMember{Value: min, Score: score}, true, nil
}

func (b *MemoryBroker) ZBlockPopMin(ctx context.Context, timeout time.Duration, keys ...string) (string, ZMember, bool, error) {
	deadline := time.Now().Add(timeout)
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		for _, k := range keys {
			if m, ok, _ := b.zPopMinLocked(k); ok {
				return k, m, true, nil
			}
		}
		if timeout > 0 && time.Now().After(deadline) {
			return "", ZMember{}, false, nil
		}
		if ctx.Err() != nil {
			return "", ZMember{}, false, ctx.Err()
		}
		b.waitOrTimeout(deadline, timeout > 0)
	}
}

func (b *MemoryBroker) KVSet(_ context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	b.kv[key] = memEntry{value: value, expires: expires}
	return nil
}

func (b *MemoryBroker) KVGet(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.kv[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(b.kv, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (b *MemoryBroker) KVDelete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.kv, k)
	}
	return nil
}

func (b *MemoryBroker) KVCountMatching(_ context.Context, pattern string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	count := 0
	now := time.Now()
	for k, e := range b.kv {
		if !e.expires.IsZero() && now.After(e.expires) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			count++
		}
	}
	return count, nil
}

func (b *MemoryBroker) ServerTime(_ context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}
