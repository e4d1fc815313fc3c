package broker

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBrokerListPushPop(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	if err := b.ListPush(ctx, "q", "a", "b"); err != nil {
		t.Fatalf("ListPush: %v", err)
	}

	n, err := b.ListLen(ctx, "q")
	if err != nil || n != 2 {
		t.Fatalf("ListLen = %d, %v; want 2, nil", n, err)
	}

	v, ok, err := b.ListPop(ctx, "q")
	if err != nil || !ok || v != "a" {
		t.Fatalf("ListPop = %q, %v, %v; want a, true, nil", v, ok, err)
	}
}

func TestMemoryBrokerListPopEmpty(t *testing.T) {
	b := NewMemoryBroker()
	_, ok, err := b.ListPop(context.Background(), "empty")
	if err != nil || ok {
		t.Fatalf("ListPop on empty queue = ok=%v err=%v; want ok=false", ok, err)
	}
}

func TestMemoryBrokerBlockPopWakesOnPush(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	done := make(chan struct{})
	var gotQueue, gotValue string
	var gotOK bool
	go func() {
		gotQueue, gotValue, gotOK, _ = b.ListBlockPop(ctx, 2*time.Second, "q1", "q2")
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := b.ListPush(ctx, "q2", "hello"); err != nil {
		t.Fatalf("ListPush: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ListBlockPop did not wake up after push")
	}

	if !gotOK || gotQueue != "q2" || gotValue != "hello" {
		t.Fatalf("ListBlockPop = %q, %q, %v; want q2, hello, true", gotQueue, gotValue, gotOK)
	}
}

func TestMemoryBrokerBlockPopTimesOut(t *testing.T) {
	b := NewMemoryBroker()
	start := time.Now()
	_, _, ok, err := b.ListBlockPop(context.Background(), 100*time.Millisecond, "never")
	if err != nil || ok {
		t.Fatalf("ListBlockPop = ok=%v err=%v; want ok=false", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("ListBlockPop returned too early: %v", elapsed)
	}
}

func TestMemoryBrokerZSetOrdering(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	b.ZAdd(ctx, "z", "c", 3)
	b.ZAdd(ctx, "z", "a", 1)
	b.ZAdd(ctx, "z", "b", 2)

	for _, want := range []string{"a", "b", "c"} {
		m, ok, err := b.ZPopMin(ctx, "z")
		if err != nil || !ok || m.Value != want {
			t.Fatalf("ZPopMin = %+v, %v, %v; want %s", m, ok, err, want)
		}
	}

	_, ok, _ := b.ZPopMin(ctx, "z")
	if ok {
		t.Fatal("ZPopMin on empty set returned ok=true")
	}
}

func TestMemoryBrokerKVExpiry(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	if err := b.KVSet(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("KVSet: %v", err)
	}

	v, ok, err := b.KVGet(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("KVGet immediately = %q, %v, %v; want v, true, nil", v, ok, err)
	}

	time.Sleep(40 * time.Millisecond)

	_, ok, err = b.KVGet(ctx, "k")
	if err != nil || ok {
		t.Fatalf("KVGet after expiry = ok=%v err=%v; want ok=false", ok, err)
	}
}

func TestMemoryBrokerKVCountMatching(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	b.KVSet(ctx, "worker:1", "alive", time.Minute)
	b.KVSet(ctx, "worker:2", "alive", time.Minute)
	b.KVSet(ctx, "other:1", "x", time.Minute)

	count, err := b.KVCountMatching(ctx, "worker:*")
	if err != nil || count != 2 {
		t.Fatalf("KVCountMatching = %d, %v; want 2, nil", count, err)
	}
}

func TestChunkTimeout(t *testing.T) {
	cases := []struct {
		remaining, socketTimeout, want time.Duration
	}{
		{30 * time.Second, 60 * time.Second, 30 * time.Second},
		{100 * time.Second, 60 * time.Second, 58 * time.Second},
		{0, 60 * time.Second, 58 * time.Second},
		{-5 * time.Second, 60 * time.Second, 58 * time.Second},
		{5 * time.Second, time.Second, 0},
	}
	for _, c := range cases {
		got := ChunkTimeout(c.remaining, c.socketTimeout)
		if got != c.want {
			t.Errorf("ChunkTimeout(%v, %v) = %v, want %v", c.remaining, c.socketTimeout, got, c.want)
		}
	}
}
