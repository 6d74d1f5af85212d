package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisWindow(t *testing.T) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWindow(client), mr
}

func TestRedisWindow_AdmitsLimitThenDenies(t *testing.T) {
	rw, _ := newTestRedisWindow(t)
	ctx := context.Background()
	p := DefaultPolicy()

	for i := 0; i < 5; i++ {
		d, err := rw.Decide(ctx, "1.2.3.4", p)
		if err != nil {
			t.Fatalf("decide %d: %v", i+1, err)
		}
		if !d.Allowed || d.Count != i+1 {
			t.Fatalf("request %d: allowed=%v count=%d", i+1, d.Allowed, d.Count)
		}
	}

	d, err := rw.Decide(ctx, "1.2.3.4", p)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Allowed {
		t.Fatal("request 6 should be denied")
	}
	if !d.FirstDenial {
		t.Fatal("request 6 should be the first denial")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %s, want within the window", d.RetryAfter)
	}

	d, _ = rw.Decide(ctx, "1.2.3.4", p)
	if d.Allowed || d.FirstDenial || d.Count != 5 {
		t.Fatalf("request 7: allowed=%v first=%v count=%d, want false/false/5", d.Allowed, d.FirstDenial, d.Count)
	}
}

func TestRedisWindow_RolloverAfterWindow(t *testing.T) {
	rw, mr := newTestRedisWindow(t)
	ctx := context.Background()
	p := Policy{Limit: 1, Window: time.Minute}

	rw.Decide(ctx, "a", p)
	if d, _ := rw.Decide(ctx, "a", p); d.Allowed {
		t.Fatal("second call should be denied")
	}

	mr.FastForward(60001 * time.Millisecond)

	d, err := rw.Decide(ctx, "a", p)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("after rollover: allowed=%v count=%d, want true/1", d.Allowed, d.Count)
	}
}

func TestRedisWindow_KeysExpireWithWindow(t *testing.T) {
	rw, mr := newTestRedisWindow(t)
	p := Policy{Limit: 2, Window: 30 * time.Second}

	if _, err := rw.Decide(context.Background(), "b", p); err != nil {
		t.Fatalf("decide: %v", err)
	}

	key := DefaultKeyPrefix + "{b}"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("TTL = %s, want (0, 30s]", ttl)
	}
}

func TestRedisWindow_IdentifiersIsolated(t *testing.T) {
	rw, _ := newTestRedisWindow(t)
	ctx := context.Background()
	p := Policy{Limit: 1, Window: time.Minute}

	rw.Decide(ctx, "A", p)
	if d, _ := rw.Decide(ctx, "A", p); d.Allowed {
		t.Fatal("A should be exhausted")
	}
	if d, _ := rw.Decide(ctx, "B", p); !d.Allowed {
		t.Fatal("B should be unaffected by A")
	}
}

func TestRedisWindow_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rw := NewRedisWindow(client, WithKeyPrefix("test:"))
	if _, err := rw.Decide(context.Background(), "c", DefaultPolicy()); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !mr.Exists("test:{c}") {
		t.Fatalf("keys = %v, want test:{c}", mr.Keys())
	}
}

func TestRedisWindow_RejectsInvalidPolicy(t *testing.T) {
	rw, mr := newTestRedisWindow(t)
	_, err := rw.Decide(context.Background(), "x", Policy{Limit: 0, Window: time.Minute})
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("err = %v, want ErrInvalidPolicy", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("invalid policy should not touch redis, keys = %v", mr.Keys())
	}
}

func TestRedisWindow_BackendDown(t *testing.T) {
	rw, mr := newTestRedisWindow(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := rw.Decide(ctx, "x", DefaultPolicy()); err == nil {
		t.Fatal("expected error with redis down")
	}
}

func TestRedisWindow_Check(t *testing.T) {
	rw, mr := newTestRedisWindow(t)
	ctx := context.Background()

	if err := rw.Check(ctx); err != nil {
		t.Fatalf("Check with redis up: %v", err)
	}

	mr.Close()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rw.Check(ctx); err == nil {
		t.Fatal("Check should fail with redis down")
	}
}
