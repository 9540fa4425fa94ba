package ratelimit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, requestsPerMinute, burstSize int) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, requestsPerMinute, burstSize)
}

func TestConsumeAllowsWithinLimit(t *testing.T) {
	l := newTestLimiter(t, 5, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := l.Consume(ctx, "acct-1")
		if err != nil {
			t.Fatalf("Consume() error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d: expected Allowed=true", i)
		}
	}
}

func TestConsumeRejectsOverLimit(t *testing.T) {
	l := newTestLimiter(t, 3, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if result, err := l.Consume(ctx, "acct-2"); err != nil || !result.Allowed {
			t.Fatalf("request %d should be allowed, got %+v, err=%v", i, result, err)
		}
	}

	result, err := l.Consume(ctx, "acct-2")
	if err != nil {
		t.Fatalf("Consume() error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected the request beyond the limit to be rejected")
	}
	if result.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want a positive duration", result.RetryAfter)
	}
}

func TestConsumeKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	if result, _ := l.Consume(ctx, "acct-a"); !result.Allowed {
		t.Fatal("expected first request for acct-a to be allowed")
	}
	if result, _ := l.Consume(ctx, "acct-a"); result.Allowed {
		t.Fatal("expected second request for acct-a to be rejected")
	}
	if result, _ := l.Consume(ctx, "acct-b"); !result.Allowed {
		t.Fatal("expected acct-b to be unaffected by acct-a's usage")
	}
}

func TestConsumeRejectsAtRequestsPerMinuteRegardlessOfBurst(t *testing.T) {
	l := newTestLimiter(t, 2, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := l.Consume(ctx, "acct-burst")
		if err != nil {
			t.Fatalf("Consume() error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d: expected Allowed=true within requestsPerMinute", i)
		}
	}

	result, err := l.Consume(ctx, "acct-burst")
	if err != nil {
		t.Fatalf("Consume() error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected rejection at requestsPerMinute even though burstSize is larger; burst never raises the ceiling")
	}
}

func TestTokenBucketRefillsProportionalToElapsedTime(t *testing.T) {
	l := newTestLimiter(t, 60, 5)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		l.consumeToken(ctx, "acct-bucket", now)
	}

	raw, err := l.rdb.Get(ctx, "ratelimit:bucket:acct-bucket").Bytes()
	if err != nil {
		t.Fatalf("reading bucket state: %v", err)
	}
	var drained bucketState
	if err := json.Unmarshal(raw, &drained); err != nil {
		t.Fatalf("decoding bucket state: %v", err)
	}
	if drained.Tokens >= 1 {
		t.Fatalf("expected a burst-5 bucket to be drained after 5 consumes, got %v tokens", drained.Tokens)
	}

	l.consumeToken(ctx, "acct-bucket", now.Add(30*time.Second))

	raw, err = l.rdb.Get(ctx, "ratelimit:bucket:acct-bucket").Bytes()
	if err != nil {
		t.Fatalf("reading bucket state: %v", err)
	}
	var refilled bucketState
	if err := json.Unmarshal(raw, &refilled); err != nil {
		t.Fatalf("decoding bucket state: %v", err)
	}
	if refilled.Tokens <= drained.Tokens {
		t.Fatalf("expected tokens to refill after 30s elapsed, got %v (was %v)", refilled.Tokens, drained.Tokens)
	}
}

func TestConsumeSlidingWindowFreesUpOverTime(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	l := New(rdb, 1, 1)
	ctx := context.Background()

	if result, _ := l.Consume(ctx, "acct-sliding"); !result.Allowed {
		t.Fatal("expected first request to be allowed")
	}
	if result, _ := l.Consume(ctx, "acct-sliding"); result.Allowed {
		t.Fatal("expected second request inside the window to be rejected")
	}

	// miniredis.FastForward only moves key TTLs, not the wall clock Consume
	// reads, so age the recorded timestamps past the window instead.
	zkey := "ratelimit:acct-sliding"
	members, err := rdb.ZRange(ctx, zkey, 0, -1).Result()
	if err != nil {
		t.Fatalf("reading window members: %v", err)
	}
	aged := float64(time.Now().Add(-window - time.Second).UnixMilli())
	for _, m := range members {
		rdb.ZAdd(ctx, zkey, redis.Z{Score: aged, Member: m})
	}

	if result, err := l.Consume(ctx, "acct-sliding"); err != nil || !result.Allowed {
		t.Fatalf("expected request after the window elapsed to be allowed, got %+v, err=%v", result, err)
	}
}
