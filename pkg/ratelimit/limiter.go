// Package ratelimit implements the sliding-window request limiter (C6) that
// guards search and buy traffic per account or IP.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces a sliding one-minute window per key, backed by Redis
// sorted sets: each allowed request adds a timestamp member, and members
// older than the window are trimmed before counting.
type Limiter struct {
	rdb               *redis.Client
	requestsPerMinute int
	burstSize         int
}

// Result is the outcome of a Consume call.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

func New(rdb *redis.Client, requestsPerMinute, burstSize int) *Limiter {
	return &Limiter{rdb: rdb, requestsPerMinute: requestsPerMinute, burstSize: burstSize}
}

const window = 60 * time.Second

// Consume records one request attempt for key and reports whether it is
// allowed. Rejection is gated solely by the sliding window: it rejects once
// the count of timestamps in the last 60s reaches requestsPerMinute,
// independent of the token bucket below. A parallel token bucket (capped at
// burstSize, refilled at requestsPerMinute/60000 tokens per ms) is tracked
// alongside it as auxiliary state for callers that want to surface
// remaining burst capacity, but it never itself gates the allow/deny
// decision.
func (l *Limiter) Consume(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	cutoff := now.Add(-window)
	zkey := "ratelimit:" + key

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", fmt.Sprintf("%d", cutoff.UnixMilli()))
	countCmd := pipe.ZCard(ctx, zkey)
	oldestCmd := pipe.ZRangeWithScores(ctx, zkey, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("reading rate limit window: %w", err)
	}

	count, err := countCmd.Result()
	if err != nil {
		return Result{}, fmt.Errorf("counting rate limit window: %w", err)
	}

	if int(count) >= l.requestsPerMinute {
		retryAfter := window
		if entries, err := oldestCmd.Result(); err == nil && len(entries) > 0 {
			oldest := time.UnixMilli(int64(entries[0].Score))
			retryAfter = window - now.Sub(oldest)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return Result{Allowed: false, RetryAfter: retryAfter}, nil
	}

	nowMilli := now.UnixMilli()
	member := redis.Z{Score: float64(nowMilli), Member: fmt.Sprintf("%d-%d", nowMilli, rand.Int63())}
	addPipe := l.rdb.TxPipeline()
	addPipe.ZAdd(ctx, zkey, member)
	addPipe.Expire(ctx, zkey, window+idleGrace)
	if _, err := addPipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("recording rate limit timestamp: %w", err)
	}

	l.consumeToken(ctx, key, now)

	return Result{Allowed: true}, nil
}

// idleGrace is added to the sorted-set TTL so a key with no traffic for the
// last window expires on its own instead of lingering indefinitely.
const idleGrace = 10 * time.Minute

// bucketState is the token bucket's persisted state: Tokens as of TS
// (milliseconds since epoch), refilled lazily on each read.
type bucketState struct {
	Tokens float64 `json:"tokens"`
	TS     int64   `json:"ts"`
}

// refillRatePerMs is how many tokens accrue per millisecond for a bucket
// whose steady rate is requestsPerMinute.
func (l *Limiter) refillRatePerMs() float64 {
	return float64(l.requestsPerMinute) / float64(window.Milliseconds())
}

// consumeToken refills the bucket for the elapsed time since its last
// update, caps it at burstSize, and spends one token for this request.
// Failures are non-fatal: the bucket is purely auxiliary state and never
// gates Consume's allow/deny decision.
func (l *Limiter) consumeToken(ctx context.Context, key string, now time.Time) {
	bkey := "ratelimit:bucket:" + key
	nowMilli := now.UnixMilli()

	state := bucketState{Tokens: float64(l.burstSize), TS: nowMilli}
	if raw, err := l.rdb.Get(ctx, bkey).Bytes(); err == nil {
		var prev bucketState
		if json.Unmarshal(raw, &prev) == nil {
			state = prev
		}
	}

	if elapsed := nowMilli - state.TS; elapsed > 0 {
		state.Tokens += float64(elapsed) * l.refillRatePerMs()
		if cap := float64(l.burstSize); state.Tokens > cap {
			state.Tokens = cap
		}
		state.TS = nowMilli
	}
	if state.Tokens >= 1 {
		state.Tokens -= 1
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	l.rdb.Set(ctx, bkey, raw, window+idleGrace)
}
