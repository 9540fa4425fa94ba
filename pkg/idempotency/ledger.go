// Package idempotency implements the durable request ledger (C3) and the
// in-process per-key mutex (C4) that together make purchase retries safe.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTTL is the lifetime of a committed idempotency row.
const DefaultTTL = 3600 * time.Second

// BeginResult is the outcome of Begin.
type BeginResult struct {
	OK       bool
	Digest   string
	Response json.RawMessage
}

// Ledger is the durable (key -> digest, response, expiry) store.
type Ledger struct {
	pool *pgxpool.Pool
}

// New creates a Ledger backed by pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Begin checks whether key already has a committed row; it does not reserve
// key, so callers serialize concurrent attempts themselves (KeyMutex).
// Expired rows encountered for key are deleted as a side effect. If a
// non-expired row already exists, OK is false
// and Digest/Response are populated so the caller can decide whether to
// replay the stored response or reject as IdempotencyMismatch.
func (l *Ledger) Begin(ctx context.Context, key string) (*BeginResult, error) {
	if _, err := l.pool.Exec(ctx,
		`DELETE FROM idem WHERE key = $1 AND expires_at <= now()`, key,
	); err != nil {
		return nil, fmt.Errorf("sweeping expired idempotency row: %w", err)
	}

	var digest string
	var response []byte
	err := l.pool.QueryRow(ctx,
		`SELECT digest, response_json FROM idem WHERE key = $1`, key,
	).Scan(&digest, &response)
	if errors.Is(err, pgx.ErrNoRows) {
		return &BeginResult{OK: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading idempotency row: %w", err)
	}

	return &BeginResult{OK: false, Digest: digest, Response: response}, nil
}

// Commit durably records the completed response for key with the given
// digest, expiring after ttl.
func (l *Ledger) Commit(ctx context.Context, key, digest string, response json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO idem (key, digest, response_json, expires_at, created_at)
		 VALUES ($1, $2, $3, now() + make_interval(secs => $4), now())
		 ON CONFLICT (key) DO UPDATE
		   SET digest = EXCLUDED.digest,
		       response_json = EXCLUDED.response_json,
		       expires_at = EXCLUDED.expires_at`,
		key, digest, response, ttl.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("committing idempotency row: %w", err)
	}
	return nil
}

// Fail deletes key's row, if any, freeing it for a fresh attempt.
func (l *Ledger) Fail(ctx context.Context, key string) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM idem WHERE key = $1`, key); err != nil {
		return fmt.Errorf("clearing idempotency row: %w", err)
	}
	return nil
}
