// Package spend tracks per-account, per-UTC-day USD spend so the purchase
// pipeline can enforce a daily ceiling across concurrent requests.
package spend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Ledger is the atomic per-(account, day) spend accumulator (C2).
type Ledger struct {
	pool *pgxpool.Pool
}

// New creates a Ledger backed by pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Today returns the UTC-midnight day bucket for now.
func Today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// GetTotal returns the accumulated spend for acct on the given day, or zero
// if no row exists yet.
func (l *Ledger) GetTotal(ctx context.Context, acct string, day time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.pool.QueryRow(ctx,
		`SELECT total_usd FROM daily_spend WHERE account_key = $1 AND day = $2`,
		acct, day,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading daily spend: %w", err)
	}
	return total, nil
}

// Add atomically increments acct's spend for day by amount. This is the only
// write path for DailySpend and is safe under concurrent callers: the
// increment happens inside the upsert, not via read-modify-write in Go.
func (l *Ledger) Add(ctx context.Context, acct string, day time.Time, amount decimal.Decimal) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO daily_spend (account_key, day, total_usd)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_key, day)
		 DO UPDATE SET total_usd = daily_spend.total_usd + EXCLUDED.total_usd`,
		acct, day, amount,
	)
	if err != nil {
		return fmt.Errorf("recording spend: %w", err)
	}
	return nil
}

// WouldExceed reports whether adding amount to acct's current total for day
// would exceed cap.
func (l *Ledger) WouldExceed(ctx context.Context, acct string, day time.Time, amount, cap decimal.Decimal) (bool, error) {
	total, err := l.GetTotal(ctx, acct, day)
	if err != nil {
		return false, err
	}
	return total.Add(amount).GreaterThan(cap), nil
}

// Remaining returns max(0, cap - total) for acct on day.
func (l *Ledger) Remaining(ctx context.Context, acct string, day time.Time, cap decimal.Decimal) (decimal.Decimal, error) {
	total, err := l.GetTotal(ctx, acct, day)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := cap.Sub(total)
	if remaining.IsNegative() {
		return decimal.Zero, nil
	}
	return remaining, nil
}
