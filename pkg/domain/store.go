// Package domain provides the persisted Domain projection (C9) and the store
// operations the purchase pipeline uses to record a registration.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Status is the Domain.status projection (spec §3).
type Status string

const (
	StatusAvailable  Status = "AVAILABLE"
	StatusPurchased  Status = "PURCHASED"
	StatusDNSApplied Status = "DNS_APPLIED"
	StatusError      Status = "ERROR"
)

// Record is a persisted Domain row.
type Record struct {
	ID        uuid.UUID
	Name      string
	UserID    uuid.UUID
	Registrar string
	Status    Status
	Privacy   bool
	AutoRenew bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// GetByName looks up a Domain by its normalized name. Returns (nil, nil) if
// no row exists.
func (s *Store) GetByName(ctx context.Context, name string) (*Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, user_id, registrar, status, privacy, auto_renew, created_at, updated_at
		   FROM domains WHERE name = $1`,
		name,
	).Scan(&r.ID, &r.Name, &r.UserID, &r.Registrar, &r.Status, &r.Privacy, &r.AutoRenew, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading domain %q: %w", name, err)
	}
	return &r, nil
}

// UpsertPurchased creates or updates the Domain row for a freshly registered
// domain, setting status=PURCHASED.
func (s *Store) UpsertPurchased(ctx context.Context, userID uuid.UUID, name, registrarName string, privacy, autoRenew bool) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO domains (id, name, user_id, registrar, status, privacy, auto_renew, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 ON CONFLICT (name) DO UPDATE
		   SET user_id = EXCLUDED.user_id,
		       registrar = EXCLUDED.registrar,
		       status = EXCLUDED.status,
		       privacy = EXCLUDED.privacy,
		       auto_renew = EXCLUDED.auto_renew,
		       updated_at = now()
		 RETURNING id`,
		uuid.New(), name, userID, registrarName, StatusPurchased, privacy, autoRenew,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting domain %q: %w", name, err)
	}
	return id, nil
}

// MarkDNSApplied transitions a domain from PURCHASED to DNS_APPLIED.
func (s *Store) MarkDNSApplied(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE domains SET status = $1, updated_at = now() WHERE id = $2`,
		StatusDNSApplied, id,
	)
	if err != nil {
		return fmt.Errorf("marking domain %s dns_applied: %w", id, err)
	}
	return nil
}

// MarkError transitions a domain to ERROR status, e.g. after a DNS apply
// failure that the pipeline has decided not to roll the purchase back for.
func (s *Store) MarkError(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE domains SET status = $1, updated_at = now() WHERE id = $2`,
		StatusError, id,
	)
	if err != nil {
		return fmt.Errorf("marking domain %s error: %w", id, err)
	}
	return nil
}

// InsertPurchase appends a Purchase row. orderID is unique; a conflict here
// means the registrar has issued a duplicate order id, which should not
// normally happen and surfaces as an error.
func (s *Store) InsertPurchase(ctx context.Context, userID, domainID uuid.UUID, registrarName, orderID string, years int, totalUSD decimal.Decimal, premium bool) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO purchases (id, user_id, domain_id, registrar, order_id, years, total_usd, premium, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 RETURNING id`,
		uuid.New(), userID, domainID, registrarName, orderID, years, totalUSD, premium,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting purchase for domain %s: %w", domainID, err)
	}
	return id, nil
}
