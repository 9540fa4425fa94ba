package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyAuthenticator validates bearer API keys against the api_keys table.
type APIKeyAuthenticator struct {
	DB *pgxpool.Pool
}

// Authenticate hashes the raw key and looks up its owning user. Keys are
// opaque random tokens; only their SHA-256 hash is ever stored or compared.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	var apiKeyID, userID uuid.UUID
	var email string
	err := a.DB.QueryRow(ctx,
		`SELECT ak.id, u.id, u.email
		   FROM api_keys ak
		   JOIN users u ON u.id = ak.user_id
		  WHERE ak.key_hash = $1`,
		hash,
	).Scan(&apiKeyID, &userID, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invalid API key")
		}
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	return &Identity{UserID: userID, Email: email, APIKeyID: apiKeyID}, nil
}
