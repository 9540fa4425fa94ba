package domain

import (
	"context"
	"time"
)

// StatusView is the projection returned by status lookups (C9).
type StatusView struct {
	State     string `json:"state"`
	Registrar string `json:"registrar,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// stateByStatus maps the persisted Domain.status to the lookup's public
// vocabulary; anything not listed (including absence) projects to "unknown".
var stateByStatus = map[Status]string{
	StatusPurchased:  "purchased",
	StatusDNSApplied: "dns_applied",
	StatusError:      "error",
}

// Lookup projects the persisted state of a normalized domain name. Absence of
// a row is not an error: it simply means "unknown".
func Lookup(ctx context.Context, store *Store, name string) (StatusView, error) {
	rec, err := store.GetByName(ctx, name)
	if err != nil {
		return StatusView{}, err
	}
	if rec == nil {
		return StatusView{State: "unknown"}, nil
	}

	state, ok := stateByStatus[rec.Status]
	if !ok {
		state = "unknown"
	}

	return StatusView{
		State:     state,
		Registrar: rec.Registrar,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}
