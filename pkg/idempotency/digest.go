package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Digest computes the SHA-256 over a canonical JSON encoding of the purchase
// parameters that determine intent. encoding/json sorts map keys
// lexicographically when marshaling, which is what makes this canonical.
func Digest(domain string, years int, whoisPrivacy bool, quotedTotalUSD decimal.Decimal) (string, error) {
	canonical := map[string]any{
		"domain":           domain,
		"years":            years,
		"whois_privacy":    whoisPrivacy,
		"quoted_total_usd": quotedTotalUSD.StringFixed(2),
	}

	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshaling digest input: %w", err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Key builds the idempotency ledger key for a buy request.
func Key(domain, idempotencyKey string) string {
	return fmt.Sprintf("buy:%s:%s", domain, idempotencyKey)
}
