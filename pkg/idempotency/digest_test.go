package idempotency

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDigestDeterministic(t *testing.T) {
	total := decimal.NewFromFloat(12.50)

	a, err := Digest("example.com", 1, true, total)
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	b, err := Digest("example.com", 1, true, total)
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	if a != b {
		t.Errorf("Digest() not deterministic: %q != %q", a, b)
	}
}

func TestDigestDistinguishesParameters(t *testing.T) {
	base, err := Digest("example.com", 1, true, decimal.NewFromFloat(12.50))
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}

	variants := []struct {
		name   string
		digest func() (string, error)
	}{
		{"different domain", func() (string, error) { return Digest("other.com", 1, true, decimal.NewFromFloat(12.50)) }},
		{"different years", func() (string, error) { return Digest("example.com", 2, true, decimal.NewFromFloat(12.50)) }},
		{"different privacy", func() (string, error) { return Digest("example.com", 1, false, decimal.NewFromFloat(12.50)) }},
		{"different total", func() (string, error) { return Digest("example.com", 1, true, decimal.NewFromFloat(13.00)) }},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			got, err := v.digest()
			if err != nil {
				t.Fatalf("Digest() error: %v", err)
			}
			if got == base {
				t.Errorf("expected %s to change the digest, got the same value", v.name)
			}
		})
	}
}

func TestKey(t *testing.T) {
	if got := Key("example.com", "abc-123"); got != "buy:example.com:abc-123" {
		t.Errorf("Key() = %q, want %q", got, "buy:example.com:abc-123")
	}
}
