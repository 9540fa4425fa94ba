// Package domainname holds the domain-syntax rules shared by the purchase
// and search pipelines: normalization, label/TLD splitting, and allowlist
// enforcement (spec §6).
package domainname

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is the domain syntax spec §6 requires: a label of 1..63 chars not
// starting or ending with a hyphen, a dot, then a TLD of letters only.
var Pattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?\.[a-zA-Z]{2,}$`)

// Normalize lowercases and trims a candidate domain name. It does not
// validate syntax; callers should validate separately via Pattern or Split.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Valid reports whether name matches the domain syntax and overall length
// bounds (3..253) required by spec §6.
func Valid(name string) bool {
	if len(name) < 3 || len(name) > 253 {
		return false
	}
	return Pattern.MatchString(name)
}

// Split divides a normalized domain into its leftmost label and the
// remainder as TLD (everything after the first dot, lowercased).
func Split(name string) (label, tld string, err error) {
	idx := strings.Index(name, ".")
	if idx == -1 {
		return "", "", fmt.Errorf("domain %q has no TLD", name)
	}
	return name[:idx], name[idx+1:], nil
}

// Allowlist is a set of permitted TLDs. A nil or empty Allowlist permits any
// TLD, per spec §6 ("empty = all").
type Allowlist map[string]bool

// NewAllowlist builds an Allowlist from a list of TLDs (case-insensitive).
func NewAllowlist(tlds []string) Allowlist {
	if len(tlds) == 0 {
		return nil
	}
	a := make(Allowlist, len(tlds))
	for _, t := range tlds {
		a[strings.ToLower(t)] = true
	}
	return a
}

// Allows reports whether tld is permitted. An empty/nil allowlist permits
// everything.
func (a Allowlist) Allows(tld string) bool {
	if len(a) == 0 {
		return true
	}
	return a[strings.ToLower(tld)]
}
