// Package search implements the candidate-generation and bulk-availability
// pipeline (C8).
package search

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/domainforge/gateway/internal/apierr"
	"github.com/domainforge/gateway/internal/audit"
	"github.com/domainforge/gateway/pkg/domainname"
	"github.com/domainforge/gateway/pkg/labelsafety"
	"github.com/domainforge/gateway/pkg/registrar"
)

// defaultTLDs is used when neither an explicit tlds list nor a non-empty
// allowlist is available.
var defaultTLDs = []string{"com", "net", "org", "io"}

// Request is the validated input to the search pipeline (spec §4.7). Exactly
// one of Prompt or Candidates is populated; the HTTP boundary enforces that.
type Request struct {
	Prompt          string
	Candidates      []string
	TLDs            []string
	PriceCeilingUSD *decimal.Decimal
	Limit           int
	IncludePremium  bool
	IncludeUnicode  bool
}

// Result is a single reported candidate.
type Result struct {
	Domain    string          `json:"domain"`
	Available bool            `json:"available"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	Premium   bool            `json:"premium"`
}

// Pipeline wires the dependencies the search operation needs.
type Pipeline struct {
	Registrar     registrar.Driver
	Audit         *audit.Writer
	AllowlistTLDs domainname.Allowlist
	DefaultLimit  int
	MaxLimit      int
}

var nonLabelChars = regexp.MustCompile(`[^a-z0-9]+`)

// Search runs the full algorithm in spec §4.7 steps 1-7.
func (p *Pipeline) Search(ctx context.Context, userID uuid.UUID, req Request) ([]Result, error) {
	tlds := p.resolveTLDs(req.TLDs)

	candidates, err := p.resolveCandidates(req, tlds)
	if err != nil {
		return nil, err
	}

	allowed := make([]string, 0, len(candidates))
	for _, c := range candidates {
		_, tld, err := domainname.Split(c)
		if err != nil {
			continue
		}
		if p.AllowlistTLDs.Allows(tld) {
			allowed = append(allowed, c)
		}
	}
	if len(allowed) == 0 {
		return nil, apierr.New(apierr.KindValidation, "no candidate domains are within the allowed TLDs")
	}

	safe, sampleReasons := p.filterSafe(allowed, req.IncludeUnicode)
	if len(safe) == 0 {
		return nil, apierr.WithDetails(apierr.KindUnsafeLabel, "all candidates failed label safety checks", map[string]any{
			"sample_reasons": sampleReasons,
		})
	}

	avail, err := p.Registrar.CheckAvailability(ctx, safe)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = p.DefaultLimit
	}
	if limit > p.MaxLimit {
		limit = p.MaxLimit
	}

	results := make([]Result, 0, len(avail))
	for _, a := range avail {
		if a.Premium && !req.IncludePremium {
			continue
		}
		if req.PriceCeilingUSD != nil && a.PriceUSD.GreaterThan(*req.PriceCeilingUSD) {
			continue
		}
		results = append(results, Result{
			Domain:    a.Domain,
			Available: a.Available,
			PriceUSD:  a.PriceUSD,
			Premium:   a.Premium,
		})
		if len(results) >= limit {
			break
		}
	}

	p.auditSearch(userID, req.Prompt, tlds, len(results))

	return results, nil
}

func (p *Pipeline) resolveTLDs(explicit []string) []string {
	if len(explicit) > 0 {
		out := make([]string, 0, len(explicit))
		for _, t := range explicit {
			if p.AllowlistTLDs.Allows(t) {
				out = append(out, strings.ToLower(t))
			}
		}
		return out
	}
	if len(p.AllowlistTLDs) > 0 {
		out := make([]string, 0, len(p.AllowlistTLDs))
		for t := range p.AllowlistTLDs {
			out = append(out, t)
		}
		return out
	}
	return defaultTLDs
}

func (p *Pipeline) resolveCandidates(req Request, tlds []string) ([]string, error) {
	if len(req.Candidates) > 0 {
		out := make([]string, 0, len(req.Candidates))
		for _, c := range req.Candidates {
			out = append(out, domainname.Normalize(c))
		}
		return out, nil
	}

	base := strings.ToLower(req.Prompt)
	base = nonLabelChars.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		return nil, apierr.New(apierr.KindValidation, "prompt produced no usable domain label")
	}

	out := make([]string, 0, len(tlds))
	for _, tld := range tlds {
		out = append(out, base+"."+strings.ToLower(tld))
	}
	return out, nil
}

// filterSafe runs C1 over each candidate's label, returning the safe subset
// and, if none are safe, up to two sample reasons for the caller.
func (p *Pipeline) filterSafe(candidates []string, includeUnicode bool) (safe []string, sampleReasons []labelsafety.Reason) {
	for _, c := range candidates {
		label, _, err := domainname.Split(c)
		if err != nil {
			continue
		}
		result := labelsafety.Check(label, includeUnicode)
		if result.Safe {
			safe = append(safe, c)
			continue
		}
		if len(sampleReasons) < 2 {
			sampleReasons = append(sampleReasons, result.Reasons...)
			if len(sampleReasons) > 2 {
				sampleReasons = sampleReasons[:2]
			}
		}
	}
	return safe, sampleReasons
}

func (p *Pipeline) auditSearch(userID uuid.UUID, prompt string, tlds []string, count int) {
	payload, _ := json.Marshal(map[string]any{
		"prompt": prompt,
		"tlds":   tlds,
		"count":  count,
	})
	p.Audit.Log(audit.Entry{UserID: userID, Verb: "SEARCH", Payload: payload})
}
