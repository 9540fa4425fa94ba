// Package purchase implements the purchase pipeline (C7): the core state
// machine that couples the idempotency ledger, per-key mutex, registrar
// driver, spend ledger and DNS application into one safe-to-retry operation.
package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/domainforge/gateway/internal/apierr"
	"github.com/domainforge/gateway/internal/audit"
	"github.com/domainforge/gateway/pkg/domainname"
	"github.com/domainforge/gateway/pkg/idempotency"
	"github.com/domainforge/gateway/pkg/labelsafety"
	"github.com/domainforge/gateway/pkg/registrar"
	"github.com/domainforge/gateway/pkg/spend"
)

// priceDriftToleranceUSD is the absolute tolerance between the client's
// quoted total and the registrar's fresh re-quote inside the guarded region.
var priceDriftToleranceUSD = decimal.NewFromFloat(0.50)

// domainStore is the subset of *pkg/domain.Store the pipeline needs to
// persist a registration. Declared as an interface here (rather than taking
// *domain.Store directly) so tests can exercise Execute's concurrency
// invariants against an in-memory fake instead of a live Postgres pool.
type domainStore interface {
	UpsertPurchased(ctx context.Context, userID uuid.UUID, name, registrarName string, privacy, autoRenew bool) (uuid.UUID, error)
	InsertPurchase(ctx context.Context, userID, domainID uuid.UUID, registrarName, orderID string, years int, totalUSD decimal.Decimal, premium bool) (uuid.UUID, error)
	MarkDNSApplied(ctx context.Context, id uuid.UUID) error
}

// spendLedger is the subset of *pkg/spend.Ledger the pipeline needs.
type spendLedger interface {
	GetTotal(ctx context.Context, acct string, day time.Time) (decimal.Decimal, error)
	Add(ctx context.Context, acct string, day time.Time, amount decimal.Decimal) error
}

// idemLedger is the subset of *pkg/idempotency.Ledger the pipeline needs.
type idemLedger interface {
	Begin(ctx context.Context, key string) (*idempotency.BeginResult, error)
	Commit(ctx context.Context, key, digest string, response json.RawMessage, ttl time.Duration) error
	Fail(ctx context.Context, key string) error
}

// Pipeline wires together every component the purchase operation depends on.
// All fields are required; construct via internal/app at startup.
type Pipeline struct {
	Registrar     registrar.Driver
	RegistrarName string
	DomainStore   domainStore
	SpendLedger   spendLedger
	IdemLedger    idemLedger
	Mutex         *idempotency.KeyMutex
	Audit         *audit.Writer
	Logger        *slog.Logger

	AllowlistTLDs  domainname.Allowlist
	MaxPerTxnUSD   decimal.Decimal
	MaxDailyUSD    decimal.Decimal
	DefaultContact registrar.Contact
}

// Execute runs the full purchase pipeline for one validated request, on
// behalf of userID scoped under acctKey (the account key used for rate
// limiting and spend tracking — "anon" is never a valid acctKey here since
// /buy requires authentication).
func (p *Pipeline) Execute(ctx context.Context, userID uuid.UUID, acctKey string, req Request) (Response, error) {
	// 1. Normalize and TLD-allowlist check.
	name := domainname.Normalize(req.Domain)
	if !domainname.Valid(name) {
		return Response{}, apierr.New(apierr.KindValidation, "domain does not match the required syntax")
	}

	label, tld, err := domainname.Split(name)
	if err != nil {
		return Response{}, apierr.New(apierr.KindValidation, err.Error())
	}
	if !p.AllowlistTLDs.Allows(tld) {
		return Response{}, apierr.WithDetails(apierr.KindValidation, "TLD not in allowlist", map[string]any{"tld": tld})
	}

	// 2. Label safety.
	safety := labelsafety.Check(label, req.AllowUnicode)
	if !safety.Safe {
		return Response{}, apierr.WithDetails(apierr.KindUnsafeLabel, "label failed safety checks", map[string]any{"reasons": safety.Reasons})
	}

	// 3. Per-transaction cap.
	if req.QuotedTotalUSD.GreaterThan(p.MaxPerTxnUSD) {
		return Response{}, apierr.WithDetails(apierr.KindSpendCapExceeded, "quoted total exceeds the per-transaction cap", map[string]any{
			"max_per_txn_usd": p.MaxPerTxnUSD,
		})
	}

	// 4. Provisional quote to detect premium.
	provisional, err := p.Registrar.Quote(ctx, name, req.Years, req.WhoisPrivacy)
	if err != nil {
		return Response{}, fmt.Errorf("provisional quote: %w", err)
	}
	if provisional.Premium && !req.AllowPremium {
		return Response{}, apierr.New(apierr.KindPremiumNotAllowed, "domain is premium-priced")
	}

	// 5. Daily cap.
	today := spend.Today()
	todaySpent, err := p.SpendLedger.GetTotal(ctx, acctKey, today)
	if err != nil {
		return Response{}, fmt.Errorf("reading daily spend: %w", err)
	}
	if todaySpent.Add(req.QuotedTotalUSD).GreaterThan(p.MaxDailyUSD) {
		remaining := p.MaxDailyUSD.Sub(todaySpent)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		return Response{}, apierr.WithDetails(apierr.KindDailyCapExceeded, "would exceed daily spend cap", map[string]any{
			"remaining": remaining,
		})
	}

	// 6. Digest + idempotency key.
	digest, err := idempotency.Digest(name, req.Years, req.WhoisPrivacy, req.QuotedTotalUSD)
	if err != nil {
		return Response{}, fmt.Errorf("computing idempotency digest: %w", err)
	}
	key := idempotency.Key(name, req.IdempotencyKey)

	// 7. Mutex acquire first: Begin must run inside the critical section, or
	// two concurrent requests sharing key can both observe BeginResult{OK:true}
	// before either commits, and both end up calling Register.
	if err := p.Mutex.Acquire(ctx, key); err != nil {
		return Response{}, fmt.Errorf("acquiring purchase lock: %w", err)
	}
	defer p.Mutex.Release(key)

	// 8. Begin, replaying a prior committed response if the digest matches.
	begin, err := p.IdemLedger.Begin(ctx, key)
	if err != nil {
		return Response{}, fmt.Errorf("beginning idempotency record: %w", err)
	}
	if !begin.OK {
		if begin.Digest != digest {
			return Response{}, apierr.New(apierr.KindIdempotencyMismatch, "idempotency key reused with different request parameters")
		}
		var replay Response
		if err := json.Unmarshal(begin.Response, &replay); err != nil {
			return Response{}, fmt.Errorf("decoding replayed response: %w", err)
		}
		return replay, nil
	}

	// 9. Guarded region.
	resp, guardErr := p.guardedRegister(ctx, userID, acctKey, name, req)
	if guardErr != nil {
		if failErr := p.IdemLedger.Fail(ctx, key); failErr != nil {
			p.Logger.Error("clearing idempotency row after failed purchase", "error", failErr, "key", key)
		}
		p.auditBuyFail(userID, name, guardErr)
		return Response{}, guardErr
	}

	responseJSON, err := json.Marshal(resp)
	if err != nil {
		return Response{}, fmt.Errorf("encoding purchase response: %w", err)
	}
	if err := p.IdemLedger.Commit(ctx, key, digest, responseJSON, idempotency.DefaultTTL); err != nil {
		return Response{}, fmt.Errorf("committing idempotency record: %w", err)
	}

	p.Audit.Log(audit.Entry{UserID: userID, Verb: "BUY_SUCCESS", Payload: responseJSON})

	return resp, nil
}

// guardedRegister performs the re-quote/drift check, registration, and
// persistence that must all-or-nothing succeed before the idempotency record
// is committed. A DNS_APPLY_PARTIAL_FAILURE from the registrar is a known
// exception: per the design note on applyRecords partial failure, the
// purchase itself still stands (domain stays PURCHASED, spend is still
// recorded). Both drivers return that code whenever any template record
// fails, including when all of them fail. Any other DNS error (a nameserver
// update failure, an invalid nameserver count, an unsupported TLD, or failing
// to mark the domain DNS_APPLIED) aborts the transaction.
func (p *Pipeline) guardedRegister(ctx context.Context, userID uuid.UUID, acctKey, name string, req Request) (Response, error) {
	fresh, err := p.Registrar.Quote(ctx, name, req.Years, req.WhoisPrivacy)
	if err != nil {
		return Response{}, fmt.Errorf("re-quote: %w", err)
	}

	drift := fresh.TotalUSD.Sub(req.QuotedTotalUSD).Abs()
	if drift.GreaterThan(priceDriftToleranceUSD) {
		return Response{}, apierr.WithDetails(apierr.KindPriceDrift, "registrar quote drifted from the quoted total", map[string]any{
			"drift": drift,
		})
	}

	if req.NameserverMode == NameserverModeCustom && len(req.Nameservers) == 0 {
		return Response{}, apierr.New(apierr.KindNameserversRequired, "custom nameserver mode requires at least one nameserver")
	}

	var records []registrar.Record
	if req.NameserverMode != NameserverModeCustom {
		templateID := req.DNSTemplateID
		if templateID == "" {
			templateID = DefaultDNSTemplateID
		}
		var ok bool
		records, ok = dnsTemplate(templateID)
		if !ok {
			return Response{}, apierr.WithDetails(apierr.KindUnknownDnsTemplate, "unknown DNS template", map[string]any{"dns_template_id": templateID})
		}
	}

	result, err := p.Registrar.Register(ctx, registrar.RegisterRequest{
		Domain:   name,
		Years:    req.Years,
		Privacy:  req.WhoisPrivacy,
		Contact:  p.DefaultContact,
		TotalUSD: fresh.TotalUSD,
	})
	if err != nil {
		return Response{}, fmt.Errorf("register: %w", err)
	}
	if !result.Success {
		return Response{}, apierr.New(apierr.KindValidation, result.Message)
	}

	domainID, err := p.DomainStore.UpsertPurchased(ctx, userID, name, p.RegistrarName, req.WhoisPrivacy, false)
	if err != nil {
		return Response{}, fmt.Errorf("persisting domain: %w", err)
	}
	if _, err := p.DomainStore.InsertPurchase(ctx, userID, domainID, p.RegistrarName, result.OrderID, req.Years, result.ChargedTotalUSD, fresh.Premium); err != nil {
		return Response{}, fmt.Errorf("persisting purchase: %w", err)
	}

	dnsErr := p.applyDNS(ctx, domainID, name, req, records)
	if dnsErr != nil {
		code, _ := registrar.Code(dnsErr)
		if code != registrar.ErrDNSApplyPartialFailure {
			return Response{}, fmt.Errorf("applying DNS: %w", dnsErr)
		}
		p.Logger.Warn("DNS application partially failed; purchase remains committed", "domain", name, "error", dnsErr)
	}

	if err := p.SpendLedger.Add(ctx, acctKey, spend.Today(), result.ChargedTotalUSD); err != nil {
		// The register call already succeeded upstream; per spec §4.2 this is
		// treated as a committed purchase regardless, reconciled out of band.
		p.Logger.Error("recording spend after committed purchase", "error", err, "acct", acctKey)
	}

	return Response{
		OrderID:         result.OrderID,
		ChargedTotalUSD: result.ChargedTotalUSD,
		Registrar:       p.RegistrarName,
		NameserverMode:  req.NameserverMode,
		DNSTemplateID:   req.DNSTemplateID,
		DomainID:        domainID,
	}, nil
}

func (p *Pipeline) applyDNS(ctx context.Context, domainID uuid.UUID, name string, req Request, records []registrar.Record) error {
	if req.NameserverMode == NameserverModeCustom {
		if err := p.Registrar.SetNameservers(ctx, name, req.Nameservers); err != nil {
			return err
		}
		return p.DomainStore.MarkDNSApplied(ctx, domainID)
	}

	if err := p.Registrar.ApplyRecords(ctx, name, records); err != nil {
		return err
	}
	return p.DomainStore.MarkDNSApplied(ctx, domainID)
}

func (p *Pipeline) auditBuyFail(userID uuid.UUID, name string, cause error) {
	payload, _ := json.Marshal(map[string]any{
		"domain":  name,
		"error":   cause.Error(),
		"message": cause.Error(),
	})
	p.Audit.Log(audit.Entry{UserID: userID, Verb: "BUY_FAIL", Payload: payload})
}
