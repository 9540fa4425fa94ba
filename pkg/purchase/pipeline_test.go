package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/domainforge/gateway/internal/apierr"
	"github.com/domainforge/gateway/internal/audit"
	"github.com/domainforge/gateway/pkg/domainname"
	"github.com/domainforge/gateway/pkg/idempotency"
	"github.com/domainforge/gateway/pkg/registrar"
)

// fakeDriver is an in-memory registrar.Driver double that counts Register
// calls so tests can assert the exactly-once invariant directly.
type fakeDriver struct {
	mu            sync.Mutex
	registerCalls int32
	orderSeq      int
	totalUSD      decimal.Decimal
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) CheckAvailability(ctx context.Context, domains []string) ([]registrar.AvailabilityResult, error) {
	return nil, nil
}

func (d *fakeDriver) Quote(ctx context.Context, domain string, years int, privacy bool) (registrar.Quote, error) {
	return registrar.Quote{TotalUSD: d.totalUSD}, nil
}

func (d *fakeDriver) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.RegisterResult, error) {
	atomic.AddInt32(&d.registerCalls, 1)

	d.mu.Lock()
	d.orderSeq++
	orderID := fmt.Sprintf("ORDER-%d", d.orderSeq)
	d.mu.Unlock()

	return registrar.RegisterResult{
		OrderID:         orderID,
		ChargedTotalUSD: req.TotalUSD,
		Success:         true,
	}, nil
}

func (d *fakeDriver) Status(ctx context.Context, domain string) (registrar.StatusResult, error) {
	return registrar.StatusResult{State: registrar.StateActive}, nil
}

func (d *fakeDriver) SetNameservers(ctx context.Context, domain string, nameservers []string) error {
	return nil
}

func (d *fakeDriver) ApplyRecords(ctx context.Context, domain string, records []registrar.Record) error {
	return nil
}

// fakeDomainStore is an in-memory domainStore double.
type fakeDomainStore struct {
	mu        sync.Mutex
	purchases int
}

func (s *fakeDomainStore) UpsertPurchased(ctx context.Context, userID uuid.UUID, name, registrarName string, privacy, autoRenew bool) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *fakeDomainStore) InsertPurchase(ctx context.Context, userID, domainID uuid.UUID, registrarName, orderID string, years int, totalUSD decimal.Decimal, premium bool) (uuid.UUID, error) {
	s.mu.Lock()
	s.purchases++
	s.mu.Unlock()
	return uuid.New(), nil
}

func (s *fakeDomainStore) MarkDNSApplied(ctx context.Context, id uuid.UUID) error { return nil }

// fakeSpendLedger is an in-memory spendLedger double.
type fakeSpendLedger struct {
	mu    sync.Mutex
	total map[string]decimal.Decimal
}

func newFakeSpendLedger() *fakeSpendLedger {
	return &fakeSpendLedger{total: make(map[string]decimal.Decimal)}
}

func (l *fakeSpendLedger) GetTotal(ctx context.Context, acct string, day time.Time) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total[acct], nil
}

func (l *fakeSpendLedger) Add(ctx context.Context, acct string, day time.Time, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total[acct] = l.total[acct].Add(amount)
	return nil
}

// fakeIdemLedger mirrors *idempotency.Ledger's actual semantics: Begin only
// reports whether a committed row exists for key, it never reserves one.
// Serializing concurrent Begin/Commit pairs for the same key is the
// pipeline's job (KeyMutex), not the ledger's — this double must behave the
// same way or it would mask the very race these tests exist to catch.
type fakeIdemLedger struct {
	mu   sync.Mutex
	rows map[string]idemRow
}

type idemRow struct {
	digest   string
	response json.RawMessage
}

func newFakeIdemLedger() *fakeIdemLedger {
	return &fakeIdemLedger{rows: make(map[string]idemRow)}
}

func (l *fakeIdemLedger) Begin(ctx context.Context, key string) (*idempotency.BeginResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[key]
	if !ok {
		return &idempotency.BeginResult{OK: true}, nil
	}
	return &idempotency.BeginResult{OK: false, Digest: row.digest, Response: row.response}, nil
}

func (l *fakeIdemLedger) Commit(ctx context.Context, key, digest string, response json.RawMessage, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[key] = idemRow{digest: digest, response: response}
	return nil
}

func (l *fakeIdemLedger) Fail(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rows, key)
	return nil
}

func newTestPipeline(driver *fakeDriver) *Pipeline {
	return &Pipeline{
		Registrar:      driver,
		RegistrarName:  "fake",
		DomainStore:    &fakeDomainStore{},
		SpendLedger:    newFakeSpendLedger(),
		IdemLedger:     newFakeIdemLedger(),
		Mutex:          idempotency.NewKeyMutex(),
		Audit:          audit.NewWriter(nil, slog.Default()),
		Logger:         slog.Default(),
		AllowlistTLDs:  domainname.NewAllowlist([]string{"com"}),
		MaxPerTxnUSD:   decimal.NewFromInt(1000),
		MaxDailyUSD:    decimal.NewFromInt(1000),
		DefaultContact: registrar.Contact{Email: "owner@example.com"},
	}
}

// TestExecuteConcurrentSameKeyRegistersOnce is the dedicated concurrency test
// for spec §8's quantified invariant: concurrent requests sharing an
// idempotency key must result in at most one call to Register.
func TestExecuteConcurrentSameKeyRegistersOnce(t *testing.T) {
	driver := &fakeDriver{totalUSD: decimal.NewFromInt(12)}
	pipeline := newTestPipeline(driver)
	userID := uuid.New()

	req := Request{
		Domain:         "concurrent-test.com",
		Years:          1,
		WhoisPrivacy:   true,
		NameserverMode: NameserverModeRegistrar,
		DNSTemplateID:  DefaultDNSTemplateID,
		QuotedTotalUSD: decimal.NewFromInt(12),
		IdempotencyKey: "same-key",
	}

	const goroutines = 25
	var wg sync.WaitGroup
	responses := make([]Response, goroutines)
	errs := make([]error, goroutines)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			defer wg.Done()
			resp, err := pipeline.Execute(context.Background(), userID, "acct-1", req)
			responses[i] = resp
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: Execute() error: %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&driver.registerCalls); got != 1 {
		t.Fatalf("expected exactly one Register call across %d concurrent requests sharing an idempotency key, got %d", goroutines, got)
	}

	first := responses[0]
	for i, resp := range responses {
		if resp.OrderID != first.OrderID {
			t.Fatalf("goroutine %d: expected every caller to observe the same committed OrderID %q, got %q", i, first.OrderID, resp.OrderID)
		}
	}
}

// TestExecuteDifferentKeysRegisterIndependently guards against an
// over-broad fix: distinct idempotency keys must not serialize into a
// single Register call.
func TestExecuteDifferentKeysRegisterIndependently(t *testing.T) {
	driver := &fakeDriver{totalUSD: decimal.NewFromInt(12)}
	pipeline := newTestPipeline(driver)
	userID := uuid.New()

	const goroutines = 10
	var wg sync.WaitGroup
	errs := make([]error, goroutines)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			defer wg.Done()
			req := Request{
				Domain:         "independent-test.com",
				Years:          1,
				WhoisPrivacy:   true,
				NameserverMode: NameserverModeRegistrar,
				DNSTemplateID:  DefaultDNSTemplateID,
				QuotedTotalUSD: decimal.NewFromInt(12),
				IdempotencyKey: fmt.Sprintf("key-%d", i),
			}
			_, err := pipeline.Execute(context.Background(), userID, "acct-1", req)
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: Execute() error: %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&driver.registerCalls); got != goroutines {
		t.Fatalf("expected %d independent Register calls for %d distinct idempotency keys, got %d", goroutines, goroutines, got)
	}
}

func TestExecuteIdempotencyKeyReusedWithDifferentParamsIsRejected(t *testing.T) {
	driver := &fakeDriver{totalUSD: decimal.NewFromInt(12)}
	pipeline := newTestPipeline(driver)
	userID := uuid.New()

	first := Request{
		Domain:         "mismatch-test.com",
		Years:          1,
		WhoisPrivacy:   true,
		NameserverMode: NameserverModeRegistrar,
		DNSTemplateID:  DefaultDNSTemplateID,
		QuotedTotalUSD: decimal.NewFromInt(12),
		IdempotencyKey: "reused-key",
	}
	if _, err := pipeline.Execute(context.Background(), userID, "acct-1", first); err != nil {
		t.Fatalf("first Execute() error: %v", err)
	}

	second := first
	second.Years = 2 // changes the digest inputs while reusing IdempotencyKey

	_, err := pipeline.Execute(context.Background(), userID, "acct-1", second)
	if err == nil {
		t.Fatal("expected an error when reusing an idempotency key with different request parameters")
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindIdempotencyMismatch {
		t.Fatalf("expected a *apierr.Error with KindIdempotencyMismatch, got %v", err)
	}
	if got := atomic.LoadInt32(&driver.registerCalls); got != 1 {
		t.Fatalf("expected the mismatched second call not to register, got %d Register calls", got)
	}
}
