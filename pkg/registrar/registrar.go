// Package registrar defines the driver abstraction (C5) that all upstream
// registrar integrations implement, plus the shared retry, pricing-cache and
// bounded-concurrency machinery concrete drivers embed.
package registrar

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrorCode enumerates the driver-level failure classes surfaced to callers.
// The purchase and search pipelines return them (wrapped, not translated into
// an apierr Kind), so the HTTP boundary reports them as InternalError. The
// one exception is DNS_APPLY_PARTIAL_FAILURE, which the purchase pipeline
// logs and does not return.
type ErrorCode string

const (
	ErrHTTPError               ErrorCode = "HTTP_ERROR"
	ErrParseError              ErrorCode = "PARSE_ERROR"
	ErrNetworkError            ErrorCode = "NETWORK_ERROR"
	ErrMaxRetries              ErrorCode = "MAX_RETRIES"
	ErrTLDNotSupported         ErrorCode = "TLD_NOT_SUPPORTED"
	ErrInvalidNameserverCount  ErrorCode = "INVALID_NAMESERVER_COUNT"
	ErrDNSApplyPartialFailure  ErrorCode = "DNS_APPLY_PARTIAL_FAILURE"
)

// DriverError wraps an ErrorCode with a human-readable message and, where
// relevant, the underlying transport error and HTTP status.
type DriverError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Cause      error
}

func (e *DriverError) Error() string {
	if e.Message != "" {
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code)
}

func (e *DriverError) Unwrap() error { return e.Cause }

// Code extracts the ErrorCode from err, if it is (or wraps) a *DriverError.
func Code(err error) (ErrorCode, bool) {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// AvailabilityResult is one entry of a checkAvailability response.
type AvailabilityResult struct {
	Domain    string
	Available bool
	PriceUSD  decimal.Decimal
	Premium   bool
}

// Quote is the pricing breakdown for a prospective registration.
type Quote struct {
	RegistrationPriceUSD decimal.Decimal
	ICANNFeeUSD          decimal.Decimal
	PrivacyPriceUSD      decimal.Decimal
	TotalUSD             decimal.Decimal
	Premium              bool
}

// Contact is the registrant contact submitted on register calls.
type Contact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	State     string
	Zip       string
	Country   string
}

// RegisterRequest is the input to Register. TotalUSD is the already-verified
// re-quote total (pipeline.go's drift check already ran against it); drivers
// whose wire response carries no charged-amount field of its own echo this
// value back in RegisterResult rather than leaving ChargedTotalUSD at zero.
type RegisterRequest struct {
	Domain   string
	Years    int
	Privacy  bool
	Contact  Contact
	TotalUSD decimal.Decimal
}

// RegisterResult is the outcome of Register. Success=false with no error
// maps to a ValidationError one level up; a non-nil error is a driver fault.
type RegisterResult struct {
	OrderID         string
	ChargedTotalUSD decimal.Decimal
	Success         bool
	Message         string
}

// DomainState is the registrar-side lifecycle state returned by Status.
type DomainState string

const (
	StateActive   DomainState = "active"
	StatePending  DomainState = "pending"
	StateExpired  DomainState = "expired"
	StateNotFound DomainState = "not_found"
	StateError    DomainState = "error"
)

// StatusResult is the outcome of Status.
type StatusResult struct {
	State   DomainState
	Details string
}

// RecordType enumerates the DNS record types applyRecords accepts.
type RecordType string

const (
	RecordA     RecordType = "A"
	RecordAAAA  RecordType = "AAAA"
	RecordCNAME RecordType = "CNAME"
	RecordTXT   RecordType = "TXT"
	RecordMX    RecordType = "MX"
	RecordNS    RecordType = "NS"
)

// Record is a single DNS record to apply post-registration.
type Record struct {
	Type     RecordType
	Name     string
	Value    string
	TTL      int
	Priority *int
}

// Driver is the capability set every concrete registrar integration
// implements. Two drivers are required by spec: a JSON/POST one and an
// XML/GET one; callers never depend on the concrete type.
type Driver interface {
	Name() string
	CheckAvailability(ctx context.Context, domains []string) ([]AvailabilityResult, error)
	Quote(ctx context.Context, domain string, years int, privacy bool) (Quote, error)
	Register(ctx context.Context, req RegisterRequest) (RegisterResult, error)
	Status(ctx context.Context, domain string) (StatusResult, error)
	SetNameservers(ctx context.Context, domain string, nameservers []string) error
	ApplyRecords(ctx context.Context, domain string, records []Record) error
}
