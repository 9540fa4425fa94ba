// Package apierr defines the closed error taxonomy used across the gateway
// (spec §7) and its mapping to HTTP status codes.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Kind is one of the closed set of error kinds the gateway can surface.
type Kind string

const (
	KindValidation             Kind = "ValidationError"
	KindUnsafeLabel            Kind = "UnsafeLabel"
	KindNonASCIINotAllowed     Kind = "NonASCIINotAllowed"
	KindUnicodeMustUsePunycode Kind = "UnicodeMustUsePunycode"
	KindPremiumNotAllowed      Kind = "PremiumNotAllowed"
	KindSpendCapExceeded       Kind = "SpendCapExceeded"
	KindDailyCapExceeded       Kind = "DailyCapExceeded"
	KindUnknownDnsTemplate     Kind = "UnknownDnsTemplate"
	KindNameserversRequired    Kind = "NameserversRequired"
	KindUnauthorized           Kind = "Unauthorized"
	KindNotFound               Kind = "NotFound"
	KindIdempotencyMismatch    Kind = "IdempotencyMismatch"
	KindPriceDrift             Kind = "PriceDrift"
	KindRateLimited            Kind = "RateLimited"
	KindInternal               Kind = "InternalError"
)

// statusByKind maps each Kind to its HTTP status code per spec §7.
var statusByKind = map[Kind]int{
	KindValidation:             http.StatusBadRequest,
	KindUnsafeLabel:            http.StatusBadRequest,
	KindNonASCIINotAllowed:     http.StatusBadRequest,
	KindUnicodeMustUsePunycode: http.StatusBadRequest,
	KindPremiumNotAllowed:      http.StatusBadRequest,
	KindSpendCapExceeded:       http.StatusBadRequest,
	KindDailyCapExceeded:       http.StatusBadRequest,
	KindUnknownDnsTemplate:     http.StatusBadRequest,
	KindNameserversRequired:    http.StatusBadRequest,
	KindUnauthorized:           http.StatusUnauthorized,
	KindNotFound:               http.StatusNotFound,
	KindIdempotencyMismatch:    http.StatusConflict,
	KindPriceDrift:             http.StatusConflict,
	KindRateLimited:            http.StatusTooManyRequests,
	KindInternal:               http.StatusInternalServerError,
}

// Error is the typed error carried through the pipeline. It implements the
// standard error interface and carries enough detail to build the §7 JSON
// envelope without the caller needing to know the HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Status returns the HTTP status code for this error's Kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an *Error with no extra details.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetails builds an *Error carrying structured details (e.g. drift amount,
// remaining cap).
func WithDetails(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Status returns the HTTP status for a Kind directly (used where no Error
// value is at hand, e.g. 404 for unknown routes).
func Status(kind Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// envelope is the §7 JSON error body: {error, message, details?, status}.
type envelope struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"status"`
}

// WriteJSON writes e's §7 envelope to w. It has no dependency on the HTTP
// server package so packages earlier in the dependency order (auth) can
// write error responses without importing httpserver.
func WriteJSON(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(envelope{
		Error:   string(e.Kind),
		Message: e.Message,
		Details: e.Details,
		Status:  e.Status(),
	})
}
