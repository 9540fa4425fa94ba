// Package porkbun implements the JSON/POST registrar driver (one of the two
// concrete drivers required by spec §4.4).
package porkbun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/domainforge/gateway/pkg/registrar"
)

const defaultBaseURL = "https://api.porkbun.com/api/json/v3"

// dryRunOrderPrefix marks synthesized order ids so they can never be
// mistaken for a real registrar order.
const dryRunOrderPrefix = "PB-DRYRUN-"

// Driver is the JSON/POST registrar driver.
type Driver struct {
	apiKey    string
	secretKey string
	baseURL   string
	client    *http.Client
	cache     *registrar.PriceCache
	dryRun    bool
}

// Config configures a new Driver.
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string // defaults to the production API root
	DryRun    bool
	RDB       *redis.Client // backs the shared per-TLD pricing cache
}

// New creates a porkbun Driver.
func New(cfg Config) *Driver {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Driver{
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		cache:     registrar.NewPriceCache(cfg.RDB, "porkbun"),
		dryRun:    cfg.DryRun,
	}
}

func (d *Driver) Name() string { return "porkbun" }

type apiRequest struct {
	APIKey       string `json:"apikey"`
	SecretAPIKey string `json:"secretapikey"`
}

type checkDomainResponse struct {
	Status   string `json:"status"`
	Response struct {
		Avail        string `json:"avail"`
		Price        string `json:"price"`
		Premium      string `json:"premium"`
		PrivacyPrice string `json:"additional,omitempty"`
	} `json:"response"`
	Message string `json:"message"`
}

func (d *Driver) doJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &registrar.DriverError{Code: registrar.ErrParseError, Message: "encoding request body", Cause: err}
	}

	url := d.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &registrar.DriverError{Code: registrar.ErrHTTPError, Message: "building request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return &registrar.DriverError{Code: registrar.ErrNetworkError, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &registrar.DriverError{Code: registrar.ErrNetworkError, Message: "reading response body", Cause: err}
	}

	if resp.StatusCode >= 300 {
		return &registrar.DriverError{
			Code:       registrar.ErrHTTPError,
			Message:    fmt.Sprintf("porkbun returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			StatusCode: resp.StatusCode,
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &registrar.DriverError{Code: registrar.ErrParseError, Message: "decoding response body", Cause: err}
	}

	return nil
}

// CheckAvailability looks up each domain individually, bounded to 5 in flight.
func (d *Driver) CheckAvailability(ctx context.Context, domains []string) ([]registrar.AvailabilityResult, error) {
	return registrar.CheckEach(ctx, domains, func(ctx context.Context, domain string) (registrar.AvailabilityResult, error) {
		result, err := registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.AvailabilityResult, error) {
			var out checkDomainResponse
			err := d.doJSON(ctx, "/domain/checkDomain/"+domain, apiRequest{APIKey: d.apiKey, SecretAPIKey: d.secretKey}, &out)
			if err != nil {
				return registrar.AvailabilityResult{}, err
			}
			if out.Status != "SUCCESS" {
				return registrar.AvailabilityResult{}, &registrar.DriverError{Code: registrar.ErrHTTPError, Message: out.Message}
			}

			price, _ := decimal.NewFromString(out.Response.Price)
			return registrar.AvailabilityResult{
				Domain:    domain,
				Available: out.Response.Avail == "yes",
				PriceUSD:  price,
				Premium:   out.Response.Premium == "yes" || out.Response.Premium == "true",
			}, nil
		})
		return result, err
	})
}

// Quote returns pricing for domain, using the per-TLD cache when fresh.
func (d *Driver) Quote(ctx context.Context, domain string, years int, privacy bool) (registrar.Quote, error) {
	tld := tldOf(domain)

	if entry, ok := d.cache.Get(ctx, tld); ok {
		return registrar.ComputeQuote(entry.Price, years, privacy, entry.PrivacyPrice, entry.Premium), nil
	}

	return registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.Quote, error) {
		var out checkDomainResponse
		err := d.doJSON(ctx, "/domain/checkDomain/"+domain, apiRequest{APIKey: d.apiKey, SecretAPIKey: d.secretKey}, &out)
		if err != nil {
			return registrar.Quote{}, err
		}
		if out.Status != "SUCCESS" {
			return registrar.Quote{}, &registrar.DriverError{Code: registrar.ErrHTTPError, Message: out.Message}
		}

		price, _ := decimal.NewFromString(out.Response.Price)
		privacyPrice := decimal.NewFromFloat(3.99)
		premium := out.Response.Premium == "yes" || out.Response.Premium == "true"

		d.cache.Set(ctx, tld, registrar.PriceEntry{Price: price, Premium: premium, PrivacyPrice: privacyPrice})

		return registrar.ComputeQuote(price, years, privacy, privacyPrice, premium), nil
	})
}

type registerRequestBody struct {
	apiRequest
	Years int `json:"years"`
}

type genericResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Register performs (or, in dry-run, simulates) domain registration.
func (d *Driver) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.RegisterResult, error) {
	if d.dryRun {
		return registrar.RegisterResult{
			OrderID:         dryRunOrderPrefix + uuid.New().String(),
			ChargedTotalUSD: req.TotalUSD,
			Success:         true,
			Message:         "dry-run: no registrar call made",
		}, nil
	}

	return registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.RegisterResult, error) {
		var out genericResponse
		err := d.doJSON(ctx, "/domain/create/"+req.Domain, registerRequestBody{
			apiRequest: apiRequest{APIKey: d.apiKey, SecretAPIKey: d.secretKey},
			Years:      req.Years,
		}, &out)
		if err != nil {
			return registrar.RegisterResult{}, err
		}

		if out.Status != "SUCCESS" {
			return registrar.RegisterResult{Success: false, Message: out.Message}, nil
		}

		return registrar.RegisterResult{
			OrderID:         uuid.New().String(),
			ChargedTotalUSD: req.TotalUSD,
			Success:         true,
			Message:         out.Message,
		}, nil
	})
}

// Status reports the registrar-side lifecycle state for domain.
func (d *Driver) Status(ctx context.Context, domain string) (registrar.StatusResult, error) {
	if d.dryRun {
		return registrar.StatusResult{State: registrar.StateActive, Details: "dry-run"}, nil
	}

	return registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.StatusResult, error) {
		var out checkDomainResponse
		err := d.doJSON(ctx, "/domain/checkDomain/"+domain, apiRequest{APIKey: d.apiKey, SecretAPIKey: d.secretKey}, &out)
		if err != nil {
			return registrar.StatusResult{}, err
		}
		if out.Status != "SUCCESS" {
			return registrar.StatusResult{State: registrar.StateError, Details: out.Message}, nil
		}
		if out.Response.Avail == "yes" {
			return registrar.StatusResult{State: registrar.StateNotFound}, nil
		}
		return registrar.StatusResult{State: registrar.StateActive}, nil
	})
}

type nsRequestBody struct {
	apiRequest
	Ns []string `json:"ns"`
}

// SetNameservers sets domain's nameservers.
func (d *Driver) SetNameservers(ctx context.Context, domain string, nameservers []string) error {
	if len(nameservers) < 2 || len(nameservers) > 13 {
		return &registrar.DriverError{Code: registrar.ErrInvalidNameserverCount, Message: "nameserver count must be in [2,13]"}
	}

	if d.dryRun {
		return nil
	}

	_, err := registrar.WithRetry(ctx, registrar.IsRetryable, func() (struct{}, error) {
		var out genericResponse
		err := d.doJSON(ctx, "/domain/updateNs/"+domain, nsRequestBody{
			apiRequest: apiRequest{APIKey: d.apiKey, SecretAPIKey: d.secretKey},
			Ns:         nameservers,
		}, &out)
		if err != nil {
			return struct{}{}, err
		}
		if out.Status != "SUCCESS" {
			return struct{}{}, &registrar.DriverError{Code: registrar.ErrHTTPError, Message: out.Message}
		}
		return struct{}{}, nil
	})
	return err
}

type createRecordBody struct {
	apiRequest
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      string `json:"ttl"`
	Priority string `json:"prio,omitempty"`
}

// ApplyRecords applies each DNS record individually, collecting partial
// failures into a single DNS_APPLY_PARTIAL_FAILURE error.
func (d *Driver) ApplyRecords(ctx context.Context, domain string, records []registrar.Record) error {
	if d.dryRun {
		return nil
	}

	var failed []string
	for _, rec := range records {
		body := createRecordBody{
			apiRequest: apiRequest{APIKey: d.apiKey, SecretAPIKey: d.secretKey},
			Type:       string(rec.Type),
			Name:       rec.Name,
			Content:    rec.Value,
			TTL:        fmt.Sprintf("%d", rec.TTL),
		}
		if rec.Priority != nil {
			body.Priority = fmt.Sprintf("%d", *rec.Priority)
		}

		_, err := registrar.WithRetry(ctx, registrar.IsRetryable, func() (struct{}, error) {
			var out genericResponse
			err := d.doJSON(ctx, "/dns/create/"+domain, body, &out)
			if err != nil {
				return struct{}{}, err
			}
			if out.Status != "SUCCESS" {
				return struct{}{}, &registrar.DriverError{Code: registrar.ErrHTTPError, Message: out.Message}
			}
			return struct{}{}, nil
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s %s: %v", rec.Type, rec.Name, err))
		}
	}

	if len(failed) > 0 {
		return &registrar.DriverError{
			Code:    registrar.ErrDNSApplyPartialFailure,
			Message: fmt.Sprintf("%d of %d records failed: %s", len(failed), len(records), strings.Join(failed, "; ")),
		}
	}

	return nil
}

func tldOf(domain string) string {
	idx := strings.LastIndex(domain, ".")
	if idx == -1 {
		return domain
	}
	return domain[idx+1:]
}
