// Package namecheap implements the XML/GET registrar driver (the second of
// the two concrete drivers required by spec §4.4).
package namecheap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/domainforge/gateway/pkg/registrar"
)

const defaultBaseURL = "https://api.namecheap.com/xml.response"

// Config configures a new Driver.
type Config struct {
	APIUser   string
	APIKey    string
	Username  string
	ClientIP  string
	BaseURL   string // defaults to the production API root
	DryRun    bool
	RDB       *redis.Client // backs the shared per-TLD pricing cache
}

// Driver is the XML/GET registrar driver.
type Driver struct {
	cfg    Config
	client *http.Client
	cache  *registrar.PriceCache
}

// New creates a namecheap Driver.
func New(cfg Config) *Driver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Driver{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  registrar.NewPriceCache(cfg.RDB, "namecheap"),
	}
}

func (d *Driver) Name() string { return "namecheap" }

func (d *Driver) baseParams(command string) url.Values {
	v := url.Values{}
	v.Set("ApiUser", d.cfg.APIUser)
	v.Set("ApiKey", d.cfg.APIKey)
	v.Set("UserName", d.cfg.Username)
	v.Set("ClientIp", d.cfg.ClientIP)
	v.Set("Command", command)
	return v
}

// apiErrors is the <Errors> block namecheap returns on failure.
type apiErrors struct {
	Error []struct {
		Number string `xml:"Number,attr"`
		Text   string `xml:",chardata"`
	} `xml:"Error"`
}

type apiResponse struct {
	XMLName xml.Name  `xml:"ApiResponse"`
	Status  string    `xml:"Status,attr"`
	Errors  apiErrors `xml:"Errors"`
	Result  []byte    `xml:",innerxml"`
}

func (d *Driver) doXML(ctx context.Context, params url.Values) (*apiResponse, error) {
	reqURL := d.cfg.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &registrar.DriverError{Code: registrar.ErrHTTPError, Message: "building request", Cause: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &registrar.DriverError{Code: registrar.ErrNetworkError, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &registrar.DriverError{Code: registrar.ErrNetworkError, Message: "reading response body", Cause: err}
	}

	if resp.StatusCode >= 300 {
		return nil, &registrar.DriverError{
			Code:       registrar.ErrHTTPError,
			Message:    fmt.Sprintf("namecheap returned HTTP %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var out apiResponse
	if err := xml.Unmarshal(raw, &out); err != nil {
		return nil, &registrar.DriverError{Code: registrar.ErrParseError, Message: "decoding XML response", Cause: err}
	}

	if out.Status == "ERROR" {
		msg := "namecheap API error"
		if len(out.Errors.Error) > 0 {
			msg = out.Errors.Error[0].Text
		}
		return nil, &registrar.DriverError{Code: registrar.ErrHTTPError, Message: msg}
	}

	return &out, nil
}

// domainCheckResult mirrors namecheap's <DomainCheckResult> element.
type domainCheckResult struct {
	Domain          string `xml:"Domain,attr"`
	Available       string `xml:"Available,attr"`
	IsPremiumName   string `xml:"IsPremiumName,attr"`
	PremiumRegPrice string `xml:"PremiumRegistrationPrice,attr"`
}

type checkCommandResult struct {
	XMLName xml.Name            `xml:"CommandResponse"`
	Domains []domainCheckResult `xml:"DomainCheckResult"`
}

func (d *Driver) checkDomains(ctx context.Context, domains []string) ([]domainCheckResult, error) {
	params := d.baseParams("namecheap.domains.check")
	params.Set("DomainList", strings.Join(domains, ","))

	out, err := d.doXML(ctx, params)
	if err != nil {
		return nil, err
	}

	var cmd checkCommandResult
	if err := xml.Unmarshal(out.Result, &cmd); err != nil {
		return nil, &registrar.DriverError{Code: registrar.ErrParseError, Message: "decoding CommandResponse", Cause: err}
	}
	return cmd.Domains, nil
}

// CheckAvailability looks up each domain individually, bounded to 5 in flight.
func (d *Driver) CheckAvailability(ctx context.Context, domains []string) ([]registrar.AvailabilityResult, error) {
	return registrar.CheckEach(ctx, domains, func(ctx context.Context, domain string) (registrar.AvailabilityResult, error) {
		return registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.AvailabilityResult, error) {
			results, err := d.checkDomains(ctx, []string{domain})
			if err != nil {
				return registrar.AvailabilityResult{}, err
			}
			if len(results) == 0 {
				return registrar.AvailabilityResult{}, &registrar.DriverError{Code: registrar.ErrParseError, Message: "no result for domain"}
			}

			r := results[0]
			price, _ := decimal.NewFromString(r.PremiumRegPrice)
			return registrar.AvailabilityResult{
				Domain:    domain,
				Available: r.Available == "true",
				PriceUSD:  price,
				Premium:   r.IsPremiumName == "true",
			}, nil
		})
	})
}

// Quote returns pricing for domain, using the per-TLD cache when fresh.
func (d *Driver) Quote(ctx context.Context, domain string, years int, privacy bool) (registrar.Quote, error) {
	tld := tldOf(domain)

	if entry, ok := d.cache.Get(ctx, tld); ok {
		return registrar.ComputeQuote(entry.Price, years, privacy, entry.PrivacyPrice, entry.Premium), nil
	}

	return registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.Quote, error) {
		results, err := d.checkDomains(ctx, []string{domain})
		if err != nil {
			return registrar.Quote{}, err
		}
		if len(results) == 0 {
			return registrar.Quote{}, &registrar.DriverError{Code: registrar.ErrParseError, Message: "no result for domain"}
		}

		r := results[0]
		price, _ := decimal.NewFromString(r.PremiumRegPrice)
		if price.IsZero() {
			price = decimal.NewFromFloat(10.98)
		}
		privacyPrice := decimal.NewFromFloat(2.88)
		premium := r.IsPremiumName == "true"

		d.cache.Set(ctx, tld, registrar.PriceEntry{Price: price, Premium: premium, PrivacyPrice: privacyPrice})

		return registrar.ComputeQuote(price, years, privacy, privacyPrice, premium), nil
	})
}

// Register performs (or, in dry-run, simulates) domain registration.
func (d *Driver) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.RegisterResult, error) {
	if d.cfg.DryRun {
		return registrar.RegisterResult{
			OrderID:         "NC-DRYRUN-" + uuid.New().String(),
			ChargedTotalUSD: req.TotalUSD,
			Success:         true,
			Message:         "dry-run: no registrar call made",
		}, nil
	}

	return registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.RegisterResult, error) {
		params := d.baseParams("namecheap.domains.create")
		params.Set("DomainName", req.Domain)
		params.Set("Years", strconv.Itoa(req.Years))
		params.Set("AddFreeWhoisguard", boolYesNo(req.Privacy))
		params.Set("WGEnabled", boolYesNo(req.Privacy))
		params.Set("RegistrantFirstName", req.Contact.FirstName)
		params.Set("RegistrantLastName", req.Contact.LastName)
		params.Set("RegistrantAddress1", req.Contact.Address)
		params.Set("RegistrantCity", req.Contact.City)
		params.Set("RegistrantStateProvince", req.Contact.State)
		params.Set("RegistrantPostalCode", req.Contact.Zip)
		params.Set("RegistrantCountry", req.Contact.Country)
		params.Set("RegistrantPhone", req.Contact.Phone)
		params.Set("RegistrantEmailAddress", req.Contact.Email)

		out, err := d.doXML(ctx, params)
		if err != nil {
			return registrar.RegisterResult{}, err
		}

		var cmd struct {
			XMLName xml.Name `xml:"CommandResponse"`
			Result  struct {
				Registered string `xml:"Registered,attr"`
				OrderID    string `xml:"OrderID,attr"`
				ChargedAmt string `xml:"ChargedAmount,attr"`
			} `xml:"DomainCreateResult"`
		}
		if err := xml.Unmarshal(out.Result, &cmd); err != nil {
			return registrar.RegisterResult{}, &registrar.DriverError{Code: registrar.ErrParseError, Message: "decoding DomainCreateResult", Cause: err}
		}

		if cmd.Result.Registered != "true" {
			return registrar.RegisterResult{Success: false, Message: "registration not confirmed by registrar"}, nil
		}

		charged, _ := decimal.NewFromString(cmd.Result.ChargedAmt)
		return registrar.RegisterResult{
			OrderID:         cmd.Result.OrderID,
			ChargedTotalUSD: charged,
			Success:         true,
		}, nil
	})
}

// Status reports the registrar-side lifecycle state for domain.
func (d *Driver) Status(ctx context.Context, domain string) (registrar.StatusResult, error) {
	if d.cfg.DryRun {
		return registrar.StatusResult{State: registrar.StateActive, Details: "dry-run"}, nil
	}

	return registrar.WithRetry(ctx, registrar.IsRetryable, func() (registrar.StatusResult, error) {
		params := d.baseParams("namecheap.domains.getinfo")
		params.Set("DomainName", domain)

		out, err := d.doXML(ctx, params)
		if err != nil {
			return registrar.StatusResult{}, err
		}

		var cmd struct {
			XMLName xml.Name `xml:"CommandResponse"`
			Result  struct {
				Status string `xml:"Status,attr"`
			} `xml:"DomainGetInfoResult"`
		}
		if err := xml.Unmarshal(out.Result, &cmd); err != nil {
			return registrar.StatusResult{}, &registrar.DriverError{Code: registrar.ErrParseError, Message: "decoding DomainGetInfoResult", Cause: err}
		}

		switch strings.ToLower(cmd.Result.Status) {
		case "active":
			return registrar.StatusResult{State: registrar.StateActive}, nil
		case "expired":
			return registrar.StatusResult{State: registrar.StateExpired}, nil
		case "":
			return registrar.StatusResult{State: registrar.StateNotFound}, nil
		default:
			return registrar.StatusResult{State: registrar.StatePending, Details: cmd.Result.Status}, nil
		}
	})
}

// SetNameservers sets domain's nameservers.
func (d *Driver) SetNameservers(ctx context.Context, domain string, nameservers []string) error {
	if len(nameservers) < 2 || len(nameservers) > 13 {
		return &registrar.DriverError{Code: registrar.ErrInvalidNameserverCount, Message: "nameserver count must be in [2,13]"}
	}

	if d.cfg.DryRun {
		return nil
	}

	_, err := registrar.WithRetry(ctx, registrar.IsRetryable, func() (struct{}, error) {
		sld, tld, splitErr := splitSLDTLD(domain)
		if splitErr != nil {
			return struct{}{}, &registrar.DriverError{Code: registrar.ErrTLDNotSupported, Message: splitErr.Error()}
		}

		params := d.baseParams("namecheap.domains.dns.setCustom")
		params.Set("SLD", sld)
		params.Set("TLD", tld)
		params.Set("Nameservers", strings.Join(nameservers, ","))

		_, err := d.doXML(ctx, params)
		return struct{}{}, err
	})
	return err
}

// ApplyRecords applies each DNS record via setHosts, collecting partial
// failures into a single DNS_APPLY_PARTIAL_FAILURE error.
func (d *Driver) ApplyRecords(ctx context.Context, domain string, records []registrar.Record) error {
	if d.cfg.DryRun {
		return nil
	}

	sld, tld, err := splitSLDTLD(domain)
	if err != nil {
		return &registrar.DriverError{Code: registrar.ErrTLDNotSupported, Message: err.Error()}
	}

	var failed []string
	for i, rec := range records {
		_, err := registrar.WithRetry(ctx, registrar.IsRetryable, func() (struct{}, error) {
			params := d.baseParams("namecheap.domains.dns.setHosts")
			params.Set("SLD", sld)
			params.Set("TLD", tld)
			n := strconv.Itoa(i + 1)
			params.Set("HostName"+n, rec.Name)
			params.Set("RecordType"+n, string(rec.Type))
			params.Set("Address"+n, rec.Value)
			params.Set("TTL"+n, strconv.Itoa(rec.TTL))
			if rec.Priority != nil {
				params.Set("MXPref"+n, strconv.Itoa(*rec.Priority))
			}

			_, err := d.doXML(ctx, params)
			return struct{}{}, err
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

func boolYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func tldOf(domain string) string {
	idx := strings.LastIndex(domain, ".")
	if idx == -1 {
		return domain
	}
	return domain[idx+1:]
}

func splitSLDTLD(domain string) (sld, tld string, err error) {
	idx := strings.Index(domain, ".")
	if idx == -1 {
		return "", "", fmt.Errorf("domain %q has no TLD", domain)
	}
	return domain[:idx], domain[idx+1:], nil
}
