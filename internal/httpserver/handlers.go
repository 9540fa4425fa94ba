package httpserver

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/domainforge/gateway/internal/apierr"
	"github.com/domainforge/gateway/internal/audit"
	"github.com/domainforge/gateway/internal/auth"
	"github.com/domainforge/gateway/pkg/domain"
	"github.com/domainforge/gateway/pkg/domainname"
	"github.com/domainforge/gateway/pkg/purchase"
	"github.com/domainforge/gateway/pkg/ratelimit"
	"github.com/domainforge/gateway/pkg/search"
)

// DomainHandlers holds the pipelines the three domain routes delegate to.
// Mounted onto a Server by internal/app at startup.
type DomainHandlers struct {
	Logger        *slog.Logger
	Audit         *audit.Writer
	Purchase      *purchase.Pipeline
	Search        *search.Pipeline
	DomainStore   *domain.Store
	RateLimiter   *ratelimit.Limiter
}

// Routes mounts /search, /buy and /status/{domain} onto r.
func (h *DomainHandlers) Routes(r chi.Router) {
	r.Post("/search", h.handleSearch)
	r.Post("/buy", auth.RequireAuth(http.HandlerFunc(h.handleBuy)).ServeHTTP)
	r.Get("/status/{domain}", h.handleStatus)
}

func (h *DomainHandlers) rateLimitKey(r *http.Request) string {
	return auth.AccountKey(r.Context())
}

func (h *DomainHandlers) checkRateLimit(w http.ResponseWriter, r *http.Request) bool {
	result, err := h.RateLimiter.Consume(r.Context(), h.rateLimitKey(r))
	if err != nil {
		h.Logger.Error("rate limiter unavailable", "error", err)
		return true // fail open: infrastructure faults should not block traffic
	}
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
		RespondAPIError(w, h.Logger, apierr.WithDetails(apierr.KindRateLimited, "rate limit exceeded", map[string]any{
			"retry_after_sec": int(result.RetryAfter.Seconds()),
		}))
		return false
	}
	return true
}

// --- /search ---

type searchRequest struct {
	Prompt         string   `json:"prompt,omitempty"`
	Candidates     []string `json:"candidates,omitempty"`
	TLDs           []string `json:"tlds,omitempty"`
	PriceCeiling   *float64 `json:"price_ceiling,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	IncludePremium bool     `json:"include_premium,omitempty"`
	IncludeUnicode bool     `json:"include_unicode,omitempty"`
}

func (h *DomainHandlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !h.checkRateLimit(w, r) {
		return
	}

	var body searchRequest
	if err := Decode(r, &body); err != nil {
		RespondAPIError(w, h.Logger, apierr.New(apierr.KindValidation, err.Error()))
		return
	}
	if body.Prompt == "" && len(body.Candidates) == 0 {
		RespondAPIError(w, h.Logger, apierr.New(apierr.KindValidation, "exactly one of prompt or candidates is required"))
		return
	}
	if body.Prompt != "" && len(body.Candidates) > 0 {
		RespondAPIError(w, h.Logger, apierr.New(apierr.KindValidation, "prompt and candidates are mutually exclusive"))
		return
	}

	req := search.Request{
		Prompt:         body.Prompt,
		Candidates:     body.Candidates,
		TLDs:           body.TLDs,
		Limit:          body.Limit,
		IncludePremium: body.IncludePremium,
		IncludeUnicode: body.IncludeUnicode,
	}
	if body.PriceCeiling != nil {
		ceiling := decimal.NewFromFloat(*body.PriceCeiling)
		req.PriceCeilingUSD = &ceiling
	}

	var userID uuid.UUID
	if id := auth.FromContext(r.Context()); id != nil {
		userID = id.UserID
	}

	results, err := h.Search.Search(r.Context(), userID, req)
	if err != nil {
		RespondAPIError(w, h.Logger, err)
		return
	}

	Respond(w, http.StatusOK, map[string]any{"results": results})
}

// --- /buy ---

type buyRequest struct {
	Domain           string   `json:"domain" validate:"required"`
	Years            int      `json:"years,omitempty"`
	WhoisPrivacy     *bool    `json:"whois_privacy,omitempty"`
	AllowPremium     bool     `json:"allow_premium,omitempty"`
	AllowUnicode     bool     `json:"allow_unicode,omitempty"`
	NameserverMode   string   `json:"nameserver_mode,omitempty"`
	Nameservers      []string `json:"nameservers,omitempty"`
	DNSTemplateID    string   `json:"dns_template_id,omitempty"`
	QuotedTotalUSD   float64  `json:"quoted_total_usd" validate:"required,gt=0"`
	ConfirmationCode string   `json:"confirmation_code" validate:"required,min=4,max=100"`
	IdempotencyKey   string   `json:"idempotency_key" validate:"required,uuid4"`
}

func (h *DomainHandlers) handleBuy(w http.ResponseWriter, r *http.Request) {
	if !h.checkRateLimit(w, r) {
		return
	}

	var body buyRequest
	if !DecodeAndValidate(w, r, &body) {
		return
	}

	years := body.Years
	if years == 0 {
		years = 1
	}
	if years < 1 || years > 10 {
		RespondAPIError(w, h.Logger, apierr.New(apierr.KindValidation, "years must be in [1,10]"))
		return
	}

	whoisPrivacy := true
	if body.WhoisPrivacy != nil {
		whoisPrivacy = *body.WhoisPrivacy
	}

	nsMode := body.NameserverMode
	if nsMode == "" {
		nsMode = purchase.NameserverModeRegistrar
	}
	if nsMode != purchase.NameserverModeRegistrar && nsMode != purchase.NameserverModeCustom {
		RespondAPIError(w, h.Logger, apierr.New(apierr.KindValidation, "nameserver_mode must be 'registrar' or 'custom'"))
		return
	}

	dnsTemplateID := body.DNSTemplateID
	if nsMode == purchase.NameserverModeRegistrar && dnsTemplateID == "" {
		dnsTemplateID = purchase.DefaultDNSTemplateID
	}

	identity := auth.FromContext(r.Context())
	if identity == nil {
		RespondAPIError(w, h.Logger, apierr.New(apierr.KindUnauthorized, "authentication required"))
		return
	}

	req := purchase.Request{
		Domain:           body.Domain,
		Years:            years,
		WhoisPrivacy:     whoisPrivacy,
		AllowPremium:     body.AllowPremium,
		AllowUnicode:     body.AllowUnicode,
		NameserverMode:   nsMode,
		Nameservers:      body.Nameservers,
		DNSTemplateID:    dnsTemplateID,
		QuotedTotalUSD:   decimal.NewFromFloat(body.QuotedTotalUSD).Round(2),
		ConfirmationCode: body.ConfirmationCode,
		IdempotencyKey:   body.IdempotencyKey,
	}

	resp, err := h.Purchase.Execute(r.Context(), identity.UserID, auth.AccountKey(r.Context()), req)
	if err != nil {
		RespondAPIError(w, h.Logger, err)
		return
	}

	Respond(w, http.StatusOK, resp)
}

// --- /status/{domain} ---

func (h *DomainHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := domainname.Normalize(chi.URLParam(r, "domain"))
	if !domainname.Valid(name) {
		RespondAPIError(w, h.Logger, apierr.New(apierr.KindValidation, "domain does not match the required syntax"))
		return
	}

	view, err := domain.Lookup(r.Context(), h.DomainStore, name)
	if err != nil {
		RespondAPIError(w, h.Logger, err)
		return
	}

	Respond(w, http.StatusOK, view)
}
