package purchase

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request is the validated input to the purchase pipeline (spec §4.6).
// Defaulting (years=1, whois_privacy=true, nameserver_mode=registrar,
// dns_template_id="web-basic") is applied by the HTTP boundary before the
// pipeline sees it.
type Request struct {
	Domain           string
	Years            int
	WhoisPrivacy     bool
	AllowPremium     bool
	AllowUnicode     bool
	NameserverMode   string
	Nameservers      []string
	DNSTemplateID    string
	QuotedTotalUSD   decimal.Decimal
	ConfirmationCode string
	IdempotencyKey   string
}

const (
	NameserverModeRegistrar = "registrar"
	NameserverModeCustom    = "custom"
)

// Response is the durable, replayable outcome of a purchase (spec §4.6 step 9).
type Response struct {
	OrderID         string          `json:"order_id"`
	ChargedTotalUSD decimal.Decimal `json:"charged_total_usd"`
	Registrar       string          `json:"registrar"`
	NameserverMode  string          `json:"nameserver_mode"`
	DNSTemplateID   string          `json:"dns_template_id,omitempty"`
	DomainID        uuid.UUID       `json:"domain_id"`
}
