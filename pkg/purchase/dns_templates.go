package purchase

import "github.com/domainforge/gateway/pkg/registrar"

// DefaultDNSTemplateID is used whenever nameserver_mode=registrar and the
// caller omits dns_template_id.
const DefaultDNSTemplateID = "web-basic"

// dnsTemplates is the fixed registry of record sets applied after a
// registrar-managed (non-custom) registration. Unknown ids are a validation
// error, never a silent fallback.
var dnsTemplates = map[string][]registrar.Record{
	"web-basic": {
		{Type: registrar.RecordA, Name: "@", Value: "192.0.2.1", TTL: 3600},
		{Type: registrar.RecordA, Name: "www", Value: "192.0.2.1", TTL: 3600},
	},
	"parked": {
		{Type: registrar.RecordA, Name: "@", Value: "192.0.2.254", TTL: 86400},
	},
	"email-only": {
		{Type: registrar.RecordMX, Name: "@", Value: "mail.example.com", TTL: 3600, Priority: intPtr(10)},
		{Type: registrar.RecordTXT, Name: "@", Value: "v=spf1 mx ~all", TTL: 3600},
	},
}

func intPtr(i int) *int { return &i }

// dnsTemplate looks up a template by id. ok is false for unknown ids.
func dnsTemplate(id string) (records []registrar.Record, ok bool) {
	records, ok = dnsTemplates[id]
	return records, ok
}
