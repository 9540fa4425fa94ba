package purchase

import "testing"

func TestDNSTemplateKnownIDs(t *testing.T) {
	for _, id := range []string{"web-basic", "parked", "email-only"} {
		records, ok := dnsTemplate(id)
		if !ok {
			t.Errorf("dnsTemplate(%q) not found", id)
			continue
		}
		if len(records) == 0 {
			t.Errorf("dnsTemplate(%q) returned no records", id)
		}
	}
}

func TestDNSTemplateUnknownID(t *testing.T) {
	if _, ok := dnsTemplate("does-not-exist"); ok {
		t.Error("expected unknown template id to report ok=false")
	}
}

func TestDefaultDNSTemplateIsRegistered(t *testing.T) {
	if _, ok := dnsTemplate(DefaultDNSTemplateID); !ok {
		t.Errorf("DefaultDNSTemplateID %q is not a registered template", DefaultDNSTemplateID)
	}
}
