package registrar

import "github.com/shopspring/decimal"

// icannFeePerYear is the flat per-year ICANN transaction fee folded into
// every quote regardless of registrar.
var icannFeePerYear = decimal.NewFromFloat(0.18)

// ComputeQuote applies the shared pricing formula (spec §4.4): registration
// price scales with years, the ICANN fee is flat per year, and privacy is
// billed once for the whole term.
func ComputeQuote(registrationPriceUSD decimal.Decimal, years int, privacy bool, privacyPriceUSD decimal.Decimal, premium bool) Quote {
	yearsDec := decimal.NewFromInt(int64(years))
	icannFee := icannFeePerYear.Mul(yearsDec)

	total := registrationPriceUSD.Mul(yearsDec).Add(icannFee)
	if privacy {
		total = total.Add(privacyPriceUSD)
	}

	return Quote{
		RegistrationPriceUSD: registrationPriceUSD.Round(2),
		ICANNFeeUSD:          icannFee.Round(2),
		PrivacyPriceUSD:      privacyPriceUSD.Round(2),
		TotalUSD:             total.Round(2),
		Premium:              premium,
	}
}
