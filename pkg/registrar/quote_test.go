package registrar

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeQuote(t *testing.T) {
	tests := []struct {
		name          string
		regPrice      float64
		years         int
		privacy       bool
		privacyPrice  float64
		premium       bool
		wantTotal     string
		wantICANNFee  string
	}{
		{
			name:         "single year no privacy",
			regPrice:     10.00,
			years:        1,
			privacy:      false,
			privacyPrice: 2.00,
			wantTotal:    "10.18",
			wantICANNFee: "0.18",
		},
		{
			name:         "two years with privacy",
			regPrice:     10.00,
			years:        2,
			privacy:      true,
			privacyPrice: 2.00,
			wantTotal:    "22.36",
			wantICANNFee: "0.36",
		},
		{
			name:         "premium flag carries through",
			regPrice:     500.00,
			years:        1,
			privacy:      false,
			privacyPrice: 2.00,
			premium:      true,
			wantTotal:    "500.18",
			wantICANNFee: "0.18",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ComputeQuote(
				decimal.NewFromFloat(tt.regPrice),
				tt.years,
				tt.privacy,
				decimal.NewFromFloat(tt.privacyPrice),
				tt.premium,
			)
			if got := q.TotalUSD.StringFixed(2); got != tt.wantTotal {
				t.Errorf("TotalUSD = %s, want %s", got, tt.wantTotal)
			}
			if got := q.ICANNFeeUSD.StringFixed(2); got != tt.wantICANNFee {
				t.Errorf("ICANNFeeUSD = %s, want %s", got, tt.wantICANNFee)
			}
			if q.Premium != tt.premium {
				t.Errorf("Premium = %v, want %v", q.Premium, tt.premium)
			}
		})
	}
}
