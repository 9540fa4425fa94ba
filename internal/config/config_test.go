package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 8080", func(c *Config) bool { return c.Port == 8080 }},
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format is json", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default provider is porkbun", func(c *Config) bool { return c.DefaultProvider == "porkbun" }},
		{"default dry run is true", func(c *Config) bool { return c.IsDryRun() }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
		{"default max daily >= max per txn", func(c *Config) bool { return c.MaxDailyUSD >= c.MaxPerTxnUSD }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("unexpected value for %s", tt.name)
			}
		})
	}
}

func TestIsDryRun(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"true", true},
		{"TRUE", true},
		{"garbage", true},
		{"false", false},
	}
	for _, tt := range tests {
		c := &Config{DryRun: tt.raw}
		if got := c.IsDryRun(); got != tt.want {
			t.Errorf("IsDryRun() with DryRun=%q = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DefaultProvider: "porkbun",
			DryRun:          "true",
			MaxPerTxnUSD:    1000,
			MaxDailyUSD:     5000,
		}
	}

	t.Run("valid dry-run config passes", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
	})

	t.Run("daily cap below per-txn cap is rejected", func(t *testing.T) {
		c := base()
		c.MaxDailyUSD = 100
		c.MaxPerTxnUSD = 1000
		if err := c.Validate(); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		c := base()
		c.DefaultProvider = "godaddy"
		if err := c.Validate(); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("missing porkbun credentials outside dry-run is rejected", func(t *testing.T) {
		c := base()
		c.DryRun = "false"
		if err := c.Validate(); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("missing porkbun credentials in dry-run is allowed", func(t *testing.T) {
		c := base()
		c.DryRun = "true"
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
	})
}
