package config

import (
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TransferMin != 10_000 || cfg.TransferMax != 50_000_000 {
		t.Fatalf("unexpected range [%d, %d]", cfg.TransferMin, cfg.TransferMax)
	}
	if cfg.Currency != "NGN" || cfg.CurrencyExponent != 2 {
		t.Fatalf("unexpected currency %s/%d", cfg.Currency, cfg.CurrencyExponent)
	}
	if cfg.SubmitMaxAttempts != 3 || cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("TRANSFER_MIN_AMOUNT", "10_000")
	t.Setenv("TRANSFER_MAX_AMOUNT", "100000000")
	t.Setenv("SUBMIT_TIMEOUT_SECONDS", "3")
	t.Setenv("SUBMIT_BACKOFF", "50ms")
	t.Setenv("PORT", ":9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TransferMax != 100_000_000 {
		t.Fatalf("max %d", cfg.TransferMax)
	}
	if cfg.SubmitTimeout != 3*time.Second || cfg.SubmitBackoff != 50*time.Millisecond {
		t.Fatalf("durations %v %v", cfg.SubmitTimeout, cfg.SubmitBackoff)
	}
	if cfg.Address() != ":9000" {
		t.Fatalf("address %s", cfg.Address())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"inverted range":   {"TRANSFER_MAX_AMOUNT", "5"},
		"bad duration":     {"SESSION_TTL", "soon"},
		"bad integer":      {"SUBMIT_MAX_ATTEMPTS", "three"},
		"zero attempts":    {"SUBMIT_MAX_ATTEMPTS", "0"},
		"huge exponent":    {"CURRENCY_EXPONENT", "9"},
		"production no db": {"APP_ENV", "production"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			t.Setenv("DATABASE_URL", "")
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
