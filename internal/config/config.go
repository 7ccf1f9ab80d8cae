package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "CongoPay P2P"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultSessionTTL     = 12 * time.Hour

	// ₦100 and ₦500,000 in kobo.
	defaultTransferMin = 10_000
	defaultTransferMax = 50_000_000
	defaultCurrency    = "NGN"
	defaultExponent    = 2

	defaultSubmitTimeout       = 10 * time.Second
	defaultSubmitMaxAttempts   = 3
	defaultSubmitBackoff       = 200 * time.Millisecond
	defaultSubmitMaxBackoff    = 5 * time.Second
	defaultBreakerFailures     = 5
	defaultBreakerOpenTimeout  = 30 * time.Second
	defaultAuthorizationWait   = 5 * time.Minute
	defaultReconcileInterval   = time.Minute
	defaultPINAttemptsPerMin   = 5
	defaultLoginAttemptsPerMin = 5
	defaultMetricsNamespace    = "p2p"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	SessionTTL     time.Duration

	TransferMin      int64
	TransferMax      int64
	Currency         string
	CurrencyExponent int32

	SubmitTimeout        time.Duration
	SubmitMaxAttempts    int
	SubmitBackoff        time.Duration
	SubmitMaxBackoff     time.Duration
	BreakerFailures      int
	BreakerOpenTimeout   time.Duration
	AuthorizationTimeout time.Duration
	ReconcileInterval    time.Duration

	PINAttemptsPerMinute   int
	LoginAttemptsPerMinute int
	MetricsNamespace       string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		Currency:         strings.ToUpper(getEnv("CURRENCY", defaultCurrency)),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", defaultMetricsNamespace),
	}

	var err error
	durations := []struct {
		seconds, duration string
		fallback          time.Duration
		dst               *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", defaultShutdownDelay, &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", defaultIdempotencyTTL, &cfg.IdempotencyTTL},
		{"SESSION_TTL_SECONDS", "SESSION_TTL", defaultSessionTTL, &cfg.SessionTTL},
		{"SUBMIT_TIMEOUT_SECONDS", "SUBMIT_TIMEOUT", defaultSubmitTimeout, &cfg.SubmitTimeout},
		{"", "SUBMIT_BACKOFF", defaultSubmitBackoff, &cfg.SubmitBackoff},
		{"", "SUBMIT_MAX_BACKOFF", defaultSubmitMaxBackoff, &cfg.SubmitMaxBackoff},
		{"", "BREAKER_OPEN_TIMEOUT", defaultBreakerOpenTimeout, &cfg.BreakerOpenTimeout},
		{"", "AUTHORIZATION_TIMEOUT", defaultAuthorizationWait, &cfg.AuthorizationTimeout},
		{"", "RECONCILE_INTERVAL", defaultReconcileInterval, &cfg.ReconcileInterval},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.seconds, d.duration, d.fallback); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		name     string
		fallback int64
		dst      *int64
	}{
		{"TRANSFER_MIN_AMOUNT", defaultTransferMin, &cfg.TransferMin},
		{"TRANSFER_MAX_AMOUNT", defaultTransferMax, &cfg.TransferMax},
	}
	for _, i := range ints {
		if *i.dst, err = intEnv(i.name, i.fallback); err != nil {
			return Config{}, err
		}
	}

	var n int64
	if n, err = intEnv("CURRENCY_EXPONENT", defaultExponent); err != nil {
		return Config{}, err
	}
	cfg.CurrencyExponent = int32(n)
	if n, err = intEnv("SUBMIT_MAX_ATTEMPTS", defaultSubmitMaxAttempts); err != nil {
		return Config{}, err
	}
	cfg.SubmitMaxAttempts = int(n)
	if n, err = intEnv("BREAKER_FAILURES", defaultBreakerFailures); err != nil {
		return Config{}, err
	}
	cfg.BreakerFailures = int(n)
	if n, err = intEnv("PIN_ATTEMPTS_PER_MINUTE", defaultPINAttemptsPerMin); err != nil {
		return Config{}, err
	}
	cfg.PINAttemptsPerMinute = int(n)
	if n, err = intEnv("LOGIN_ATTEMPTS_PER_MINUTE", defaultLoginAttemptsPerMin); err != nil {
		return Config{}, err
	}
	cfg.LoginAttemptsPerMinute = int(n)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TransferMin <= 0 || c.TransferMax < c.TransferMin {
		return fmt.Errorf("invalid transfer range [%d, %d]", c.TransferMin, c.TransferMax)
	}
	if c.CurrencyExponent < 0 || c.CurrencyExponent > 4 {
		return fmt.Errorf("invalid CURRENCY_EXPONENT %d", c.CurrencyExponent)
	}
	if c.SubmitMaxAttempts < 1 {
		return fmt.Errorf("SUBMIT_MAX_ATTEMPTS must be at least 1")
	}
	if c.IsDevelopment() {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	return nil
}

// IsDevelopment reports whether in-memory fallbacks are allowed.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads whole seconds from secondsKey, else a Go duration from
// durationKey.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(v, "_", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
