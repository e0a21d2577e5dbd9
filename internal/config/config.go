package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	DatabaseURL        string
	CORSAllowedOrigins []string

	TaxRate     decimal.Decimal
	PayLaterMin decimal.Decimal
	PayLaterMax decimal.Decimal

	MerchantID         string
	MerchantName       string
	CountryCode        string
	CurrencyCode       string
	Locale             string
	ConfirmationPrefix string

	PaymentDeviceCapable  bool
	PaymentSimDelay       time.Duration
	PaymentSimApprove     bool
	PaymentSimPresentable bool
	BreakerMinRequests    int
	BreakerFailureRatio   float64
	BreakerOpenFor        time.Duration

	ReceiptTTL            time.Duration
	ReceiptQueue          string
	ReceiptExportMaxRetry int
	WorkerConcurrency     int
	CheckoutRateLimit     string

	SessionMax      int
	SessionIdleTTL  time.Duration
	SessionSweepInt time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return fromKoanf(k)
}

// LoadForTests builds a Config from an explicit key set, ignoring the process environment.
func LoadForTests(values map[string]string) (*Config, error) {
	m := make(map[string]any, len(values))
	for key, value := range values {
		m[key] = value
	}
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return nil, fmt.Errorf("load map: %w", err)
	}
	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	var errs []error
	dec := func(key, fallback string) decimal.Decimal {
		raw := valueOrDefault(k.String(key), fallback)
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return decimal.Zero
		}
		return d
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		TaxRate:     dec("TAX_RATE", "0.095"),
		PayLaterMin: dec("PAYLATER_MIN", "50"),
		PayLaterMax: dec("PAYLATER_MAX", "1000"),

		MerchantID:         valueOrDefault(k.String("MERCHANT_ID"), "merchant.com.example.swiftstore"),
		MerchantName:       valueOrDefault(k.String("MERCHANT_NAME"), "Swift Sneakers"),
		CountryCode:        valueOrDefault(k.String("COUNTRY_CODE"), "US"),
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "USD"),
		Locale:             valueOrDefault(k.String("LOCALE"), "en-US"),
		ConfirmationPrefix: valueOrDefault(k.String("CONFIRMATION_PREFIX"), "SWIFT"),

		PaymentDeviceCapable:  parseBoolDefault(k.String("PAYMENT_DEVICE_CAPABLE"), true),
		PaymentSimDelay:       parseDuration(k.String("PAYMENT_SIM_DELAY"), "1s"),
		PaymentSimApprove:     parseBoolDefault(k.String("PAYMENT_SIM_APPROVE"), true),
		PaymentSimPresentable: parseBoolDefault(k.String("PAYMENT_SIM_PRESENTABLE"), true),
		BreakerMinRequests:    parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio:   parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:        parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		ReceiptTTL:            parseDuration(k.String("RECEIPT_TTL"), "24h"),
		ReceiptQueue:          valueOrDefault(k.String("RECEIPT_QUEUE"), "receipts"),
		ReceiptExportMaxRetry: parseInt(k.String("RECEIPT_EXPORT_MAX_RETRY"), 5),
		WorkerConcurrency:     parseInt(k.String("WORKER_CONCURRENCY"), 4),
		CheckoutRateLimit:     valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "10-M"),

		SessionMax:      parseInt(k.String("STOREFRONT_MAX_SESSIONS"), 1000),
		SessionIdleTTL:  parseDuration(k.String("STOREFRONT_SESSION_IDLE_TTL"), "30m"),
		SessionSweepInt: parseDuration(k.String("STOREFRONT_SESSION_SWEEP_INTERVAL"), "1m"),
	}

	if cfg.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if cfg.TaxRate.IsNegative() {
		errs = append(errs, errors.New("TAX_RATE must not be negative"))
	}
	if cfg.PayLaterMin.GreaterThan(cfg.PayLaterMax) {
		errs = append(errs, errors.New("PAYLATER_MIN must not exceed PAYLATER_MAX"))
	}
	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		errs = append(errs, errors.New("BREAKER_FAILURE_RATIO must be in (0, 1]"))
	}
	if cfg.SessionMax > 0 && cfg.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("STOREFRONT_SESSION_IDLE_TTL must be positive when sessions are capped"))
	}
	if cfg.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// ArchiveEnabled reports whether receipts are also written to Postgres.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
