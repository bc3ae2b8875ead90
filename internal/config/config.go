package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	Stripe StripeConfig
	BCB    BCBConfig
	NFSe   NFSeConfig
	Fiscal FiscalConfig
}

// StripeConfig configures the payment processor settlement lookup.
type StripeConfig struct {
	APIKey  string
	BaseURL string
}

// BCBConfig configures the central-bank daily rate service.
type BCBConfig struct {
	BaseURL string
}

// NFSeConfig configures the external tax API and webhook verification.
type NFSeConfig struct {
	BaseURL       string
	APIToken      string
	WebhookSecret string
}

// FiscalConfig carries invoice-issuance policy values.
type FiscalConfig struct {
	// ISSRate is the municipal service tax rate as a fraction (0.02 = 2%).
	ISSRate decimal.Decimal

	// RateLookbackDays bounds the official-rate previous-day walk-back.
	RateLookbackDays int

	// FallbackRates maps currency code to a conservative BRL rate used
	// when both the processor and the official source are unavailable.
	FallbackRates map[string]decimal.Decimal

	// DefaultFallbackRate applies when a currency has no table entry,
	// keeping the fallback source total.
	DefaultFallbackRate decimal.Decimal

	// CancelDefaultCode is the municipal cancellation reason code sent
	// when the caller does not supply one.
	CancelDefaultCode string

	// StatusSyncInterval paces the background poll that reconciles
	// invoices the webhook never confirmed. Zero disables the poller.
	StatusSyncInterval time.Duration

	// StatusSyncBatchSize caps how many unresolved invoices one poll
	// cycle touches.
	StatusSyncBatchSize int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "notahub"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "notahub"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Stripe: StripeConfig{
			APIKey:  strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			BaseURL: getenv("STRIPE_BASE_URL", "https://api.stripe.com"),
		},
		BCB: BCBConfig{
			BaseURL: getenv("BCB_PTAX_BASE_URL", "https://olinda.bcb.gov.br/olinda/servico/PTAX/versao/v1/odata"),
		},
		NFSe: NFSeConfig{
			BaseURL:       strings.TrimSpace(getenv("NFSE_API_BASE_URL", "")),
			APIToken:      strings.TrimSpace(getenv("NFSE_API_TOKEN", "")),
			WebhookSecret: strings.TrimSpace(getenv("NFSE_WEBHOOK_SECRET", "")),
		},
		Fiscal: FiscalConfig{
			ISSRate:             getenvDecimal("ISS_TAX_RATE", "0.02"),
			RateLookbackDays:    int(getenvInt64("RATE_LOOKBACK_DAYS", 7)),
			FallbackRates:       parseRateTable(getenv("FALLBACK_RATES", "USD=5.00,EUR=5.50,GBP=6.50")),
			DefaultFallbackRate: getenvDecimal("FALLBACK_RATE_DEFAULT", "6.00"),
			CancelDefaultCode:   getenv("NFSE_CANCEL_DEFAULT_CODE", "2"),
			StatusSyncInterval:  getenvDuration("STATUS_SYNC_INTERVAL", 15*time.Minute),
			StatusSyncBatchSize: int(getenvInt64("STATUS_SYNC_BATCH_SIZE", 50)),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDecimal(key, def string) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		value = def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		parsed, _ = decimal.NewFromString(def)
	}
	return parsed
}

// parseRateTable parses "USD=5.00,EUR=5.50" into a currency→rate map.
// Malformed entries are skipped.
func parseRateTable(raw string) map[string]decimal.Decimal {
	table := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(kv[0]))
		rate, err := decimal.NewFromString(strings.TrimSpace(kv[1]))
		if err != nil || code == "" {
			continue
		}
		table[code] = rate
	}
	return table
}
