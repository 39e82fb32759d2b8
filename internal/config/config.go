package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnv      = "development"
	defaultHTTPHost = "0.0.0.0"
	defaultHTTPPort = 8080

	defaultRedisAddr = "localhost:6379"
	defaultRedisDB   = 0

	defaultCacheTTLSeconds = 600

	defaultSpotURL      = "https://api.coingecko.com/api/v3/simple/price?ids=tether&vs_currencies=inr"
	defaultReferenceURL = "https://api.coingecko.com/api/v3/simple/price?ids=tether&vs_currencies=ngn,inr"
	defaultOrderBookURL = "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search"

	defaultFetchTimeout    = 10 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRequestsPerSec  = 2.0
	defaultSessionTTL      = 5 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

// Config keeps the runtime configuration for the service.
type Config struct {
	Env         string
	HTTP        HTTPConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	Cache       CacheConfig
	Upstream    UpstreamConfig
	Analyzer    AnalyzerConfig
	Pricing     PricingConfig
	Transaction TransactionConfig
	Gateway     GatewayConfig
	Broker      BrokerConfig
	Admin       AdminConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// RedisConfig stores Redis connection parameters. Redis backs both the
// market snapshot cache and the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig stores the transaction-archive connection. An empty DSN
// disables the archive.
type PostgresConfig struct {
	DSN string
}

// CacheConfig stores snapshot cache behavior. A zero WarmInterval disables
// the background warmer.
type CacheConfig struct {
	TTL          time.Duration
	WarmInterval time.Duration
}

// UpstreamConfig stores the three market-data source endpoints and the
// shared HTTP client behavior.
type UpstreamConfig struct {
	SpotURL        string
	ReferenceURL   string
	OrderBookURL   string
	FetchTimeout   time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RequestsPerSec float64
}

// AnalyzerConfig stores the strict and relaxed quality-filter thresholds.
// Price bounds are shared by both filters.
type AnalyzerConfig struct {
	StrictMinTrades         int
	StrictMinCompletionPct  float64
	StrictMinQty            float64
	RelaxedMinTrades        int
	RelaxedMinCompletionPct float64
	RelaxedMinQty           float64
	PriceMin                float64
	PriceMax                float64
	TopAdsLimit             int
}

// PricingConfig stores the margin policy and competitive band.
type PricingConfig struct {
	PrimaryPolicy        string // "band" or "costplus"
	BandLow              float64
	BandHigh             float64
	MinProfitMarginPct   float64
	TargetMarginPct      float64
	FallbackJitterPct    float64
	FlatMarkupNGN        float64
	ReferenceFallbackNGN float64
	LocalMarketMin       float64
	LocalMarketMax       float64
}

// TransactionConfig stores conversion boundaries and session behavior.
type TransactionConfig struct {
	MinAmountNGN  float64
	MaxAmountNGN  float64
	SessionTTL    time.Duration
	EncryptionKey string // 64 hex chars -> 32-byte AES key
}

// GatewayConfig stores payment gateway credentials.
type GatewayConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
}

// BrokerConfig stores optional RabbitMQ event publishing. An empty URL
// disables publishing entirely.
type BrokerConfig struct {
	URL            string
	EventsExchange string
}

// AdminConfig gates the cache-inspection and session-listing surface.
type AdminConfig struct {
	Secret string
}

// Load builds Config from environment variables. A local .env file is
// honored when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}
	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}
	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}
	retryAttempts, err := getInt("ORDERBOOK_RETRY_ATTEMPTS", defaultRetryAttempts)
	if err != nil {
		return nil, fmt.Errorf("parse ORDERBOOK_RETRY_ATTEMPTS: %w", err)
	}

	cfg := &Config{
		Env: getString("APP_ENV", defaultEnv),
		HTTP: HTTPConfig{
			Host:            getString("HTTP_HOST", defaultHTTPHost),
			Port:            port,
			ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", defaultRedisAddr),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Cache: CacheConfig{
			TTL:          time.Duration(cacheTTL) * time.Second,
			WarmInterval: getDuration("CACHE_WARM_INTERVAL", 0),
		},
		Upstream: UpstreamConfig{
			SpotURL:        getString("SPOT_URL", defaultSpotURL),
			ReferenceURL:   getString("REFERENCE_URL", defaultReferenceURL),
			OrderBookURL:   getString("ORDERBOOK_URL", defaultOrderBookURL),
			FetchTimeout:   getDuration("FETCH_TIMEOUT", defaultFetchTimeout),
			RetryAttempts:  retryAttempts,
			RetryBaseDelay: getDuration("ORDERBOOK_RETRY_BASE_DELAY", defaultRetryBaseDelay),
			RequestsPerSec: getFloat("UPSTREAM_REQUESTS_PER_SEC", defaultRequestsPerSec),
		},
		Analyzer: AnalyzerConfig{
			StrictMinTrades:         getIntLoose("P2P_STRICT_MIN_TRADES", 100),
			StrictMinCompletionPct:  getFloat("P2P_STRICT_MIN_COMPLETION_PCT", 95),
			StrictMinQty:            getFloat("P2P_STRICT_MIN_QTY", 50),
			RelaxedMinTrades:        getIntLoose("P2P_RELAXED_MIN_TRADES", 20),
			RelaxedMinCompletionPct: getFloat("P2P_RELAXED_MIN_COMPLETION_PCT", 80),
			RelaxedMinQty:           getFloat("P2P_RELAXED_MIN_QTY", 10),
			PriceMin:                getFloat("P2P_PRICE_MIN", 60),
			PriceMax:                getFloat("P2P_PRICE_MAX", 120),
			TopAdsLimit:             getIntLoose("P2P_TOP_ADS_LIMIT", 5),
		},
		Pricing: PricingConfig{
			PrimaryPolicy:        getString("PRICING_PRIMARY_POLICY", "band"),
			BandLow:              getFloat("PRICING_BAND_LOW", 15.85),
			BandHigh:             getFloat("PRICING_BAND_HIGH", 15.98),
			MinProfitMarginPct:   getFloat("PRICING_MIN_MARGIN_PCT", 0.8),
			TargetMarginPct:      getFloat("PRICING_TARGET_MARGIN_PCT", 1.5),
			FallbackJitterPct:    getFloat("PRICING_FALLBACK_JITTER_PCT", 0.1),
			FlatMarkupNGN:        getFloat("PRICING_FLAT_MARKUP_NGN", 30),
			ReferenceFallbackNGN: getFloat("PRICING_REFERENCE_FALLBACK_NGN", 1650),
			LocalMarketMin:       getFloat("PRICING_LOCAL_MARKET_MIN", 16.5),
			LocalMarketMax:       getFloat("PRICING_LOCAL_MARKET_MAX", 17.5),
		},
		Transaction: TransactionConfig{
			MinAmountNGN:  getFloat("TXN_MIN_AMOUNT_NGN", 1000),
			MaxAmountNGN:  getFloat("TXN_MAX_AMOUNT_NGN", 5000000),
			SessionTTL:    getDuration("SESSION_TTL", defaultSessionTTL),
			EncryptionKey: os.Getenv("SESSION_ENCRYPTION_KEY"),
		},
		Gateway: GatewayConfig{
			BaseURL:     getString("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
			CallbackURL: os.Getenv("PAYSTACK_CALLBACK_URL"),
		},
		Broker: BrokerConfig{
			URL:            os.Getenv("RABBITMQ_URL"),
			EventsExchange: getString("RABBITMQ_EVENTS_EXCHANGE", "horizonpay.events"),
		},
		Admin: AdminConfig{
			Secret: os.Getenv("ADMIN_SECRET"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pricing.BandLow > c.Pricing.BandHigh {
		return errors.New("PRICING_BAND_LOW must not exceed PRICING_BAND_HIGH")
	}
	if c.Pricing.MinProfitMarginPct < 0 {
		return errors.New("PRICING_MIN_MARGIN_PCT must not be negative")
	}
	if p := c.Pricing.PrimaryPolicy; p != "band" && p != "costplus" {
		return fmt.Errorf("PRICING_PRIMARY_POLICY must be band or costplus, got %q", p)
	}
	if c.Transaction.MinAmountNGN <= 0 || c.Transaction.MinAmountNGN > c.Transaction.MaxAmountNGN {
		return errors.New("transaction amount bounds are inconsistent")
	}
	if c.Transaction.EncryptionKey == "" {
		return errors.New("SESSION_ENCRYPTION_KEY is required")
	}
	return nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

// getIntLoose falls back silently on parse failure; used for tuning knobs
// where a typo should not prevent startup.
func getIntLoose(key string, fallback int) int {
	parsed, err := getInt(key, fallback)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
