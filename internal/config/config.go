package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	// Global processor credentials. A feed-level override, when enabled,
	// replaces this whole set (see internal/feed).
	Checkout CheckoutConfig

	// Shared secret for the relay origin's signed callbacks.
	RelaySharedSecret string
	// Secret used to integrity-hash the browser-return reference.
	ReturnSecret string
	// Key material for feed credential encryption at rest.
	FeedConfigSecret string

	Email EmailConfig
	Redis RedisConfig

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
}

// CheckoutConfig carries one complete processor credential set.
type CheckoutConfig struct {
	SecretKey           string
	PublicKey           string
	ProcessingChannelID string
	WebhookSecret       string
	Mode                string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AdminAddress string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

const (
	ModeTest = "test"
	ModeLive = "live"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCurrencyTableHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "formgate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		Checkout: CheckoutConfig{
			SecretKey:           strings.TrimSpace(getenv("CHECKOUT_SECRET_KEY", "")),
			PublicKey:           strings.TrimSpace(getenv("CHECKOUT_PUBLIC_KEY", "")),
			ProcessingChannelID: strings.TrimSpace(getenv("CHECKOUT_PROCESSING_CHANNEL_ID", "")),
			WebhookSecret:       strings.TrimSpace(getenv("CHECKOUT_WEBHOOK_SECRET", "")),
			Mode:                NormalizeMode(getenv("CHECKOUT_MODE", ModeTest)),
		},

		RelaySharedSecret: strings.TrimSpace(getenv("RELAY_SHARED_SECRET", "")),
		ReturnSecret:      strings.TrimSpace(getenv("RETURN_SECRET", "")),
		FeedConfigSecret:  strings.TrimSpace(getenv("FEED_CONFIG_SECRET", "")),

		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@formgate.local"),
			AdminAddress: getenv("ADMIN_EMAIL", ""),
		},

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "formgate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
	}
}

// NormalizeMode maps arbitrary input to the test/live pair, defaulting to test.
func NormalizeMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeLive, "production":
		return ModeLive
	default:
		return ModeTest
	}
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
