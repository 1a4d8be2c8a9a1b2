package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// PublicBaseURL is the externally reachable origin used to build the
	// provider return and webhook callback URLs.
	PublicBaseURL string

	OTLPEndpoint    string
	MetricsExporter string

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
	RedisDB       int

	RateLimitRequests int
	RateLimitWindow   time.Duration

	ChapaSecretKey     string
	ChapaWebhookSecret string
	ChapaBaseURL       string

	TelebirrAppID         string
	TelebirrAppKey        string
	TelebirrMerchantCode  string
	TelebirrAPIURL        string
	TelebirrWebhookSecret string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:       getenv("APP_SERVICE", "gebeya"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		OTLPEndpoint:    getenv("OTLP_ENDPOINT", "localhost:4317"),
		MetricsExporter: strings.ToLower(getenv("METRICS_EXPORTER", "")),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "gebeya"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		RateLimitRequests: int(getenvInt64("RATE_LIMIT_REQUESTS", 30)),
		RateLimitWindow:   getenvDuration("RATE_LIMIT_WINDOW", time.Minute),

		ChapaSecretKey:     strings.TrimSpace(getenv("CHAPA_SECRET_KEY", "")),
		ChapaWebhookSecret: strings.TrimSpace(getenv("CHAPA_WEBHOOK_SECRET", "")),
		ChapaBaseURL:       strings.TrimSpace(getenv("CHAPA_BASE_URL", "")),

		TelebirrAppID:         strings.TrimSpace(getenv("TELEBIRR_APP_ID", "")),
		TelebirrAppKey:        strings.TrimSpace(getenv("TELEBIRR_APP_KEY", "")),
		TelebirrMerchantCode:  strings.TrimSpace(getenv("TELEBIRR_MERCHANT_CODE", "")),
		TelebirrAPIURL:        strings.TrimSpace(getenv("TELEBIRR_API_URL", "")),
		TelebirrWebhookSecret: strings.TrimSpace(getenv("TELEBIRR_WEBHOOK_SECRET", "")),
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
