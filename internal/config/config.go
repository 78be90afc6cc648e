package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	LogLevel string

	AdminUsername   string
	AdminPassword   string
	AdminJWTSecret  string
	AdminSessionTTL time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBPath            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	PayPal PayPalConfig

	CashbookAutoCompany    string
	CashbookSummaryCompany string
}

// PayPalConfig drives the polling client in internal/paypal.
type PayPalConfig struct {
	ClientID           string
	ClientSecret       string
	APIBase            string
	PollInterval       time.Duration
	ReportingLookback  time.Duration
	BackgroundPoll     time.Duration
	BackgroundEnabled  bool
	PendingExpiration  time.Duration
	CancelledRetention time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	env := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "kiosk"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: env,
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		AdminUsername:   strings.TrimSpace(getenv("ADMIN_USERNAME", "")),
		AdminPassword:   getenv("ADMIN_PASSWORD", ""),
		AdminJWTSecret:  strings.TrimSpace(getenv("ADMIN_JWT_SECRET", "dev-key")),
		AdminSessionTTL: getenvDuration("ADMIN_SESSION_TTL_SECONDS", 600*time.Second),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kiosk"),
		DBPath:            getenv("DATABASE_PATH", "kiosk.db"),
		DBUser:            getenv("DATABASE_USER", "kiosk"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		PayPal: PayPalConfig{
			ClientID:           strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			ClientSecret:       strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			APIBase:            paypalBase(getenv("PAYPAL_ENV", "live")),
			PollInterval:       getenvDuration("PAYPAL_POLL_INTERVAL_SECONDS", 15*time.Second),
			ReportingLookback:  getenvDuration("PAYPAL_REPORTING_LOOKBACK_MINUTES", 240*time.Minute),
			BackgroundPoll:     getenvDuration("PAYPAL_BACKGROUND_POLL_SECONDS", 120*time.Second),
			BackgroundEnabled:  getenvBool("PAYPAL_BACKGROUND_POLL_ENABLED", true),
			PendingExpiration:  getenvDuration("PAYPAL_PENDING_EXPIRATION_HOURS", 72*time.Hour),
			CancelledRetention: getenvDuration("CANCELLED_PAYMENT_RETENTION_HOURS", 48*time.Hour),
		},

		CashbookAutoCompany:    getenv("CASHBOOK_AUTO_COMPANY", "Kaffeemaschine"),
		CashbookSummaryCompany: getenv("CASHBOOK_SUMMARY_COMPANY", "Schuelerfirma"),
	}

	return cfg
}

func paypalBase(env string) string {
	if strings.ToLower(strings.TrimSpace(env)) == "sandbox" {
		return "https://api-m.sandbox.paypal.com"
	}
	return "https://api-m.paypal.com"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration reads an integer env var and scales it by the unit baked
// into the default (seconds, minutes or hours depending on the key name).
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	unit := time.Second
	switch {
	case strings.HasSuffix(key, "_MINUTES"):
		unit = time.Minute
	case strings.HasSuffix(key, "_HOURS"):
		unit = time.Hour
	}
	return time.Duration(parsed) * unit
}

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCashbookConfigHolder),
)
