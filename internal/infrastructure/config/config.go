// internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppVersion string
	LogLevel   string

	// Server
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string

	// Auth
	JWTSecret string

	// MongoDB
	MongoURI      string
	MongoDB       string
	MongoUser     string
	MongoPassword string

	// PostgreSQL, points ledger
	PostgresURI string

	// Redis, rate limiting. Empty address falls back to an in-process limiter.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// QR tokens
	QRTokenTTL      time.Duration
	QRSweepInterval time.Duration
	QRRatePerMinute int
	QRRateBurst     int

	// Notifications
	NotifyTimeout time.Duration

	// Gmail
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string
	MailFrom          string

	// WhatsApp
	WhatsAppServiceURL string
	WhatsAppToken      string
	WhatsAppCompanyID  string
	WhatsAppAgentID    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		AppVersion:   getEnv("APP_VERSION", "1.0.0"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,
		CORSOrigins:  getEnvAsList("CORS_ORIGINS", []string{"*"}),

		JWTSecret: getEnv("JWT_SECRET", ""),

		MongoURI:      getEnv("MONGODB_DSN", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "sustainflow"),
		MongoUser:     getEnv("MONGO_USER", ""),
		MongoPassword: getEnv("MONGO_PASSWORD", ""),

		PostgresURI: getEnv("POSTGRES_DSN", "postgres://localhost:5432/sustainflow?sslmode=disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		QRTokenTTL:      getEnvAsDuration("QR_TOKEN_TTL", 2*time.Minute),
		QRSweepInterval: getEnvAsDuration("QR_SWEEP_INTERVAL", time.Minute),
		QRRatePerMinute: getEnvAsInt("QR_RATE_PER_MINUTE", 10),
		QRRateBurst:     getEnvAsInt("QR_RATE_BURST", 5),

		NotifyTimeout: getEnvAsDuration("NOTIFY_TIMEOUT", 30*time.Second),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		MailFrom:          getEnv("MAIL_FROM", ""),

		WhatsAppServiceURL: getEnv("WHATSAPP_SERVICE_URL", ""),
		WhatsAppToken:      getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppCompanyID:  getEnv("WHATSAPP_COMPANY_ID", ""),
		WhatsAppAgentID:    getEnv("WHATSAPP_AGENT_ID", ""),
	}

	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if config.QRTokenTTL <= 0 {
		return nil, fmt.Errorf("QR_TOKEN_TTL must be positive, got %s", config.QRTokenTTL)
	}

	return config, nil
}

// GmailEnabled reports whether email notifications can be sent
func (c *Config) GmailEnabled() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != "" && c.GmailRefreshToken != ""
}

// WhatsAppEnabled reports whether WhatsApp notifications can be sent
func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppServiceURL != ""
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
