package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultPort             = "8080"
	defaultOracleModel      = "gpt-4o"
	defaultOracleBaseURL    = "https://api.openai.com/v1"
	defaultNewsBaseURL      = "https://google.serper.dev"
	defaultMaxEvidenceChars = 12000
	defaultMaxUploadBytes   = 25 * 1024 * 1024
)

type DatabaseConfig struct {
	User            string `validate:"required"`
	Password        string
	Host            string `validate:"required"`
	Port            string
	Name            string `validate:"required"`
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type OracleConfig struct {
	APIKey  string
	Model   string `validate:"required"`
	BaseURL string `validate:"required,url"`
	Timeout time.Duration
}

type NewsConfig struct {
	APIKey  string
	BaseURL string `validate:"required,url"`
	Timeout time.Duration `validate:"gt=0"`
}

type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int64
	Window      time.Duration
}

// Config is built once by Load in main and handed to every component that needs it.
type Config struct {
	Env                string
	Port               string `validate:"required"`
	LogLevel           string
	CORSAllowedOrigins []string

	Database       DatabaseConfig
	SkipMigrations bool

	RedisAddress  string
	RedisPassword string

	GCSBucket          string `validate:"required"`
	GCSCredentialsJSON string

	Oracle OracleConfig
	News   NewsConfig

	MaxEvidenceChars   int   `validate:"gt=0"`
	MaxUploadBytes     int64 `validate:"gt=0"`
	CleanupOrphanBlobs bool

	APISecret             string `validate:"required"`
	TokenLifespan         time.Duration
	AdminRegistrationCode string
	// BootstrapAdmins seeds the admins table once (email -> password). Login never reads it.
	BootstrapAdmins map[string]string

	RateLimit RateLimitConfig
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Load reads the environment (seeded from .env when present). The returned error is a
// validation error; callers decide whether it is fatal.
func Load() (Config, error) {
	_ = godotenv.Load()

	port := getenv("API_PORT", "")
	if port == "" {
		// Cloud Run standard env var.
		port = getenv("PORT", defaultPort)
	}

	cfg := Config{
		Env:                getenv("GO_ENV", "development"),
		Port:               port,
		LogLevel:           getenv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Database: DatabaseConfig{
			User:            os.Getenv("DB_USER"),
			Password:        os.Getenv("DB_PASSWORD"),
			Host:            os.Getenv("DB_HOST"),
			Port:            getenv("DB_PORT", "3306"),
			Name:            os.Getenv("DB_NAME"),
			MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: secondsFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300),
			ConnMaxIdleTime: secondsFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60),
		},
		SkipMigrations:     boolFromEnv("SKIP_MIGRATIONS", false),
		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsJSON: os.Getenv("GCS_CREDENTIALS_JSON"),
		Oracle: OracleConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getenv("ORACLE_MODEL", defaultOracleModel),
			BaseURL: getenv("ORACLE_BASE_URL", defaultOracleBaseURL),
			Timeout: secondsFromEnv("ORACLE_TIMEOUT_SECONDS", 120),
		},
		News: NewsConfig{
			APIKey:  os.Getenv("SERPER_API_KEY"),
			BaseURL: getenv("NEWS_BASE_URL", defaultNewsBaseURL),
			Timeout: secondsFromEnv("NEWS_TIMEOUT_SECONDS", 10),
		},
		MaxEvidenceChars:      intFromEnv("MAX_EVIDENCE_CHARS", defaultMaxEvidenceChars),
		MaxUploadBytes:        int64(intFromEnv("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		CleanupOrphanBlobs:    boolFromEnv("CLEANUP_ORPHAN_BLOBS", true),
		APISecret:             os.Getenv("API_SECRET"),
		TokenLifespan:         time.Duration(intFromEnv("TOKEN_HOUR_LIFESPAN", 24)) * time.Hour,
		AdminRegistrationCode: os.Getenv("ADMIN_REGISTRATION_CODE"),
		BootstrapAdmins:       parseCredentialPairs(os.Getenv("BOOTSTRAP_ADMINS")),
		RateLimit: RateLimitConfig{
			Enabled:     boolFromEnv("RATE_LIMIT_ENABLED", false),
			MaxRequests: int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 30)),
			Window:      secondsFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func secondsFromEnv(key string, def int) time.Duration {
	return time.Duration(intFromEnv(key, def)) * time.Second
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseCredentialPairs reads "email:password,email2:password2".
func parseCredentialPairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		email, password, ok := strings.Cut(pair, ":")
		email = strings.ToLower(strings.TrimSpace(email))
		if !ok || email == "" || password == "" {
			continue
		}
		out[email] = password
	}
	return out
}
