package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Session    SessionConfig
	Tracking   TrackingConfig
	Commission CommissionConfig
	Collab     CollabConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/meshmarket?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings for bearer auth.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// SessionConfig holds the signed session cookie settings.
type SessionConfig struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
	SameSite   string // "lax", "strict", or "none"
}

// TrackingConfig holds affiliate tracking code settings.
type TrackingConfig struct {
	CodeLength int
	MaxRetries int
}

// CommissionConfig holds the commission split rates.
type CommissionConfig struct {
	PlatformRate  float64
	AffiliateRate float64
}

// CollabConfig holds collaboration session settings.
type CollabConfig struct {
	EmptyGracePeriod time.Duration
	ReapInterval     time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/meshmarket?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "meshmarket"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "mm_session"),
			Secret:     getEnv("SESSION_SECRET", "change-me-in-production"),
			TTL:        time.Duration(getEnvInt("SESSION_TTL_MINUTES", 43200)) * time.Minute, // 30 days
			Secure:     getEnv("SESSION_SECURE", "true") == "true",
			SameSite:   strings.ToLower(getEnv("SESSION_SAMESITE", "lax")),
		},
		Tracking: TrackingConfig{
			CodeLength: getEnvInt("TRACKING_CODE_LENGTH", 8),
			MaxRetries: getEnvInt("TRACKING_MAX_RETRIES", 5),
		},
		Commission: CommissionConfig{
			PlatformRate:  getEnvFloat("COMMISSION_PLATFORM_RATE", 0.05),
			AffiliateRate: getEnvFloat("COMMISSION_AFFILIATE_RATE", 0.03),
		},
		Collab: CollabConfig{
			EmptyGracePeriod: time.Duration(getEnvInt("COLLAB_EMPTY_GRACE_SEC", 60)) * time.Second,
			ReapInterval:     time.Duration(getEnvInt("COLLAB_REAP_INTERVAL_SEC", 30)) * time.Second,
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
