package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	AppDebug bool
	AppURL   string
	Port     string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	InvitationTTL   time.Duration

	// Empty RedisURL keeps the actor cache in process memory.
	RedisURL           string
	PermissionCacheTTL time.Duration

	CORSAllowedOrigins []string

	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string

	SeedAdminName     string
	SeedAdminEmail    string
	SeedAdminPassword string
}

// Load reads configs/.env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		AppDebug: getBool("APP_DEBUG", false),
		AppURL:   strings.TrimRight(getEnv("APP_URL", "http://localhost:5173"), "/"),
		Port:     getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "postgres"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		AccessTokenTTL:  getDuration("JWT_ACCESS_TTL", 24*time.Hour),
		RefreshTokenTTL: getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		InvitationTTL:   getDuration("INVITATION_TTL", 7*24*time.Hour),

		RedisURL:           getEnv("REDIS_URL", ""),
		PermissionCacheTTL: getDuration("PERMISSION_CACHE_TTL", 5*time.Minute),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),

		SeedAdminName:     getEnv("SEED_ADMIN_NAME", "Super Admin"),
		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@example.com"),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "default_super_secret_key" // development only, validate() refuses this in production
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}
	if c.PermissionCacheTTL < 0 {
		return fmt.Errorf("PERMISSION_CACHE_TTL must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DSN builds the postgres connection URL.
func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
