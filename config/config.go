package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost           string
	HTTPPort           string
	MySQLDSN           string
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	SecureCookies      bool
	LogLevel           string
	LogFormat          string
	Media              MediaConfig
}

// MediaConfig points at the S3-compatible bucket that hosts uploaded
// avatars and cover images.
type MediaConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	accessSecret := os.Getenv("ACCESS_TOKEN_SECRET")
	if accessSecret == "" {
		return nil, errors.New("ACCESS_TOKEN_SECRET environment variable is required")
	}

	refreshSecret := os.Getenv("REFRESH_TOKEN_SECRET")
	if refreshSecret == "" {
		return nil, errors.New("REFRESH_TOKEN_SECRET environment variable is required")
	}
	if refreshSecret == accessSecret {
		return nil, errors.New("REFRESH_TOKEN_SECRET must differ from ACCESS_TOKEN_SECRET")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	mediaBucket := os.Getenv("MEDIA_BUCKET")
	if mediaBucket == "" {
		return nil, errors.New("MEDIA_BUCKET environment variable is required")
	}

	return &Config{
		HTTPHost:           getEnv("HTTP_HOST", ""),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		MySQLDSN:           mysqlDSN,
		AccessTokenSecret:  accessSecret,
		RefreshTokenSecret: refreshSecret,
		AccessTokenTTL:     getDurationEnv("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDurationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SecureCookies:      getBoolEnv("SECURE_COOKIES", true),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		Media: MediaConfig{
			Bucket:          mediaBucket,
			Region:          getEnv("MEDIA_REGION", "us-east-1"),
			Endpoint:        getEnv("MEDIA_ENDPOINT", ""),
			AccessKeyID:     getEnv("MEDIA_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("MEDIA_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   getEnv("MEDIA_PUBLIC_BASE_URL", ""),
		},
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
