// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（リアルタイム配信・プレゼンス用）
	RedisURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// OpenChargeMap
	// 未設定の場合は充電ステーション検索機能のみ無効化される。
	OCMAPIKey     string
	OCMTimeout    time.Duration
	OCMMaxResults int

	// Object Storage（アバター・アクセサリー画像）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	// Presence
	PresenceTTL          time.Duration
	PresencePollInterval time.Duration

	// Typing
	TypingDebounce time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitChat    int

	// Cleanup worker
	SessionCleanupInterval time.Duration
	TypingRowTTL           time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// OCM_API_KEYは任意（未設定時はステーション検索のみ無効）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)

	cfg.OCMAPIKey = os.Getenv("OCM_API_KEY")
	cfg.OCMTimeout = getEnvDuration("OCM_TIMEOUT", 10*time.Second)
	cfg.OCMMaxResults = getEnvInt("OCM_MAX_RESULTS", 100)

	cfg.MinioEndpoint = getEnvString("MINIO_ENDPOINT", "localhost:9000")
	cfg.MinioAccessKey = getEnvString("MINIO_ACCESS_KEY", "minioadmin")
	cfg.MinioSecretKey = getEnvString("MINIO_SECRET_KEY", "minioadmin")
	cfg.MinioBucket = getEnvString("MINIO_BUCKET", "voltmap")
	cfg.MinioUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinioPublicURL = getEnvString("MINIO_PUBLIC_URL", "http://localhost:9000/voltmap")

	cfg.PresenceTTL = getEnvDuration("PRESENCE_TTL", 30*time.Second)
	cfg.PresencePollInterval = getEnvDuration("PRESENCE_POLL_INTERVAL", time.Second)

	cfg.TypingDebounce = getEnvDuration("TYPING_DEBOUNCE", 500*time.Millisecond)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 60)

	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.TypingRowTTL = getEnvDuration("TYPING_ROW_TTL", time.Minute)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// StationLookupEnabled は充電ステーション検索機能が有効かどうかを返す。
func (c *Config) StationLookupEnabled() bool {
	return c.OCMAPIKey != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
