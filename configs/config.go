package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type X struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBaseURL   string
	AuthURL      string
	TokenURL     string
}

type Dispatch struct {
	Interval       time.Duration
	SweepInterval  time.Duration
	HandshakeTTL   time.Duration
	PublishTimeout time.Duration
	ClaimTimeout   time.Duration
	Concurrency    int
	BatchSize      int
}

type Config struct {
	X           X
	Dispatch    Dispatch
	PostgresURI string
	RedisURI    string
	FrontendURL string
	SecretKey   string
	TokenKey    string
	CookieName  string
	Port        string
}

func LoadConfig() *Config {
	return &Config{
		X: X{
			ClientID:     getEnv("X_CLIENT_ID", ""),
			ClientSecret: getEnv("X_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("X_REDIRECT_URI", "http://localhost:3000/auth/x/callback"),
			APIBaseURL:   getEnv("X_API_BASE_URL", "https://api.twitter.com"),
			AuthURL:      getEnv("X_AUTH_URL", "https://twitter.com/i/oauth2/authorize"),
			TokenURL:     getEnv("X_TOKEN_URL", "https://api.twitter.com/2/oauth2/token"),
		},
		Dispatch: Dispatch{
			Interval:       getDuration("DISPATCH_INTERVAL", time.Minute),
			SweepInterval:  getDuration("HANDSHAKE_SWEEP_INTERVAL", 15*time.Minute),
			HandshakeTTL:   getDuration("HANDSHAKE_TTL", 10*time.Minute),
			PublishTimeout: getDuration("PUBLISH_TIMEOUT", 30*time.Second),
			ClaimTimeout:   getDuration("CLAIM_TIMEOUT", 5*time.Minute),
			Concurrency:    getInt("DISPATCH_CONCURRENCY", 10),
			BatchSize:      getInt("DISPATCH_BATCH_SIZE", 100),
		},
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		TokenKey:    getEnv("TOKEN_ENCRYPTION_KEY", ""),
		CookieName:  getEnv("COOKIE_NAME", "tweetflow_token"),
		Port:        getEnv("PORT", "3000"),
	}
}

// KeysShared reports whether the token encryption key reuses the JWT secret.
func (c *Config) KeysShared() bool {
	return c.TokenKey != "" && c.TokenKey == c.SecretKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Info("invalid duration, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Info("invalid integer, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}
