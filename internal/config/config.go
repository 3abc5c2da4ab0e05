package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	// ParentURL is the webservice endpoint of the superior authority.
	ParentURL string
	// CallbackURL is this authority's own delivery endpoint, announced
	// on asynchronous outbound exchanges.
	CallbackURL string

	// HolderReference is the authority's current certificate holder
	// reference, e.g. UTDVCA00001.
	HolderReference string
	// SigningKeyPEM holds the authority's EC signing key. Empty means
	// an ephemeral key is generated at startup.
	SigningKeyPEM string

	// PolicyFile points at the YAML issuance rule set. Empty means a
	// built-in default policy that declines everything.
	PolicyFile string

	AdminAPIKey string

	RequestTimeoutSeconds int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		ParentURL:              os.Getenv("PARENT_URL"),
		CallbackURL:            os.Getenv("CALLBACK_URL"),
		HolderReference:        envDefault("HOLDER_REFERENCE", "UTDVCA00001"),
		SigningKeyPEM:          os.Getenv("SIGNING_KEY_PEM"),
		PolicyFile:             os.Getenv("POLICY_FILE"),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		RequestTimeoutSeconds:  envIntDefault("REQUEST_TIMEOUT_SECONDS", 30),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
