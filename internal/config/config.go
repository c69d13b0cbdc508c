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

	AuthMode          string
	OIDCIssuerURL     string
	OIDCAudience      string
	OIDCJWKSURL       string
	OIDCClockSkewSecs int

	AdminAPIKey string

	LedgerAdminAddress     string
	LedgerConfirmTimeoutMS int

	FileStoreType string
	FileStoreRoot string

	UploadPolicyPath string
	UploadMaxBytes   int64
	UploadMediaTypes string
	UploadPolicyID   string

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
		AuthMode:               os.Getenv("AUTH_MODE"),
		OIDCIssuerURL:          os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:           os.Getenv("OIDC_AUDIENCE"),
		OIDCJWKSURL:            os.Getenv("OIDC_JWKS_URL"),
		OIDCClockSkewSecs:      envIntDefault("OIDC_CLOCK_SKEW_SECONDS", 60),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		LedgerAdminAddress:     os.Getenv("LEDGER_ADMIN_ADDRESS"),
		LedgerConfirmTimeoutMS: envIntDefault("LEDGER_CONFIRM_TIMEOUT_MS", 30000),
		FileStoreType:          envDefault("FILE_STORE_TYPE", "memory"),
		FileStoreRoot:          os.Getenv("FILE_STORE_ROOT"),
		UploadPolicyPath:       os.Getenv("UPLOAD_POLICY_PATH"),
		UploadMaxBytes:         envInt64Default("UPLOAD_MAX_BYTES", 10<<20),
		UploadMediaTypes:       envDefault("UPLOAD_MEDIA_TYPES", "application/pdf,image/png,image/jpeg"),
		UploadPolicyID:         envDefault("UPLOAD_POLICY_ID", "upload-default"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func (c Config) LedgerConfirmTimeout() time.Duration {
	if c.LedgerConfirmTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.LedgerConfirmTimeoutMS) * time.Millisecond
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

func envInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
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
