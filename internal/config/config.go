package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings, sourced from the environment.
type Config struct {
	Port        string
	Environment string

	// Empty DSN selects the in-memory message store.
	DBDSN string

	AMQPURL      string
	AMQPExchange string

	// PEM-encoded RSA public key of the identity provider, inline or via file.
	ProviderPublicKey     string
	InternalTokensEnabled bool
	InternalTokenSecret   string

	UploadDir           string
	UploadSigningSecret string
	UploadMaxBytes      int64

	OTLPEndpoint string
	DebugRoutes  bool

	// Token bucket for inbound websocket actions, per connection.
	WSActionRate  float64
	WSActionBurst int

	HistoryPageLimit int
}

// Load reads configuration from .env (if present) and the environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:                  getEnv("PORT", "8083"),
		Environment:           getEnv("ENVIRONMENT", "development"),
		DBDSN:                 getEnv("DB_DSN", ""),
		AMQPURL:               getEnv("AMQP_URL", ""),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", "telemed.events"),
		ProviderPublicKey:     getEnv("PROVIDER_PUBLIC_KEY", ""),
		InternalTokensEnabled: getBool("INTERNAL_TOKENS_ENABLED", false),
		InternalTokenSecret:   getEnv("INTERNAL_TOKEN_SECRET", ""),
		UploadDir:             getEnv("UPLOAD_DIR", "./uploads"),
		UploadSigningSecret:   getEnv("UPLOAD_SIGNING_SECRET", ""),
		UploadMaxBytes:        getInt64("UPLOAD_MAX_BYTES", 10<<20),
		OTLPEndpoint:          getEnv("OTLP_ENDPOINT", ""),
		DebugRoutes:           getBool("DEBUG_ROUTES", false),
		WSActionRate:          getFloat("WS_ACTION_RATE", 20),
		WSActionBurst:         getInt("WS_ACTION_BURST", 40),
		HistoryPageLimit:      getInt("HISTORY_PAGE_LIMIT", 50),
	}

	if keyFile := getEnv("PROVIDER_PUBLIC_KEY_FILE", ""); keyFile != "" && cfg.ProviderPublicKey == "" {
		if data, err := os.ReadFile(keyFile); err == nil {
			cfg.ProviderPublicKey = string(data)
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
