package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	JWTSecret   string
	SwaggerHost string

	// CardMasterKey derives per-card challenge keys. In production this is
	// a reference to HSM-resident key material, never a literal key.
	CardMasterKey string
	// LedgerSigningKey signs ledger entries.
	LedgerSigningKey string

	ChallengeTTL       time.Duration
	PINMaxAttempts     int
	PINLockCooldown    time.Duration
	TapTimeout         time.Duration
	OfflineCeiling     decimal.Decimal
	ReconcileInterval  time.Duration
	ChallengeRateLimit float64
}

// Load builds Config from environment with sensible defaults.
func Load() *Config {
	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		MySQLDSN:    getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/nfcpay?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:   getEnv("JWT_SECRET", "change-me"),
		SwaggerHost: os.Getenv("SWAGGER_HOST"),

		CardMasterKey:    getEnv("CARD_MASTER_KEY", "dev-master-key-change-me"),
		LedgerSigningKey: getEnv("LEDGER_SIGNING_KEY", "dev-ledger-key-change-me"),

		ChallengeTTL:       getEnvDuration("CHALLENGE_TTL", 30*time.Second),
		PINMaxAttempts:     getEnvInt("PIN_MAX_ATTEMPTS", 5),
		PINLockCooldown:    getEnvDuration("PIN_LOCK_COOLDOWN", 15*time.Minute),
		TapTimeout:         getEnvDuration("TAP_TIMEOUT", 5*time.Second),
		OfflineCeiling:     getEnvDecimal("OFFLINE_CEILING", decimal.NewFromInt(50)),
		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		ChallengeRateLimit: getEnvFloat("CHALLENGE_RATE_LIMIT", 10),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if parsed, err := decimal.NewFromString(v); err == nil {
			return parsed
		}
	}
	return def
}
