package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Kafka     KafkaConfig
	Log       LogConfig
	Policy    PolicyConfig
	Scheduler SchedulerConfig
	Workers   WorkerConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RateLimit      int
	IdempotencyTTL time.Duration
	MaxBodyBytes   int64
	CORSOrigins    []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	CacheTTL time.Duration
}

type JWTConfig struct {
	Secret        string
	Expiration    time.Duration
	TOTPIssuer    string
	// EncryptionKey is a hex encoded AES-256 key for TOTP secrets at rest.
	EncryptionKey string
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	Topic          string
	PublishTimeout time.Duration
}

type LogConfig struct {
	Level string
}

// PolicyConfig holds the wallet policy defaults used until an admin
// overrides them through the settings endpoint.
type PolicyConfig struct {
	MinDeposit           decimal.Decimal
	MinWithdrawal        decimal.Decimal
	AutoApproveCeiling   decimal.Decimal
	AutoApproveEnabled   bool
	DepositFeePercent    decimal.Decimal
	WithdrawalFeePercent decimal.Decimal
	DefaultProfitPercent decimal.Decimal
	StalePendingAfter    time.Duration
}

type SchedulerConfig struct {
	Enabled           bool
	ExpireStale       string
	MatureInvestments string
	VerifyLedger      string
}

type WorkerConfig struct {
	DistributeConcurrency int
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimit:      getIntEnv("RATE_LIMIT_PER_MINUTE", 120),
			IdempotencyTTL: getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
			MaxBodyBytes:   int64(getIntEnv("MAX_BODY_BYTES", 1<<20)),
			CORSOrigins:    getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			CacheTTL: getDurationEnv("REDIS_CACHE_TTL", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "change-this-secret"),
			Expiration:    getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
			TOTPIssuer:    getEnv("TOTP_ISSUER", "Propvest"),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Kafka: KafkaConfig{
			Enabled:        getBoolEnv("KAFKA_ENABLED", false),
			Brokers:        getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:          getEnv("KAFKA_TOPIC", "propvest.ledger"),
			PublishTimeout: getDurationEnv("KAFKA_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Policy: PolicyConfig{
			MinDeposit:           getDecimalEnv("MIN_DEPOSIT", decimal.NewFromInt(500)),
			MinWithdrawal:        getDecimalEnv("MIN_WITHDRAWAL", decimal.NewFromInt(1000)),
			AutoApproveCeiling:   getDecimalEnv("AUTO_APPROVE_CEILING", decimal.NewFromInt(10000)),
			AutoApproveEnabled:   getBoolEnv("AUTO_APPROVE_ENABLED", true),
			DepositFeePercent:    getDecimalEnv("DEPOSIT_FEE_PERCENT", decimal.Zero),
			WithdrawalFeePercent: getDecimalEnv("WITHDRAWAL_FEE_PERCENT", decimal.Zero),
			DefaultProfitPercent: getDecimalEnv("DEFAULT_PROFIT_PERCENT", decimal.NewFromInt(80)),
			StalePendingAfter:    getDurationEnv("STALE_PENDING_AFTER", 72*time.Hour),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getBoolEnv("SCHEDULER_ENABLED", true),
			ExpireStale:       getEnv("CRON_EXPIRE_STALE", "0 */15 * * * *"),
			MatureInvestments: getEnv("CRON_MATURE_INVESTMENTS", "0 30 0 * * *"),
			VerifyLedger:      getEnv("CRON_VERIFY_LEDGER", "0 0 2 * * *"),
		},
		Workers: WorkerConfig{
			DistributeConcurrency: getIntEnv("DISTRIBUTE_CONCURRENCY", 8),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
