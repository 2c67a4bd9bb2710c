package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	Auth       AuthConfig
	Cache      CacheConfig
	RabbitMQ   RabbitMQConfig
	RateLimit  RateLimitConfig
	Transfer   TransferConfig
	Log        LogConfig
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	UseSSL      bool
	AutoMigrate bool
}

// AuthConfig holds the session token settings. JWTSecret is required.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// CacheConfig configures the account list cache. RedisURL is optional; without
// it only the in-process tier is used.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
	Size     int
}

// RabbitMQConfig configures event publishing. An empty URL disables it.
type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// TransferConfig holds transfer policy. A zero Cooldown disables the minimum
// interval between transfers of the same ordered account pair.
type TransferConfig struct {
	Cooldown time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:        getEnv("DB_HOST", "localhost"),
		Port:        getEnvInt("DB_PORT", 5432),
		User:        getEnv("DB_USER", "ledger"),
		Password:    getEnv("DB_PASSWORD", "password"),
		DBName:      getEnv("DB_NAME", "ledger_db"),
		UseSSL:      getEnvBool("DB_USE_SSL", false),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TokenTTL:  getEnvDuration("JWT_EXPIRES_IN", time.Hour),
		},
		Cache: CacheConfig{
			RedisURL: strings.TrimSpace(getEnv("REDIS_URL", "")),
			TTL:      getEnvDuration("CACHE_TTL", time.Second),
			Size:     getEnvInt("CACHE_SIZE", 5000),
		},
		RabbitMQ: RabbitMQConfig{
			URL:          strings.TrimSpace(getEnv("RABBITMQ_URL", "")),
			QueueDurable: getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvInt("RATE_LIMIT_RPS", 10),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Transfer: TransferConfig{
			Cooldown: getEnvDuration("TRANSFER_COOLDOWN", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive")
	}
	if c.Transfer.Cooldown < 0 {
		return fmt.Errorf("TRANSFER_COOLDOWN must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "1h") or a bare number of
// seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueStr = strings.TrimSpace(valueStr)
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
