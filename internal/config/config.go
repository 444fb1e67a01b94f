package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RealtimeDriverMemory = "memory"
	RealtimeDriverNATS   = "nats"
	RealtimeDriverRedis  = "redis"
)

type Config struct {
	Port             string
	DBUrl            string
	JWTSecret        string
	AppEnv           string
	LogLevel         string
	RealtimeDriver   string
	NatsURL          string
	NatsStream       string
	RedisURL         string
	EnableChangefeed bool
	TypingTimeout    time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	driver := strings.ToLower(strings.TrimSpace(getEnv("REALTIME_DRIVER", "")))
	switch driver {
	case "":
		driver = RealtimeDriverMemory
	case RealtimeDriverMemory, RealtimeDriverNATS, RealtimeDriverRedis:
	default:
		return nil, fmt.Errorf("unsupported REALTIME_DRIVER %q", driver)
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBUrl:            getEnv("DB_URL", ""),
		JWTSecret:        jwtSecret,
		AppEnv:           normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		RealtimeDriver:   driver,
		NatsURL:          getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NatsStream:       getEnv("NATS_STREAM", "ROW_CHANGES"),
		RedisURL:         getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		EnableChangefeed: getEnvBool("ENABLE_CHANGEFEED", true),
		TypingTimeout:    getEnvDuration("TYPING_TIMEOUT", 3*time.Second),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
