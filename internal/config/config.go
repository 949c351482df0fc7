package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Storage backend: "postgres" or "memory"
	StoreBackend string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis (optional; empty addr disables state cache and redis notify)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Sampling
	SampleRateHz float64
	VehicleInfo  string

	// Broadcaster
	SubscriberQueueSize int

	// Notifications
	NotifyQueueSize int
	WebhookURL      string
	WebhookToken    string

	// State cache writer
	StateFlushIntervalMS int

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
}

func Load() *Config {
	return &Config{
		HTTPPort:             getEnv("HTTP_PORT", "8000"),
		StoreBackend:         getEnv("STORE_BACKEND", "postgres"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "telemetry_user"),
		DBPassword:           getEnv("DB_PASSWORD", "telemetry_password"),
		DBName:               getEnv("DB_NAME", "st_telemetry"),
		DBMaxConns:           int32(getEnvInt("DB_MAX_CONNS", 10)),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		SampleRateHz:         getEnvFloat("SAMPLE_RATE_HZ", 10),
		VehicleInfo:          getEnv("VEHICLE_INFO", "Focus ST"),
		SubscriberQueueSize:  getEnvInt("SUBSCRIBER_QUEUE_SIZE", 100),
		NotifyQueueSize:      getEnvInt("NOTIFY_QUEUE_SIZE", 1000),
		WebhookURL:           getEnv("WEBHOOK_URL", ""),
		WebhookToken:         getEnv("WEBHOOK_TOKEN", ""),
		StateFlushIntervalMS: getEnvInt("STATE_FLUSH_INTERVAL_MS", 50),
		AuthCacheTTLSeconds:  getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:         splitKeys(getEnv("VALID_API_KEYS", "")),
	}
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
