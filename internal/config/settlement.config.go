package config

import (
	"os"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr      string
	RedisPass     string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
	SweepInterval time.Duration
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8031"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:     getEnv("REDIS_PASS", ""),
		KafkaBrokers:  getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
		KafkaTopic:    getEnv("KAFKA_NOTIFICATION_TOPIC", "notification_events"),
		SweepInterval: getEnvDuration("RELEASE_SWEEP_INTERVAL", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
