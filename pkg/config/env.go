package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			"key", key,
			"value", val,
			"default", defaultVal)
		return defaultVal
	}
	return parsed
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default",
			"key", key,
			"value", val,
			"default", defaultVal)
		return defaultVal
	}
	return parsed
}
