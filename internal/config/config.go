package config

import (
	"os"
	"time"
)

type Config struct {
	Port      string
	DBPath    string
	ResultTTL time.Duration
	BatchSize int
	Workers   int
}

func Load() Config {
	return Config{
		Port:      getEnv("PORT", "8080"),
		DBPath:    getEnv("DB_PATH", "batchline.db"),
		ResultTTL: getEnvDuration("RESULT_TTL", 24*time.Hour),
		BatchSize: getEnvInt("BATCH_SIZE", 100),
		Workers:   getEnvInt("WORKERS", 5),
	}
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
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
