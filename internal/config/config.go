package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything cmd/server needs to wire the engine. With no
// DATABASE_URL the server runs on the in-memory store; with no
// KAFKA_BROKERS events are skipped.
type Config struct {
	HTTPAddr     string
	DatabaseURL  string
	KafkaBrokers []string
}

// Load reads a .env file when one is present, then the environment.
func Load() Config {
	// A missing .env file is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	return Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
