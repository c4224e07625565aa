// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	// Backend selects the key/value adapter: memory, sqlite or redis.
	Backend    string
	SQLitePath string
	RedisAddr  string

	JournalURL string

	// Inference selects the channel adapter: websocket or openai.
	Inference    string
	InferenceURL string
	OpenAIKey    string
	OpenAIModel  string

	LogLevel string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using environment: %v", err)
	}

	return &Config{
		HTTPAddr:     env("HTTP_ADDR", ":8080"),
		Backend:      env("KV_BACKEND", "sqlite"),
		SQLitePath:   env("SQLITE_PATH", "expense-engine.db"),
		RedisAddr:    env("REDIS_ADDR", "localhost:6379"),
		JournalURL:   env("JOURNAL_URL", "http://localhost:8081/journal"),
		Inference:    env("INFERENCE_MODE", "websocket"),
		InferenceURL: env("INFERENCE_URL", "ws://localhost:8082/channel"),
		OpenAIKey:    env("OPENAI_API_KEY", ""),
		OpenAIModel:  env("OPENAI_MODEL", ""),
		LogLevel:     env("LOG_LEVEL", "info"),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
