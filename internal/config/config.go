// Package config provides configuration for the mentor chat service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Upstream model
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Embeddings
	EmbedBaseURL string
	EmbedModel   string
	EmbedDims    int

	// Context assembly
	ContextTokenBudget int
	RecentTurnCount    int
	MemoryLimit        int
	MemoryHalfLife     time.Duration
	GraphWeightFloor   float64
	GraphLimit         int

	// Memory extraction
	ExtractionInterval  int
	ExtractionQueueSize int
	ExtractionWorkers   int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),
		DatabaseURL: getEnv("DATABASE_URL", "file:mentor.db?cache=shared&mode=rwc"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout: time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,

		EmbedBaseURL: getEnv("EMBED_BASE_URL", "https://api.openai.com/v1"),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDims:    getEnvInt("EMBED_DIMS", 1536),

		ContextTokenBudget: getEnvInt("CONTEXT_TOKEN_BUDGET", 6000),
		RecentTurnCount:    getEnvInt("RECENT_TURN_COUNT", 8),
		MemoryLimit:        getEnvInt("MEMORY_TOP_K", 6),
		MemoryHalfLife:     time.Duration(getEnvInt("MEMORY_HALF_LIFE_HOURS", 336)) * time.Hour,
		GraphWeightFloor:   getEnvFloat("GRAPH_WEIGHT_FLOOR", 0.25),
		GraphLimit:         getEnvInt("GRAPH_MAX_ENTITIES", 8),

		ExtractionInterval:  getEnvInt("EXTRACTION_INTERVAL", 10),
		ExtractionQueueSize: getEnvInt("EXTRACTION_QUEUE_SIZE", 64),
		ExtractionWorkers:   getEnvInt("EXTRACTION_WORKERS", 2),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
