package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"queryforge/internal/models"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Source artifact mining
	ArtifactsDir string

	// Providers and embeddings
	ProvidersFile  string
	EmbeddingURL   string
	EmbeddingKey   string
	EmbeddingModel string

	// External documentation service used by the dynamic schema resolver
	DocsServiceURL string

	// Schema resolution
	SchemaCacheTTL     time.Duration
	ResolveConcurrency int

	// Similarity thresholds. Empirically chosen in the original system;
	// kept as configuration, not hard invariants.
	SimilarityFloor    float64
	SimilarityModerate float64
	SimilarityHigh     float64

	// Rotator pacing
	MinCallSpacing    time.Duration
	RateLimitCooldown time.Duration

	// Cache retention
	RetentionDays int
	PurgeCron     string

	// Planner defaults
	DefaultEntity string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", ""),

		ArtifactsDir: getEnv("ARTIFACTS_DIR", "./artifacts"),

		ProvidersFile:  getEnv("PROVIDERS_FILE", "./providers.json"),
		EmbeddingURL:   getEnv("EMBEDDING_URL", "https://api.openai.com/v1"),
		EmbeddingKey:   getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		DocsServiceURL: getEnv("DOCS_SERVICE_URL", ""),

		SchemaCacheTTL:     getDurationEnv("SCHEMA_CACHE_TTL", 30*time.Minute),
		ResolveConcurrency: getIntEnv("RESOLVE_CONCURRENCY", 5),

		SimilarityFloor:    getFloatEnv("SIMILARITY_FLOOR", 0.5),
		SimilarityModerate: getFloatEnv("SIMILARITY_MODERATE", 0.65),
		SimilarityHigh:     getFloatEnv("SIMILARITY_HIGH", 0.85),

		MinCallSpacing:    getDurationEnv("MIN_CALL_SPACING", 500*time.Millisecond),
		RateLimitCooldown: getDurationEnv("RATE_LIMIT_COOLDOWN", 30*time.Second),

		RetentionDays: getIntEnv("CACHE_RETENTION_DAYS", 30),
		PurgeCron:     getEnv("CACHE_PURGE_CRON", "0 2 * * *"),

		DefaultEntity: getEnv("DEFAULT_ENTITY", "order"),
	}
}

// LoadProviders loads providers configuration from JSON file
func LoadProviders(filePath string) (*models.ProvidersConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var config models.ProvidersConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse providers JSON: %w", err)
	}

	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
