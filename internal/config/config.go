/**
 * Configuration for the prospect scan worker
 *
 * Loads configuration from environment variables (.env is loaded by main)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (status store + job queue)
	RedisURL string

	// PostgreSQL configuration (result store). Empty keeps results in memory.
	DatabaseURL string

	// Qdrant prospect index. Empty disables the index.
	QdrantURL        string
	QdrantCollection string

	// HTTP surface
	HTTPAddr string

	// Queue configuration
	QueueName         string
	WorkerConcurrency int

	// Recognition
	RecognitionConcurrency int
	RecognitionURL         string // remote OCR service; empty uses local Tesseract
	TesseractLanguages     []string
	MinConfidence          float64

	// Preprocessing
	MaxSliceHeight int
	SliceOverlap   int

	// Status records expire after this many seconds
	StatusTTLSeconds int

	// Optional TOML file replacing the built-in keyword tables
	LexiconPath string

	Env string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:            getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:              getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:       getEnvOrDefault("QDRANT_COLLECTION", "prospects"),
		HTTPAddr:               getEnvOrDefault("HTTP_ADDR", ":8097"),
		QueueName:              getEnvOrDefault("QUEUE_NAME", "prospect-scans"),
		WorkerConcurrency:      getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		RecognitionConcurrency: getEnvAsIntOrDefault("RECOGNITION_CONCURRENCY", 3),
		RecognitionURL:         getEnvOrDefault("RECOGNITION_URL", ""),
		TesseractLanguages:     splitList(getEnvOrDefault("TESSERACT_LANGUAGES", "eng,fil")),
		MinConfidence:          getEnvAsFloatOrDefault("MIN_CONFIDENCE", 0.5),
		MaxSliceHeight:         getEnvAsIntOrDefault("MAX_SLICE_HEIGHT", 2000),
		SliceOverlap:           getEnvAsIntOrDefault("SLICE_OVERLAP", 100),
		StatusTTLSeconds:       getEnvAsIntOrDefault("STATUS_TTL_SECONDS", 86400),
		LexiconPath:            getEnvOrDefault("LEXICON_PATH", ""),
		Env:                    getEnvOrDefault("APP_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.RecognitionConcurrency < 1 || c.RecognitionConcurrency > 32 {
		return fmt.Errorf("RECOGNITION_CONCURRENCY must be between 1 and 32, got %d", c.RecognitionConcurrency)
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be between 0 and 1, got %.2f", c.MinConfidence)
	}

	if c.MaxSliceHeight < 200 {
		return fmt.Errorf("MAX_SLICE_HEIGHT must be at least 200, got %d", c.MaxSliceHeight)
	}

	if c.SliceOverlap < 0 || c.SliceOverlap >= c.MaxSliceHeight {
		return fmt.Errorf("SLICE_OVERLAP must be between 0 and MAX_SLICE_HEIGHT, got %d", c.SliceOverlap)
	}

	if len(c.TesseractLanguages) == 0 {
		return fmt.Errorf("TESSERACT_LANGUAGES must name at least one language")
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
