// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Graph database (legal entity graph)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Risk factor weights, must sum to 1.0
	WeightVolatility float64
	WeightLitigation float64
	WeightSentiment  float64
	WeightAnomaly    float64
	WeightRegulatory float64

	// Risk engine behavior
	FactorTimeoutSeconds int // Per-factor scoring deadline
	BatchWorkers         int // Concurrent tickers in batch calculation
	MaxTrackedCompanies  int // Upper bound on tickers per batch request

	// Caching and scheduling
	CacheTTLSeconds int
	RefreshSchedule string // cron schedule (with seconds) for the nightly risk refresh

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup configuration.
// Backups are disabled unless a bucket and credentials are configured.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint for S3-compatible stores (R2, MinIO); empty for AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string // cron schedule (with seconds)
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check RISKWATCH_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("RISKWATCH_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8000),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),

		WeightVolatility: getEnvAsFloat("RISK_WEIGHT_VOLATILITY", 0.30),
		WeightLitigation: getEnvAsFloat("RISK_WEIGHT_LITIGATION", 0.25),
		WeightSentiment:  getEnvAsFloat("RISK_WEIGHT_SENTIMENT", 0.20),
		WeightAnomaly:    getEnvAsFloat("RISK_WEIGHT_ANOMALY", 0.15),
		WeightRegulatory: getEnvAsFloat("RISK_WEIGHT_REGULATORY", 0.10),

		FactorTimeoutSeconds: getEnvAsInt("RISK_FACTOR_TIMEOUT_SECONDS", 10),
		BatchWorkers:         getEnvAsInt("RISK_BATCH_WORKERS", 4),
		MaxTrackedCompanies:  getEnvAsInt("MAX_TRACKED_COMPANIES", 50),

		CacheTTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 3600),
		RefreshSchedule: getEnv("RISK_REFRESH_SCHEDULE", "0 0 6 * * *"),

		Backup: loadBackupConfig(),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	weights := []float64{
		c.WeightVolatility,
		c.WeightLitigation,
		c.WeightSentiment,
		c.WeightAnomaly,
		c.WeightRegulatory,
	}

	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("risk factor weights must be non-negative, got %f", w)
		}
		sum += w
	}

	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("risk factor weights must sum to 1.0, got %f", sum)
	}

	if c.FactorTimeoutSeconds < 1 {
		return fmt.Errorf("factor timeout must be at least 1 second")
	}

	if c.BatchWorkers < 1 {
		return fmt.Errorf("batch workers must be at least 1")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads backup configuration; backups stay disabled until
// a bucket and credentials are present.
func loadBackupConfig() *BackupConfig {
	cfg := &BackupConfig{
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		Region:          getEnv("S3_REGION", "auto"),
		Bucket:          getEnv("S3_BUCKET", ""),
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 30 2 * * *"),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	cfg.Enabled = cfg.Bucket != "" && cfg.AccessKeyID != "" && cfg.SecretAccessKey != ""

	return cfg
}
