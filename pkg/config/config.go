// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Database connection
	Postgres *PostgresConfig

	// Pipeline settings
	ChunkSize  int
	Encoding   string // source file encoding; "auto" probes UTF-8 first
	DataDir    string // extracted source CSVs, one sub-directory per kind
	OutputDir  string // quarantine and telemetry artifacts
	StateFile  string // resumable run state
	GeoIndex   string // optional CEP-to-municipality auxiliary file
	RunTimeout time.Duration

	// Repair and validation
	RepairLevel     string
	ValidationMode  string
	SkipInvalidRows bool
	TruncateBefore  bool // empty each destination table before its load

	// Quality gate thresholds
	GateMinRows           int
	GateMaxChangedRatio   float64
	GateMaxNullDeltaRatio float64

	// Artifact rotation
	SinkMaxBytes       int64
	SinkDailyPartition bool

	// Metrics and summary export
	MetricsTextfile string
	PushgatewayURL  string
	MetricsJob      string
	CollectorURL    string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		// Default values
		ChunkSize:  getEnvAsInt("CHUNK_SIZE", 200000),
		Encoding:   getEnv("SOURCE_ENCODING", "auto"),
		DataDir:    getEnv("DATA_DIR", "data/extracted"),
		OutputDir:  getEnv("OUTPUT_DIR", "data/output"),
		StateFile:  getEnv("STATE_FILE", "data/run_state.json"),
		GeoIndex:   getEnv("GEO_INDEX_FILE", ""),
		RunTimeout: time.Duration(getEnvAsInt("RUN_TIMEOUT_MINUTES", 720)) * time.Minute,

		RepairLevel:     getEnv("REPAIR_LEVEL", "basic"),
		ValidationMode:  getEnv("VALIDATION_MODE", "relaxed"),
		SkipInvalidRows: getEnvAsBool("SKIP_INVALID_ROWS", true),
		TruncateBefore:  getEnvAsBool("TRUNCATE_BEFORE_LOAD", false),

		GateMinRows:           getEnvAsInt("GATE_MIN_ROWS", 100),
		GateMaxChangedRatio:   getEnvAsFloat("GATE_MAX_CHANGED_RATIO", 0.5),
		GateMaxNullDeltaRatio: getEnvAsFloat("GATE_MAX_NULL_DELTA_RATIO", 0.3),

		SinkMaxBytes:       int64(getEnvAsInt("SINK_MAX_BYTES", 64*1024*1024)),
		SinkDailyPartition: getEnvAsBool("SINK_DAILY_PARTITION", true),

		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
		PushgatewayURL:  getEnv("PUSHGATEWAY_URL", ""),
		MetricsJob:      getEnv("METRICS_JOB", "cnpj_loader"),
		CollectorURL:    getEnv("COLLECTOR_URL", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
	}
	cfg.Postgres = pgConfig

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	switch c.RepairLevel {
	case "none", "basic", "aggressive":
	default:
		return errors.New("repair level must be none, basic, or aggressive")
	}

	switch c.ValidationMode {
	case "relaxed", "strict":
	default:
		return errors.New("validation mode must be relaxed or strict")
	}

	if c.GateMaxChangedRatio < 0 || c.GateMaxChangedRatio > 1 {
		return errors.New("gate changed ratio must be between 0 and 1")
	}

	if c.GateMaxNullDeltaRatio < 0 || c.GateMaxNullDeltaRatio > 1 {
		return errors.New("gate null delta ratio must be between 0 and 1")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
