package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// MaxWorkers caps the conversion pool regardless of host parallelism so a run
// cannot exhaust file handles on a shared filesystem.
const MaxWorkers = 64

// Output formats understood by the converter.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceDir     string
	SourcePattern string
	OutputDir     string
	LogDir        string
	VariablesFile string

	Workers       int
	BatchCount    int
	OutputFormats []string

	RecentLimit      int
	ProgressInterval time.Duration

	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	// Outcome publishing, disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
	BatchSize    int

	SQLitePath  string
	SQLiteTable string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("WORKERS", 16)
	if err != nil {
		return nil, err
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	batchCount, err := parsePositiveInt("BATCH_COUNT", 4)
	if err != nil {
		return nil, err
	}

	recentLimit, err := parsePositiveInt("RECENT_LIMIT", 10)
	if err != nil {
		return nil, err
	}

	progress, err := time.ParseDuration(sharedcfg.EnvOrDefault("PROGRESS_INTERVAL", "1s"))
	if err != nil || progress <= 0 {
		return nil, errors.New("invalid PROGRESS_INTERVAL")
	}

	formats, err := ParseFormats(sharedcfg.EnvOrDefault("OUTPUT_FORMATS", "parquet,csv"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SourceDir:        sharedcfg.EnvOrDefault("SOURCE_DIR", "argo_nc_files"),
		SourcePattern:    sharedcfg.EnvOrDefault("SOURCE_PATTERN", "*.nc"),
		OutputDir:        sharedcfg.EnvOrDefault("OUTPUT_DIR", "argo_parquet"),
		LogDir:           sharedcfg.EnvOrDefault("LOG_DIR", "logs"),
		VariablesFile:    os.Getenv("VARIABLES_FILE"),
		Workers:          workers,
		BatchCount:       batchCount,
		OutputFormats:    formats,
		RecentLimit:      recentLimit,
		ProgressInterval: progress,
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		ShutdownTimeout:  shutdownTimeout,
		KafkaBrokers:     sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "argo-conversion-outcomes"),
		BatchSize:        batchSize,
		SQLitePath:       sharedcfg.EnvOrDefault("SQLITE_PATH", "argo.db"),
		SQLiteTable:      sharedcfg.EnvOrDefault("SQLITE_TABLE", "profiles"),
	}

	if cfg.SourceDir == "" {
		return nil, errors.New("SOURCE_DIR is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if !ValidIdentifier(cfg.SQLiteTable) {
		return nil, fmt.Errorf("invalid SQLITE_TABLE %q", cfg.SQLiteTable)
	}

	return cfg, nil
}

// KafkaEnabled reports whether outcome events should be published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// ParseFormats splits a comma-separated format list. The first format is the
// one whose output file marks an input as converted.
func ParseFormats(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		if f != FormatParquet && f != FormatCSV {
			return nil, fmt.Errorf("invalid OUTPUT_FORMATS: unknown format %q", f)
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, errors.New("OUTPUT_FORMATS must name at least one format")
	}
	return out, nil
}

// ClampWorkers bounds a requested worker count to [1, MaxWorkers].
func ClampWorkers(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxWorkers:
		return MaxWorkers
	default:
		return n
	}
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}

// ValidIdentifier reports whether s is safe to use as an unquoted SQL name.
func ValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
