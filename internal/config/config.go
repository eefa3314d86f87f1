// Package config provides configuration management for the reconciler.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pgx-dosing-reconciler/internal/workbook"
)

// Config is the full runtime configuration of a batch run.
type Config struct {
	Batch     BatchConfig     `mapstructure:"batch"`
	Layout    workbook.Layout `mapstructure:"layout"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BatchConfig locates the batch inputs and bounds parallelism.
type BatchConfig struct {
	ManifestPath string `mapstructure:"manifest_path"`
	OutputDir    string `mapstructure:"output_dir"`
	Workers      int    `mapstructure:"workers"`
	CacheSize    int    `mapstructure:"cache_size"`
}

// AggregateConfig locates the shared cross-sample matrix.
type AggregateConfig struct {
	Path string `mapstructure:"path"`
}

// ReportConfig locates the run-report database.
type ReportConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manager loads and validates configuration using Viper.
type Manager struct {
	config *Config
}

// NewManager creates a configuration manager, loading from config.yaml
// (working directory or ./config) and PGX_RECON_* environment variables.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("PGX_RECON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars cover standalone use.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	// Batch defaults
	viper.SetDefault("batch.manifest_path", "manifest.csv")
	viper.SetDefault("batch.output_dir", "processed_files")
	viper.SetDefault("batch.workers", 4)
	viper.SetDefault("batch.cache_size", 128)

	// Workbook layout defaults mirror the clinical report template
	defaults := workbook.DefaultLayout()
	viper.SetDefault("layout.sheet", "")
	viper.SetDefault("layout.original_column", defaults.OriginalColumn)
	viper.SetDefault("layout.dosing_column", defaults.DosingColumn)
	viper.SetDefault("layout.alternate_column", defaults.AlternateColumn)
	viper.SetDefault("layout.start_row", defaults.StartRow)
	viper.SetDefault("layout.end_row", defaults.EndRow)

	// Aggregate and report defaults
	viper.SetDefault("aggregate.path", "drug_wise_aggregate.xlsx")
	viper.SetDefault("report.db_path", "reports/runs.db")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.Batch.ManifestPath == "" {
		return fmt.Errorf("batch manifest path is required")
	}
	if config.Batch.Workers < 1 {
		return fmt.Errorf("batch workers must be positive, got %d", config.Batch.Workers)
	}
	if config.Batch.CacheSize < 1 {
		return fmt.Errorf("batch cache size must be positive, got %d", config.Batch.CacheSize)
	}

	if err := config.Layout.Validate(); err != nil {
		return err
	}

	if config.Aggregate.Path == "" {
		return fmt.Errorf("aggregate path is required")
	}
	if config.Report.DBPath == "" {
		return fmt.Errorf("report db path is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
