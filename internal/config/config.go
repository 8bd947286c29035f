package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emberops/ember/internal/report"
	"github.com/emberops/ember/internal/slo"
)

// AlertingConfig controls the alert engine.
type AlertingConfig struct {
	Enabled                  bool    `yaml:"enabled"`
	DefaultWarningThreshold  float64 `yaml:"defaultWarningThreshold"`
	DefaultCriticalThreshold float64 `yaml:"defaultCriticalThreshold"`
	BurnRateAlerts           bool    `yaml:"burnRateAlerts"`
}

// ReportingConfig controls report generation defaults.
type ReportingConfig struct {
	DefaultPeriod report.Period `yaml:"defaultPeriod"`
}

// Config holds engine and server configuration.
type Config struct {
	// Server settings.
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// Engine settings. Durations use the compact "30s"/"5m" text form in
	// YAML, same as SLO windows.
	MeasurementInterval slo.Duration    `yaml:"measurementInterval"`
	RetentionDays       int             `yaml:"retentionDays"`
	QueryTimeout        slo.Duration    `yaml:"queryTimeout"`
	Alerting            AlertingConfig  `yaml:"alerting"`
	Reporting           ReportingConfig `yaml:"reporting"`

	// SLO definition files, optional.
	SLODirectory string `yaml:"sloDirectory"`
	SchemaPath   string `yaml:"schemaPath"`

	// Metric adapter settings.
	AdapterType     string `yaml:"adapterType"` // "prometheus" or "synthetic"
	PrometheusURL   string `yaml:"prometheusURL"`
	SyntheticFixSet string `yaml:"syntheticFixtures"`

	// Storage settings.
	StorageType string `yaml:"storageType"` // "memory" or "sqlite"
	DBPath      string `yaml:"dbPath"`

	// Operational settings.
	GracefulShutdownTimeout slo.Duration `yaml:"gracefulShutdownTimeout"`
	LogLevel                string       `yaml:"logLevel"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Port:                    8080,
		Host:                    "0.0.0.0",
		MeasurementInterval:     slo.Duration(60 * time.Second),
		RetentionDays:           90,
		QueryTimeout:            slo.Duration(10 * time.Second),
		Alerting: AlertingConfig{
			Enabled:                  true,
			DefaultWarningThreshold:  50,
			DefaultCriticalThreshold: 20,
			BurnRateAlerts:           true,
		},
		Reporting:               ReportingConfig{DefaultPeriod: report.PeriodWeek},
		SchemaPath:              "schemas/slo_v1.json",
		AdapterType:             "synthetic",
		StorageType:             "memory",
		GracefulShutdownTimeout: slo.Duration(30 * time.Second),
		LogLevel:                "info",
	}
}

// LoadFile overlays YAML file settings onto the config.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.MeasurementInterval <= 0 {
		return fmt.Errorf("measurement interval must be positive")
	}

	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive")
	}

	if c.AdapterType != "prometheus" && c.AdapterType != "synthetic" {
		return fmt.Errorf("adapter type must be 'prometheus' or 'synthetic'")
	}

	if c.AdapterType == "prometheus" && c.PrometheusURL == "" {
		return fmt.Errorf("Prometheus URL required when adapter type is 'prometheus'")
	}

	if c.StorageType != "memory" && c.StorageType != "sqlite" {
		return fmt.Errorf("storage type must be 'memory' or 'sqlite'")
	}

	if c.StorageType == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("database path required when storage type is 'sqlite'")
	}

	w, cr := c.Alerting.DefaultWarningThreshold, c.Alerting.DefaultCriticalThreshold
	if w < 0 || w > 100 || cr < 0 || cr > 100 || cr > w {
		return fmt.Errorf("invalid alerting thresholds: warning=%v critical=%v", w, cr)
	}

	return nil
}
