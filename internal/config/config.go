// Package config provides configuration loading for sci.
// It reads a YAML file, falls back to default values, and applies
// environment overrides for the optional backends.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tools names the external programs. Values are looked up on PATH.
	Tools struct {
		Converter      string `yaml:"converter"`
		Segment        string `yaml:"segment"`
		LabelVertebrae string `yaml:"labelVertebrae"`
		LabelUtils     string `yaml:"labelUtils"`
		Register       string `yaml:"register"`
		ApplyTransfo   string `yaml:"applyTransfo"`
		Viewer         string `yaml:"viewer"`
		// QCOpener opens the QC report. Empty selects open or xdg-open.
		QCOpener string `yaml:"qcOpener"`
	} `yaml:"tools"`

	// Viewer settings for the segmentation review.
	Viewer struct {
		SegmentationColormap string  `yaml:"segmentationColormap"`
		Opacity              float64 `yaml:"opacity"`
	} `yaml:"viewer"`

	// Ledger records every artifact resolution.
	Ledger struct {
		// DSN is a sqlite file path, a postgres:// URL, or "off".
		// Empty stores sci_ledger.db in the results folder.
		DSN string `yaml:"dsn"`
	} `yaml:"ledger"`

	// Mirror is an optional remote copy of the verified store.
	Mirror struct {
		Bucket    string `yaml:"bucket"`
		Region    string `yaml:"region"`
		Endpoint  string `yaml:"endpoint"`
		Prefix    string `yaml:"prefix"`
		PathStyle bool   `yaml:"pathStyle"`
	} `yaml:"mirror"`

	Metrics struct {
		// Textfile receives the Prometheus metrics of a run.
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tools.Converter = "dcm2niix"
	cfg.Tools.Segment = "sct_deepseg_sc"
	cfg.Tools.LabelVertebrae = "sct_label_vertebrae"
	cfg.Tools.LabelUtils = "sct_label_utils"
	cfg.Tools.Register = "sct_register_multimodal"
	cfg.Tools.ApplyTransfo = "sct_apply_transfo"
	cfg.Tools.Viewer = "fsleyes"

	cfg.Viewer.SegmentationColormap = "red"
	cfg.Viewer.Opacity = 70.0

	cfg.Logging.Level = "info"

	return cfg
}

// DefaultPath is $XDG_CONFIG_HOME/sci/config.yaml or the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".sci", "config.yaml")
	}
	return filepath.Join(dir, "sci", "config.yaml")
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Environment variables:
//
//	SCI_LEDGER_DSN=<path|postgres://...|off>
//	SCI_MIRROR_S3_BUCKET=<bucket>
//	SCI_MIRROR_S3_REGION=<region>
//	SCI_MIRROR_S3_ENDPOINT=<url> (for MinIO)
//	SCI_MIRROR_S3_PATH_STYLE=true|false
//	SCI_METRICS_TEXTFILE=<path>
//	SCI_LOG_LEVEL=<level>
func (cfg *Config) applyEnv() {
	set := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(&cfg.Ledger.DSN, "SCI_LEDGER_DSN")
	set(&cfg.Mirror.Bucket, "SCI_MIRROR_S3_BUCKET")
	set(&cfg.Mirror.Region, "SCI_MIRROR_S3_REGION")
	set(&cfg.Mirror.Endpoint, "SCI_MIRROR_S3_ENDPOINT")
	set(&cfg.Metrics.Textfile, "SCI_METRICS_TEXTFILE")
	set(&cfg.Logging.Level, "SCI_LOG_LEVEL")
	if v := os.Getenv("SCI_MIRROR_S3_PATH_STYLE"); v != "" {
		cfg.Mirror.PathStyle = strings.EqualFold(v, "true")
	}
}

// LedgerEnabled reports if resolutions should be recorded.
func (cfg *Config) LedgerEnabled() bool {
	return !strings.EqualFold(cfg.Ledger.DSN, "off")
}

// LedgerDSN returns the configured DSN or the default file in results.
func (cfg *Config) LedgerDSN(results string) string {
	if cfg.Ledger.DSN == "" {
		return filepath.Join(results, "sci_ledger.db")
	}
	return cfg.Ledger.DSN
}
