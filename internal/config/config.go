// Package config loads the program configuration and builds its logger.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaults []byte

// ErrInvalidConfig is returned for configuration values out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

type (
	BookConfig struct {
		Workers int `yaml:"workers"`
	}

	CSSConfig struct {
		MultiLine bool `yaml:"multi_line"`
	}

	Config struct {
		Version int           `yaml:"version"`
		Book    BookConfig    `yaml:"book"`
		CSS     CSSConfig     `yaml:"css"`
		Logging LoggingConfig `yaml:"logging"`
	}
)

func unmarshalConfig(data []byte, cfg *Config) (*Config, error) {
	// Unknown keys are mistakes in the file, not extensions.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration file at path on top of the
// built-in defaults. An empty path gives the defaults.
func LoadConfiguration(path string) (*Config, error) {
	cfg, err := unmarshalConfig(defaults, &Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to process default configuration: %w", err)
	}
	if len(path) > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = unmarshalConfig(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to process configuration file: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Version != 1 {
		return fmt.Errorf("%w: version %d, want 1", ErrInvalidConfig, cfg.Version)
	}
	if cfg.Book.Workers < 0 {
		return fmt.Errorf("%w: book.workers must not be negative", ErrInvalidConfig)
	}
	for name, l := range map[string]LoggerConfig{"console": cfg.Logging.ConsoleLogger, "file": cfg.Logging.FileLogger} {
		switch l.Level {
		case "none", "debug", "normal":
		default:
			return fmt.Errorf("%w: logging.%s.level %q", ErrInvalidConfig, name, l.Level)
		}
		switch l.Mode {
		case "", "append", "overwrite":
		default:
			return fmt.Errorf("%w: logging.%s.mode %q", ErrInvalidConfig, name, l.Mode)
		}
	}
	if cfg.Logging.FileLogger.Level != "none" && cfg.Logging.FileLogger.Destination == "" {
		return fmt.Errorf("%w: logging.file.destination is required", ErrInvalidConfig)
	}
	return nil
}

// Dump returns the configuration as YAML.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
