package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings that are not part of the positional arguments.
type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Device struct {
		Backend string `yaml:"backend"`
		Workers int    `yaml:"workers"`
	} `yaml:"device"`
	Kernel struct {
		Variant string `yaml:"variant"`
	} `yaml:"kernel"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
	Report struct {
		Dump   bool `yaml:"dump"`
		Banner bool `yaml:"banner"`
	} `yaml:"report"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Logger.Verbosity = "warn"
	cfg.Device.Backend = "auto"
	cfg.Kernel.Variant = "naive"
	return cfg
}

// LoadConfig reads a YAML file on top of the defaults; keys missing from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Device.Backend {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("device.backend must be auto, cpu or cuda, got %q", c.Device.Backend)
	}
	if c.Device.Workers < 0 {
		return fmt.Errorf("device.workers must not be negative, got %d", c.Device.Workers)
	}
	if c.Kernel.Variant == "" {
		return fmt.Errorf("kernel.variant must not be empty")
	}
	return nil
}
