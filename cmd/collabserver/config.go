package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the collabserver runtime configuration, loaded from a YAML
// file alongside the binary.
type Config struct {
	Addr          string `yaml:"addr"`
	DatabasePath  string `yaml:"database_path"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Addr:          ":8088",
		DatabasePath:  "collab.sqlite",
		TokenTTLHours: 12,
	}
}

// LoadConfig reads and parses a YAML config file at path. A missing file
// is not an error; DefaultConfig is returned instead.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("collabserver: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("collabserver: parse config %s: %w", path, err)
	}
	return cfg, nil
}
