package main

import (
	"fmt"
	"os"

	"isobmff/pkg/log"

	"gopkg.in/yaml.v2"
)

// Config boxtool configuration.
type Config struct {
	LogLevel string `yaml:"logLevel"`
	IndexDB  string `yaml:"indexDB"`
	JSON     bool   `yaml:"json"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		IndexDB:  "boxtool.db",
	}
}

// loadConfig reads the YAML file at path on top of the defaults.
// An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	if path == "" {
		return &config, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(raw, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if config.LogLevel == "" {
		config.LogLevel = defaultConfig().LogLevel
	}
	if config.IndexDB == "" {
		config.IndexDB = defaultConfig().IndexDB
	}
	if _, err := log.ParseLevel(config.LogLevel); err != nil {
		return nil, err
	}
	return &config, nil
}
