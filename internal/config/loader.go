package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PHASESPLIT_"

// Load builds the configuration from defaults, the YAML file at path (or a
// discovered phasesplit.yaml when path is empty) and the environment.
// Flags are merged by the caller.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg = fileCfg
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the PHASESPLIT_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// FindConfigFile looks for phasesplit.yaml in the working directory.
func FindConfigFile() string {
	for _, name := range []string{"phasesplit.yaml", "phasesplit.yml", filepath.Join(".phasesplit", "config.yaml")} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}
