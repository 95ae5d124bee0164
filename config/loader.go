package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the per-user config directory.
const AppName = "doubanshelf"

// ConfigPathEnv points at an explicit YAML config file.
const ConfigPathEnv = "DOUBAN_CONFIG"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// DefaultPath returns $XDG_CONFIG_HOME/doubanshelf/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// LoadFile decodes the YAML file at path on top of cfg. Keys absent from
// the file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigNotFound
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Mode = NormalizeMode(cfg.Mode)
	return nil
}

// Load layers defaults, the config file and the environment. An explicit
// path (argument or DOUBAN_CONFIG) must exist; the XDG default may not.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := true
	if path == "" {
		path, _ = EnvString(ConfigPathEnv)
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}

	if err := LoadFile(path, cfg); err != nil {
		if !errors.Is(err, ErrConfigNotFound) || explicit {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}
