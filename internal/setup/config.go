package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/nugrahalabib/moltbot/internal/model"
	atomicyaml "github.com/nugrahalabib/moltbot/internal/yaml"
)

// LoadConfig reads config.yaml from dir over the built-in defaults. A missing
// file yields the defaults.
func LoadConfig(dir string) (model.Config, error) {
	cfg := model.DefaultConfig()
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveConfig validates cfg and atomically replaces config.yaml in dir. The
// previous file is kept as config.yaml.bak.
func SaveConfig(dir string, cfg model.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := atomicyaml.AtomicWrite(filepath.Join(dir, ConfigFile), cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
