// Package setup prepares the shila-wake data directory and loads its configuration.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nugrahalabib/moltbot/internal/store"
	atomicyaml "github.com/nugrahalabib/moltbot/internal/yaml"
	"github.com/nugrahalabib/moltbot/templates"
)

const (
	ConfigFile = "config.yaml"
	DirEnv     = "SHILA_WAKE_DIR"
	defaultDir = ".shila-wake"
)

// Dirs are created under the data directory by Run.
var Dirs = []string{"locks", "logs", "quarantine", "sounds"}

// ResolveDir picks the data directory: flag, then $SHILA_WAKE_DIR, then ~/.shila-wake.
func ResolveDir(flag string) (string, error) {
	dir := flag
	if dir == "" {
		dir = os.Getenv(DirEnv)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, defaultDir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return abs, nil
}

// Run creates the directory layout, the default config.yaml and empty record
// files. Existing files are left untouched; the created paths are returned.
func Run(dir string) ([]string, error) {
	var created []string
	for _, d := range Dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			return created, fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfgPath := filepath.Join(dir, ConfigFile)
	ok, err := writeIfMissing(cfgPath, func() error {
		return copyTemplateFile(ConfigFile, cfgPath)
	})
	if err != nil {
		return created, err
	}
	if ok {
		created = append(created, cfgPath)
	}

	for name, fileType := range map[string]string{
		store.AlarmsFile:    atomicyaml.FileTypeAlarms,
		store.RemindersFile: atomicyaml.FileTypeReminders,
	} {
		path := filepath.Join(dir, name)
		ok, err := writeIfMissing(path, func() error {
			return atomicyaml.GenerateSkeleton(path, fileType)
		})
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, path)
		}
	}
	return created, nil
}

func writeIfMissing(path string, write func() error) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := write(); err != nil {
		return false, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	return atomicyaml.AtomicWriteRaw(dst, data)
}
