// Package autostart registers the daemon to start at login.
package autostart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
)

const (
	AppName     = "shila-wake"
	DisplayName = "Shila Wake"
)

// Entry is the subset of autostart.App the CLI drives.
type Entry interface {
	IsEnabled() bool
	Enable() error
	Disable() error
}

// NewEntry builds the login entry that runs "<exe> daemon --dir <dir>".
func NewEntry(dir string) (*autostart.App, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return &autostart.App{
		Name:        AppName,
		DisplayName: DisplayName,
		Exec:        Command(exe, dir),
	}, nil
}

func Command(exe, dir string) []string {
	cmd := []string{exe, "daemon"}
	if dir != "" {
		cmd = append(cmd, "--dir", dir)
	}
	return cmd
}

// Set enables or disables e. It reports whether anything changed.
func Set(e Entry, enable bool) (bool, error) {
	if e.IsEnabled() == enable {
		return false, nil
	}
	if enable {
		if err := e.Enable(); err != nil {
			return false, fmt.Errorf("enable autostart: %w", err)
		}
		return true, nil
	}
	if err := e.Disable(); err != nil {
		return false, fmt.Errorf("disable autostart: %w", err)
	}
	return true, nil
}
