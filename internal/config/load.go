package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// A missing file is not an error: defaults apply with a warning.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	cfg := Default()
	exists := true
	warnings := make([]Warning, 0)

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
		}
		exists = false
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	} else if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	if err := resolveStorageDirs(&cfg); err != nil {
		return Loaded{}, err
	}

	validateWarnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}
	warnings = append(warnings, validateWarnings...)

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   exists,
	}, nil
}

// ResolvePath picks the explicit path when given, otherwise the XDG config
// location with a ~/.config fallback.
func ResolvePath(explicitPath string) (string, error) {
	if p := strings.TrimSpace(explicitPath); p != "" {
		return p, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "visaid", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "visaid", "config.yaml"), nil
}

// StateDir returns the root directory for runtime artifacts and logs.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "visaid"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state", "visaid"), nil
}

// resolveStorageDirs fills unset artifact directories from the state dir.
func resolveStorageDirs(cfg *Config) error {
	if cfg.Storage.RecordingsDir != "" && cfg.Storage.PicturesDir != "" && cfg.Storage.ResponsesDir != "" {
		return nil
	}

	stateDir, err := StateDir()
	if err != nil {
		return err
	}
	if cfg.Storage.RecordingsDir == "" {
		cfg.Storage.RecordingsDir = filepath.Join(stateDir, "recordings")
	}
	if cfg.Storage.PicturesDir == "" {
		cfg.Storage.PicturesDir = filepath.Join(stateDir, "pictures")
	}
	if cfg.Storage.ResponsesDir == "" {
		cfg.Storage.ResponsesDir = filepath.Join(stateDir, "responses")
	}
	return nil
}
