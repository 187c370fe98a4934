package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when neither WithPath nor PLANTID_CONFIG names a file.
const DefaultPath = ".config.yaml"

// Loader layers defaults, the YAML file and PLANTID_* environment variables.
type Loader struct {
	path      string
	useDotEnv bool
}

// NewLoader creates a loader reading DefaultPath, or PLANTID_CONFIG when set.
func NewLoader() *Loader {
	path := DefaultPath
	if p := strings.TrimSpace(os.Getenv("PLANTID_CONFIG")); p != "" {
		path = p
	}
	return &Loader{
		path:      path,
		useDotEnv: true,
	}
}

// WithPath overrides the configuration file location.
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin.
type Result struct {
	Config *Config
	// Path is the file that was read, or "default" when none existed.
	Path string
}

// Load builds the configuration. A missing file is not an error.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := DefaultConfig()
	source := "default"

	raw, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", l.path, err)
		}
		source = l.path
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: source}, nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Relay.BaseURL) == "" {
		return fmt.Errorf("relay base_url is required")
	}
	if cfg.Relay.MaxTokens <= 0 {
		return fmt.Errorf("relay max_tokens must be positive, got %d", cfg.Relay.MaxTokens)
	}
	if strings.TrimSpace(cfg.Shell.Generation) == "" {
		return fmt.Errorf("shell generation is required")
	}
	if len(cfg.Shell.Files) == 0 {
		return fmt.Errorf("shell files must list at least one resource")
	}
	for _, f := range cfg.Shell.Files {
		if !strings.HasPrefix(f, "/") {
			return fmt.Errorf("shell file %q must be an absolute path", f)
		}
	}
	if cfg.Shell.Origin == "" && cfg.Shell.StaticDir == "" {
		return fmt.Errorf("shell needs either origin or static_dir")
	}
	switch strings.ToLower(cfg.Store.Driver) {
	case "", "memory", "sqlite":
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("redis store addr is required")
		}
	default:
		return fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	return nil
}
