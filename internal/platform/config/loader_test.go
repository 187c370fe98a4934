package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 9090
log:
  log_level: "debug"
  log_dir: "/tmp/logs"
  log_file: "test.log"
relay:
  key_prefix: "sk-test-"
  timeout: 45s
shell:
  generation: "plantid-v3"
  files: ["/", "/index.html"]
`

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	res, err := NewLoader().WithDotEnv(false).WithPath(configFile).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := res.Config

	if res.Path != configFile {
		t.Errorf("expected path %s, got %s", configFile, res.Path)
	}
	if cfg.Server.IP != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Relay.KeyPrefix != "sk-test-" {
		t.Errorf("expected key prefix sk-test-, got %q", cfg.Relay.KeyPrefix)
	}
	if cfg.Relay.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %s", cfg.Relay.Timeout)
	}
	if cfg.Relay.MaxTokens != 512 {
		t.Errorf("expected default max tokens to survive, got %d", cfg.Relay.MaxTokens)
	}
	if cfg.Shell.Generation != "plantid-v3" || len(cfg.Shell.Files) != 2 {
		t.Errorf("unexpected shell config: %+v", cfg.Shell)
	}
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	res, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != "default" {
		t.Errorf("expected default source, got %s", res.Path)
	}
	if got := res.Config.Shell.Files; len(got) != 3 || got[0] != "/" || got[1] != "/index.html" || got[2] != "/manifest.json" {
		t.Errorf("unexpected default shell files: %v", got)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("PLANTID_SERVER_PORT", "7070")
	t.Setenv("PLANTID_SHELL_GENERATION", "plantid-v9")
	t.Setenv("PLANTID_SHELL_BYPASS_HOSTS", "api.anthropic.com,vision.example.com")

	res, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := res.Config
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Shell.Generation != "plantid-v9" {
		t.Errorf("expected generation plantid-v9, got %s", cfg.Shell.Generation)
	}
	if len(cfg.Shell.BypassHosts) != 2 || cfg.Shell.BypassHosts[1] != "vision.example.com" {
		t.Errorf("unexpected bypass hosts: %v", cfg.Shell.BypassHosts)
	}
}

func TestLoader_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server:\n  colour: blue\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewLoader().WithDotEnv(false).WithPath(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	mutate := func(fn func(*Config)) *Config {
		cfg := DefaultConfig()
		fn(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid config", config: DefaultConfig(), wantErr: false},
		{name: "invalid server port", config: mutate(func(c *Config) { c.Server.Port = 70000 }), wantErr: true},
		{name: "empty generation", config: mutate(func(c *Config) { c.Shell.Generation = " " }), wantErr: true},
		{name: "empty shell files", config: mutate(func(c *Config) { c.Shell.Files = nil }), wantErr: true},
		{name: "relative shell file", config: mutate(func(c *Config) { c.Shell.Files = []string{"index.html"} }), wantErr: true},
		{name: "redis without addr", config: mutate(func(c *Config) { c.Store.Driver = "redis" }), wantErr: true},
		{name: "unknown driver", config: mutate(func(c *Config) { c.Store.Driver = "etcd" }), wantErr: true},
		{name: "no max tokens", config: mutate(func(c *Config) { c.Relay.MaxTokens = 0 }), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.validate(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ExampleFileMatchesDefaults(t *testing.T) {
	res, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join("..", "..", "..", "config.example.yaml")).Load()
	if err != nil {
		t.Fatalf("failed to load example config: %v", err)
	}
	got, want := res.Config, DefaultConfig()

	if got.Server != want.Server || got.Log != want.Log {
		t.Errorf("server/log differ: %+v %+v", got.Server, got.Log)
	}
	if got.Relay.BaseURL != want.Relay.BaseURL || got.Relay.KeyPrefix != want.Relay.KeyPrefix || got.Relay.MaxBodyBytes != want.Relay.MaxBodyBytes {
		t.Errorf("relay differs: %+v", got.Relay)
	}
	if got.Shell.Generation != want.Shell.Generation || len(got.Shell.Files) != 3 || got.Shell.WritebackQueue != want.Shell.WritebackQueue {
		t.Errorf("shell differs: %+v", got.Shell)
	}
	if got.Store.Driver != "memory" || got.Store.SQLite.DSN != want.Store.SQLite.DSN {
		t.Errorf("store differs: %+v", got.Store)
	}
}
