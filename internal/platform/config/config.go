package config

import (
	"time"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Relay  RelayConfig  `yaml:"relay"`
	Shell  ShellConfig  `yaml:"shell"`
	Store  StoreConfig  `yaml:"store"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"   env:"PLANTID_SERVER_IP"`
	Port int    `yaml:"port" env:"PLANTID_SERVER_PORT"`
}

type LogConfig struct {
	Level string `yaml:"log_level" env:"PLANTID_LOG_LEVEL"`
	Dir   string `yaml:"log_dir"   env:"PLANTID_LOG_DIR"`
	File  string `yaml:"log_file"  env:"PLANTID_LOG_FILE"`
}

// RelayConfig configures the identification relay and its downstream call.
type RelayConfig struct {
	BaseURL    string `yaml:"base_url"    env:"PLANTID_RELAY_BASE_URL"`
	Model      string `yaml:"model"       env:"PLANTID_RELAY_MODEL"`
	APIVersion string `yaml:"api_version" env:"PLANTID_RELAY_API_VERSION"`
	MaxTokens  int    `yaml:"max_tokens"  env:"PLANTID_RELAY_MAX_TOKENS"`
	// KeyPrefix is the credential convention of the downstream provider.
	// Empty accepts any non-empty key.
	KeyPrefix     string        `yaml:"key_prefix"     env:"PLANTID_RELAY_KEY_PREFIX"`
	Timeout       time.Duration `yaml:"timeout"        env:"PLANTID_RELAY_TIMEOUT"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" env:"PLANTID_RELAY_MAX_BODY_BYTES"`
	ValidateImage bool          `yaml:"validate_image" env:"PLANTID_RELAY_VALIDATE_IMAGE"`
	Image         ImageConfig   `yaml:"image"`
}

// ImageConfig bounds the optional image validation step.
type ImageConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`
	MaxWidth       int      `yaml:"max_width"`
	MaxHeight      int      `yaml:"max_height"`
	MaxPixels      int64    `yaml:"max_pixels"`
	AllowedFormats []string `yaml:"allowed_formats"`
}

// ShellConfig configures the shell cache worker.
type ShellConfig struct {
	Generation  string   `yaml:"generation"   env:"PLANTID_SHELL_GENERATION"`
	Files       []string `yaml:"files"        env:"PLANTID_SHELL_FILES"`
	BypassHosts []string `yaml:"bypass_hosts" env:"PLANTID_SHELL_BYPASS_HOSTS"`
	// Origin is the upstream serving the shell. Empty serves StaticDir in process.
	Origin           string `yaml:"origin"            env:"PLANTID_SHELL_ORIGIN"`
	StaticDir        string `yaml:"static_dir"        env:"PLANTID_SHELL_STATIC_DIR"`
	WritebackWorkers int    `yaml:"writeback_workers" env:"PLANTID_SHELL_WRITEBACK_WORKERS"`
	WritebackQueue   int    `yaml:"writeback_queue"   env:"PLANTID_SHELL_WRITEBACK_QUEUE"`
}

type StoreConfig struct {
	Driver string      `yaml:"driver" env:"PLANTID_STORE_DRIVER"`
	Redis  RedisStore  `yaml:"redis,omitempty"`
	SQLite SQLiteStore `yaml:"sqlite,omitempty"`
}

type RedisStore struct {
	Addr     string `yaml:"addr"               env:"PLANTID_STORE_REDIS_ADDR"`
	Username string `yaml:"username,omitempty" env:"PLANTID_STORE_REDIS_USERNAME"`
	Password string `yaml:"password,omitempty" env:"PLANTID_STORE_REDIS_PASSWORD"`
	DB       int    `yaml:"db,omitempty"       env:"PLANTID_STORE_REDIS_DB"`
	Prefix   string `yaml:"prefix,omitempty"   env:"PLANTID_STORE_REDIS_PREFIX"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty" env:"PLANTID_STORE_SQLITE_DSN"`
}
