package config

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Relay: RelayConfig{
			BaseURL:      "https://api.anthropic.com",
			Model:        "claude-opus-4-5",
			APIVersion:   "2023-06-01",
			MaxTokens:    512,
			KeyPrefix:    "sk-ant-",
			MaxBodyBytes: 10 * 1024 * 1024,
			Image: ImageConfig{
				MaxFileSize:    5 * 1024 * 1024,
				MaxWidth:       8192,
				MaxHeight:      8192,
				MaxPixels:      40_000_000,
				AllowedFormats: []string{"jpeg", "png", "gif", "webp"},
			},
		},
		Shell: ShellConfig{
			Generation:       "plantid-v2",
			Files:            []string{"/", "/index.html", "/manifest.json"},
			BypassHosts:      []string{"api.anthropic.com"},
			StaticDir:        "./web",
			WritebackWorkers: 2,
			WritebackQueue:   128,
		},
		Store: StoreConfig{
			Driver: "memory",
			Redis: RedisStore{
				Prefix: "plantid:shell:",
			},
			SQLite: SQLiteStore{
				DSN: "data/shell-cache.db",
			},
		},
	}
}
