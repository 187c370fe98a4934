package bootstrap

import (
	"strconv"
	"strings"
	"time"

	"plantid-server-go/internal/domain/image"
	"plantid-server-go/internal/domain/relay"
	domainshell "plantid-server-go/internal/domain/shell"
	"plantid-server-go/internal/domain/shell/store"
	platformconfig "plantid-server-go/internal/platform/config"
	platformerrors "plantid-server-go/internal/platform/errors"
	platformlogging "plantid-server-go/internal/platform/logging"
)

const shellFetchTimeout = 30 * time.Second

// LoadConfig reads configuration the same way the server does.
func LoadConfig(path string) (*platformconfig.Config, error) {
	result, err := platformconfig.NewLoader().WithPath(path).Load()
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// OpenStore builds the shell cache store selected by cfg.
func OpenStore(cfg platformconfig.StoreConfig) (store.Store, error) {
	st, err := store.New(store.Config{
		Driver: cfg.Driver,
		Redis: &store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		},
		SQLite: &store.SQLiteConfig{DSN: cfg.SQLite.DSN},
	}, store.Dependencies{})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "store.open", "failed to open shell cache store", err)
	}
	return st, nil
}

// NewRelayService wires the relay with its downstream client and optional image check.
func NewRelayService(cfg platformconfig.RelayConfig, logger *platformlogging.Logger) (*relay.Service, error) {
	client, err := relay.NewClient(cfg, nil)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindRelay, "relay.new", "failed to create downstream client", err)
	}

	opts := relay.Options{
		KeyPrefix: cfg.KeyPrefix,
		Logger:    logger,
	}
	if cfg.ValidateImage {
		opts.Validator = image.NewValidator(cfg.Image, logger)
	}
	return relay.NewService(client, opts), nil
}

// ShellOrigin is the configured origin, or this server itself when the shell
// is served from the local static directory.
func ShellOrigin(cfg *platformconfig.Config) string {
	if origin := strings.TrimRight(strings.TrimSpace(cfg.Shell.Origin), "/"); origin != "" {
		return origin
	}
	host := cfg.Server.IP
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + host + ":" + strconv.Itoa(cfg.Server.Port)
}

// NewShellFetcher returns the network fetcher for origin. When no remote
// origin is configured the static directory answers in process.
func NewShellFetcher(cfg *platformconfig.Config, origin string) (domainshell.Fetcher, error) {
	network, err := domainshell.NewHTTPFetcher(origin, shellFetchTimeout)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindShell, "shell.fetcher", "invalid shell origin", err)
	}
	if strings.TrimSpace(cfg.Shell.Origin) != "" || cfg.Shell.StaticDir == "" {
		return network, nil
	}

	local, err := domainshell.NewHandlerFetcher(origin, domainshell.NewStaticOrigin(cfg.Shell.StaticDir), network)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindShell, "shell.fetcher", "invalid shell origin", err)
	}
	return local, nil
}

// ShellConfig maps configuration onto the worker's injected settings.
func ShellConfig(cfg *platformconfig.Config, origin string) domainshell.Config {
	return domainshell.Config{
		Generation:  cfg.Shell.Generation,
		ShellFiles:  append([]string(nil), cfg.Shell.Files...),
		BypassHosts: append([]string(nil), cfg.Shell.BypassHosts...),
		Origin:      origin,
	}
}

func driverName(driver string) string {
	if driver == "" {
		return store.DriverMemory
	}
	return strings.ToLower(driver)
}
