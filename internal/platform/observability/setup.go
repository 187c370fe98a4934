package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	stateMu sync.RWMutex
	logger  *slog.Logger
	state   Config
)

func current() (*slog.Logger, Config) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return logger, state
}

// Setup routes spans and metrics to the given logger. With cfg.Enabled false
// every hook is a no-op.
func Setup(ctx context.Context, cfg Config, l *slog.Logger) (ShutdownFunc, error) {
	stateMu.Lock()
	logger = l
	state = cfg
	stateMu.Unlock()

	if l != nil {
		if cfg.Enabled {
			l.InfoContext(ctx, "[OBSERVABILITY] span and metric hooks enabled")
		} else {
			l.DebugContext(ctx, "[OBSERVABILITY] disabled")
		}
	}
	return func(context.Context) error {
		stateMu.Lock()
		logger = nil
		state = Config{}
		stateMu.Unlock()
		return nil
	}, nil
}
