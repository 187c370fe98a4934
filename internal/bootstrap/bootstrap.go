package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"plantid-server-go/internal/domain/eventbus"
	"plantid-server-go/internal/domain/relay"
	domainshell "plantid-server-go/internal/domain/shell"
	"plantid-server-go/internal/domain/shell/store"
	platformconfig "plantid-server-go/internal/platform/config"
	platformerrors "plantid-server-go/internal/platform/errors"
	platformlogging "plantid-server-go/internal/platform/logging"
	platformobservability "plantid-server-go/internal/platform/observability"
	httptransport "plantid-server-go/internal/transport/http"
	httpidentify "plantid-server-go/internal/transport/http/identify"
	httpshell "plantid-server-go/internal/transport/http/shell"
)

// Options controls how Run locates its configuration.
type Options struct {
	ConfigPath string
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	configPath            string
	config                *platformconfig.Config
	configSource          string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	store                 store.Store
	events                eventbus.Bus
	relay                 *relay.Service
	origin                string
	fetcher               domainshell.Fetcher
	writeback             *domainshell.Writeback
	controller            *domainshell.Controller
}

// Run starts the server and blocks until SIGINT/SIGTERM or a server failure.
func Run(ctx context.Context, opts Options) error {
	state := &appState{configPath: opts.ConfigPath}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("start http server: %w", err)
	}

	return waitForShutdown(signalCtx, groupCtx, cancel, logger, group)
}

func (s *appState) close() {
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(shutdownCtx); err != nil {
			s.logger.WarnTag("Boot", "observability did not shut down cleanly: %v", err)
		}
		cancel()
	}
	if s.writeback != nil {
		s.writeback.Close()
	}
	if s.store != nil {
		if err := s.store.Close(context.Background()); err != nil {
			s.logger.ErrorTag("Store", "store did not close cleanly: %v", err)
		}
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Boot", "init graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Boot", "  %s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag("Boot", "  %s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the startup steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-store",
			Title:     "Open shell cache store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStoreStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise lifecycle event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initEventsStep,
		},
		{
			ID:        "relay:init-service",
			Title:     "Initialise identification relay",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindRelay,
			Execute:   initRelayStep,
		},
		{
			ID:        "shell:init-controller",
			Title:     "Initialise shell controller",
			DependsOn: []string{"storage:init-store", "events:init-bus"},
			Kind:      platformerrors.KindShell,
			Execute:   initShellControllerStep,
		},
		{
			ID:        "shell:register-worker",
			Title:     "Install and activate shell generation",
			DependsOn: []string{"shell:init-controller", "observability:setup-hooks"},
			Kind:      platformerrors.KindShell,
			Execute:   registerShellWorkerStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithPath(state.configPath).Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configSource = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger
	logger.InfoTag("Boot", "logging ready [%s] config=%s", state.config.Log.Level, state.configSource)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initStoreStep(_ context.Context, state *appState) error {
	st, err := OpenStore(state.config.Store)
	if err != nil {
		return err
	}
	state.store = st
	state.logger.InfoTag("Store", "shell cache store ready (%s)", driverName(state.config.Store.Driver))
	return nil
}

func initEventsStep(_ context.Context, state *appState) error {
	bus := eventbus.New()
	if err := eventbus.SetupLogHandlers(bus, eventbus.NewLogHandler(state.logger)); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "failed to subscribe lifecycle logger", err)
	}
	state.events = bus
	return nil
}

func initRelayStep(_ context.Context, state *appState) error {
	svc, err := NewRelayService(state.config.Relay, state.logger)
	if err != nil {
		return err
	}
	state.relay = svc
	state.logger.InfoTag("Relay", "relay ready, downstream model %s", state.config.Relay.Model)
	return nil
}

func initShellControllerStep(_ context.Context, state *appState) error {
	origin := ShellOrigin(state.config)
	fetcher, err := NewShellFetcher(state.config, origin)
	if err != nil {
		return err
	}
	writeback, err := domainshell.NewWriteback(state.store, state.config.Shell.WritebackWorkers, state.config.Shell.WritebackQueue, state.logger)
	if err != nil {
		return err
	}

	state.origin = origin
	state.fetcher = fetcher
	state.writeback = writeback
	state.controller = domainshell.NewController(fetcher, state.events, state.logger)
	return nil
}

// registerShellWorkerStep installs the configured generation. An install
// failure is logged and the server still starts, answering from the network.
func registerShellWorkerStep(ctx context.Context, state *appState) error {
	worker, err := domainshell.NewCacheWorker(
		ShellConfig(state.config, state.origin),
		state.store,
		state.fetcher,
		domainshell.WithLogger(state.logger),
		domainshell.WithWriteback(state.writeback),
		domainshell.WithEvents(state.events),
	)
	if err != nil {
		return err
	}

	if err := state.controller.Register(ctx, state.config.Shell.Generation, worker); err != nil {
		state.logger.WarnTag("Shell", "serving without offline shell: %v", err)
	}
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	shellService, err := httpshell.NewService(state.controller, state.origin, config.Shell.Files, config.Shell.BypassHosts, logger)
	if err != nil {
		return nil, err
	}
	identifyService, err := httpidentify.NewService(state.relay, config.Relay.MaxBodyBytes, logger)
	if err != nil {
		return nil, err
	}

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:   config,
		Logger:   logger,
		Fallback: shellService.Intercept,
	})
	if err != nil {
		return nil, err
	}

	if err := identifyService.Register(groupCtx, httpRouter.API); err != nil {
		return nil, err
	}
	if err := identifyService.Register(groupCtx, httpRouter.Functions); err != nil {
		return nil, err
	}
	if err := shellService.Register(groupCtx, httpRouter.API); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           httpRouter.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", addr)
		logger.InfoTag("HTTP", "relay endpoint: POST /api/identify")

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "listen failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag("Boot", "received %v, shutting down", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("Boot", "a server exited, shutting down")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Boot", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("Boot", "shutdown complete")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("Boot", "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}
