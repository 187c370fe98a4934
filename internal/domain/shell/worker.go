package shell

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"plantid-server-go/internal/domain/eventbus"
	"plantid-server-go/internal/domain/shell/store"
	"plantid-server-go/internal/platform/errors"
	"plantid-server-go/internal/platform/logging"
	"plantid-server-go/internal/platform/observability"
)

// CacheWorker caches the app shell under one generation and answers fetches
// cache-first.
type CacheWorker struct {
	cfg       Config
	origin    *url.URL
	store     store.Store
	fetcher   Fetcher
	writeback *Writeback
	ownsPool  bool
	events    eventbus.Bus
	logger    *logging.Logger

	skipWaiting atomic.Bool
	claimed     atomic.Bool
}

// Option customises a CacheWorker.
type Option func(*CacheWorker)

// WithLogger sets the worker logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *CacheWorker) { w.logger = logger }
}

// WithWriteback shares an existing writer pool instead of starting one.
func WithWriteback(wb *Writeback) Option {
	return func(w *CacheWorker) { w.writeback = wb }
}

// WithEvents publishes generation deletions on bus.
func WithEvents(bus eventbus.Bus) Option {
	return func(w *CacheWorker) { w.events = bus }
}

// NewCacheWorker validates cfg and wires the worker to its store and fetcher.
func NewCacheWorker(cfg Config, st store.Store, fetcher Fetcher, opts ...Option) (*CacheWorker, error) {
	if strings.TrimSpace(cfg.Generation) == "" {
		return nil, errors.New(errors.KindShell, "shell.new", "generation is required")
	}
	if st == nil || fetcher == nil {
		return nil, errors.New(errors.KindShell, "shell.new", "store and fetcher are required")
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, errors.New(errors.KindShell, "shell.new", fmt.Sprintf("origin %q must be an absolute URL", cfg.Origin))
	}
	if len(cfg.ShellFiles) == 0 {
		cfg.ShellFiles = append([]string(nil), DefaultShellFiles...)
	}

	w := &CacheWorker{
		cfg:     cfg,
		origin:  origin,
		store:   st,
		fetcher: fetcher,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.writeback == nil {
		wb, err := NewWriteback(st, 0, 0, w.logger)
		if err != nil {
			return nil, errors.Wrap(errors.KindShell, "shell.new", "failed to start writeback pool", err)
		}
		w.writeback = wb
		w.ownsPool = true
	}
	return w, nil
}

// Generation returns the cache generation this worker owns.
func (w *CacheWorker) Generation() string { return w.cfg.Generation }

// ShellFiles returns the configured shell resources.
func (w *CacheWorker) ShellFiles() []string { return append([]string(nil), w.cfg.ShellFiles...) }

// SkipWaiting reports whether install asked for immediate activation.
func (w *CacheWorker) SkipWaiting() bool { return w.skipWaiting.Load() }

// Claimed reports whether activation completed and clients were claimed.
func (w *CacheWorker) Claimed() bool { return w.claimed.Load() }

// Writeback exposes the writer pool, mainly so tests can flush it.
func (w *CacheWorker) Writeback() *Writeback { return w.writeback }

// OnInstall fetches every shell file and stores them together. Nothing is
// written unless every fetch returns a 2xx response.
func (w *CacheWorker) OnInstall(ctx context.Context) (err error) {
	ctx, span := observability.StartSpan(observability.WithGeneration(ctx, w.cfg.Generation), "shell", "install")
	span.Set("files", len(w.cfg.ShellFiles))
	defer func() { span.End(err) }()

	start := time.Now()
	entries := make([]store.Entry, len(w.cfg.ShellFiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range w.cfg.ShellFiles {
		i, file := i, file
		g.Go(func() error {
			target, err := w.resolve(file)
			if err != nil {
				return err
			}
			resp, err := w.fetcher.Fetch(gctx, &Request{Method: http.MethodGet, URL: target, Header: http.Header{}})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", file, err)
			}
			if !resp.OK() {
				return fmt.Errorf("fetch %s: status %d", file, resp.Status)
			}
			entries[i] = resp.entry(CacheKey(target))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(errors.KindShell, "shell.install", "failed to fetch shell files", err)
	}

	if err := w.store.PutAll(ctx, w.cfg.Generation, entries); err != nil {
		return errors.Wrap(errors.KindShell, "shell.install", "failed to store shell files", err)
	}

	w.skipWaiting.Store(true)
	w.logger.DebugTag("Shell", "cached %d shell files into %s in %s", len(entries), w.cfg.Generation, time.Since(start))
	return nil
}

// OnActivate removes every generation other than the current one, then claims clients.
func (w *CacheWorker) OnActivate(ctx context.Context) (err error) {
	ctx, span := observability.StartSpan(observability.WithGeneration(ctx, w.cfg.Generation), "shell", "activate")
	deleted := 0
	defer func() {
		span.Set("deleted", deleted)
		span.End(err)
	}()

	names, err := w.store.Generations(ctx)
	if err != nil {
		return errors.Wrap(errors.KindShell, "shell.activate", "failed to list generations", err)
	}

	var failures []error
	for _, name := range names {
		if name == w.cfg.Generation {
			continue
		}
		removed, err := w.store.Delete(ctx, name)
		if err != nil {
			failures = append(failures, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		if removed {
			deleted++
		}
		if removed && w.events != nil {
			w.events.Publish(eventbus.EventShellGenerationDeleted, eventbus.ShellEventData{Generation: name})
		}
	}
	if len(failures) > 0 {
		return errors.Wrap(errors.KindShell, "shell.activate", "failed to delete stale generations", stdErrors.Join(failures...))
	}

	w.claimed.Store(true)
	return nil
}

// OnFetch answers req. Bypassed hosts go straight to the network; everything
// else is served cache-first with a background write-back on cacheable misses.
func (w *CacheWorker) OnFetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New(errors.KindShell, "shell.fetch", "request URL is required")
	}
	target := w.origin.ResolveReference(req.URL)
	outbound := &Request{Method: req.method(), URL: target, Header: req.Header, Body: req.Body}

	if w.bypassed(target) {
		w.count(ctx, SourceBypass)
		resp, err := w.fetcher.Fetch(ctx, outbound)
		if resp != nil {
			resp.Source = SourceBypass
		}
		return resp, err
	}

	if outbound.Method != http.MethodGet {
		resp, err := w.fetcher.Fetch(ctx, outbound)
		if resp != nil {
			resp.Source = SourceNetwork
		}
		return resp, err
	}

	key := CacheKey(target)
	entry, ok, err := w.store.Match(ctx, w.cfg.Generation, key)
	if err != nil {
		w.logger.WarnTag("Shell", "cache lookup for %s failed, using network: %v", key, err)
	}
	if ok {
		w.count(ctx, SourceCache)
		return responseFromEntry(entry), nil
	}

	w.count(ctx, SourceNetwork)
	resp, err := w.fetcher.Fetch(ctx, outbound)
	if err != nil {
		return nil, err
	}
	resp.Source = SourceNetwork
	if resp.Status == http.StatusOK && resp.Type == TypeBasic {
		w.writeback.Enqueue(w.cfg.Generation, resp.entry(key))
	}
	return resp, nil
}

// Close releases the writer pool when the worker started its own.
func (w *CacheWorker) Close() {
	if w.ownsPool {
		w.writeback.Close()
	}
}

func (w *CacheWorker) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid shell file %q: %w", path, err)
	}
	return w.origin.ResolveReference(ref), nil
}

func (w *CacheWorker) bypassed(target *url.URL) bool {
	return MatchesHost(target.Hostname(), w.cfg.BypassHosts)
}

// MatchesHost reports whether host equals one of hosts or is a subdomain of one.
func MatchesHost(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, candidate := range hosts {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}

func (w *CacheWorker) count(ctx context.Context, source Source) {
	observability.RecordMetric(observability.WithGeneration(ctx, w.cfg.Generation), "shell.fetch", 1, map[string]string{
		"source": string(source),
	})
}
