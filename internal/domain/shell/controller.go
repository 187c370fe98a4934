package shell

import (
	"context"
	"sync"
	"time"

	"plantid-server-go/internal/domain/eventbus"
	"plantid-server-go/internal/platform/errors"
	"plantid-server-go/internal/platform/logging"
)

// Phase is the controller lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseInstalling Phase = "installing"
	PhaseWaiting    Phase = "waiting"
	PhaseActivating Phase = "activating"
	PhaseActive     Phase = "active"
)

// Status is a snapshot of the controller.
type Status struct {
	Phase     Phase     `json:"phase"`
	Active    string    `json:"active,omitempty"`
	Waiting   string    `json:"waiting,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type registration struct {
	generation string
	worker     Worker
}

type skipWaiter interface {
	SkipWaiting() bool
}

// Controller owns worker registration and routes fetches to the active worker.
// A worker only serves after OnInstall and OnActivate both returned.
type Controller struct {
	mu       sync.RWMutex
	register sync.Mutex
	active   *registration
	waiting  *registration
	status   Status
	fallback Fetcher
	events   eventbus.Bus
	logger   *logging.Logger
}

// NewController creates a controller. fallback answers fetches while no
// worker is active; events may be nil.
func NewController(fallback Fetcher, events eventbus.Bus, logger *logging.Logger) *Controller {
	return &Controller{
		fallback: fallback,
		events:   events,
		logger:   logger,
		status:   Status{Phase: PhaseIdle, UpdatedAt: time.Now()},
	}
}

// Register installs worker as generation. When install fails the
// previously active worker keeps serving and the failed worker is closed. A successful install activates
// right away if the worker asked to skip waiting or nothing is active yet.
func (c *Controller) Register(ctx context.Context, generation string, worker Worker) error {
	c.register.Lock()
	defer c.register.Unlock()

	previous := c.phase()
	c.setPhase(PhaseInstalling, "")
	start := time.Now()

	if err := worker.OnInstall(ctx); err != nil {
		c.setPhase(previous, err.Error())
		c.publish(eventbus.EventShellInstallFailed, eventbus.ShellEventData{
			Generation: generation,
			Error:      err.Error(),
		})
		closeWorker(worker)
		return err
	}

	files := 0
	if w, ok := worker.(interface{ ShellFiles() []string }); ok {
		files = len(w.ShellFiles())
	}
	c.publish(eventbus.EventShellInstalled, eventbus.ShellEventData{
		Generation: generation,
		Files:      files,
		Duration:   time.Since(start),
	})

	c.mu.Lock()
	c.waiting = &registration{generation: generation, worker: worker}
	hasActive := c.active != nil
	c.mu.Unlock()

	skip := false
	if sw, ok := worker.(skipWaiter); ok {
		skip = sw.SkipWaiting()
	}
	if hasActive && !skip {
		c.setPhase(PhaseWaiting, "")
		return nil
	}
	return c.activateWaiting(ctx)
}

// Promote activates a worker that installed without skipping the wait.
func (c *Controller) Promote(ctx context.Context) error {
	c.register.Lock()
	defer c.register.Unlock()
	return c.activateWaiting(ctx)
}

func (c *Controller) activateWaiting(ctx context.Context) error {
	c.mu.RLock()
	next := c.waiting
	var previous string
	if c.active != nil {
		previous = c.active.generation
	}
	c.mu.RUnlock()

	if next == nil {
		return errors.New(errors.KindShell, "shell.promote", "no worker is waiting")
	}

	c.setPhase(PhaseActivating, "")
	if err := next.worker.OnActivate(ctx); err != nil {
		// an activated worker is live even when cleanup failed
		c.logger.WarnTag("Shell", "activation of %s incomplete: %v", next.generation, err)
		c.swap(next, err.Error())
		c.publish(eventbus.EventShellActivated, eventbus.ShellEventData{Generation: next.generation, Previous: previous, Error: err.Error()})
		return err
	}

	c.swap(next, "")
	c.publish(eventbus.EventShellActivated, eventbus.ShellEventData{Generation: next.generation, Previous: previous})
	return nil
}

func (c *Controller) swap(next *registration, lastError string) {
	c.mu.Lock()
	old := c.active
	c.active = next
	c.waiting = nil
	c.status = Status{Phase: PhaseActive, Active: next.generation, LastError: lastError, UpdatedAt: time.Now()}
	c.mu.Unlock()

	if old != nil && old.worker != next.worker {
		closeWorker(old.worker)
	}
}

func closeWorker(worker Worker) {
	if closer, ok := worker.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Fetch routes req to the active worker, or to the fallback when none is active.
func (c *Controller) Fetch(ctx context.Context, req *Request) (*Response, error) {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()

	if active == nil {
		if c.fallback == nil {
			return nil, errors.New(errors.KindShell, "shell.fetch", "no active worker")
		}
		resp, err := c.fallback.Fetch(ctx, req)
		if resp != nil && resp.Source == "" {
			resp.Source = SourceNetwork
		}
		return resp, err
	}
	return active.worker.OnFetch(ctx, req)
}

// Status returns the current lifecycle snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Active returns the generation currently serving fetches, if any.
func (c *Controller) Active() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return "", false
	}
	return c.active.generation, true
}

func (c *Controller) phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Phase
}

func (c *Controller) setPhase(phase Phase, lastError string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Phase = phase
	c.status.UpdatedAt = time.Now()
	if c.waiting != nil {
		c.status.Waiting = c.waiting.generation
	} else {
		c.status.Waiting = ""
	}
	if lastError != "" {
		c.status.LastError = lastError
	}
}

func (c *Controller) publish(topic string, data eventbus.ShellEventData) {
	if c.events != nil {
		c.events.Publish(topic, data)
	}
}
