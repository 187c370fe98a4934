package shell

import (
	"context"
	stdErrors "errors"
	"time"

	"plantid-server-go/internal/domain/eventbus"
	"plantid-server-go/internal/domain/shell/store"
	"plantid-server-go/internal/platform/logging"
	"plantid-server-go/internal/platform/observability"
)

const writebackTimeout = 10 * time.Second

// Writeback stores fetched responses in the background. Enqueue never blocks;
// a full queue drops the write.
type Writeback struct {
	bus    *eventbus.AsyncEventBus
	store  store.Store
	logger *logging.Logger
}

// NewWriteback creates and starts a writer pool over st.
func NewWriteback(st store.Store, workers, queue int, logger *logging.Logger) (*Writeback, error) {
	wb := &Writeback{
		bus:    eventbus.NewAsyncEventBus(workers, queue),
		store:  st,
		logger: logger,
	}
	wb.bus.OnPanic = func(topic string, recovered any) {
		logger.ErrorTag("Shell", "writeback handler panic on %s: %v", topic, recovered)
	}
	if err := wb.bus.Subscribe(eventbus.EventShellWriteback, wb.write); err != nil {
		return nil, err
	}
	wb.bus.Start()
	return wb, nil
}

func (wb *Writeback) write(generation string, entry store.Entry) {
	ctx, cancel := context.WithTimeout(observability.WithGeneration(context.Background(), generation), writebackTimeout)
	defer cancel()

	err := wb.store.Put(ctx, generation, entry)
	if stdErrors.Is(err, store.ErrGenerationNotFound) {
		// the generation was retired while the write was queued
		wb.logger.DebugTag("Shell", "dropping write for retired generation %s: %s", generation, entry.Key)
		observability.RecordMetric(ctx, "shell.writeback", 1, map[string]string{"result": "retired"})
		return
	}
	if err != nil {
		wb.logger.WarnTag("Shell", "cache write for %s failed: %v", entry.Key, err)
		observability.RecordMetric(ctx, "shell.writeback", 1, map[string]string{"result": "error"})
		return
	}
	observability.RecordMetric(ctx, "shell.writeback", 1, map[string]string{"result": "stored"})
}

// Enqueue schedules entry for storage and reports whether it was accepted.
func (wb *Writeback) Enqueue(generation string, entry store.Entry) bool {
	if wb.bus.PublishAsync(eventbus.EventShellWriteback, generation, entry) {
		return true
	}
	wb.logger.DebugTag("Shell", "writeback queue full, dropping %s", entry.Key)
	return false
}

// Flush waits for accepted writes to finish.
func (wb *Writeback) Flush(ctx context.Context) error {
	return wb.bus.WaitAsync(ctx)
}

// Dropped returns how many writes were discarded.
func (wb *Writeback) Dropped() int64 {
	return wb.bus.Dropped()
}

// Close stops the pool.
func (wb *Writeback) Close() {
	wb.bus.Stop()
}
