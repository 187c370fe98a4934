package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// AsyncEventBus delivers events on a fixed worker pool with a bounded queue.
// Publishing never blocks: when the queue is full the event is dropped.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	stopped   bool
	inflight  atomic.Int64
	dropped   atomic.Int64
	startOnce sync.Once
	stopOnce  sync.Once

	// OnPanic receives handler panics. Nil discards them.
	OnPanic func(topic string, recovered any)
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates an async bus. Non-positive sizes fall back to
// 2 workers and a 128 slot queue.
func NewAsyncEventBus(workerNum, queueSize int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 2
	}
	if queueSize <= 0 {
		queueSize = 128
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (aeb *AsyncEventBus) Start() {
	aeb.startOnce.Do(func() {
		for i := 0; i < aeb.workerNum; i++ {
			aeb.wg.Add(1)
			go aeb.worker()
		}
	})
}

// Stop halts the workers. Queued events that were not picked up are
// discarded and counted as dropped.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		close(aeb.stopChan)
		aeb.mu.Unlock()
	})
	aeb.wg.Wait()
	aeb.drain()
}

func (aeb *AsyncEventBus) drain() {
	for {
		select {
		case <-aeb.workChan:
			aeb.inflight.Add(-1)
			aeb.dropped.Add(1)
		default:
			return
		}
	}
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.deliver(event)
		}
	}
}

func (aeb *AsyncEventBus) deliver(event asyncEvent) {
	defer aeb.inflight.Add(-1)
	defer func() {
		if r := recover(); r != nil && aeb.OnPanic != nil {
			aeb.OnPanic(event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues an event and reports whether it was accepted.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) bool {
	aeb.mu.RLock()
	defer aeb.mu.RUnlock()
	if aeb.stopped {
		aeb.dropped.Add(1)
		return false
	}

	aeb.inflight.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		aeb.inflight.Add(-1)
		aeb.dropped.Add(1)
		return false
	}
}

// Subscribe registers fn for topic.
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a handler.
func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

// HasCallback reports whether topic has subscribers.
func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// Dropped returns the number of events rejected so far.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

// WaitAsync blocks until every accepted event has been delivered or ctx ends.
func (aeb *AsyncEventBus) WaitAsync(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for aeb.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for async events: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
