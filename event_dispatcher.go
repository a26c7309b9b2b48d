package apiclient

import (
	"context"
	"sync"
	"sync/atomic"
)

// eventDispatcher hands session events to the sink from a single worker goroutine.
//
// Two entry points exist. Emit serves the session lifecycle (login, logout) and waits
// for room when DropIfFull is off, bounded by the caller's ctx. Offer serves the refresh
// path and never waits: a refresh leader must not stall behind a slow sink while other
// callers are queued on it.
//
// A session_expired event that is still queued absorbs later ones; they describe the
// same state change for anyone reading the stream.
type eventDispatcher struct {
	sink       EventSink
	dropIfFull bool

	// mu serializes sends against Close closing queue.
	mu     sync.RWMutex
	closed bool
	queue  chan SessionEvent
	// stop releases senders blocked on a full queue once Close starts.
	stop     chan struct{}
	finished chan struct{}
	once     sync.Once

	expiredQueued atomic.Bool
	dropped       atomic.Uint64
	coalesced     atomic.Uint64
}

// newEventDispatcher returns nil when events are disabled; every method accepts a nil
// receiver.
func newEventDispatcher(cfg EventsConfig, sink EventSink) *eventDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &eventDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan SessionEvent, size),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.deliver()
	return d
}

// deliver runs until Close closes the queue, so everything accepted is delivered.
func (d *eventDispatcher) deliver() {
	defer close(d.finished)
	for ev := range d.queue {
		if ev.EventType == EventSessionExpired {
			d.expiredQueued.Store(false)
		}
		d.sink.Emit(context.Background(), ev)
	}
}

func (d *eventDispatcher) Emit(ctx context.Context, ev SessionEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	d.enqueue(ctx, ev, !d.dropIfFull)
}

// Offer enqueues ev if there is room and drops it otherwise.
func (d *eventDispatcher) Offer(ev SessionEvent) {
	d.enqueue(context.Background(), ev, false)
}

func (d *eventDispatcher) enqueue(ctx context.Context, ev SessionEvent, wait bool) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if ev.EventType == EventSessionExpired && !d.expiredQueued.CompareAndSwap(false, true) {
		d.coalesced.Add(1)
		return
	}

	if !wait {
		select {
		case d.queue <- ev:
		default:
			d.discard(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.discard(ev)
	case <-d.stop:
		d.discard(ev)
	}
}

func (d *eventDispatcher) discard(ev SessionEvent) {
	d.dropped.Add(1)
	if ev.EventType == EventSessionExpired {
		d.expiredQueued.Store(false)
	}
}

// Close delivers what was accepted, then stops the worker. Later events are ignored.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.stop)
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		<-d.finished
	})
}

func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Coalesced counts session_expired events absorbed by one already queued.
func (d *eventDispatcher) Coalesced() uint64 {
	if d == nil {
		return 0
	}
	return d.coalesced.Load()
}
