package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, SessionEvent) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEventsDisabledReturnsNilDispatcher(t *testing.T) {
	d := newEventDispatcher(EventsConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when events are disabled")
	}
	d.Emit(context.Background(), SessionEvent{EventType: EventLogin})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected nil dispatcher to report zero drops")
	}
}

func TestEventsBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), SessionEvent{EventType: "e1"})
	d.Emit(context.Background(), SessionEvent{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), SessionEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestEventsBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), SessionEvent{EventType: "e1"})
	d.Emit(context.Background(), SessionEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), SessionEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestEventsOfferNeverWaitsForRoom(t *testing.T) {
	sink := newGateSink()
	d := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Offer(SessionEvent{EventType: "e1"})
	d.Offer(SessionEvent{EventType: "e2"})

	start := time.Now()
	d.Offer(SessionEvent{EventType: EventRefreshFailed})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("offer waited on a full queue")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected the offered event to be dropped")
	}
}

func TestEventsEmitGivesUpWhenContextEnds(t *testing.T) {
	sink := newGateSink()
	d := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), SessionEvent{EventType: "e1"})
	d.Emit(context.Background(), SessionEvent{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, SessionEvent{EventType: EventLogout})
	if time.Since(start) > time.Second {
		t.Fatal("emit outlived its context")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", d.Dropped())
	}
}

func TestEventsQueuedSessionExpiredAbsorbsRepeats(t *testing.T) {
	sink := newGateSink()
	d := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 8, DropIfFull: true}, sink)

	// the worker holds e1 at the gate, so the expiries below stay queued
	d.Offer(SessionEvent{EventType: "e1"})
	time.Sleep(20 * time.Millisecond)
	d.Offer(SessionEvent{EventType: EventSessionExpired, RequestID: "a"})
	d.Offer(SessionEvent{EventType: EventSessionExpired, RequestID: "b"})
	d.Offer(SessionEvent{EventType: EventSessionExpired, RequestID: "c"})

	if got := d.Coalesced(); got != 2 {
		t.Fatalf("expected 2 coalesced events, got %d", got)
	}

	close(sink.gate)
	d.Close()

	// a new expiry after delivery is queued again
	d2 := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 8, DropIfFull: true}, NoOpSink{})
	defer d2.Close()
	d2.Offer(SessionEvent{EventType: EventSessionExpired})
	deadline := time.Now().Add(time.Second)
	for d2.expiredQueued.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	d2.Offer(SessionEvent{EventType: EventSessionExpired})
	if d2.Coalesced() != 0 {
		t.Fatal("expiry after delivery must not be coalesced")
	}
}

func TestEventsCloseFlushesAndIsIdempotent(t *testing.T) {
	var buf syncBuffer
	d := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 8}, NewJSONWriterSink(&buf))

	d.Emit(context.Background(), SessionEvent{EventType: EventLogin, Success: true})
	d.Emit(context.Background(), SessionEvent{EventType: EventLogout, Success: true})
	d.Close()
	d.Close()
	d.Emit(context.Background(), SessionEvent{EventType: EventLogin})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d: %q", len(lines), buf.String())
	}
	var ev SessionEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if ev.EventType != EventLogin || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(0)
	sink.Emit(context.Background(), SessionEvent{EventType: EventTokenRefreshed})

	select {
	case ev := <-sink.Events():
		if ev.EventType != EventTokenRefreshed {
			t.Fatalf("unexpected event type %q", ev.EventType)
		}
	default:
		t.Fatal("expected buffered event")
	}
}
