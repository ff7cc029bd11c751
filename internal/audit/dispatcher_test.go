package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// stallSink blocks every delivery until released, simulating a sink that
// stopped keeping up.
type stallSink struct {
	release   chan struct{}
	delivered atomic.Uint64
}

func (s *stallSink) Emit(context.Context, Event) {
	<-s.release
	s.delivered.Add(1)
}

func TestDispatcher_EmitNeverBlocksOnStalledSink(t *testing.T) {
	sink := &stallSink{release: make(chan struct{})}
	d := NewDispatcher(2, sink)

	emitted := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Emit(context.Background(), Event{Action: "login_failure"})
		}
		close(emitted)
	}()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a stalled sink")
	}
	if d.Dropped() == 0 {
		t.Fatal("queue overflow was not counted")
	}

	// Once the sink recovers, Close drains the queue; every event was
	// either delivered or counted as dropped.
	close(sink.release)
	d.Close()
	if total := sink.delivered.Load() + d.Dropped(); total != 100 {
		t.Fatalf("delivered+dropped = %d, want 100", total)
	}
}

func TestDispatcher_CloseDrainsAndStopsIntake(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(8, sink)

	d.Emit(context.Background(), Event{Action: "logout"})
	d.Close()
	d.Close() // idempotent

	select {
	case event := <-sink.Events():
		if event.Action != "logout" {
			t.Fatalf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("queued event lost on close")
	}

	// Emit after Close is a silent no-op, not a drop.
	d.Emit(context.Background(), Event{Action: "login_success"})
	select {
	case <-sink.Events():
		t.Fatal("emit after close reached the sink")
	default:
	}
	if d.Dropped() != 0 {
		t.Fatalf("unexpected drop count %d", d.Dropped())
	}
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), Event{Action: "noop"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestJSONWriterSink_OneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{Action: "login_success", PrincipalID: "u1", Success: true})
	sink.Emit(context.Background(), Event{Action: "login_failure", Error: "invalid credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var event Event
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("first line is not valid JSON: %v", err)
	}
	if event.Action != "login_success" || event.PrincipalID != "u1" || !event.Success {
		t.Fatalf("decoded event mismatch: %+v", event)
	}
}
