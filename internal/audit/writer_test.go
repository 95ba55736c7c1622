package audit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type flushRecorder struct {
	mu     sync.Mutex
	events []*DecisionEvent
}

func (f *flushRecorder) flush(events []*DecisionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// The pump reuses its batch slice between flushes, so copy now.
	f.events = append(f.events, append([]*DecisionEvent(nil), events...)...)
}

func (f *flushRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestPump_DrainsAllEventsOnClose(t *testing.T) {
	rec := &flushRecorder{}
	p := newPump(bufferSize, rec.flush, zap.NewNop())

	const n = 100
	for i := 0; i < n; i++ {
		p.record(&DecisionEvent{RequestID: fmt.Sprintf("req-%d", i)})
	}
	p.close()

	if got := rec.count(); got != n {
		t.Fatalf("expected %d events after close, got %d", n, got)
	}
	for i, e := range rec.events {
		if want := fmt.Sprintf("req-%d", i); e.RequestID != want {
			t.Fatalf("expected %s at position %d, got %s", want, i, e.RequestID)
		}
	}
	if got := p.dropped.Load(); got != 0 {
		t.Fatalf("expected no drops, got %d", got)
	}
}

func TestPump_FlushesOnInterval(t *testing.T) {
	rec := &flushRecorder{}
	p := newPump(bufferSize, rec.flush, zap.NewNop())
	defer p.close()

	for i := 0; i < 3; i++ {
		p.record(&DecisionEvent{RequestID: fmt.Sprintf("req-%d", i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected interval flush, got %d events", rec.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPump_DropsWhenBufferFull(t *testing.T) {
	// Loop not started, so the buffer never empties.
	p := &pump{
		buffer:  make(chan *DecisionEvent, 2),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		flush:   func([]*DecisionEvent) {},
		logger:  zap.NewNop(),
	}

	for i := 0; i < 5; i++ {
		p.record(&DecisionEvent{RequestID: fmt.Sprintf("req-%d", i)})
	}
	if got := p.dropped.Load(); got != 3 {
		t.Fatalf("expected 3 dropped events, got %d", got)
	}
}

func TestTruncatePreview(t *testing.T) {
	if got := TruncatePreview("short", 500); got != "short" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := TruncatePreview("héllo", 2); got != "hé" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
}
