package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Events emitted by PipelineService.
const (
	EventRunStarted   = "run:started"
	EventRunCompleted = "run:completed"
	EventRunFailed    = "run:failed"
	EventRunSkipped   = "run:skipped"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples the pipeline from whoever listens
// ─────────────────────────────────────────────────────────────

// EventEmitter receives pipeline lifecycle events. The CLI logs them;
// embedding programs can forward them elsewhere.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event as a structured log line.
type LogEmitter struct {
	Log zerolog.Logger
}

func (e LogEmitter) Emit(_ context.Context, event string, data any) {
	e.Log.Info().Str("event", event).Interface("data", data).Msg("pipeline event")
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Events))
	for i, e := range m.Events {
		names[i] = e.Event
	}
	return names
}
