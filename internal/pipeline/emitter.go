package pipeline

import (
	"context"
	"sync"

	"github.com/helixir/research-answer-service/internal/domain"
)

// Emitter delivers pipeline events to the caller. An error means the
// caller can no longer be reached and the run must stop.
type Emitter interface {
	Emit(ctx context.Context, event domain.Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event domain.Event) error

// Emit calls f(ctx, event).
func (f EmitterFunc) Emit(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// Discard drops every event. Used when only the final Result matters.
var Discard Emitter = EmitterFunc(func(context.Context, domain.Event) error { return nil })

// Collector keeps every emitted event in memory. It is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit appends the event.
func (c *Collector) Emit(_ context.Context, event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the collected events in emission order.
func (c *Collector) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Statuses returns the status of every collected event in order.
func (c *Collector) Statuses() []domain.EventStatus {
	events := c.Events()
	out := make([]domain.EventStatus, len(events))
	for i, ev := range events {
		out[i] = ev.Status
	}
	return out
}

// Stages returns the stage of every stage_update event in order.
func (c *Collector) Stages() []domain.Stage {
	var out []domain.Stage
	for _, ev := range c.Events() {
		if ev.Status == domain.EventStageUpdate {
			out = append(out, ev.Stage)
		}
	}
	return out
}
