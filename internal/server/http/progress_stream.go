package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/pipeline"
)

// sseEmitter writes pipeline events as server-sent event frames.
// A failed write cancels the run through cancel and reports a
// StreamTransportError so the pipeline stops.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	cancel  context.CancelFunc
	broken  error
	ended   bool
}

var _ pipeline.Emitter = (*sseEmitter)(nil)

// startSSE writes the event stream headers and returns an emitter for the
// response. It returns false when the writer cannot stream.
func startSSE(w http.ResponseWriter, cancel context.CancelFunc) (*sseEmitter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseEmitter{w: w, flusher: flusher, cancel: cancel}, true
}

// Emit writes one frame: "event: <status>\ndata: <json>\n\n".
func (e *sseEmitter) Emit(ctx context.Context, event domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.broken != nil {
		return e.broken
	}
	if err := ctx.Err(); err != nil {
		return e.fail(err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Status, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event.Status, data); err != nil {
		return e.fail(err)
	}
	e.flusher.Flush()
	if event.Status.IsTerminal() {
		e.ended = true
	}
	return nil
}

// terminated reports whether a complete or error frame has been written.
func (e *sseEmitter) terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *sseEmitter) fail(cause error) error {
	e.broken = domain.NewStreamTransportError(cause)
	if e.cancel != nil {
		e.cancel()
	}
	return e.broken
}
