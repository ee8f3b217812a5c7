// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/helixir/research-answer-service/internal/llm"
)

// ErrNoReply is returned when the script has no reply left for a call.
var ErrNoReply = errors.New("llmtest: no scripted reply")

// Reply is one scripted answer.
type Reply struct {
	// Text is the completion. Streams emit it as a single chunk unless Chunks is set.
	Text string

	// Chunks overrides the streamed increments.
	Chunks []string

	// Err fails Complete. For streams it is delivered after the chunks.
	Err error

	// StartErr makes Stream itself return an error.
	StartErr error
}

// Call is a recorded request.
type Call struct {
	Method  string
	Request llm.Request
}

// Scripted is an llm.Client that answers from a queue of replies or from a
// Respond function. It is safe for concurrent use.
type Scripted struct {
	// Respond computes a reply per request. When set it wins over the queue.
	Respond func(req llm.Request) Reply

	mu    sync.Mutex
	queue []Reply
	calls []Call
}

var _ llm.Client = (*Scripted)(nil)

// New returns a Scripted client that serves replies in order.
func New(replies ...Reply) *Scripted {
	return &Scripted{queue: replies}
}

// Func returns a Scripted client driven by respond.
func Func(respond func(req llm.Request) Reply) *Scripted {
	return &Scripted{Respond: respond}
}

// Text is a successful reply.
func Text(s string) Reply {
	return Reply{Text: s}
}

// Fail is a failed reply.
func Fail(err error) Reply {
	return Reply{Err: err, StartErr: err}
}

// Enqueue appends replies to the queue.
func (s *Scripted) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, replies...)
}

// Calls returns a copy of the recorded requests.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Provider returns "scripted".
func (s *Scripted) Provider() string {
	return "scripted"
}

// Complete returns the next reply's text.
func (s *Scripted) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	reply := s.next("complete", req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llm.Response{
		Text:         reply.Text,
		Model:        string(req.Tier),
		InputTokens:  len(req.Prompt),
		OutputTokens: len(reply.Text),
	}, nil
}

// Stream emits the next reply's chunks.
func (s *Scripted) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	reply := s.next("stream", req)
	if reply.StartErr != nil {
		return nil, reply.StartErr
	}

	chunks := reply.Chunks
	if chunks == nil && reply.Text != "" {
		chunks = []string{reply.Text}
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- llm.Chunk{Text: c}:
			case <-ctx.Done():
				return
			}
		}
		if reply.Err != nil {
			select {
			case out <- llm.Chunk{Err: reply.Err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (s *Scripted) next(method string, req llm.Request) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Method: method, Request: req})
	if s.Respond != nil {
		return s.Respond(req)
	}
	if len(s.queue) == 0 {
		return Reply{Err: ErrNoReply, StartErr: ErrNoReply}
	}
	reply := s.queue[0]
	s.queue = s.queue[1:]
	return reply
}
