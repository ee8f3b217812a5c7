package domain

import "time"

// EventStatus discriminates the events streamed to a caller.
type EventStatus string

const (
	EventConnected      EventStatus = "connected"
	EventStageUpdate    EventStatus = "stage_update"
	EventSubstageUpdate EventStatus = "substage_update"
	EventPapersFinding  EventStatus = "papers_finding"
	EventStreaming      EventStatus = "streaming"
	EventToken          EventStatus = "token"
	EventChunkComplete  EventStatus = "chunk_complete"
	EventComplete       EventStatus = "complete"
	EventError          EventStatus = "error"
)

// IsTerminal returns true for events that end a stream.
func (s EventStatus) IsTerminal() bool {
	return s == EventComplete || s == EventError
}

// Event is one progress notification produced by the pipeline.
//
// The Result of a complete event is embedded so its fields appear at the top
// level of the JSON payload next to the status discriminator.
type Event struct {
	Status     EventStatus `json:"status"`
	Stage      Stage       `json:"stage,omitempty"`
	Substage   string      `json:"substage,omitempty"`
	Message    string      `json:"message,omitempty"`
	Token      string      `json:"token,omitempty"`
	Content    string      `json:"content,omitempty"`
	PaperCount *int        `json:"paperCount,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`

	*Result
}

// NewEvent creates an event stamped with the current time.
func NewEvent(status EventStatus, stage Stage) Event {
	return Event{
		Status:    status,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	}
}
