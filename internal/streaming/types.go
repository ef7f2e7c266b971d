package streaming

import (
	"encoding/json"
	"time"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventTypeProgress  EventType = "progress"
	EventTypeComplete  EventType = "complete"
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"
)

// SSEEvent represents a Server-Sent Event. Build events with the New*Event
// constructors; the payload is read back with the typed accessors.
type SSEEvent struct {
	Type      EventType
	Timestamp time.Time
	data      any
}

// MarshalJSON writes the event as {type, timestamp, data}
func (e SSEEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		Timestamp time.Time `json:"timestamp"`
		Data      any       `json:"data,omitempty"`
	}{e.Type, e.Timestamp, e.data})
}

// Data returns the raw payload
func (e SSEEvent) Data() any {
	return e.data
}

// ProgressEvent reports how many transactions of a batch have been written
type ProgressEvent struct {
	BatchID    string  `json:"batchId"`
	FileName   string  `json:"fileName"`
	Written    int     `json:"written"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// CompleteEvent carries the committed batch
type CompleteEvent struct {
	Batch domain.ImportBatch `json:"batch"`
}

// ErrorEvent reports a failed commit. Partial is set when the batch was
// left partial in storage.
type ErrorEvent struct {
	Message string `json:"message"`
	BatchID string `json:"batchId,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

func newEvent(t EventType, data any) SSEEvent {
	return SSEEvent{Type: t, Timestamp: time.Now().UTC(), data: data}
}

// NewProgressEvent creates a progress event, filling Percentage from the counts
func NewProgressEvent(p ProgressEvent) SSEEvent {
	if p.Total > 0 && p.Percentage == 0 {
		p.Percentage = float64(p.Written) / float64(p.Total) * 100
	}
	return newEvent(EventTypeProgress, p)
}

// NewCompleteEvent creates a completion event
func NewCompleteEvent(c CompleteEvent) SSEEvent {
	return newEvent(EventTypeComplete, c)
}

// NewErrorEvent creates an error event
func NewErrorEvent(e ErrorEvent) SSEEvent {
	return newEvent(EventTypeError, e)
}

// NewHeartbeatEvent creates a keep-alive event with no payload
func NewHeartbeatEvent() SSEEvent {
	return newEvent(EventTypeHeartbeat, nil)
}

// ProgressData returns the payload of a progress event
func (e SSEEvent) ProgressData() (ProgressEvent, bool) {
	p, ok := e.data.(ProgressEvent)
	return p, ok
}

// CompleteData returns the payload of a completion event
func (e SSEEvent) CompleteData() (CompleteEvent, bool) {
	c, ok := e.data.(CompleteEvent)
	return c, ok
}

// ErrorData returns the payload of an error event
func (e SSEEvent) ErrorData() (ErrorEvent, bool) {
	er, ok := e.data.(ErrorEvent)
	return er, ok
}

// IsTerminal reports whether the event ends a session
func (e SSEEvent) IsTerminal() bool {
	return e.Type == EventTypeComplete || e.Type == EventTypeError
}
