// Package auditlog provides a JSON-lines write/reconnect journal for the
// filesystem projection: every mutating flush (a write that produced an
// outbound RPC) and every transport reconnect is recorded so a later reader
// can reconstruct what was sent to the device and when.
package auditlog

import (
	"fmt"
	"time"
)

// Change describes a single field-level mutation applied by a flush, mirroring
// the request/response pair that produced it.
type Change struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
}

// Event represents one auditable occurrence against the projected filesystem
// or the transport beneath it.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Resource  string    `json:"resource,omitempty"` // "switch:0", "script:3", "schedule", "sys", "mqtt"
	Operation string    `json:"operation"`          // "flush", "reconnect", "disconnect"
	Method    string    `json:"method,omitempty"`   // the RPC method the flush issued, if any
	Changes   []Change  `json:"changes,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// EventType categorizes audit events.
type EventType string

const (
	EventTypeFlush      EventType = "flush"
	EventTypeReconnect  EventType = "reconnect"
	EventTypeDisconnect EventType = "disconnect"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	Path        string
	Resource    string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event for the given path and operation.
func NewEvent(path, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		Path:      path,
		Operation: operation,
	}
}

// WithResource sets the resource identifier ("switch:0", "script:3", ...).
func (e *Event) WithResource(resource string) *Event {
	e.Resource = resource
	return e
}

// WithMethod sets the RPC method the flush issued.
func (e *Event) WithMethod(method string) *Event {
	e.Method = method
	return e
}

// WithChanges sets the changes.
func (e *Event) WithChanges(changes []Change) *Event {
	e.Changes = changes
	return e
}

// WithSuccess marks the event as successful.
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
