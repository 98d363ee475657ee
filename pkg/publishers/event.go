package publishers

import (
	"errors"
	"strconv"
	"time"

	"github.com/Adda-Baaj/square-connect/pkg/square"
	"github.com/google/uuid"
)

// Event represents a call outcome published downstream.
type Event struct {
	ID          string      `json:"id"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	StatusCode  int         `json:"status_code,omitempty"`
	Data        any         `json:"data,omitempty"`
	Error       *EventError `json:"error,omitempty"`
	CompletedAt time.Time   `json:"completed_at"`
}

// EventError describes a failed call.
type EventError struct {
	Kind    string `json:"kind"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// NewEvent constructs an Event from the outcome of one API call.
func NewEvent(method, path string, resp *square.Response, err error) Event {
	evt := Event{
		ID:          uuid.NewString(),
		Method:      method,
		Path:        path,
		CompletedAt: time.Now().UTC(),
	}
	if resp != nil {
		evt.StatusCode = resp.StatusCode
		evt.Data = resp.Data
	}
	if err != nil {
		evt.Error = &EventError{Kind: "unknown", Message: err.Error()}
		var apiErr *square.Error
		if errors.As(err, &apiErr) {
			evt.Error.Kind = apiErr.Kind.String()
			evt.Error.Type = apiErr.Type
			evt.Error.Message = apiErr.Message
		}
	}
	return evt
}

// attributes returns the routing metadata attached to queue/topic messages.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{
		"event_id": e.ID,
		"method":   e.Method,
		"path":     e.Path,
	}
	if e.StatusCode > 0 {
		attrs["status_code"] = strconv.Itoa(e.StatusCode)
	}
	if e.Error != nil {
		attrs["error_kind"] = e.Error.Kind
	}
	return attrs
}
