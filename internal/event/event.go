package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is one delivery of a system signal. The host may redeliver the same
// instance, so consumers deduplicate by ID.
type Event struct {
	ID     string    `json:"id"`
	Kind   Kind      `json:"kind"`
	At     time.Time `json:"at"`
	Source string    `json:"source,omitempty"`
}

// New creates an event instance with a fresh ID.
func New(kind Kind, source string) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		At:     time.Now().UTC(),
		Source: source,
	}
}
