// Package bus implements the Event Bus component (§4.B): a bounded
// priority-discipline queue of Events and a list of pattern-matched
// Subscriptions, drained cooperatively by the scheduler.
package bus

import (
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/google/uuid"
)

// Event is a published message (§3 Event). ID is an additive correlation
// field (not in spec.md's minimal field list) used for log correlation
// across the single-threaded dispatch loop.
type Event struct {
	ID        string
	Type      string
	Payload   map[string]any
	Priority  domain.Priority
	Timestamp uint64
}

func newEvent(eventType string, payload map[string]any, priority domain.Priority) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Priority:  priority,
		Timestamp: domain.NowMs(),
	}
}
