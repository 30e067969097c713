// Package notify fans change events out to observers. Delivery is
// best-effort and never blocks the publisher: every observer owns a bounded
// queue and a goroutine, and an observer that fails or falls behind is
// dropped without affecting anyone else.
package notify

import (
	"encoding/json"
	"time"
)

// EventKind names the mutation that produced an event.
type EventKind string

const (
	EventAdd        EventKind = "add"
	EventUpdate     EventKind = "update"
	EventBulkUpdate EventKind = "bulk_update"
	EventDelete     EventKind = "delete"
	EventComment    EventKind = "comment"
	EventLink       EventKind = "link"
	EventReload     EventKind = "reload"
	EventHeal       EventKind = "heal"
)

// Kinds lists every event kind.
var Kinds = []EventKind{EventAdd, EventUpdate, EventBulkUpdate, EventDelete, EventComment, EventLink, EventReload, EventHeal}

// Event is one published change.
type Event struct {
	ID        string                 `json:"id"`
	Seq       uint64                 `json:"seq"`
	Kind      EventKind              `json:"event_kind"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// JSON encodes the event; payload values that cannot be encoded are
// reported as an error.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
