package purchase

import (
	"strings"
	"time"
)

// EventType names a change published after a purchase is written.
type EventType string

const (
	EventCreated        EventType = "purchase.created"
	EventTransitioned   EventType = "purchase.transitioned"
	EventFileReuploaded EventType = "purchase.file_reuploaded"
	EventDeleted        EventType = "purchase.deleted"
)

// Event is the payload streamed to the message bus and the live feed.
type Event struct {
	Type       EventType `json:"type"`
	PurchaseID string    `json:"purchase_id"`
	Status     Status    `json:"status,omitempty"`
	Role       Role      `json:"role,omitempty"`
	Action     Action    `json:"action,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const eventKeyPrefix = "purchase-"

// EventKey is the message key for events about id, keeping one purchase on
// one partition.
func EventKey(id string) []byte {
	return []byte(eventKeyPrefix + id)
}

// IDFromEventKey recovers the purchase id from a message key.
func IDFromEventKey(key []byte) (string, bool) {
	id, ok := strings.CutPrefix(string(key), eventKeyPrefix)
	return id, ok && id != ""
}
