package event

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Event represents a workflow domain event. Events carry only identifiers and
// a small payload; consumers (notifiers, UIs) query the projection surface
// for full state.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	InstanceID string                 `json:"instance_id"`
	DocID      string                 `json:"doc_id"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  time.Time              `json:"timestamp"`
}

// New creates a new domain event with auto-generated ID and timestamp
func New(eventType Type, instanceID, docID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:         generateID(),
		Type:       eventType,
		InstanceID: instanceID,
		DocID:      docID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// generateID creates a unique ID from timestamp and random bytes
func generateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return time.Now().UTC().Format("20060102150405") + "-" + hex.EncodeToString(b)
}
