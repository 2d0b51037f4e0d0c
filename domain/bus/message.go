// Package bus defines asynchronous message passing between agent sessions.
// Delivery is at-least-once with per-sender-per-topic ordering; consumers
// deduplicate on (sender, sequence).
package bus

import (
	"encoding/json"
	"time"
)

// DeliveryStatus tracks a message through the bus.
type DeliveryStatus string

const (
	StatusQueued    DeliveryStatus = "queued"
	StatusDelivered DeliveryStatus = "delivered"
	StatusExpired   DeliveryStatus = "expired"
)

// Message is an addressed or topic-routed payload exchanged between
// sessions. Sequence increases monotonically per (sender, topic) and is
// the deduplication key for at-least-once delivery.
type Message struct {
	Topic    string          `json:"topic"`
	Sender   string          `json:"sender"`
	Sequence uint64          `json:"sequence"`
	Payload  json.RawMessage `json:"payload"`
	Status   DeliveryStatus  `json:"status"`
	SentAt   time.Time       `json:"sent_at"`

	// ExpiresAt is zero when the message does not expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the message has outlived its TTL at the given time.
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// Key returns the deduplication key for idempotent consumption.
func (m *Message) Key() MessageKey {
	return MessageKey{Sender: m.Sender, Topic: m.Topic, Sequence: m.Sequence}
}

// MessageKey identifies a message for deduplication.
type MessageKey struct {
	Sender   string
	Topic    string
	Sequence uint64
}
