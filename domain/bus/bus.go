package bus

import (
	"context"
	"time"
)

// Bus delivers messages between sessions. Implementations guarantee
// publish order per (sender, topic) and at-least-once delivery; no global
// or cross-topic ordering is promised.
type Bus interface {
	// Publish enqueues payload on topic on behalf of sender, assigning
	// the next sequence number for that (sender, topic) pair. A zero ttl
	// means the message never expires.
	Publish(ctx context.Context, topic, sender string, payload []byte, ttl time.Duration) (*Message, error)

	// Subscribe registers a consumer for topic. Messages arrive on the
	// returned channel in per-sender publish order until the context is
	// cancelled or the subscription is closed.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Expirations reports messages dropped past their TTL for the given
	// sender. Expiry is an observational event, not an error.
	Expirations(sender string) <-chan *Message

	// Close stops delivery and releases resources.
	Close() error
}

// Subscription is a live consumer registration on one topic.
type Subscription interface {
	// Messages yields delivered messages. The channel closes when the
	// subscription is closed or the bus shuts down.
	Messages() <-chan *Message

	// Close deregisters the consumer.
	Close() error
}

// Dedup filters retransmissions for an at-least-once consumer. It is not
// safe for concurrent use; each subscriber owns its own Dedup.
type Dedup struct {
	seen map[MessageKey]struct{}
}

// NewDedup builds an empty deduplication filter.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[MessageKey]struct{})}
}

// First reports whether m has not been observed before, recording it.
func (d *Dedup) First(m *Message) bool {
	k := m.Key()
	if _, ok := d.seen[k]; ok {
		return false
	}
	d.seen[k] = struct{}{}
	return true
}
