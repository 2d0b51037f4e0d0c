// Package businmem provides the in-process bus.Bus implementation used for
// single-binary deployments and tests.
package businmem

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/bus"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

const expirationBuffer = 64

type seqKey struct {
	sender string
	topic  string
}

// InMemory is a channel-backed bus. Messages published before any
// subscriber exists are held in a per-topic backlog and handed to the
// first subscriber, preserving per-sender order.
type InMemory struct {
	clk clock.Clock

	mu          sync.Mutex
	seqs        map[seqKey]uint64
	topics      map[string]*topicState
	expirations map[string]chan *bus.Message
	closed      bool
}

type topicState struct {
	backlog []*bus.Message
	subs    []*subscription
}

// New creates a bus using the system clock.
func New() *InMemory {
	return NewWithClock(clock.NewSystem())
}

// NewWithClock creates a bus with an injected clock for TTL testing.
func NewWithClock(clk clock.Clock) *InMemory {
	return &InMemory{
		clk:         clk,
		seqs:        make(map[seqKey]uint64),
		topics:      make(map[string]*topicState),
		expirations: make(map[string]chan *bus.Message),
	}
}

// Publish enqueues payload on topic, assigning the next sequence number
// for (sender, topic).
func (b *InMemory) Publish(_ context.Context, topic, sender string, payload []byte, ttl time.Duration) (*bus.Message, error) {
	if topic == "" {
		return nil, bus.ErrEmptyTopic
	}
	if sender == "" {
		return nil, bus.ErrEmptySender
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, bus.ErrBusClosed
	}

	key := seqKey{sender: sender, topic: topic}
	b.seqs[key]++
	now := b.clk.Now()

	m := &bus.Message{
		Topic:    topic,
		Sender:   sender,
		Sequence: b.seqs[key],
		Payload:  payload,
		Status:   bus.StatusQueued,
		SentAt:   now,
	}
	if ttl > 0 {
		m.ExpiresAt = now.Add(ttl)
	}

	t := b.topic(topic)
	b.sweepLocked(t, now)

	if len(t.subs) == 0 {
		t.backlog = append(t.backlog, m)
		return m, nil
	}
	for _, s := range t.subs {
		s.enqueue(m)
	}
	return m, nil
}

// Subscribe registers a consumer for topic. Any backlog is replayed to the
// new subscriber in publish order before live messages.
func (b *InMemory) Subscribe(ctx context.Context, topic string) (bus.Subscription, error) {
	if topic == "" {
		return nil, bus.ErrEmptyTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, bus.ErrBusClosed
	}

	t := b.topic(topic)
	b.sweepLocked(t, b.clk.Now())

	s := newSubscription(ctx, b, topic)
	for _, m := range t.backlog {
		s.enqueue(m)
	}
	t.backlog = nil
	t.subs = append(t.subs, s)
	return s, nil
}

// Expirations reports TTL-dropped messages for sender. The channel is
// created on first use and shared across calls.
func (b *InMemory) Expirations(sender string) <-chan *bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expirationChanLocked(sender)
}

// Close stops delivery and closes every subscription.
func (b *InMemory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return bus.ErrBusClosed
	}
	b.closed = true
	for _, t := range b.topics {
		for _, s := range t.subs {
			s.stop()
		}
		t.subs = nil
		t.backlog = nil
	}
	for _, ch := range b.expirations {
		close(ch)
	}
	return nil
}

func (b *InMemory) topic(name string) *topicState {
	t, ok := b.topics[name]
	if !ok {
		t = &topicState{}
		b.topics[name] = t
	}
	return t
}

func (b *InMemory) expirationChanLocked(sender string) chan *bus.Message {
	ch, ok := b.expirations[sender]
	if !ok {
		ch = make(chan *bus.Message, expirationBuffer)
		if b.closed {
			close(ch)
			return ch
		}
		b.expirations[sender] = ch
	}
	return ch
}

// sweepLocked drops expired backlog messages, reporting each to its
// sender's expiration channel.
func (b *InMemory) sweepLocked(t *topicState, now time.Time) {
	if len(t.backlog) == 0 {
		return
	}
	kept := t.backlog[:0]
	for _, m := range t.backlog {
		if m.Expired(now) {
			b.reportExpiredLocked(m)
			continue
		}
		kept = append(kept, m)
	}
	t.backlog = kept
}

// reportExpiredLocked marks m expired and notifies the sender without
// blocking; a full channel drops the notification.
func (b *InMemory) reportExpiredLocked(m *bus.Message) {
	m.Status = bus.StatusExpired
	ch := b.expirationChanLocked(m.Sender)
	select {
	case ch <- m:
	default:
		logging.Debug().
			Add(logging.Topic(m.Topic)).
			Add(logging.Str("sender", m.Sender)).
			Msg("expiration channel full, notification dropped")
	}
}

func (b *InMemory) dropSubscription(topic string, target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return
	}
	kept := t.subs[:0]
	for _, s := range t.subs {
		if s != target {
			kept = append(kept, s)
		}
	}
	t.subs = kept
}

// reportExpired notifies the sender of an expiry detected at delivery time.
func (b *InMemory) reportExpired(m *bus.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reportExpiredLocked(m)
}
