package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/bus"
	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
	"github.com/felixgeelhaar/agent-runtime/domain/transcript"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

// Mailbox connects one session to the message bus. Incoming messages
// are deduplicated and recorded in the session transcript; expiry
// notices for the session's own messages become telemetry events.
type Mailbox struct {
	sessionID  string
	bus        bus.Bus
	transcript *transcript.Transcript
	sink       telemetry.Sink
	clk        clock.Clock

	mu      sync.Mutex
	dedup   *bus.Dedup
	subs    []bus.Subscription
	closed  bool
	handler func(*bus.Message)
}

// MailboxConfig assembles a Mailbox.
type MailboxConfig struct {
	SessionID  string
	Bus        bus.Bus
	Transcript *transcript.Transcript
	Sink       telemetry.Sink
	Clock      clock.Clock

	// Handler, when set, receives each first-delivery message after it
	// is recorded.
	Handler func(*bus.Message)
}

// NewMailbox creates a mailbox and starts watching expiry notices for
// the session's messages.
func NewMailbox(cfg MailboxConfig) (*Mailbox, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("mailbox: bus is required")
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("mailbox: session id is required")
	}
	if cfg.Transcript == nil {
		cfg.Transcript = transcript.New()
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.NopSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}

	m := &Mailbox{
		sessionID:  cfg.SessionID,
		bus:        cfg.Bus,
		transcript: cfg.Transcript,
		sink:       cfg.Sink,
		clk:        cfg.Clock,
		dedup:      bus.NewDedup(),
		handler:    cfg.Handler,
	}

	go m.watchExpirations()
	return m, nil
}

// Send publishes payload on topic on behalf of the session.
func (m *Mailbox) Send(ctx context.Context, topic string, payload json.RawMessage, ttl time.Duration) (*bus.Message, error) {
	return m.bus.Publish(ctx, topic, m.sessionID, payload, ttl)
}

// Listen subscribes to topic and records every first delivery in the
// transcript. Retransmissions of an already-seen (sender, topic,
// sequence) are dropped, making duplicate handling idempotent.
func (m *Mailbox) Listen(ctx context.Context, topic string) error {
	sub, err := m.bus.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.Close()
		return bus.ErrBusClosed
	}
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	go m.pump(sub)
	return nil
}

func (m *Mailbox) pump(sub bus.Subscription) {
	for msg := range sub.Messages() {
		m.mu.Lock()
		first := m.dedup.First(msg)
		m.mu.Unlock()
		if !first {
			logging.Debug().
				Add(logging.SessionID(m.sessionID)).
				Add(logging.Topic(msg.Topic)).
				Add(logging.Str("sender", msg.Sender)).
				Msg("dropped duplicate delivery")
			continue
		}

		payload, _ := json.Marshal(msg)
		m.transcript.Append(transcript.KindMessage, "", msg.Sender, payload)

		if m.handler != nil {
			m.handler(msg)
		}
	}
}

func (m *Mailbox) watchExpirations() {
	for msg := range m.bus.Expirations(m.sessionID) {
		m.sink.Emit(telemetry.Event{
			Kind:      telemetry.EventMessageExpired,
			SessionID: m.sessionID,
			At:        m.clk.Now(),
			Attributes: []telemetry.Attribute{
				telemetry.String("topic", msg.Topic),
				telemetry.Int64("sequence", int64(msg.Sequence)),
			},
		})
		m.transcript.Append(transcript.KindMessage, "", "expired", nil)
	}
}

// Close deregisters every subscription. The underlying bus stays open;
// its owner closes it.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
