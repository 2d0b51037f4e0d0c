// Package busnats provides a bus.Bus backed by a NATS JetStream style
// broker. The broker is reached through the Client interface so deployments
// can plug in a real connection while tests use the in-package mock.
package busnats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/bus"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
)

// Client defines the broker operations the bus needs. Implementations
// must preserve per-subject publish order.
type Client interface {
	// Publish sends data to a subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for a subject with a durable consumer.
	Subscribe(ctx context.Context, subject string, handler func([]byte) error) (ClientSubscription, error)

	// Close closes the broker connection.
	Close() error
}

// ClientSubscription is an active broker subscription.
type ClientSubscription interface {
	Unsubscribe() error
}

const expirationBuffer = 64

// Broker implements bus.Bus over a Client. Sequence numbers are assigned
// locally per (sender, topic); TTL expiry is checked at delivery time
// since the broker retains messages on its own schedule.
type Broker struct {
	client        Client
	subjectPrefix string
	clk           clock.Clock

	mu          sync.Mutex
	seqs        map[string]*seq
	expirations map[string]chan *bus.Message
	closed      bool
}

type seq struct {
	mu   sync.Mutex
	next uint64
}

// Config holds configuration for the broker bus.
type Config struct {
	// Client is the broker connection to use.
	Client Client

	// SubjectPrefix namespaces every topic subject. Defaults to "agents".
	SubjectPrefix string

	// Clock supplies time for TTL checks; nil means the system clock.
	Clock clock.Clock
}

// New creates a broker-backed bus.
func New(cfg Config) (*Broker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("broker client is required")
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "agents"
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Broker{
		client:        cfg.Client,
		subjectPrefix: prefix,
		clk:           clk,
		seqs:          make(map[string]*seq),
		expirations:   make(map[string]chan *bus.Message),
	}, nil
}

// Publish marshals the message and sends it to the topic's subject.
func (b *Broker) Publish(ctx context.Context, topic, sender string, payload []byte, ttl time.Duration) (*bus.Message, error) {
	if topic == "" {
		return nil, bus.ErrEmptyTopic
	}
	if sender == "" {
		return nil, bus.ErrEmptySender
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, bus.ErrBusClosed
	}
	b.mu.Unlock()

	now := b.clk.Now()
	m := &bus.Message{
		Topic:    topic,
		Sender:   sender,
		Sequence: b.nextSequence(sender, topic),
		Payload:  payload,
		Status:   bus.StatusQueued,
		SentAt:   now,
	}
	if ttl > 0 {
		m.ExpiresAt = now.Add(ttl)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.subject(topic), data); err != nil {
		return nil, fmt.Errorf("publish to broker: %w", err)
	}
	return m, nil
}

// Subscribe registers a consumer for topic. Expired messages are reported
// to their sender and never reach the consumer channel.
func (b *Broker) Subscribe(ctx context.Context, topic string) (bus.Subscription, error) {
	if topic == "" {
		return nil, bus.ErrEmptyTopic
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, bus.ErrBusClosed
	}
	b.mu.Unlock()

	sub := &subscription{
		ch:   make(chan *bus.Message, 100),
		in:   make(chan *bus.Message),
		done: make(chan struct{}),
	}
	go sub.forward()

	clientSub, err := b.client.Subscribe(ctx, b.subject(topic), func(data []byte) error {
		var m bus.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if m.Expired(b.clk.Now()) {
			b.reportExpired(&m)
			return nil
		}
		m.Status = bus.StatusDelivered
		select {
		case sub.in <- &m:
			return nil
		case <-sub.done:
			return bus.ErrSubscriptionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		close(sub.done)
		return nil, fmt.Errorf("subscribe to broker: %w", err)
	}
	sub.clientSub = clientSub
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			_ = sub.Close()
		}()
	}
	return sub, nil
}

// Expirations reports TTL-dropped messages for sender.
func (b *Broker) Expirations(sender string) <-chan *bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expirationChanLocked(sender)
}

// Close shuts the broker connection down.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return bus.ErrBusClosed
	}
	b.closed = true
	return b.client.Close()
}

func (b *Broker) subject(topic string) string {
	return b.subjectPrefix + "." + topic
}

func (b *Broker) nextSequence(sender, topic string) uint64 {
	key := sender + "/" + topic
	b.mu.Lock()
	s, ok := b.seqs[key]
	if !ok {
		s = &seq{}
		b.seqs[key] = s
	}
	b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

func (b *Broker) expirationChanLocked(sender string) chan *bus.Message {
	ch, ok := b.expirations[sender]
	if !ok {
		ch = make(chan *bus.Message, expirationBuffer)
		b.expirations[sender] = ch
	}
	return ch
}

func (b *Broker) reportExpired(m *bus.Message) {
	m.Status = bus.StatusExpired
	b.mu.Lock()
	ch := b.expirationChanLocked(m.Sender)
	b.mu.Unlock()
	select {
	case ch <- m:
	default:
	}
}

// subscription decouples broker handler invocations from the consumer
// channel: handlers hand messages to the forward goroutine, which is
// the only closer of ch, so Close never races an in-flight delivery.
type subscription struct {
	ch        chan *bus.Message
	in        chan *bus.Message
	done      chan struct{}
	clientSub ClientSubscription

	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Messages() <-chan *bus.Message {
	return s.ch
}

// forward pumps handler deliveries to the consumer channel until the
// subscription is closed, then closes the consumer channel.
func (s *subscription) forward() {
	defer close(s.ch)
	for {
		select {
		case m := <-s.in:
			select {
			case s.ch <- m:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		if s.clientSub != nil {
			s.closeErr = s.clientSub.Unsubscribe()
		}
		close(s.done)
	})
	return s.closeErr
}

var _ bus.Bus = (*Broker)(nil)
