package businmem

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/agent-runtime/domain/bus"
)

// subscription pumps messages from an unbounded ordered queue to the
// consumer channel, so a slow consumer never blocks publishers or loses
// ordering.
type subscription struct {
	owner *InMemory
	topic string
	out   chan *bus.Message

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*bus.Message
	closed bool
}

func newSubscription(ctx context.Context, owner *InMemory, topic string) *subscription {
	s := &subscription{
		owner: owner,
		topic: topic,
		out:   make(chan *bus.Message),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump(ctx)
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			s.stop()
		}()
	}
	return s
}

func (s *subscription) Messages() <-chan *bus.Message {
	return s.out
}

func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return bus.ErrSubscriptionClosed
	}
	s.mu.Unlock()
	s.owner.dropSubscription(s.topic, s)
	s.stop()
	return nil
}

func (s *subscription) enqueue(m *bus.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, m)
	s.cond.Signal()
}

func (s *subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Signal()
}

// pump delivers queued messages in order, checking TTL at delivery time.
func (s *subscription) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		m := s.queue[0]
		s.queue = s.queue[1:]
		closed := s.closed
		s.mu.Unlock()

		if m.Expired(s.owner.clk.Now()) {
			s.owner.reportExpired(m)
			continue
		}
		if closed {
			return
		}

		// Each subscriber gets its own copy; the queued message is
		// shared with other subscriptions and the publisher.
		delivered := *m
		delivered.Status = bus.StatusDelivered
		select {
		case s.out <- &delivered:
		case <-ctx.Done():
			s.stop()
			return
		}
	}
}
