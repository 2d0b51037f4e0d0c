package busnats

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-process Client for tests.
type MockClient struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	subs     map[string][]func([]byte) error
}

// NewMockClient creates an empty mock broker.
func NewMockClient() *MockClient {
	return &MockClient{
		messages: make(map[string][][]byte),
		subs:     make(map[string][]func([]byte) error),
	}
}

// Publish implements Client.
func (c *MockClient) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.Lock()
	c.messages[subject] = append(c.messages[subject], data)
	handlers := make([]func([]byte) error, len(c.subs[subject]))
	copy(handlers, c.subs[subject])
	c.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(data); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe implements Client, replaying retained messages to the new
// consumer in publish order before live delivery.
func (c *MockClient) Subscribe(_ context.Context, subject string, handler func([]byte) error) (ClientSubscription, error) {
	c.mu.Lock()
	retained := make([][]byte, len(c.messages[subject]))
	copy(retained, c.messages[subject])
	c.subs[subject] = append(c.subs[subject], handler)
	c.mu.Unlock()

	for _, data := range retained {
		if err := handler(data); err != nil {
			return nil, err
		}
	}
	return &mockSubscription{client: c, subject: subject, handler: handler}, nil
}

// Close implements Client.
func (c *MockClient) Close() error {
	return nil
}

// MessageCount returns how many messages a subject retains.
func (c *MockClient) MessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Redeliver replays every retained message for a subject to current
// subscribers, simulating at-least-once retransmission.
func (c *MockClient) Redeliver(subject string) error {
	c.mu.RLock()
	retained := make([][]byte, len(c.messages[subject]))
	copy(retained, c.messages[subject])
	handlers := make([]func([]byte) error, len(c.subs[subject]))
	copy(handlers, c.subs[subject])
	c.mu.RUnlock()

	for _, data := range retained {
		for _, handler := range handlers {
			if err := handler(data); err != nil {
				return err
			}
		}
	}
	return nil
}

var _ Client = (*MockClient)(nil)

type mockSubscription struct {
	client  *MockClient
	subject string
	handler func([]byte) error
}

func (s *mockSubscription) Unsubscribe() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	handlers := s.client.subs[s.subject]
	for i, h := range handlers {
		if fmt.Sprintf("%p", h) == fmt.Sprintf("%p", s.handler) {
			s.client.subs[s.subject] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	return nil
}
