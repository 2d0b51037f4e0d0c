package bus

import "errors"

var (
	ErrBusClosed          = errors.New("bus is closed")
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrEmptyTopic         = errors.New("topic cannot be empty")
	ErrEmptySender        = errors.New("sender cannot be empty")
)
