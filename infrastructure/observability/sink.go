package observability

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

// asyncSink decouples event producers from delivery. Emit never blocks; a
// full queue drops the event and counts it.
type asyncSink struct {
	queue   chan telemetry.Event
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	dropped int64
}

func newAsyncSink(buffer int) *asyncSink {
	s := &asyncSink{
		queue: make(chan telemetry.Event, buffer),
		done:  make(chan struct{}),
	}
	go s.drain()
	return s
}

// Emit implements telemetry.Sink.
func (s *asyncSink) Emit(e telemetry.Event) {
	select {
	case s.queue <- e:
	case <-s.done:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

func (s *asyncSink) drain() {
	for {
		select {
		case e := <-s.queue:
			s.write(e)
		case <-s.done:
			for {
				select {
				case e := <-s.queue:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) write(e telemetry.Event) {
	evt := logging.Debug().
		Add(logging.SessionID(e.SessionID)).
		Add(logging.Str("event", string(e.Kind)))
	for _, a := range e.Attributes {
		if v, ok := a.Value.(string); ok {
			evt = evt.Add(logging.Str(a.Key, v))
		}
	}
	evt.Msg("telemetry event")
}

// Dropped reports how many events were discarded under pressure.
func (s *asyncSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *asyncSink) shutdown(context.Context) error {
	s.once.Do(func() { close(s.done) })
	return nil
}

var _ telemetry.Sink = (*asyncSink)(nil)
