// Package events provides the in-memory session event bus. Every
// session has its own stream with strictly monotonic sequence numbers;
// delivery to subscribers is at-least-once with bounded buffering. A
// consumer that falls behind is disconnected rather than allowed to
// stall the publisher or accumulate silent gaps.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	domainevents "agora-backend/domain/events"
	"agora-backend/pkg/observability"
)

type subscriber struct {
	ch        chan domainevents.Envelope
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

type stream struct {
	mu          sync.Mutex
	sequence    uint64
	subscribers map[*subscriber]struct{}
}

// Bus fans session events out to subscribers
type Bus struct {
	mu      sync.Mutex
	streams map[string]*stream

	bufferSize int
	logger     *zap.Logger
	metrics    *observability.Collector
}

// NewBus creates a bus whose subscriber channels hold bufferSize events
func NewBus(bufferSize int, logger *zap.Logger, metrics *observability.Collector) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		streams:    make(map[string]*stream),
		bufferSize: bufferSize,
		logger:     logger,
		metrics:    metrics,
	}
}

func (b *Bus) stream(sessionID string) *stream {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[sessionID]
	if !ok {
		s = &stream{subscribers: make(map[*subscriber]struct{})}
		b.streams[sessionID] = s
	}
	return s
}

// Publish sends one event on a session's stream
func (b *Bus) Publish(ctx context.Context, sessionID string, event domainevents.DomainEvent) error {
	return b.PublishBatch(ctx, sessionID, []domainevents.DomainEvent{event})
}

// PublishBatch sends events in order on a session's stream. Sequence
// numbers are assigned under the stream lock, so no subscriber ever
// observes them out of order.
func (b *Bus) PublishBatch(_ context.Context, sessionID string, batch []domainevents.DomainEvent) error {
	if len(batch) == 0 {
		return nil
	}
	s := b.stream(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range batch {
		s.sequence++
		envelope := domainevents.Envelope{
			Sequence:  s.sequence,
			SessionID: sessionID,
			EventType: event.GetEventType(),
			Timestamp: time.Now(),
			Event:     event,
		}
		if b.metrics != nil {
			b.metrics.EventsPublished.Inc()
		}
		for sub := range s.subscribers {
			select {
			case sub.ch <- envelope:
			default:
				// Bounded buffer full: disconnect the consumer so it
				// observes the loss instead of a silent sequence gap
				delete(s.subscribers, sub)
				sub.close()
				if b.metrics != nil {
					b.metrics.EventsDropped.Inc()
				}
				b.logger.Warn("disconnecting slow subscriber",
					zap.String("session_id", sessionID),
					zap.String("event_type", envelope.EventType),
					zap.Uint64("sequence", envelope.Sequence))
			}
		}
	}
	return nil
}

// Subscribe attaches a consumer to a session's stream. The returned
// cancel function detaches it and closes the channel.
func (b *Bus) Subscribe(sessionID string) (<-chan domainevents.Envelope, func()) {
	s := b.stream(sessionID)
	sub := &subscriber{ch: make(chan domainevents.Envelope, b.bufferSize)}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// DropStream removes a session's stream and detaches its subscribers
func (b *Bus) DropStream(sessionID string) {
	b.mu.Lock()
	s, ok := b.streams[sessionID]
	if ok {
		delete(b.streams, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		delete(s.subscribers, sub)
		sub.close()
	}
}
