package events

import (
	"time"
)

// DomainEvent is the base interface for all session events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// Envelope wraps a domain event for outward delivery. Sequence numbers are
// assigned per session and strictly monotonic; delivery is at-least-once.
type Envelope struct {
	Sequence  uint64      `json:"sequence"`
	SessionID string      `json:"session_id"`
	EventType string      `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
	Event     DomainEvent `json:"event"`
}
