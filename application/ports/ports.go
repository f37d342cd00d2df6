// Package ports declares the interfaces the application layer depends
// on. These are ports in the hexagonal sense: the domain never knows
// which adapter sits behind them.
package ports

import (
	"context"

	"agora-backend/domain/core/aggregates"
	"agora-backend/domain/events"
)

// Embedder turns one side's debate contributions into a position
// vector for oscillation detection
type Embedder interface {
	// EmbedRound embeds the concatenated contributions of one side of
	// one round
	EmbedRound(ctx context.Context, texts []string) ([]float64, error)
}

// EntropyEstimator scores the disagreement entropy of one debate round
type EntropyEstimator interface {
	// Estimate returns a non-negative entropy for the round's contributions
	Estimate(ctx context.Context, texts []string) (float64, error)
}

// Synthesizer produces the terminal synthesis summary for a session
type Synthesizer interface {
	// Synthesize summarizes the graph into a synthesis statement.
	// triggerReason records which convergence trigger forced it.
	Synthesize(ctx context.Context, snap *aggregates.Snapshot, triggerReason string) (string, error)
}

// SnapshotStore persists graph snapshots so a restarted process can
// recover session state. Writes may be applied behind the live graph.
type SnapshotStore interface {
	// SaveSnapshot persists a snapshot, replacing any previous one for
	// the session
	SaveSnapshot(ctx context.Context, snap *aggregates.Snapshot) error

	// LoadSnapshot retrieves the latest snapshot for a session
	LoadSnapshot(ctx context.Context, sessionID string) (*aggregates.Snapshot, error)

	// ListSessions returns the session IDs with a stored snapshot
	ListSessions(ctx context.Context) ([]string, error)

	// DeleteSession removes a session's stored state
	DeleteSession(ctx context.Context, sessionID string) error

	// Close flushes pending writes and releases the store
	Close() error
}

// EventPublisher delivers session events to subscribers
type EventPublisher interface {
	// Publish sends one event on a session's stream
	Publish(ctx context.Context, sessionID string, event events.DomainEvent) error

	// PublishBatch sends several events in order on a session's stream
	PublishBatch(ctx context.Context, sessionID string, batch []events.DomainEvent) error
}

// EventSubscriber attaches consumers to a session's event stream
type EventSubscriber interface {
	// Subscribe returns a channel of envelopes for the session plus a
	// cancel function. A consumer that falls behind its bounded buffer
	// is disconnected: the channel closes rather than dropping silently.
	Subscribe(sessionID string) (<-chan events.Envelope, func())
}
