package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainevents "agora-backend/domain/events"
)

func notice(actorID string) domainevents.DomainEvent {
	return domainevents.NewVersionConflictNotice("node-1", 1, 2, actorID, time.Now())
}

func drain(ch <-chan domainevents.Envelope) []domainevents.Envelope {
	var got []domainevents.Envelope
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, env)
		default:
			return got
		}
	}
}

func TestBus_SequencesAreMonotonic(t *testing.T) {
	bus := NewBus(16, nil, nil)
	ch, cancel := bus.Subscribe("session-1")
	defer cancel()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "session-1", notice("a")))
	require.NoError(t, bus.PublishBatch(ctx, "session-1", []domainevents.DomainEvent{
		notice("b"), notice("c"),
	}))

	got := drain(ch)
	require.Len(t, got, 3)
	for i, env := range got {
		assert.Equal(t, uint64(i+1), env.Sequence)
		assert.Equal(t, "session-1", env.SessionID)
		assert.Equal(t, "mutation.version_conflict", env.EventType)
	}
}

func TestBus_StreamsAreIsolated(t *testing.T) {
	bus := NewBus(16, nil, nil)
	chA, cancelA := bus.Subscribe("session-a")
	defer cancelA()
	chB, cancelB := bus.Subscribe("session-b")
	defer cancelB()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "session-a", notice("a")))
	require.NoError(t, bus.Publish(ctx, "session-b", notice("b")))
	require.NoError(t, bus.Publish(ctx, "session-b", notice("b")))

	assert.Len(t, drain(chA), 1)

	// Each session numbers its own stream from 1
	gotB := drain(chB)
	require.Len(t, gotB, 2)
	assert.Equal(t, uint64(1), gotB[0].Sequence)
	assert.Equal(t, uint64(2), gotB[1].Sequence)
}

func TestBus_SlowSubscriberIsDisconnected(t *testing.T) {
	bus := NewBus(2, nil, nil)
	ch, cancel := bus.Subscribe("session-1")
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, "session-1", notice("a")))
	}

	// The buffered events are still readable, then the channel closes:
	// the consumer observes the loss instead of a silent sequence gap
	got := drain(ch)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Sequence)
	assert.Equal(t, uint64(2), got[1].Sequence)

	_, ok := <-ch
	assert.False(t, ok)

	// A fresh subscription picks the stream back up
	ch2, cancel2 := bus.Subscribe("session-1")
	defer cancel2()
	require.NoError(t, bus.Publish(ctx, "session-1", notice("a")))
	got = drain(ch2)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(6), got[0].Sequence)
}

func TestBus_CancelDetachesAndCloses(t *testing.T) {
	bus := NewBus(16, nil, nil)
	ch, cancel := bus.Subscribe("session-1")

	cancel()
	cancel() // Safe to call twice

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after detach reaches nobody and does not panic
	require.NoError(t, bus.Publish(context.Background(), "session-1", notice("a")))
}

func TestBus_DropStreamClosesSubscribers(t *testing.T) {
	bus := NewBus(16, nil, nil)
	ch, cancel := bus.Subscribe("session-1")
	defer cancel()

	bus.DropStream("session-1")

	_, ok := <-ch
	assert.False(t, ok)

	// A new stream for the same session starts numbering over
	ch2, cancel2 := bus.Subscribe("session-1")
	defer cancel2()
	require.NoError(t, bus.Publish(context.Background(), "session-1", notice("a")))
	got := drain(ch2)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Sequence)
}
