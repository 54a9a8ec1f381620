package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

func TestEmitter_PublishAndReceive(t *testing.T) {
	emitter := NewDefaultEventEmitter()
	defer emitter.Close()

	ch, cleanup := emitter.Subscribe(context.Background())
	defer cleanup()

	runID := types.NewID()
	err := emitter.Emit(context.Background(), newRunEvent(EventNodeStarted, runID, "add-auth", nil))
	require.NoError(t, err)

	select {
	case event := <-ch:
		assert.Equal(t, EventNodeStarted, event.Type)
		assert.Equal(t, runID, event.RunID)
		assert.Equal(t, "add-auth", event.NodeID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected an event on the subscriber channel")
	}
}

func TestEmitter_FanOut(t *testing.T) {
	emitter := NewDefaultEventEmitter()
	defer emitter.Close()

	first, cleanupFirst := emitter.Subscribe(context.Background())
	defer cleanupFirst()
	second, cleanupSecond := emitter.Subscribe(context.Background())
	defer cleanupSecond()

	assert.Equal(t, 2, emitter.SubscriberCount())

	require.NoError(t, emitter.Emit(context.Background(), newRunEvent(EventRunStarted, types.NewID(), "", nil)))

	for _, ch := range []<-chan RunEvent{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, EventRunStarted, event.Type)
		case <-time.After(time.Second):
			t.Fatal("every subscriber should receive the event")
		}
	}
}

func TestEmitter_SlowSubscriberDropsEvents(t *testing.T) {
	emitter := NewDefaultEventEmitter(WithBufferSize(1))
	defer emitter.Close()

	_, cleanup := emitter.Subscribe(context.Background())
	defer cleanup()

	runID := types.NewID()
	// Nothing reads the channel; only the first event fits.
	for i := 0; i < 3; i++ {
		require.NoError(t, emitter.Emit(context.Background(), newRunEvent(EventNodeStarted, runID, "slow", nil)))
	}
}

func TestEmitter_Unsubscribe(t *testing.T) {
	emitter := NewDefaultEventEmitter()
	defer emitter.Close()

	ch, cleanup := emitter.Subscribe(context.Background())
	cleanup()

	assert.Equal(t, 0, emitter.SubscriberCount())

	_, open := <-ch
	assert.False(t, open, "unsubscribing must close the channel")
}

func TestEmitter_EmitAfterClose(t *testing.T) {
	emitter := NewDefaultEventEmitter()
	ch, cleanup := emitter.Subscribe(context.Background())
	defer cleanup()

	require.NoError(t, emitter.Close())
	require.NoError(t, emitter.Close(), "closing twice is a no-op")

	err := emitter.Emit(context.Background(), newRunEvent(EventRunCompleted, types.NewID(), "", nil))
	assert.Error(t, err)

	_, open := <-ch
	assert.False(t, open, "close must close subscriber channels")
}
