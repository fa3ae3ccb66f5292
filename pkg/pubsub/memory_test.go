package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return nil
	}
}

func TestMemory_PublishOrderAndCopy(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx := context.Background()

	ch, err := ps.Subscribe(ctx, "stage:main:program")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		ev, err := NewEvent(EventItemStaged, "main", map[string]int{"n": i})
		require.NoError(t, err)
		ev.Version = uint64(i)
		require.NoError(t, ps.Publish(ctx, "stage:main:program", ev))
	}

	for i := 1; i <= 3; i++ {
		ev := recv(t, ch)
		assert.Equal(t, uint64(i), ev.Version)
		var payload map[string]int
		require.NoError(t, ev.UnmarshalPayload(&payload))
		assert.Equal(t, i, payload["n"])
	}
}

func TestMemory_Pattern(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx := context.Background()

	_, err := ps.SubscribePattern(ctx, "[")
	assert.Error(t, err)

	ch, err := ps.SubscribePattern(ctx, "stage:*:control")
	require.NoError(t, err)

	ev, err := NewEvent(EventMediaControl, "main", nil)
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, "stage:main:program", ev))
	require.NoError(t, ps.Publish(ctx, "stage:main:control", ev))

	assert.Equal(t, EventMediaControl, recv(t, ch).Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestMemory_CancelAndClose(t *testing.T) {
	ps := NewMemoryPubSub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := ps.Subscribe(ctx, "c")
	require.NoError(t, err)
	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ps.Close())
	ev, err := NewEvent("x", "s", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ps.Publish(context.Background(), "c", ev), ErrClosed)
	_, err = ps.Subscribe(context.Background(), "c")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemory_FullBufferHonoursContext(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	_, err := ps.Subscribe(context.Background(), "slow")
	require.NoError(t, err)

	ev, err := NewEvent("x", "s", nil)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, ps.Publish(context.Background(), "slow", ev))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ps.Publish(ctx, "slow", ev), context.DeadlineExceeded)
}
