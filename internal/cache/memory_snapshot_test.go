package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

func TestMemorySnapshotCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySnapshotCache()

	_, err := c.Get(ctx, "main")
	assert.ErrorIs(t, err, ErrCacheMiss)

	v3 := domain.ProgramState{Version: 3, Live: domain.Timer{TimerType: "countdown"}}
	require.NoError(t, c.Set(ctx, "main", v3))
	require.NoError(t, c.Set(ctx, "main", domain.ProgramState{Version: 2}))

	got, err := c.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Version)
	assert.Equal(t, v3.Live, got.Live)

	_, err = c.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemorySnapshotCache_NewEpochReplaces(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySnapshotCache()

	require.NoError(t, c.Set(ctx, "main", domain.ProgramState{Version: 40, Epoch: "A"}))
	require.NoError(t, c.Set(ctx, "main", domain.ProgramState{Version: 1, Epoch: "B"}))
	got, err := c.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Epoch)
	assert.Equal(t, uint64(1), got.Version)

	require.NoError(t, c.Set(ctx, "main", domain.ProgramState{Version: 1, Epoch: "B"}))
	require.NoError(t, c.Set(ctx, "main", domain.ProgramState{Version: 2, Epoch: "B"}))
	got, err = c.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
}
