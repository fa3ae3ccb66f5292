package cache

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// MemorySnapshotCache keeps snapshots in process. Used when every window
// runs in one process and in tests.
type MemorySnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]domain.ProgramState
}

var _ SnapshotCache = (*MemorySnapshotCache)(nil)

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{snapshots: make(map[string]domain.ProgramState)}
}

func (c *MemorySnapshotCache) BuildKey(session string) string {
	return "snapshot:" + session
}

func (c *MemorySnapshotCache) Get(_ context.Context, session string) (domain.ProgramState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.snapshots[c.BuildKey(session)]
	if !ok {
		return domain.ProgramState{}, ErrCacheMiss
	}
	return st.Clone(), nil
}

// Set stores state unless the held snapshot is newer in the same epoch.
func (c *MemorySnapshotCache) Set(_ context.Context, session string, state domain.ProgramState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.BuildKey(session)
	if cur, ok := c.snapshots[key]; ok && !state.Supersedes(cur) {
		return nil
	}
	c.snapshots[key] = state.Clone()
	return nil
}

func (c *MemorySnapshotCache) Close() error {
	return nil
}
