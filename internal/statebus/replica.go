package statebus

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/program"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// Replica is a read-only cache of the program state held by a window that
// does not own it. It is seeded from a snapshot and then advanced by deltas
// in version order; stale or duplicate deltas are dropped. A delta from a
// new owner epoch is always taken, since a restarted owner counts from 1.
type Replica struct {
	mu      sync.RWMutex
	state   domain.ProgramState
	updates chan domain.ProgramState
}

// NewReplica creates a replica seeded with snap.
func NewReplica(snap domain.ProgramState) *Replica {
	return &Replica{
		state:   snap.Clone(),
		updates: make(chan domain.ProgramState, 1),
	}
}

// State returns a copy of the cached state.
func (r *Replica) State() domain.ProgramState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Version returns the cached version.
func (r *Replica) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Version
}

// Updates yields the latest state after each applied delta. Only the most
// recent unread state is kept; slow readers skip intermediate versions.
func (r *Replica) Updates() <-chan domain.ProgramState {
	return r.updates
}

// Apply installs d if it supersedes the cached state and reports whether
// it did.
func (r *Replica) Apply(d program.Delta) bool {
	r.mu.Lock()
	if !d.State.Supersedes(r.state) {
		r.mu.Unlock()
		return false
	}
	r.state = d.State.Clone()
	next := r.state.Clone()
	r.mu.Unlock()

	// Replace any unread update with the newer one.
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- next:
	default:
	}
	return true
}

// Resync replaces the cache with a fresh snapshot when it supersedes the
// cached state, e.g. after the bus reconnects.
func (r *Replica) Resync(snap domain.ProgramState) bool {
	return r.Apply(program.Delta{Op: program.OpReset, State: snap})
}

// SnapshotFunc reads the latest stored program state. ok is false when
// there is none.
type SnapshotFunc func(ctx context.Context) (snap domain.ProgramState, ok bool)

// Follow applies deltas from the bus until ctx is done. When snapshot is
// set it is read once the subscription is live, so a delta published
// between the seed read and the subscribe is not lost.
func (r *Replica) Follow(ctx context.Context, bus *Bus, snapshot SnapshotFunc) error {
	deltas, err := bus.Deltas(ctx)
	if err != nil {
		return err
	}

	l := log.Ctx(ctx)
	if snapshot != nil {
		if snap, ok := snapshot(ctx); ok && r.Resync(snap) {
			l.Info().Uint64(log.FieldVersion, snap.Version).Msg("program replica resynced from snapshot")
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deltas:
			if !ok {
				return nil
			}
			if !r.Apply(d) {
				l.Debug().
					Uint64(log.FieldVersion, d.Version()).
					Uint64("local_version", r.Version()).
					Msg("stale program delta ignored")
			}
		}
	}
}
