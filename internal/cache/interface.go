package cache

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// SnapshotCache holds the latest program state of each session so a window
// that starts late can seed its replica before following deltas.
type SnapshotCache interface {
	Get(ctx context.Context, session string) (domain.ProgramState, error)
	Set(ctx context.Context, session string, state domain.ProgramState) error
	BuildKey(session string) string
	Close() error
}
