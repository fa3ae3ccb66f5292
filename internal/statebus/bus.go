package statebus

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-io-stage/internal/program"
	"github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/pubsub"
)

// Bus replicates program deltas and control events for one session over a
// pubsub backend.
type Bus struct {
	ps      pubsub.PubSub
	session string
}

// New creates a bus bound to session.
func New(ps pubsub.PubSub, session string) *Bus {
	return &Bus{ps: ps, session: session}
}

// Session returns the session id the bus is bound to.
func (b *Bus) Session() string {
	return b.session
}

// PublishDelta broadcasts a program transition.
func (b *Bus) PublishDelta(ctx context.Context, d program.Delta) error {
	event, err := pubsub.NewEvent(pubsub.EventProgramDelta, b.session, d)
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	event.Version = d.Version()

	if err := b.ps.Publish(ctx, pubsub.ProgramChannel(b.session), event); err != nil {
		return fmt.Errorf("publish delta v%d: %w", d.Version(), err)
	}
	return nil
}

// Emit broadcasts an ad-hoc control event such as transcription-update.
func (b *Bus) Emit(ctx context.Context, eventType string, payload interface{}) error {
	event, err := pubsub.NewEvent(eventType, b.session, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	if err := b.ps.Publish(ctx, pubsub.ControlChannel(b.session), event); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Deltas subscribes to program transitions. Undecodable events are logged
// and skipped. The channel closes when ctx is done or the backend closes.
func (b *Bus) Deltas(ctx context.Context) (<-chan program.Delta, error) {
	events, err := b.ps.Subscribe(ctx, pubsub.ProgramChannel(b.session))
	if err != nil {
		return nil, fmt.Errorf("subscribe program: %w", err)
	}

	out := make(chan program.Delta, 16)
	go func() {
		defer close(out)
		l := log.Ctx(ctx)
		for event := range events {
			if event.Type != pubsub.EventProgramDelta {
				continue
			}
			var d program.Delta
			if err := event.UnmarshalPayload(&d); err != nil {
				l.Warn().Err(err).Uint64(log.FieldVersion, event.Version).Msg("dropping undecodable delta")
				continue
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Control subscribes to ad-hoc control events.
func (b *Bus) Control(ctx context.Context) (<-chan *pubsub.Event, error) {
	events, err := b.ps.Subscribe(ctx, pubsub.ControlChannel(b.session))
	if err != nil {
		return nil, fmt.Errorf("subscribe control: %w", err)
	}
	return events, nil
}
