package service

import (
	"context"
	"encoding/json"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// CameraHandler consumes camera signaling frames.
type CameraHandler interface {
	HandleMessage(ctx context.Context, raw []byte) error
}

// Dispatcher routes frames a window receives from the relay. Remote panel
// commands go to the program controller, everything else to the cameras.
type Dispatcher struct {
	program ProgramService
	cameras CameraHandler
}

// NewDispatcher creates a dispatcher. program may be nil in windows that do
// not own the program state.
func NewDispatcher(program ProgramService, cameras CameraHandler) *Dispatcher {
	return &Dispatcher{program: program, cameras: cameras}
}

// Dispatch handles one frame.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	l := log.Ctx(ctx)

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		l.Debug().Err(err).Msg("malformed relay frame ignored")
		return
	}

	switch env.Cmd {
	case domain.CmdGetState, domain.CmdGetSongs, domain.CmdGoLive, domain.CmdShowLT, domain.CmdHideLT:
		if d.program == nil {
			l.Debug().Str(log.FieldCmd, env.Cmd).Msg("remote command ignored, no program owner")
			return
		}
		d.program.HandleRemote(ctx, raw)
		return
	}

	switch env.Type {
	case domain.TypeAuthOK, domain.TypeState, domain.TypeLTUpdate, domain.TypeSongs:
		return
	case domain.TypeError:
		l.Warn().RawJSON("frame", raw).Msg("relay reported an error")
		return
	}

	if d.cameras == nil {
		return
	}
	if err := d.cameras.HandleMessage(ctx, raw); err != nil {
		l.Warn().Err(err).Msg("camera frame rejected")
	}
}

// Run dispatches frames until ctx is done or messages closes. Frames are
// handled one at a time in receipt order.
func (d *Dispatcher) Run(ctx context.Context, messages <-chan []byte) error {
	for {
		select {
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, raw)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
