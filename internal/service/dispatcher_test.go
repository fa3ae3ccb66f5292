package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

type recordingCameras struct {
	mu     sync.Mutex
	frames []string
}

func (r *recordingCameras) HandleMessage(_ context.Context, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(raw))
	return nil
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	f := newProgramFixture(t, nil)
	cams := &recordingCameras{}
	d := NewDispatcher(f.svc, cams)
	ctx := context.Background()

	frame := func(v interface{}) []byte {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return raw
	}

	d.Dispatch(ctx, frame(map[string]string{"cmd": domain.CmdGetState, "_from": "remote:1"}))
	require.Len(t, f.relay.broadcasts(), 1)

	offer := frame(domain.SDPMessage{Cmd: domain.CmdCameraOffer, DeviceID: "A", Target: domain.TargetOperator, SDP: "v=0"})
	d.Dispatch(ctx, offer)
	d.Dispatch(ctx, frame(map[string]string{"type": domain.TypeState}))
	d.Dispatch(ctx, frame(map[string]string{"type": domain.TypeAuthOK}))
	d.Dispatch(ctx, []byte("garbage"))

	assert.Equal(t, []string{string(offer)}, cams.frames)
	assert.Len(t, f.relay.broadcasts(), 1)

	d.Dispatch(ctx, frame(map[string]string{"cmd": domain.CmdGetSongs, "_from": "remote:1"}))
	bc := f.relay.broadcasts()
	require.Len(t, bc, 2)
	assert.Equal(t, domain.TypeSongs, bc[1]["type"])
	d.Dispatch(ctx, frame(map[string]string{"type": domain.TypeSongs}))
	assert.Len(t, cams.frames, 1, "song lists are not camera frames")
}

func TestDispatcher_WithoutProgramOwner(t *testing.T) {
	cams := &recordingCameras{}
	d := NewDispatcher(nil, cams)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages := make(chan []byte, 2)
	messages <- []byte(`{"cmd":"go_live"}`)
	messages <- []byte(`{"type":"camera_source_connected","device_id":"A"}`)
	close(messages)

	require.NoError(t, d.Run(ctx, messages))
	assert.Equal(t, []string{`{"type":"camera_source_connected","device_id":"A"}`}, cams.frames)
}
