package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/cache"
	"github.com/weiawesome/wes-io-stage/internal/compositor"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/program"
	"github.com/weiawesome/wes-io-stage/internal/statebus"
	"github.com/weiawesome/wes-io-stage/pkg/pubsub"
)

type fakeProgramCameras struct {
	mu       sync.Mutex
	sources  map[string]bool
	program  string
	switches []string
}

func (f *fakeProgramCameras) HandleMessage(_ context.Context, raw []byte) error {
	var msg domain.SourceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	if msg.Type == domain.TypeCameraSourceConnected {
		f.mu.Lock()
		f.sources[msg.DeviceID] = true
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeProgramCameras) SetProgram(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if deviceID != "" && !f.sources[deviceID] {
		return fmt.Errorf("unknown camera device: %s", deviceID)
	}
	f.program = deviceID
	f.switches = append(f.switches, deviceID)
	return nil
}

func (f *fakeProgramCameras) ProgramDevice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.program
}

func (f *fakeProgramCameras) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.switches...)
}

type outputFixture struct {
	svc     OutputService
	bus     *statebus.Bus
	owner   *program.State
	cameras *fakeProgramCameras
}

func newOutputFixture(t *testing.T, seed *domain.ProgramState, sources ...string) *outputFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	ps := pubsub.NewMemoryPubSub()
	snaps := cache.NewMemorySnapshotCache()
	f := &outputFixture{
		bus:     statebus.New(ps, "test"),
		owner:   program.New(),
		cameras: &fakeProgramCameras{sources: make(map[string]bool)},
	}
	for _, id := range sources {
		f.cameras.sources[id] = true
	}
	if seed != nil {
		require.NoError(t, snaps.Set(ctx, "test", *seed))
		f.owner = program.FromSnapshot(*seed)
	}
	f.svc = NewOutputService(f.bus, snaps, f.cameras, domain.HD)

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		ps.Close()
	})
	return f
}

// publish sends d until the output has rendered it; the first copies may
// race the subscription.
func (f *outputFixture) publish(t *testing.T, d program.Delta) OutputFrame {
	t.Helper()
	require.Eventually(t, func() bool {
		if f.svc.Frame().Version >= d.Version() {
			return true
		}
		_ = f.bus.PublishDelta(context.Background(), d)
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return f.svc.Frame()
}

func (f *outputFixture) goLive(t *testing.T, item domain.DisplayItem) OutputFrame {
	t.Helper()
	f.owner.Stage(item)
	d, ok := f.owner.GoLive()
	require.True(t, ok)
	return f.publish(t, d)
}

func renderers(nodes []compositor.RenderNode) []compositor.Renderer {
	out := make([]compositor.Renderer, len(nodes))
	for i, n := range nodes {
		out[i] = n.Renderer
	}
	return out
}

func TestOutput_SeedsFromSnapshotAndFollowsCamera(t *testing.T) {
	seed := domain.ProgramState{Live: domain.CameraFeed{DeviceID: "A"}, Version: 4}
	f := newOutputFixture(t, &seed, "A")

	require.Eventually(t, func() bool { return f.cameras.ProgramDevice() == "A" }, time.Second, 5*time.Millisecond)
	frame := f.svc.Frame()
	assert.Equal(t, uint64(4), frame.Version)
	assert.Equal(t, "A", frame.ProgramDevice)
	assert.Equal(t, []compositor.Renderer{compositor.RendererCamera}, renderers(frame.Nodes))

	frame = f.goLive(t, john316)
	assert.Equal(t, []compositor.Renderer{compositor.RendererVerse}, renderers(frame.Nodes))
	assert.Empty(t, frame.ProgramDevice)
	require.Eventually(t, func() bool { return f.cameras.ProgramDevice() == "" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", ""}, f.cameras.history())
}

func TestOutput_SceneCameraAndBlackout(t *testing.T) {
	f := newOutputFixture(t, nil, "pulpit", "wide")

	scene := domain.SceneItem{Scene: domain.Scene{ID: "s", Layers: []domain.SceneLayer{
		{ID: "bg", Content: domain.ItemContent{Item: domain.CameraFeed{DeviceID: "wide"}}, Geometry: domain.FullCanvas, Opacity: 1, Visible: true},
		{ID: "pip", Content: domain.ItemContent{Item: domain.CameraFeed{DeviceID: "pulpit"}}, Geometry: domain.Geometry{X: 70, Y: 70, W: 30, H: 30}, Opacity: 1, Visible: true},
	}}}
	frame := f.goLive(t, scene)
	assert.Equal(t, "pulpit", frame.ProgramDevice)
	assert.Len(t, frame.Nodes, 2)

	d, ok := f.owner.SetBlanked(true)
	require.True(t, ok)
	frame = f.publish(t, d)
	assert.True(t, frame.Blackout)
	assert.Empty(t, frame.Nodes)
	assert.Equal(t, "pulpit", frame.ProgramDevice, "camera stays connected under blackout")
	require.Eventually(t, func() bool { return f.cameras.ProgramDevice() == "pulpit" }, time.Second, 5*time.Millisecond)
}

func TestOutput_CameraFailureBlanksRegion(t *testing.T) {
	f := newOutputFixture(t, nil, "A")
	frame := f.goLive(t, domain.CameraFeed{DeviceID: "A"})
	require.Equal(t, compositor.RendererCamera, frame.Nodes[0].Renderer)

	f.svc.CameraBlank("A")
	frame = f.svc.Frame()
	assert.True(t, frame.CameraBlanked)
	require.Len(t, frame.Nodes, 1)
	assert.Equal(t, compositor.RendererBackground, frame.Nodes[0].Renderer)
	assert.Equal(t, "#000000", frame.Nodes[0].Color)

	f.svc.CameraState("A", domain.RolePreview, domain.StateConnected)
	assert.True(t, f.svc.Frame().CameraBlanked, "preview recovery does not clear the program blank")

	f.svc.CameraState("A", domain.RoleProgram, domain.StateConnected)
	frame = f.svc.Frame()
	assert.False(t, frame.CameraBlanked)
	assert.Equal(t, compositor.RendererCamera, frame.Nodes[0].Renderer)
}

func TestOutput_LateSourceIsPickedUp(t *testing.T) {
	f := newOutputFixture(t, nil)
	frame := f.goLive(t, domain.CameraFeed{DeviceID: "B"})
	assert.Equal(t, "B", frame.ProgramDevice)
	assert.Empty(t, f.cameras.ProgramDevice())

	raw, err := json.Marshal(domain.SourceMessage{Type: domain.TypeCameraSourceConnected, DeviceID: "B", DeviceName: "Balcony"})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleMessage(context.Background(), raw))

	require.Eventually(t, func() bool { return f.cameras.ProgramDevice() == "B" }, time.Second, 5*time.Millisecond)
}

func TestOutput_LowerThirdOverlay(t *testing.T) {
	f := newOutputFixture(t, nil)
	frame := f.publish(t, f.owner.ShowLowerThird(domain.LowerThirdPayload{
		Data:     domain.LowerThirdData{Kind: domain.LowerThirdNameplate, Title: "Guest"},
		Template: domain.DefaultTemplate(),
	}))
	require.NotNil(t, frame.LowerThird)
	assert.Equal(t, "Guest", frame.LowerThird.Title)
	assert.Empty(t, frame.Nodes)

	select {
	case got := <-f.svc.Updates():
		assert.Equal(t, frame.Version, got.Version)
	case <-time.After(time.Second):
		t.Fatal("no frame update")
	}
}
