package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-stage/internal/cache"
	"github.com/weiawesome/wes-io-stage/internal/compositor"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
	"github.com/weiawesome/wes-io-stage/internal/metrics"
	"github.com/weiawesome/wes-io-stage/internal/statebus"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// ProgramCameras is the part of the camera registry the output drives.
type ProgramCameras interface {
	HandleMessage(ctx context.Context, raw []byte) error
	SetProgram(ctx context.Context, deviceID string) error
	ProgramDevice() string
}

// OutputFrame is what the output window draws.
type OutputFrame struct {
	Version  uint64 `json:"version"`
	Blackout bool   `json:"blackout"`
	// Nodes are ordered bottom to top. They are empty during blackout.
	Nodes      []compositor.RenderNode `json:"nodes"`
	LowerThird *lowerthird.Overlay     `json:"lower_third,omitempty"`
	// ProgramDevice is the camera the live item shows, or "".
	ProgramDevice string `json:"program_device,omitempty"`
	// CameraBlanked is set while the program camera has no usable feed.
	CameraBlanked bool `json:"camera_blanked"`
}

// OutputService renders the replicated program state for the output window
// and keeps the program camera on whatever device the live item shows.
type OutputService interface {
	// Run follows the bus until ctx is done.
	Run(ctx context.Context) error
	// Frame returns the latest frame.
	Frame() OutputFrame
	// Updates yields the latest frame after each change. Slow readers skip
	// intermediate frames.
	Updates() <-chan OutputFrame
	// HandleMessage passes a relay frame to the cameras and retries the
	// program camera when a source appears.
	HandleMessage(ctx context.Context, raw []byte) error
	// CameraBlank and CameraState are camera registry hooks.
	CameraBlank(deviceID string)
	CameraState(deviceID string, role domain.CameraRole, state domain.ConnectionState)
}

type outputService struct {
	bus       *statebus.Bus
	snapshots cache.SnapshotCache
	cameras   ProgramCameras
	canvas    domain.Canvas

	replica *statebus.Replica
	retry   chan struct{}
	updates chan OutputFrame

	mu      sync.Mutex
	state   domain.ProgramState
	blanked map[string]bool
	frame   OutputFrame
}

// NewOutputService creates the output renderer. snapshots may be nil.
func NewOutputService(bus *statebus.Bus, snapshots cache.SnapshotCache, cameras ProgramCameras, canvas domain.Canvas) OutputService {
	if canvas.W <= 0 || canvas.H <= 0 {
		canvas = domain.HD
	}
	return &outputService{
		bus:       bus,
		snapshots: snapshots,
		cameras:   cameras,
		canvas:    canvas,
		retry:     make(chan struct{}, 1),
		updates:   make(chan OutputFrame, 1),
		blanked:   make(map[string]bool),
	}
}

func (s *outputService) Run(ctx context.Context) error {
	seed, _ := s.readSnapshot(ctx)
	s.replica = statebus.NewReplica(seed)
	s.apply(ctx, seed)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.replica.Follow(ctx, s.bus, s.readSnapshot)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case st := <-s.replica.Updates():
				s.apply(ctx, st)
			case <-s.retry:
				s.followCamera(ctx)
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *outputService) readSnapshot(ctx context.Context) (domain.ProgramState, bool) {
	if s.snapshots == nil {
		return domain.ProgramState{}, false
	}
	snap, err := s.snapshots.Get(ctx, s.bus.Session())
	switch {
	case err == nil:
		return snap, true
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to read program snapshot, waiting for deltas")
	}
	return domain.ProgramState{}, false
}

func (s *outputService) Frame() OutputFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *outputService) Updates() <-chan OutputFrame {
	return s.updates
}

func (s *outputService) HandleMessage(ctx context.Context, raw []byte) error {
	if err := s.cameras.HandleMessage(ctx, raw); err != nil {
		return err
	}
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Type == domain.TypeCameraSourceConnected {
		s.poke()
	}
	return nil
}

func (s *outputService) poke() {
	select {
	case s.retry <- struct{}{}:
	default:
	}
}

func (s *outputService) CameraBlank(deviceID string) {
	metrics.ObserveBlank(deviceID)
	s.mu.Lock()
	s.blanked[deviceID] = true
	s.renderLocked()
	s.mu.Unlock()
	log.L().Warn().Str(log.FieldDeviceID, deviceID).Msg("program camera lost, output region blanked")
	// The device may come back; ask for it again on the next source event.
	s.poke()
}

func (s *outputService) CameraState(deviceID string, role domain.CameraRole, state domain.ConnectionState) {
	metrics.ObserveCameraState(deviceID, role, state)
	if role != domain.RoleProgram || state != domain.StateConnected {
		return
	}
	s.mu.Lock()
	if s.blanked[deviceID] {
		delete(s.blanked, deviceID)
		s.renderLocked()
	}
	s.mu.Unlock()
}

func (s *outputService) apply(ctx context.Context, st domain.ProgramState) {
	s.mu.Lock()
	s.state = st
	s.renderLocked()
	s.mu.Unlock()
	s.followCamera(ctx)
}

// renderLocked rebuilds the frame from the current state. mu must be held.
func (s *outputService) renderLocked() {
	l := log.L()
	st := s.state
	frame := OutputFrame{
		Version:  st.Version,
		Blackout: st.Blackout,
		Nodes:    []compositor.RenderNode{},
	}

	if st.Live != nil {
		nodes, err := compositor.Compose(liveScene(st.Live), compositor.ModeOutput, s.canvas)
		if err != nil {
			// An unrenderable item leaves the output empty.
			l.Error().Err(err).Str(log.FieldItemKind, string(st.Live.Kind())).Msg("live item cannot be composed")
		}
		frame.ProgramDevice = programDevice(nodes)
		for i, n := range nodes {
			if cam, ok := n.Item.(domain.CameraFeed); ok && s.blanked[cam.DeviceID] {
				nodes[i] = blankNode(n)
				if cam.DeviceID == frame.ProgramDevice {
					frame.CameraBlanked = true
				}
			}
		}
		if !st.Blackout && nodes != nil {
			frame.Nodes = nodes
		}
	}
	if st.LowerThird != nil && !st.Blackout {
		o := lowerthird.Resolve(*st.LowerThird, s.canvas)
		frame.LowerThird = &o
	}

	s.frame = frame
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- frame:
	default:
	}
}

// followCamera moves the program camera to the live item's device. A
// blanked region stays black until the new session reports connected.
func (s *outputService) followCamera(ctx context.Context) {
	s.mu.Lock()
	want := s.frame.ProgramDevice
	s.mu.Unlock()

	if s.cameras.ProgramDevice() == want {
		return
	}
	if err := s.cameras.SetProgram(ctx, want); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldDeviceID, want).Msg("program camera not switched, waiting for source")
	}
}

// liveScene wraps a live item as a scene so every item goes through the
// compositor.
func liveScene(item domain.DisplayItem) domain.Scene {
	if sc, ok := item.(domain.SceneItem); ok {
		return sc.Scene
	}
	return domain.Scene{
		ID: "live",
		Layers: []domain.SceneLayer{{
			ID:       "live",
			Content:  domain.ItemContent{Item: item},
			Geometry: domain.FullCanvas,
			Opacity:  1,
			Visible:  true,
		}},
	}
}

// programDevice picks the topmost camera of a render list.
func programDevice(nodes []compositor.RenderNode) string {
	for i := len(nodes) - 1; i >= 0; i-- {
		if cam, ok := nodes[i].Item.(domain.CameraFeed); ok {
			return cam.DeviceID
		}
	}
	return ""
}

func blankNode(n compositor.RenderNode) compositor.RenderNode {
	return compositor.RenderNode{
		LayerID:  n.LayerID,
		Name:     n.Name,
		Z:        n.Z,
		Rect:     n.Rect,
		Opacity:  1,
		Renderer: compositor.RendererBackground,
		Color:    "#000000",
	}
}
