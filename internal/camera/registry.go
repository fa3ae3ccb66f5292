package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/webrtc"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

var (
	ErrUnknownDevice  = errors.New("unknown camera device")
	ErrTooManySources = errors.New("camera source limit reached")
)

// Config bounds the registry.
type Config struct {
	// MaxSources caps known devices; 0 means unlimited.
	MaxSources int `mapstructure:"max_sources"`
}

// Registry owns every camera session in the process. Preview sessions are
// keyed by device; at most one program session exists at a time.
type Registry struct {
	ctx     context.Context
	cancel  context.CancelFunc
	factory webrtc.Factory
	sender  Sender
	hooks   Hooks
	cfg     Config

	// switchMu serialises program switches so teardown of the old session
	// always precedes creation of the new one.
	switchMu sync.Mutex

	mu       sync.Mutex
	sources  map[string]string // device id -> name
	previews map[string]*Session
	program  *Session
}

// NewRegistry creates a registry whose sessions live until ctx is done or
// Close is called.
func NewRegistry(ctx context.Context, factory webrtc.Factory, sender Sender, cfg Config, hooks Hooks) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		ctx:      ctx,
		cancel:   cancel,
		factory:  factory,
		sender:   sender,
		hooks:    hooks,
		cfg:      cfg,
		sources:  make(map[string]string),
		previews: make(map[string]*Session),
	}
}

// HandleMessage dispatches one relay message. Messages that are not camera
// signaling, or that name unknown devices, are ignored.
func (r *Registry) HandleMessage(ctx context.Context, raw []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode relay message: %w", err)
	}
	l := log.Ctx(ctx)

	switch {
	case env.Type == domain.TypeCameraSourceConnected:
		var msg domain.SourceMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode source message: %w", err)
		}
		err := r.SourceConnected(msg.DeviceID, msg.DeviceName)
		if errors.Is(err, ErrTooManySources) {
			l.Warn().Str(log.FieldDeviceID, msg.DeviceID).Msg("camera source rejected, limit reached")
			return nil
		}
		return err

	case env.Type == domain.TypeCameraSourceDisconnected:
		r.SourceDisconnected(ctx, env.DeviceID)
		return nil

	case env.Cmd == domain.CmdCameraOffer:
		var msg domain.SDPMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}
		s := r.route(msg.DeviceID, msg.Target)
		if s == nil {
			l.Debug().Str(log.FieldDeviceID, msg.DeviceID).Str(log.FieldTarget, msg.Target).Msg("offer for unknown session ignored")
			return nil
		}
		s.Offer(msg.SDP)
		return nil

	case env.Cmd == domain.CmdCameraICE:
		var msg domain.ICEMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode candidate: %w", err)
		}
		s := r.route(msg.DeviceID, msg.Target)
		if s == nil {
			l.Debug().Str(log.FieldDeviceID, msg.DeviceID).Msg("candidate for unknown session ignored")
			return nil
		}
		s.AddRemoteCandidate(msg.Candidate)
		return nil
	}
	return nil
}

// route picks the session an inbound offer or candidate belongs to. The
// target names the consuming window, which fixes the role.
func (r *Registry) route(deviceID, target string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if domain.NormalizeTarget(target) == domain.ClientWindowOutput {
		if r.program != nil && r.program.DeviceID() == deviceID {
			return r.program
		}
		return nil
	}
	return r.previews[deviceID]
}

// SourceConnected records a device and creates its idle preview session.
// A repeat announcement only updates the name.
func (r *Registry) SourceConnected(deviceID, name string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrUnknownDevice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[deviceID]; ok {
		r.sources[deviceID] = name
		return nil
	}
	if r.cfg.MaxSources > 0 && len(r.sources) >= r.cfg.MaxSources {
		return ErrTooManySources
	}
	r.sources[deviceID] = name
	r.previews[deviceID] = newSession(r.ctx, deviceID, domain.RolePreview, r.factory, r.sender, r.hooks)
	log.L().Info().Str(log.FieldDeviceID, deviceID).Str("device_name", name).Msg("camera source connected")
	return nil
}

// SourceDisconnected destroys every session of the device. Losing the
// program device blanks the output.
func (r *Registry) SourceDisconnected(ctx context.Context, deviceID string) {
	r.mu.Lock()
	if _, ok := r.sources[deviceID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sources, deviceID)
	preview := r.previews[deviceID]
	delete(r.previews, deviceID)
	var program *Session
	if r.program != nil && r.program.DeviceID() == deviceID {
		program = r.program
		r.program = nil
	}
	r.mu.Unlock()

	l := log.Ctx(ctx)
	if preview != nil {
		if err := preview.Remove(ctx); err != nil {
			l.Warn().Err(err).Str(log.FieldDeviceID, deviceID).Msg("preview session removal interrupted")
		}
	}
	if program != nil {
		if err := program.Remove(ctx); err != nil {
			l.Warn().Err(err).Str(log.FieldDeviceID, deviceID).Msg("program session removal interrupted")
		}
		if r.hooks.OnBlank != nil {
			r.hooks.OnBlank(deviceID)
		}
	}
	l.Info().Str(log.FieldDeviceID, deviceID).Msg("camera source disconnected")
}

// EnablePreview starts the device's preview connection.
func (r *Registry) EnablePreview(ctx context.Context, deviceID string) error {
	s, err := r.preview(deviceID)
	if err != nil {
		return err
	}
	return s.Enable(ctx)
}

// DisablePreview closes the device's preview connection.
func (r *Registry) DisablePreview(ctx context.Context, deviceID string) error {
	s, err := r.preview(deviceID)
	if err != nil {
		return err
	}
	return s.Disable(ctx)
}

func (r *Registry) preview(deviceID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.previews[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return s, nil
}

// SetProgram makes deviceID the program camera. The previous program
// session is removed and its device told to stop before the new device is
// asked to connect. An empty id releases the program role.
func (r *Registry) SetProgram(ctx context.Context, deviceID string) error {
	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	r.mu.Lock()
	old := r.program
	if old != nil && old.DeviceID() == deviceID {
		r.mu.Unlock()
		return nil
	}
	if _, ok := r.sources[deviceID]; deviceID != "" && !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	r.program = nil
	r.mu.Unlock()

	l := log.Ctx(ctx)
	if old != nil {
		if err := old.Remove(ctx); err != nil {
			return fmt.Errorf("remove program session %s: %w", old.DeviceID(), err)
		}
		r.send(ctx, domain.ProgramCommand{Cmd: domain.CmdCameraDisconnectProgram, DeviceID: old.DeviceID()})
		l.Info().Str(log.FieldDeviceID, old.DeviceID()).Msg("program camera released")
	}
	if deviceID == "" {
		return nil
	}

	s := newSession(r.ctx, deviceID, domain.RoleProgram, r.factory, r.sender, r.hooks)
	if err := s.Enable(ctx); err != nil {
		_ = s.Remove(context.WithoutCancel(ctx))
		return fmt.Errorf("enable program session %s: %w", deviceID, err)
	}

	r.mu.Lock()
	if _, ok := r.sources[deviceID]; !ok {
		// The device left while we were switching.
		r.mu.Unlock()
		_ = s.Remove(ctx)
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	r.program = s
	r.mu.Unlock()

	r.send(ctx, domain.ProgramCommand{Cmd: domain.CmdCameraConnectProgram, DeviceID: deviceID})
	l.Info().Str(log.FieldDeviceID, deviceID).Msg("program camera requested")
	return nil
}

func (r *Registry) send(ctx context.Context, msg interface{}) {
	if err := r.sender.Send(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("program command not sent")
	}
}

// ProgramDevice returns the device holding the program role, or "".
func (r *Registry) ProgramDevice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program == nil {
		return ""
	}
	return r.program.DeviceID()
}

// ProgramStream returns the program video, or nil.
func (r *Registry) ProgramStream() *Stream {
	r.mu.Lock()
	s := r.program
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stream()
}

// PreviewStream returns the device's preview video, or nil.
func (r *Registry) PreviewStream(deviceID string) *Stream {
	r.mu.Lock()
	s := r.previews[deviceID]
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stream()
}

// Sources lists known devices sorted by id.
func (r *Registry) Sources() []domain.CameraSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.CameraSource, 0, len(r.sources))
	for id, name := range r.sources {
		src := domain.CameraSource{
			DeviceID:        id,
			Name:            name,
			ConnectionState: domain.StateDisconnected,
		}
		if p := r.previews[id]; p != nil {
			src.PreviewEnabled = p.Enabled()
			src.ConnectionState = p.State()
		}
		if r.program != nil && r.program.DeviceID() == id {
			src.Program = true
			src.ConnectionState = stronger(src.ConnectionState, r.program.State())
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func stronger(a, b domain.ConnectionState) domain.ConnectionState {
	rank := func(s domain.ConnectionState) int {
		switch s {
		case domain.StateConnected:
			return 2
		case domain.StateConnecting:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// Close removes every session. Devices still pushing a preview are told to
// stop.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	previews := make([]*Session, 0, len(r.previews))
	for _, s := range r.previews {
		previews = append(previews, s)
	}
	program := r.program
	r.previews = make(map[string]*Session)
	r.sources = make(map[string]string)
	r.program = nil
	r.mu.Unlock()

	for _, s := range previews {
		// Disabling a preview that is not idle sends camera_preview_stop.
		_ = s.Disable(ctx)
		_ = s.Remove(ctx)
	}
	if program != nil {
		_ = program.Remove(ctx)
	}
	r.cancel()
}
