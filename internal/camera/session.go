package camera

import (
	"context"
	"errors"
	"sync"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/webrtc"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// ErrSessionClosed is returned by calls on a removed session.
var ErrSessionClosed = errors.New("camera session closed")

// Sender delivers a signaling message to the relay. Delivery is best
// effort; implementations drop rather than queue when not connected.
type Sender interface {
	Send(ctx context.Context, msg interface{}) error
}

// Hooks observe session changes. Both are called from the session's own
// goroutine and must not block.
type Hooks struct {
	// OnBlank fires when a program session loses its feed.
	OnBlank func(deviceID string)
	// OnState fires when the visible connection state changes.
	OnState func(deviceID string, role domain.CameraRole, state domain.ConnectionState)
}

type msgKind int

const (
	kindEvent msgKind = iota
	kindLocalICE
	kindRemoteICE
	kindTrack
	kindFlush
)

type envelope struct {
	kind  msgKind
	ev    Event
	sdp   string
	cand  domain.ICECandidate
	track webrtc.RemoteTrack
	// gen is the peer generation a callback belongs to; 0 for API calls.
	gen  uint64
	done chan error
}

// reply answers a caller waiting in do. done is buffered, so it never blocks.
func (e envelope) reply(err error) {
	if e.done != nil {
		e.done <- err
	}
}

// Session is one (device, role) consumer. Its state is owned by a single
// goroutine; API calls and peer callbacks only post envelopes to it.
type Session struct {
	deviceID string
	role     domain.CameraRole
	factory  webrtc.Factory
	sender   Sender
	hooks    Hooks
	mb       *mailbox
	exited   chan struct{}

	// Owned by run.
	phase   phase
	pending string
	peer    webrtc.Peer
	gen     uint64
	stream  *Stream

	viewMu     sync.RWMutex
	viewState  domain.ConnectionState
	viewWanted bool
	viewStream *Stream
}

func newSession(ctx context.Context, deviceID string, role domain.CameraRole, factory webrtc.Factory, sender Sender, hooks Hooks) *Session {
	s := &Session{
		deviceID:  deviceID,
		role:      role,
		factory:   factory,
		sender:    sender,
		hooks:     hooks,
		mb:        newMailbox(),
		exited:    make(chan struct{}),
		phase:     phaseIdle,
		viewState: domain.StateDisconnected,
	}
	go s.run(ctx)
	return s
}

// DeviceID returns the remote device this session consumes.
func (s *Session) DeviceID() string { return s.deviceID }

// Role returns preview or program.
func (s *Session) Role() domain.CameraRole { return s.role }

// State returns the visible connection state.
func (s *Session) State() domain.ConnectionState {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewState
}

// Enabled reports whether the session wants a connection.
func (s *Session) Enabled() bool {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewWanted
}

// Stream returns the live video stream, or nil. A stream is never returned
// after its connection has been closed.
func (s *Session) Stream() *Stream {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewStream
}

// Enable asks for a connection, answering a buffered offer immediately.
func (s *Session) Enable(ctx context.Context) error {
	return s.do(ctx, envelope{kind: kindEvent, ev: EvEnable})
}

// Disable closes any connection and stops wanting one.
func (s *Session) Disable(ctx context.Context) error {
	return s.do(ctx, envelope{kind: kindEvent, ev: EvDisable})
}

// Remove closes the session permanently.
func (s *Session) Remove(ctx context.Context) error {
	err := s.do(ctx, envelope{kind: kindEvent, ev: EvRemove})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

// Offer enqueues a remote offer. It does not wait for the answer.
func (s *Session) Offer(sdp string) {
	s.mb.post(envelope{kind: kindEvent, ev: EvOffer, sdp: sdp})
}

// AddRemoteCandidate enqueues a trickled candidate from the device.
func (s *Session) AddRemoteCandidate(c domain.ICECandidate) {
	s.mb.post(envelope{kind: kindRemoteICE, cand: c})
}

// flush waits until everything posted before it has been handled.
func (s *Session) flush(ctx context.Context) error {
	return s.do(ctx, envelope{kind: kindFlush})
}

func (s *Session) do(ctx context.Context, e envelope) error {
	e.done = make(chan error, 1)
	if !s.mb.post(e) {
		return ErrSessionClosed
	}
	select {
	case err := <-e.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.exited)
	l := log.Ctx(ctx).With().Str(log.FieldDeviceID, s.deviceID).Str("role", string(s.role)).Logger()
	ctx = log.WithLogger(ctx, l)

	for {
		select {
		case <-s.mb.notify:
		case <-ctx.Done():
			s.handleEvent(context.WithoutCancel(ctx), envelope{kind: kindEvent, ev: EvRemove})
			s.mb.close(nil)
			return
		}
		batch := s.mb.drain()
		for i, e := range batch {
			s.handle(ctx, e)
			e.reply(nil)
			if s.phase == phaseClosed {
				s.mb.close(batch[i+1:])
				return
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, e envelope) {
	l := log.Ctx(ctx)
	if e.gen != 0 && e.gen != s.gen {
		l.Debug().Uint64("gen", e.gen).Msg("dropping callback from replaced peer")
		return
	}

	switch e.kind {
	case kindEvent:
		s.handleEvent(ctx, e)
	case kindLocalICE:
		msg := domain.ICEMessage{
			Cmd:       domain.CmdCameraICE,
			DeviceID:  s.deviceID,
			Target:    domain.MobileKey(s.deviceID),
			Candidate: e.cand,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			l.Debug().Err(err).Msg("local candidate not sent")
		}
	case kindRemoteICE:
		if s.peer == nil {
			l.Debug().Msg("candidate without peer connection dropped")
			return
		}
		if err := s.peer.AddICECandidate(e.cand); err != nil {
			l.Debug().Err(err).Msg("remote candidate rejected")
		}
	case kindTrack:
		if s.stream != nil || !isVideo(e.track) {
			return
		}
		s.stream = newStream(s.deviceID, e.track)
		s.publish()
	case kindFlush:
	}
}

func (s *Session) handleEvent(ctx context.Context, e envelope) {
	l := log.Ctx(ctx)
	st, ok := next(s.phase, e.ev)
	if !ok {
		l.Debug().Str("phase", s.phase.String()).Str("event", e.ev.String()).Msg("event ignored")
		return
	}
	from := s.phase
	s.phase = st.to

	switch st.act {
	case actBuffer:
		s.pending = e.sdp
	case actConsume:
		if s.pending != "" {
			sdp := s.pending
			s.pending = ""
			s.phase = phaseNegotiating
			s.answer(ctx, sdp)
		}
	case actAnswer:
		s.pending = ""
		s.answer(ctx, e.sdp)
	case actTeardown:
		s.teardown()
		if from != phaseIdle && s.role == domain.RolePreview {
			s.notifyStop(ctx)
		}
	case actFail:
		s.teardown()
		s.blank(ctx)
	case actClose:
		s.teardown()
	}

	if from != s.phase {
		l.Debug().Str("from", from.String()).Str("to", s.phase.String()).Str("event", e.ev.String()).Msg("camera session transition")
	}
	s.publish()
}

// answer replaces any prior peer with a fresh one answering sdp.
func (s *Session) answer(ctx context.Context, sdp string) {
	l := log.Ctx(ctx)
	s.teardown()

	s.gen++
	gen := s.gen
	peer, err := s.factory.NewPeer(webrtc.Handlers{
		OnTrack: func(t webrtc.RemoteTrack) {
			s.mb.post(envelope{kind: kindTrack, track: t, gen: gen})
		},
		OnICECandidate: func(c domain.ICECandidate) {
			s.mb.post(envelope{kind: kindLocalICE, cand: c, gen: gen})
		},
		OnICEState: func(state domain.ConnectionState) {
			s.mb.post(envelope{kind: kindEvent, ev: iceEvent(state), gen: gen})
		},
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to create peer connection")
		s.phase = phaseFailed
		s.blank(ctx)
		return
	}
	s.peer = peer

	answerSDP, err := peer.Answer(sdp)
	if err != nil {
		l.Warn().Err(err).Msg("offer rejected")
		s.teardown()
		s.phase = phaseFailed
		s.blank(ctx)
		return
	}

	msg := domain.SDPMessage{
		Cmd:      domain.CmdCameraAnswer,
		DeviceID: s.deviceID,
		Target:   domain.MobileKey(s.deviceID),
		SDP:      answerSDP,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		l.Warn().Err(err).Msg("answer not sent")
	}
}

func (s *Session) teardown() {
	if s.stream != nil {
		s.stream.stop()
		s.stream = nil
	}
	if s.peer != nil {
		s.gen++
		_ = s.peer.Close()
		s.peer = nil
	}
}

func (s *Session) blank(ctx context.Context) {
	if s.role != domain.RoleProgram || s.hooks.OnBlank == nil {
		return
	}
	log.Ctx(ctx).Warn().Msg("program feed lost, blanking")
	s.hooks.OnBlank(s.deviceID)
}

func (s *Session) notifyStop(ctx context.Context) {
	msg := domain.PreviewStopMessage{
		Cmd:      domain.CmdCameraPreviewStop,
		DeviceID: s.deviceID,
		Target:   domain.MobileKey(s.deviceID),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("preview stop not sent")
	}
}

func (s *Session) publish() {
	state := s.phase.visible()
	wanted := s.phase != phaseIdle && s.phase != phaseClosed

	s.viewMu.Lock()
	changed := s.viewState != state
	s.viewState = state
	s.viewWanted = wanted
	s.viewStream = s.stream
	s.viewMu.Unlock()

	if changed && s.hooks.OnState != nil {
		s.hooks.OnState(s.deviceID, s.role, state)
	}
}

func iceEvent(state domain.ConnectionState) Event {
	switch state {
	case domain.StateConnected:
		return EvICEConnected
	case domain.StateDisconnected:
		return EvICEFailed
	default:
		return EvICEChecking
	}
}

// mailbox is an unbounded FIFO. Posting never blocks, so peer callbacks
// fired while the owner is closing a connection cannot deadlock.
type mailbox struct {
	mu     sync.Mutex
	queue  []envelope
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(e envelope) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

// close rejects further posts. Callers waiting on unhandled envelopes,
// drained but not yet handled ones included, get ErrSessionClosed.
func (m *mailbox) close(unhandled []envelope) {
	m.mu.Lock()
	m.closed = true
	unhandled = append(unhandled, m.queue...)
	m.queue = nil
	m.mu.Unlock()

	for _, e := range unhandled {
		e.reply(ErrSessionClosed)
	}
}
