package webrtc

import (
	"errors"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	pkglog "github.com/weiawesome/wes-io-stage/pkg/log"
)

// ErrEmptyOffer is returned by Answer for a blank SDP.
var ErrEmptyOffer = errors.New("empty sdp offer")

// RemoteTrack is an inbound media track.
type RemoteTrack interface {
	ID() string
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
}

// Handlers receive peer connection callbacks. They may be invoked from
// pion's goroutines, including synchronously from Close.
type Handlers struct {
	OnTrack        func(t RemoteTrack)
	OnICECandidate func(c domain.ICECandidate)
	OnICEState     func(s domain.ConnectionState)
}

// Peer is one answering peer connection.
type Peer interface {
	// Answer applies a remote offer and returns the local answer. Local
	// candidates trickle out through Handlers.OnICECandidate.
	Answer(offerSDP string) (string, error)
	AddICECandidate(c domain.ICECandidate) error
	Close() error
}

// Factory creates peers.
type Factory interface {
	NewPeer(h Handlers) (Peer, error)
}

// PeerFactory creates receive-only peer connections for camera feeds.
type PeerFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ Factory = (*PeerFactory)(nil)

// NewPeerFactory builds the media engine and interceptor chain once.
func NewPeerFactory(iceServers []webrtc.ICEServer) (*PeerFactory, error) {
	m := &webrtc.MediaEngine{}

	// Register VP8 codec
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	// Register H264 codec; iOS Safari only offers H264.
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 102,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	// Register Opus codec for audio
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	// Periodic PLI keeps a fresh keyframe available for late joiners.
	i := &interceptor.Registry{}
	intervalPliFactory, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(intervalPliFactory)

	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	return &PeerFactory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)),
		config: webrtc.Configuration{ICEServers: iceServers},
	}, nil
}

// NewPeer creates a peer connection wired to h.
func (f *PeerFactory) NewPeer(h Handlers) (Peer, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	l := pkglog.L()
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.Debug().Str("mime", track.Codec().MimeType).Str("kind", track.Kind().String()).Msg("track received")
		if h.OnTrack != nil {
			h.OnTrack(remoteTrack{track})
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		l.Debug().Str("ice_state", state.String()).Msg("ice connection state")
		if h.OnICEState != nil {
			h.OnICEState(Classify(state))
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if candidate == nil || h.OnICECandidate == nil {
			return
		}
		h.OnICECandidate(fromInit(candidate.ToJSON()))
	})

	return &peer{pc: pc}, nil
}

// Classify collapses pion's ICE states into the three states callers act on.
func Classify(s webrtc.ICEConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return domain.StateConnected
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateClosed:
		return domain.StateDisconnected
	default:
		return domain.StateConnecting
	}
}

type peer struct {
	pc *webrtc.PeerConnection
}

// Answer processes an SDP offer and returns an SDP answer without waiting
// for candidate gathering.
func (p *peer) Answer(offerSDP string) (string, error) {
	if offerSDP == "" {
		return "", ErrEmptyOffer
	}

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return answer.SDP, nil
}

func (p *peer) AddICECandidate(c domain.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *peer) Close() error {
	return p.pc.Close()
}

func fromInit(c webrtc.ICECandidateInit) domain.ICECandidate {
	return domain.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r remoteTrack) ID() string       { return r.t.ID() }
func (r remoteTrack) MimeType() string { return r.t.Codec().MimeType }

func (r remoteTrack) ReadRTP() (*rtp.Packet, error) {
	p, _, err := r.t.ReadRTP()
	return p, err
}

// ICEServers converts configured server entries.
func ICEServers(cfg []ICEServerConfig) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg))
	for _, s := range cfg {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}

// ICEServerConfig is one STUN or TURN entry.
type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}
