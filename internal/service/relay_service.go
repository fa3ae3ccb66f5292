package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/hub"
	"github.com/weiawesome/wes-io-stage/internal/metrics"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// RelayConfig bounds per-client traffic.
type RelayConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Identity is what a successful auth frame resolves to.
type Identity struct {
	Key        string
	ClientType string
	DeviceID   string
	DeviceName string
}

type relayService struct {
	hub *hub.Hub
	pin *PIN
	cfg RelayConfig

	mu       sync.Mutex
	cameras  map[string]string // device id -> name
	limiters map[*hub.Client]*rate.Limiter
}

var _ RelayService = (*relayService)(nil)

// NewRelayService creates the relay's routing logic over h.
func NewRelayService(h *hub.Hub, pin *PIN, cfg RelayConfig) RelayService {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 100
	}
	return &relayService{
		hub:      h,
		pin:      pin,
		cfg:      cfg,
		cameras:  make(map[string]string),
		limiters: make(map[*hub.Client]*rate.Limiter),
	}
}

func (s *relayService) Authenticate(_ context.Context, msg domain.AuthMessage) (Identity, error) {
	if !s.pin.Verify(msg.PIN) {
		metrics.RelayAuthFailures.WithLabelValues("pin").Inc()
		return Identity{}, ErrInvalidPIN
	}

	id := Identity{ClientType: msg.ClientType, DeviceID: msg.DeviceID, DeviceName: msg.DeviceName}
	switch {
	case msg.ClientType == domain.ClientWindowMain, msg.ClientType == domain.ClientWindowOutput:
		id.Key = msg.ClientType
		id.DeviceID = ""
	case msg.ClientType == domain.ClientMobile && msg.DeviceID != "":
		id.Key = domain.MobileKey(msg.DeviceID)
		if id.DeviceName == "" {
			id.DeviceName = msg.DeviceID
		}
	default:
		id.ClientType = domain.ClientRemote
		id.Key = domain.ClientRemote + ":" + uuid.New().String()
		id.DeviceID = ""
	}
	return id, nil
}

func (s *relayService) HandleConnect(ctx context.Context, c *hub.Client) {
	l := log.Ctx(ctx)
	metrics.RelayConnectedClients.WithLabelValues(c.ClientType).Inc()

	s.mu.Lock()
	s.limiters[c] = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	if c.ClientType == domain.ClientMobile {
		s.cameras[c.DeviceID] = c.DeviceName
		metrics.RelayCameraSources.Set(float64(len(s.cameras)))
		s.mu.Unlock()

		_ = s.hub.BroadcastJSON(domain.SourceMessage{
			Type:       domain.TypeCameraSourceConnected,
			DeviceID:   c.DeviceID,
			DeviceName: c.DeviceName,
		}, c.Key)
		l.Info().Str(log.FieldDeviceID, c.DeviceID).Msg("camera source connected")
		return
	}

	// Late joiners learn about cameras that are already up.
	known := make([]domain.SourceMessage, 0, len(s.cameras))
	for id, name := range s.cameras {
		known = append(known, domain.SourceMessage{Type: domain.TypeCameraSourceConnected, DeviceID: id, DeviceName: name})
	}
	s.mu.Unlock()
	for _, m := range known {
		_ = c.SendMessage(m)
	}
}

func (s *relayService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	current := s.hub.Unregister(c)

	s.mu.Lock()
	delete(s.limiters, c)
	s.mu.Unlock()
	metrics.RelayConnectedClients.WithLabelValues(c.ClientType).Dec()

	// A replaced connection leaves the newer one in charge of presence.
	if !current || c.ClientType != domain.ClientMobile {
		return
	}

	s.mu.Lock()
	delete(s.cameras, c.DeviceID)
	metrics.RelayCameraSources.Set(float64(len(s.cameras)))
	s.mu.Unlock()

	_ = s.hub.BroadcastJSON(domain.SourceMessage{
		Type:     domain.TypeCameraSourceDisconnected,
		DeviceID: c.DeviceID,
	}, c.Key)
	l := log.Ctx(ctx)
	l.Info().Str(log.FieldDeviceID, c.DeviceID).Msg("camera source disconnected")
}

func (s *relayService) HandleMessage(ctx context.Context, c *hub.Client, raw []byte) {
	l := log.Ctx(ctx).With().Str(log.FieldClientKey, c.Key).Logger()
	ctx = log.WithLogger(ctx, l)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("", "rejected").Inc()
		_ = c.SendMessage(domain.ErrorMessage{Type: domain.TypeError, Message: "invalid message format"})
		return
	}
	var env domain.Envelope
	_ = json.Unmarshal(raw, &env)

	if !s.allow(c) {
		metrics.RelayMessagesTotal.WithLabelValues(env.Cmd, "throttled").Inc()
		_ = c.SendMessage(domain.ErrorMessage{Type: domain.TypeError, Message: "rate limit exceeded"})
		return
	}

	if env.Target != "" {
		target := domain.NormalizeTarget(env.Target)
		if c.ClientType == domain.ClientMobile {
			// A device can only speak for itself.
			fields["device_id"], _ = json.Marshal(c.DeviceID)
		}
		s.forward(ctx, c, env.Cmd, target, fields)
		return
	}

	switch env.Cmd {
	case domain.CmdCameraConnectProgram, domain.CmdCameraDisconnectProgram:
		if env.DeviceID == "" {
			metrics.RelayMessagesTotal.WithLabelValues(env.Cmd, "rejected").Inc()
			_ = c.SendMessage(domain.ErrorMessage{Type: domain.TypeError, Message: "device_id required"})
			return
		}
		event := domain.EventConnectProgram
		if env.Cmd == domain.CmdCameraDisconnectProgram {
			event = domain.EventDisconnectProgram
		}
		s.count(env.Cmd, s.hub.SendJSON(domain.MobileKey(env.DeviceID), domain.DeviceEvent{Event: event}))
		l.Debug().Str(log.FieldDeviceID, env.DeviceID).Str("event", event).Msg("program lifecycle routed")

	case domain.CmdBroadcast:
		if c.Key != domain.ClientWindowMain {
			metrics.RelayMessagesTotal.WithLabelValues(env.Cmd, "rejected").Inc()
			_ = c.SendMessage(domain.ErrorMessage{Type: domain.TypeError, Message: "broadcast not permitted"})
			return
		}
		var bc domain.BroadcastCommand
		if err := json.Unmarshal(raw, &bc); err != nil || len(bc.Message) == 0 {
			metrics.RelayMessagesTotal.WithLabelValues(env.Cmd, "rejected").Inc()
			return
		}
		s.hub.Broadcast(bc.Message, "")
		s.count(env.Cmd, true)

	case domain.CmdGetState, domain.CmdGetSongs, domain.CmdGoLive, domain.CmdShowLT, domain.CmdHideLT:
		if !s.forward(ctx, c, env.Cmd, domain.ClientWindowMain, fields) {
			_ = c.SendMessage(domain.ErrorMessage{Type: domain.TypeError, Message: "operator not connected"})
		}

	default:
		l.Debug().Str(log.FieldCmd, env.Cmd).Msg("unhandled relay command ignored")
	}
}

// forward relays fields to target with the sender's key injected.
func (s *relayService) forward(ctx context.Context, c *hub.Client, cmd, target string, fields map[string]json.RawMessage) bool {
	fields[domain.FromField], _ = json.Marshal(c.Key)
	data, err := json.Marshal(fields)
	if err != nil {
		return false
	}
	ok := s.hub.SendTo(target, data)
	s.count(cmd, ok)
	if !ok {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldCmd, cmd).Str(log.FieldTarget, target).Msg("target not connected")
	}
	return ok
}

func (s *relayService) count(cmd string, delivered bool) {
	outcome := "routed"
	if !delivered {
		outcome = "undeliverable"
	}
	metrics.RelayMessagesTotal.WithLabelValues(cmd, outcome).Inc()
}

func (s *relayService) allow(c *hub.Client) bool {
	s.mu.Lock()
	lim := s.limiters[c]
	s.mu.Unlock()
	return lim == nil || lim.Allow()
}
