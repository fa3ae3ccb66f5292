package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/hub"
	"github.com/weiawesome/wes-io-stage/internal/metrics"
	"github.com/weiawesome/wes-io-stage/internal/service"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN devices load the pages from arbitrary hosts
	},
}

// WSHandler handles relay WebSocket connections.
type WSHandler struct {
	hub         *hub.Hub
	service     service.RelayService
	authTimeout time.Duration
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, svc service.RelayService, authTimeout time.Duration) *WSHandler {
	if authTimeout <= 0 {
		authTimeout = 30 * time.Second
	}
	return &WSHandler{
		hub:         h,
		service:     svc,
		authTimeout: authTimeout,
	}
}

// HandleWebSocket upgrades, authenticates and then pumps the connection.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := log.L()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx := context.Background()
	id, err := h.authenticate(ctx, conn)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPIN) {
			_ = conn.WriteJSON(map[string]string{"type": domain.TypeAuthFail})
			l.Warn().Str(log.FieldClientIP, r.RemoteAddr).Msg("relay auth failed")
		} else {
			metrics.RelayAuthFailures.WithLabelValues("timeout").Inc()
			l.Debug().Err(err).Str(log.FieldClientIP, r.RemoteAddr).Msg("connection closed before auth")
		}
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	client := hub.NewClient(h.hub, conn, id.Key, id.ClientType)
	client.DeviceID = id.DeviceID
	client.DeviceName = id.DeviceName

	ctx = log.WithLogger(ctx, l.With().Str(log.FieldClientKey, id.Key).Logger())
	client.SetDisconnectHandler(func(c *hub.Client) {
		h.service.HandleDisconnect(ctx, c)
	})

	// Frames routed to the client queue in Send until WritePump starts, so
	// auth_ok is always the first frame it sees.
	h.hub.Register(client)
	h.service.HandleConnect(ctx, client)
	if err := conn.WriteJSON(map[string]string{"type": domain.TypeAuthOK}); err != nil {
		h.service.HandleDisconnect(ctx, client)
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(func(c *hub.Client, message []byte) {
		h.service.HandleMessage(ctx, c, message)
	})
}

// authenticate reads frames until an auth command arrives. Other frames
// before auth are ignored.
func (h *WSHandler) authenticate(ctx context.Context, conn *websocket.Conn) (service.Identity, error) {
	conn.SetReadDeadline(time.Now().Add(h.authTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return service.Identity{}, err
		}
		var msg domain.AuthMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Cmd != domain.CmdAuth {
			continue
		}
		return h.service.Authenticate(ctx, msg)
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}
