package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// relayStub accepts connections, records the auth frame and optionally
// answers it.
type relayStub struct {
	reply     string
	connected chan *ws.Conn
	received  chan []byte

	mu    sync.Mutex
	auths []domain.AuthMessage
}

func newRelayStub(t *testing.T, reply string) (*relayStub, string) {
	t.Helper()
	stub := &relayStub{
		reply:     reply,
		connected: make(chan *ws.Conn, 8),
		received:  make(chan []byte, 16),
	}
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		_, first, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var auth domain.AuthMessage
		_ = json.Unmarshal(first, &auth)
		stub.mu.Lock()
		stub.auths = append(stub.auths, auth)
		stub.mu.Unlock()

		if stub.reply != "" {
			_ = conn.WriteJSON(map[string]string{"type": stub.reply})
		}
		stub.connected <- conn

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			stub.received <- msg
		}
	}))
	t.Cleanup(server.Close)

	return stub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func (s *relayStub) authCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.auths)
}

func waitConn(t *testing.T, ch <-chan *ws.Conn) *ws.Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func waitMessage(t *testing.T, ch <-chan []byte) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-ch:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestClient_AuthFirstAndDropBeforeReady(t *testing.T) {
	stub, url := newRelayStub(t, "")
	c := NewClient(Config{URL: url, ClientType: domain.ClientWindowMain}, clockwork.NewFakeClock())
	t.Cleanup(c.Close)

	ctx := context.Background()
	c.Connect(ctx, "1234")
	server := waitConn(t, stub.connected)

	stub.mu.Lock()
	require.Len(t, stub.auths, 1)
	assert.Equal(t, domain.CmdAuth, stub.auths[0].Cmd)
	assert.Equal(t, "1234", stub.auths[0].PIN)
	assert.Equal(t, domain.ClientWindowMain, stub.auths[0].ClientType)
	stub.mu.Unlock()

	assert.ErrorIs(t, c.Send(ctx, domain.ProgramCommand{Cmd: domain.CmdCameraConnectProgram, DeviceID: "A"}), ErrNotReady)

	require.NoError(t, server.WriteJSON(map[string]string{"type": domain.TypeAuthOK}))
	assert.Equal(t, domain.TypeAuthOK, waitMessage(t, c.Messages())["type"])
	assert.True(t, c.Ready())

	require.NoError(t, c.Send(ctx, domain.ProgramCommand{Cmd: domain.CmdCameraConnectProgram, DeviceID: "A"}))
	got := waitMessage(t, stub.received)
	assert.Equal(t, domain.CmdCameraConnectProgram, got["cmd"])
	assert.Equal(t, "A", got["device_id"])
}

func TestClient_AuthFailStopsReconnecting(t *testing.T) {
	stub, url := newRelayStub(t, domain.TypeAuthFail)
	fc := clockwork.NewFakeClock()
	c := NewClient(Config{URL: url, ClientType: domain.ClientWindowOutput}, fc)
	t.Cleanup(c.Close)

	c.Connect(context.Background(), "0000")
	waitConn(t, stub.connected)

	require.Eventually(t, func() bool { return !c.Running() }, 2*time.Second, 10*time.Millisecond)
	fc.Advance(time.Minute)
	assert.Equal(t, 1, stub.authCount())
	assert.False(t, c.Ready())
}

func TestClient_ReconnectsAfterFixedDelay(t *testing.T) {
	stub, url := newRelayStub(t, domain.TypeAuthOK)
	fc := clockwork.NewFakeClock()
	c := NewClient(Config{URL: url, ReconnectDelay: 2 * time.Second}, fc)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.Connect(ctx, "1234")
	first := waitConn(t, stub.connected)
	require.NoError(t, first.Close())

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	select {
	case <-stub.connected:
		t.Fatal("reconnected before the delay elapsed")
	default:
	}

	fc.Advance(2 * time.Second)
	waitConn(t, stub.connected)
	assert.Equal(t, 2, stub.authCount())
	assert.True(t, c.Running())
}

func TestClient_MessagesInReceiptOrder(t *testing.T) {
	stub, url := newRelayStub(t, domain.TypeAuthOK)
	c := NewClient(Config{URL: url}, clockwork.NewFakeClock())
	t.Cleanup(c.Close)

	c.Connect(context.Background(), "1234")
	server := waitConn(t, stub.connected)
	assert.Equal(t, domain.TypeAuthOK, waitMessage(t, c.Messages())["type"])

	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, server.WriteJSON(domain.SourceMessage{Type: domain.TypeCameraSourceConnected, DeviceID: id}))
	}
	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, id, waitMessage(t, c.Messages())["device_id"])
	}
}

func TestClient_CloseStopsSupervisor(t *testing.T) {
	stub, url := newRelayStub(t, domain.TypeAuthOK)
	fc := clockwork.NewFakeClock()
	c := NewClient(Config{URL: url}, fc)

	c.Connect(context.Background(), "1234")
	waitConn(t, stub.connected)

	c.Close()
	assert.False(t, c.Running())
	assert.False(t, c.Ready())

	fc.Advance(time.Minute)
	assert.Equal(t, 1, stub.authCount())
}
