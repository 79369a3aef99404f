package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/pong/internal/config"
	"github.com/cory-johannsen/pong/internal/frontend/ws"
	"github.com/cory-johannsen/pong/internal/game/match"
	"github.com/cory-johannsen/pong/internal/game/session"
	"github.com/cory-johannsen/pong/internal/gameserver"
	"github.com/cory-johannsen/pong/internal/protocol"
	"github.com/cory-johannsen/pong/internal/storage/memory"
	"github.com/cory-johannsen/pong/internal/testutil"
)

type recordingHub struct {
	mu          sync.Mutex
	conns       []session.Conn
	delivered   []protocol.Inbound
	disconnects map[string]int
}

func newRecordingHub() *recordingHub {
	return &recordingHub{disconnects: make(map[string]int)}
}

func (h *recordingHub) Connect(c session.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns = append(h.conns, c)
}

func (h *recordingHub) Disconnect(c session.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects[c.ID()]++
}

func (h *recordingHub) Deliver(_ session.Conn, msg protocol.Inbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered = append(h.delivered, msg)
}

func (h *recordingHub) messages() []protocol.Inbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Inbound(nil), h.delivered...)
}

func (h *recordingHub) conn(i int) session.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.conns) {
		return nil
	}
	return h.conns[i]
}

func (h *recordingHub) disconnectCount(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects[id]
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Host:           "127.0.0.1",
		Port:           0,
		Path:           "/ws",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   time.Second,
		PingInterval:   time.Second,
		SendBuffer:     64,
		MaxMessageSize: 4096,
	}
}

func startServer(t *testing.T, hub ws.Hub) (*ws.Acceptor, string) {
	t.Helper()
	acc := ws.NewAcceptor(testConfig(), hub, zaptest.NewLogger(t))
	srv := httptest.NewServer(acc.Handler())
	t.Cleanup(func() {
		acc.Stop()
		srv.Close()
	})
	return acc, srv.URL + "/ws"
}

func TestAcceptor_DeliversDecodedMessages(t *testing.T) {
	hub := newRecordingHub()
	_, url := startServer(t, hub)
	client := testutil.NewWSClient(t, url)

	client.Send(map[string]any{"type": "login", "username": "alice", "password": "pw123"})
	require.Eventually(t, func() bool { return len(hub.messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.Login{Username: "alice", Password: "pw123"}, hub.messages()[0])
}

func TestAcceptor_MalformedFrameDroppedConnectionStaysOpen(t *testing.T) {
	hub := newRecordingHub()
	_, url := startServer(t, hub)
	client := testutil.NewWSClient(t, url)

	client.SendRaw([]byte("{not json"))
	client.SendRaw([]byte(`{"type":"teleport"}`))
	client.SendRaw([]byte(`{"type":"input","input":"sideways"}`))
	client.Send(map[string]any{"type": "joinLobby"})

	require.Eventually(t, func() bool { return len(hub.messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.JoinLobby{}, hub.messages()[0])
	c := hub.conn(0)
	require.NotNil(t, c)
	assert.True(t, c.Alive())
}

func TestAcceptor_SendReachesClient(t *testing.T) {
	hub := newRecordingHub()
	_, url := startServer(t, hub)
	client := testutil.NewWSClient(t, url)

	require.Eventually(t, func() bool { return hub.conn(0) != nil }, 2*time.Second, 5*time.Millisecond)
	data, err := protocol.Encode(protocol.NewPlayerID(2))
	require.NoError(t, err)
	require.NoError(t, hub.conn(0).Send(data))

	msg := client.ReadUntil(protocol.TypePlayerID, 2*time.Second)
	assert.EqualValues(t, 2, msg["id"])
}

func TestAcceptor_ClientCloseDisconnectsOnce(t *testing.T) {
	hub := newRecordingHub()
	_, url := startServer(t, hub)
	client := testutil.NewWSClient(t, url)
	require.Eventually(t, func() bool { return hub.conn(0) != nil }, 2*time.Second, 5*time.Millisecond)
	c := hub.conn(0)

	client.Close()
	require.Eventually(t, func() bool { return hub.disconnectCount(c.ID()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.Alive())
	assert.ErrorIs(t, c.Send([]byte(`{}`)), ws.ErrClosed)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, hub.disconnectCount(c.ID()))
}

func TestAcceptor_StopClosesLiveConnections(t *testing.T) {
	hub := newRecordingHub()
	acc, url := startServer(t, hub)
	testutil.NewWSClient(t, url)
	require.Eventually(t, func() bool { return acc.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)
	c := hub.conn(0)

	acc.Stop()
	assert.Equal(t, 0, acc.Connections())
	assert.Equal(t, 1, hub.disconnectCount(c.ID()))
}

func TestAcceptor_ListenAndServe(t *testing.T) {
	hub := newRecordingHub()
	acc := ws.NewAcceptor(testConfig(), hub, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() { errCh <- acc.ListenAndServe() }()
	require.Eventually(t, func() bool { return acc.IsRunning() && acc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + acc.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+acc.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	acc.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after Stop")
	}
	assert.False(t, acc.IsRunning())
}

func TestAcceptor_EndToEndMatch(t *testing.T) {
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()
	_, err := store.Create(ctx, "alice", "pw123")
	require.NoError(t, err)
	_, err = store.Create(ctx, "bob", "pw456")
	require.NoError(t, err)

	router := gameserver.New(gameserver.Settings{
		ServerName:   "e2e",
		TickInterval: 2 * time.Millisecond,
		StartDelay:   10 * time.Millisecond,
		EndDelay:     10 * time.Millisecond,
		StoreTimeout: time.Second,
		WinningScore: 1,
	}, store, zaptest.NewLogger(t), gameserver.WithSource(match.FixedSource(0.9)))
	go func() { _ = router.Run(ctx) }()
	t.Cleanup(router.Stop)

	_, url := startServer(t, router)
	alice := testutil.NewWSClient(t, url)
	bob := testutil.NewWSClient(t, url)

	for _, p := range []struct {
		client   *testutil.WSClient
		username string
		password string
		seat     int
	}{
		{alice, "alice", "pw123", 1},
		{bob, "bob", "pw456", 2},
	} {
		p.client.Send(map[string]any{"type": "login", "username": p.username, "password": p.password})
		res := p.client.ReadUntil(protocol.TypeLoginResult, 2*time.Second)
		require.Equal(t, true, res["success"], "%v", res)
		p.client.Send(map[string]any{"type": "joinLobby"})
		id := p.client.ReadUntil(protocol.TypePlayerID, 2*time.Second)
		require.EqualValues(t, p.seat, id["id"])
	}

	alice.Send(map[string]any{"type": "playerReady", "ready": true})
	bob.Send(map[string]any{"type": "playerReady", "ready": true})

	alice.ReadUntil(protocol.TypeGameStart, 2*time.Second)
	alice.ReadUntil(protocol.TypeGameState, 2*time.Second)
	end := bob.ReadUntil(protocol.TypeGameEnd, 2*time.Second)
	assert.EqualValues(t, 1, end["winner"])
}
