package gameserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/pong/internal/events"
	"github.com/cory-johannsen/pong/internal/game/match"
	"github.com/cory-johannsen/pong/internal/gameserver"
	"github.com/cory-johannsen/pong/internal/protocol"
	"github.com/cory-johannsen/pong/internal/storage"
	"github.com/cory-johannsen/pong/internal/storage/memory"
)

const waitFor = 2 * time.Second

type fakeConn struct {
	id     string
	alive  atomic.Bool
	mu     sync.Mutex
	frames []map[string]any
}

var connSeq atomic.Int64

func newFakeConn() *fakeConn {
	c := &fakeConn{id: fmt.Sprintf("conn-%d", connSeq.Add(1))}
	c.alive.Store(true)
	return c
}

func (c *fakeConn) ID() string  { return c.id }
func (c *fakeConn) Alive() bool { return c.alive.Load() }
func (c *fakeConn) Send(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, m)
	return nil
}

// ofType returns every received frame whose "type" equals typ.
func (c *fakeConn) ofType(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f["type"].(string))
	}
	return out
}

// await blocks until a frame of typ arrives and returns the latest one.
func (c *fakeConn) await(t *testing.T, typ string) map[string]any {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.ofType(typ)) > 0 }, waitFor, time.Millisecond,
		"no %s frame on %s; got %v", typ, c.id, c.types())
	frames := c.ofType(typ)
	return frames[len(frames)-1]
}

type recordingPublisher struct {
	mu      sync.Mutex
	results []events.MatchResult
}

func (p *recordingPublisher) PublishMatchResult(_ context.Context, r events.MatchResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) snapshot() []events.MatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.MatchResult(nil), p.results...)
}

type harness struct {
	router *gameserver.Router
	store  *memory.Store
	pub    *recordingPublisher
}

func testSettings() gameserver.Settings {
	return gameserver.Settings{
		ServerName:   "test",
		TickInterval: 2 * time.Millisecond,
		StartDelay:   20 * time.Millisecond,
		EndDelay:     20 * time.Millisecond,
		StoreTimeout: time.Second,
		WinningScore: 1,
	}
}

func newHarness(t *testing.T, settings gameserver.Settings) *harness {
	t.Helper()
	// a serve draw above one half sends the ball right with downward drift,
	// past a stationary paddle 2
	return newHarnessWithSource(t, settings, match.FixedSource(0.9))
}

func newHarnessWithSource(t *testing.T, settings gameserver.Settings, src match.Source) *harness {
	t.Helper()
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()
	for _, acct := range [][2]string{{"alice", "pw123"}, {"bob", "pw456"}, {"carol", "pw789"}} {
		_, err := store.Create(ctx, acct[0], acct[1])
		require.NoError(t, err)
	}
	pub := &recordingPublisher{}
	r := gameserver.New(settings, store, zaptest.NewLogger(t),
		gameserver.WithSource(src),
		gameserver.WithPublisher(pub),
	)
	go func() { _ = r.Run(context.Background()) }()
	require.Eventually(t, r.Serving, waitFor, time.Millisecond)
	t.Cleanup(r.Stop)
	return &harness{router: r, store: store, pub: pub}
}

func (h *harness) connect() *fakeConn {
	c := newFakeConn()
	h.router.Connect(c)
	return c
}

func (h *harness) login(t *testing.T, username, password string) *fakeConn {
	t.Helper()
	c := h.connect()
	h.router.Deliver(c, protocol.Login{Username: username, Password: password})
	res := c.await(t, protocol.TypeLoginResult)
	require.Equal(t, true, res["success"], "login %s: %v", username, res)
	return c
}

func (h *harness) seat(t *testing.T, username, password string, want int) *fakeConn {
	t.Helper()
	c := h.login(t, username, password)
	h.router.Deliver(c, protocol.JoinLobby{})
	id := c.await(t, protocol.TypePlayerID)
	require.EqualValues(t, want, id["id"])
	return c
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t, testSettings())

	c := h.connect()
	h.router.Deliver(c, protocol.Login{Username: "nobody", Password: "x"})
	res := c.await(t, protocol.TypeLoginResult)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, protocol.MsgUserNotFound, res["message"])

	c = h.connect()
	h.router.Deliver(c, protocol.Login{Username: "alice", Password: "wrong"})
	res = c.await(t, protocol.TypeLoginResult)
	assert.Equal(t, protocol.MsgWrongPassword, res["message"])
}

func TestLogin_SuccessCarriesStats(t *testing.T) {
	h := newHarness(t, testSettings())
	require.NoError(t, h.store.IncrementStats(context.Background(), "alice", storage.StatsDelta{Games: 3, Wins: 2, Losses: 1}))

	c := h.login(t, "alice", "pw123")
	res := c.await(t, protocol.TypeLoginResult)
	assert.Equal(t, "alice", res["username"])
	stats := res["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["wins"])
	assert.EqualValues(t, 1, stats["losses"])
	assert.EqualValues(t, 3, stats["games"])
}

func TestLogin_DuplicateUsernameRejectedUntilDisconnect(t *testing.T) {
	h := newHarness(t, testSettings())
	first := h.login(t, "alice", "pw123")

	second := h.connect()
	h.router.Deliver(second, protocol.Login{Username: "alice", Password: "pw123"})
	res := second.await(t, protocol.TypeLoginResult)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, protocol.MsgAlreadyConnected, res["message"])

	first.alive.Store(false)
	h.router.Disconnect(first)
	require.Eventually(t, func() bool { return h.router.Stats().Sessions == 0 }, waitFor, time.Millisecond)

	third := h.login(t, "alice", "pw123")
	assert.NotNil(t, third)
}

func TestLogin_StaleSessionEvicted(t *testing.T) {
	h := newHarness(t, testSettings())
	first := h.login(t, "alice", "pw123")
	// transport died but the disconnect has not been delivered yet
	first.alive.Store(false)

	h.login(t, "alice", "pw123")
	assert.Equal(t, 1, h.router.Stats().Sessions)
}

func TestLogin_TwiceOnSameConnection(t *testing.T) {
	h := newHarness(t, testSettings())
	c := h.login(t, "alice", "pw123")
	h.router.Deliver(c, protocol.Login{Username: "bob", Password: "pw456"})
	require.Eventually(t, func() bool { return len(c.ofType(protocol.TypeLoginResult)) == 2 }, waitFor, time.Millisecond)
	res := c.ofType(protocol.TypeLoginResult)[1]
	assert.Equal(t, protocol.MsgAlreadyLoggedIn, res["message"])
}

func TestRegister(t *testing.T) {
	h := newHarness(t, testSettings())
	c := h.connect()

	h.router.Deliver(c, protocol.Register{Username: "ab", Password: "secret"})
	res := c.await(t, protocol.TypeRegisterResult)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, protocol.MsgInvalidInput, res["message"])

	h.router.Deliver(c, protocol.Register{Username: "alice", Password: "secret"})
	require.Eventually(t, func() bool { return len(c.ofType(protocol.TypeRegisterResult)) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, protocol.MsgUsernameTaken, c.ofType(protocol.TypeRegisterResult)[1]["message"])

	h.router.Deliver(c, protocol.Register{Username: "dave", Password: "secret"})
	require.Eventually(t, func() bool { return len(c.ofType(protocol.TypeRegisterResult)) == 3 }, waitFor, time.Millisecond)
	assert.Equal(t, true, c.ofType(protocol.TypeRegisterResult)[2]["success"])

	acct, err := h.store.FindByUsername(context.Background(), "dave")
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{}, acct.Stats)
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, gameserver.ValidateCredentials("abc", "xyz"))
	assert.ErrorIs(t, gameserver.ValidateCredentials("ab", "xyz"), gameserver.ErrInvalidInput)
	assert.ErrorIs(t, gameserver.ValidateCredentials("abc", "xy"), gameserver.ErrInvalidInput)
	// counted in characters, not bytes
	assert.NoError(t, gameserver.ValidateCredentials("äöü", "ñññ"))
	assert.NoError(t, gameserver.ValidateCredentials("abc", strings.Repeat("p", storage.MaxPasswordBytes)))
	assert.ErrorIs(t, gameserver.ValidateCredentials("abc", strings.Repeat("p", storage.MaxPasswordBytes+1)), storage.ErrPasswordTooLong)
	// 25 three-byte runes pass the character rule but not the byte bound
	assert.ErrorIs(t, gameserver.ValidateCredentials("abc", strings.Repeat("€", 25)), storage.ErrPasswordTooLong)
}

func TestRegister_LongPasswordRejectedAsInvalid(t *testing.T) {
	h := newHarness(t, testSettings())
	c := h.connect()

	h.router.Deliver(c, protocol.Register{Username: "dave", Password: strings.Repeat("p", 80)})
	res := c.await(t, protocol.TypeRegisterResult)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, protocol.MsgPasswordTooLong, res["message"])

	_, err := h.store.FindByUsername(context.Background(), "dave")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
}

func TestGetStats(t *testing.T) {
	h := newHarness(t, testSettings())

	anon := h.connect()
	h.router.Deliver(anon, protocol.GetStats{})

	c := h.login(t, "bob", "pw456")
	h.router.Deliver(c, protocol.GetStats{})
	res := c.await(t, protocol.TypeUserStats)
	assert.Equal(t, "bob", res["username"])
	assert.Empty(t, anon.ofType(protocol.TypeUserStats))
}

func TestJoinLobby(t *testing.T) {
	h := newHarness(t, testSettings())

	anon := h.connect()
	h.router.Deliver(anon, protocol.JoinLobby{})
	assert.Equal(t, protocol.MsgLoginRequired, anon.await(t, protocol.TypeError)["message"])

	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)

	var lobbyState map[string]any
	require.Eventually(t, func() bool {
		frames := alice.ofType(protocol.TypeLobbyUpdate)
		if len(frames) == 0 {
			return false
		}
		lobbyState = frames[len(frames)-1]
		return lobbyState["playersCount"] == float64(2)
	}, waitFor, time.Millisecond)
	assert.Equal(t, "alice", lobbyState["player1Name"])
	assert.Equal(t, "bob", lobbyState["player2Name"])

	h.router.Deliver(bob, protocol.JoinLobby{})
	assert.Equal(t, protocol.MsgAlreadyInLobby, bob.await(t, protocol.TypeError)["message"])

	carol := h.login(t, "carol", "pw789")
	h.router.Deliver(carol, protocol.JoinLobby{})
	assert.Equal(t, protocol.MsgLobbyFull, carol.await(t, protocol.TypeError)["message"])
	assert.Empty(t, carol.ofType(protocol.TypePlayerID))
}

func TestMatch_PlaysToCompletion(t *testing.T) {
	h := newHarness(t, testSettings())
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)

	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})

	alice.await(t, protocol.TypeGameStart)
	bob.await(t, protocol.TypeGameStart)

	end := bob.await(t, protocol.TypeGameEnd)
	assert.EqualValues(t, 1, end["winner"])
	final := end["finalScore"].(map[string]any)
	assert.EqualValues(t, 1, final["player1"])
	assert.EqualValues(t, 0, final["player2"])

	goal := alice.await(t, protocol.TypeGoal)
	assert.EqualValues(t, 1, goal["scorer"])

	require.Eventually(t, func() bool {
		a, err := h.store.FindByUsername(context.Background(), "alice")
		if err != nil {
			return false
		}
		b, err := h.store.FindByUsername(context.Background(), "bob")
		if err != nil {
			return false
		}
		return a.Stats == storage.Stats{Wins: 1, Games: 1} && b.Stats == storage.Stats{Losses: 1, Games: 1}
	}, waitFor, time.Millisecond)

	require.Eventually(t, func() bool { return len(h.pub.snapshot()) == 1 }, waitFor, time.Millisecond)
	result := h.pub.snapshot()[0]
	assert.Equal(t, "alice", result.Player1)
	assert.Equal(t, "bob", result.Player2)
	assert.Equal(t, 1, result.Winner)
	assert.NotEmpty(t, result.MatchID)

	// after the end delay readiness is cleared but both keep their seats
	require.Eventually(t, func() bool {
		frames := alice.ofType(protocol.TypeLobbyUpdate)
		last := frames[len(frames)-1]
		return last["playersCount"] == float64(2) && last["player1Ready"] == false && last["player2Ready"] == false &&
			len(alice.ofType(protocol.TypeGameEnd)) == 1
	}, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return !h.router.Stats().MatchRunning }, waitFor, time.Millisecond)
}

func TestMatch_GoalPrecedesGameEndPrecedesFinalState(t *testing.T) {
	h := newHarness(t, testSettings())
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)
	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})
	alice.await(t, protocol.TypeGameEnd)

	types := alice.types()
	var tail []string
	for i, typ := range types {
		if typ == protocol.TypeGoal {
			tail = types[i:]
			break
		}
	}
	require.GreaterOrEqual(t, len(tail), 3)
	assert.Equal(t, []string{protocol.TypeGoal, protocol.TypeGameEnd, protocol.TypeGameState}, tail[:3])
}

func TestMatch_RematchAfterReset(t *testing.T) {
	h := newHarness(t, testSettings())
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)

	for round := 1; round <= 2; round++ {
		h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
		h.router.Deliver(bob, protocol.PlayerReady{Ready: true})
		require.Eventually(t, func() bool { return len(alice.ofType(protocol.TypeGameEnd)) == round }, waitFor, time.Millisecond)
		// wait for the reset so the next ready is accepted
		require.Eventually(t, func() bool {
			frames := alice.ofType(protocol.TypeLobbyUpdate)
			last := frames[len(frames)-1]
			return last["player1Ready"] == false && last["player2Ready"] == false && !h.router.Stats().MatchRunning
		}, waitFor, time.Millisecond)
		time.Sleep(2 * testSettings().EndDelay)
	}
	assert.Len(t, alice.ofType(protocol.TypeGameStart), 2)
}

func TestMatch_UnreadyBeforeDelayCancelsStart(t *testing.T) {
	settings := testSettings()
	settings.StartDelay = 100 * time.Millisecond
	h := newHarness(t, settings)
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)

	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: false})

	time.Sleep(3 * settings.StartDelay)
	assert.Empty(t, alice.ofType(protocol.TypeGameStart))
	assert.False(t, h.router.Stats().MatchRunning)
}

func TestMatch_ReadyAgainRestartsStartDelay(t *testing.T) {
	settings := testSettings()
	settings.StartDelay = 100 * time.Millisecond
	h := newHarness(t, settings)
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)

	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})
	time.Sleep(settings.StartDelay / 2)
	h.router.Deliver(bob, protocol.PlayerReady{Ready: false})
	lastReady := time.Now()
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})

	alice.await(t, protocol.TypeGameStart)
	assert.GreaterOrEqual(t, time.Since(lastReady), settings.StartDelay)
	time.Sleep(settings.StartDelay)
	assert.Len(t, alice.ofType(protocol.TypeGameStart), 1)
}

// serveScript plays back serve draws in order, then repeats the last one.
// Each serve consumes a direction draw and a drift draw.
type serveScript struct {
	mu    sync.Mutex
	draws []float64
}

func (s *serveScript) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.draws[0]
	if len(s.draws) > 1 {
		s.draws = s.draws[1:]
	}
	return v
}

func TestMatch_FirstToFiveEndsFiveToThree(t *testing.T) {
	// right serves score for player 1, left serves for player 2; no drift
	var draws []float64
	for _, scorer := range []int{1, 2, 1, 2, 1, 2, 1, 1} {
		dir := 0.9
		if scorer == 2 {
			dir = 0.1
		}
		draws = append(draws, dir, 0.5)
	}
	draws = append(draws, 0.5)

	settings := testSettings()
	settings.TickInterval = time.Millisecond
	settings.WinningScore = match.DefaultWinningScore
	h := newHarnessWithSource(t, settings, &serveScript{draws: draws})
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)
	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})
	alice.await(t, protocol.TypeGameStart)

	// both paddles leave the center line the ball travels on
	h.router.Deliver(alice, protocol.MouseInput{PaddleY: match.PaddleMaxY})
	h.router.Deliver(bob, protocol.MouseInput{PaddleY: match.PaddleMaxY})

	require.Eventually(t, func() bool { return len(bob.ofType(protocol.TypeGameEnd)) == 1 }, 15*time.Second, 5*time.Millisecond)
	end := bob.ofType(protocol.TypeGameEnd)[0]
	assert.EqualValues(t, 1, end["winner"])
	assert.Equal(t, map[string]any{"player1": float64(5), "player2": float64(3)}, end["finalScore"])
	assert.Len(t, bob.ofType(protocol.TypeGoal), 8)

	require.Eventually(t, func() bool { return len(h.pub.snapshot()) == 1 }, waitFor, time.Millisecond)
	result := h.pub.snapshot()[0]
	assert.Equal(t, 5, result.Score1)
	assert.Equal(t, 3, result.Score2)
}

func TestMatch_DisconnectStopsMatch(t *testing.T) {
	settings := testSettings()
	settings.WinningScore = 1000
	h := newHarness(t, settings)
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)
	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})
	alice.await(t, protocol.TypeGameStart)
	require.Eventually(t, func() bool { return h.router.Stats().MatchRunning }, waitFor, time.Millisecond)

	bob.alive.Store(false)
	h.router.Disconnect(bob)

	alice.await(t, protocol.TypePlayerLeft)
	require.Eventually(t, func() bool { return !h.router.Stats().MatchRunning }, waitFor, time.Millisecond)
	update := alice.ofType(protocol.TypeLobbyUpdate)
	last := update[len(update)-1]
	assert.EqualValues(t, 1, last["playersCount"])
	assert.Equal(t, false, last["player2"])

	// no further state frames once the clock is cancelled
	time.Sleep(20 * time.Millisecond)
	n := len(alice.ofType(protocol.TypeGameState))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(alice.ofType(protocol.TypeGameState)))
	assert.Empty(t, alice.ofType(protocol.TypeGameEnd))
	assert.Empty(t, h.pub.snapshot())
}

func TestInput_IgnoredOutsideMatch(t *testing.T) {
	h := newHarness(t, testSettings())
	alice := h.seat(t, "alice", "pw123", 1)
	h.router.Deliver(alice, protocol.Input{Input: protocol.DirectionUp})
	h.router.Deliver(alice, protocol.MouseInput{PaddleY: 10})
	h.router.Deliver(alice, protocol.InputStop{})
	h.router.Deliver(alice, protocol.GetStats{})
	alice.await(t, protocol.TypeUserStats)
	assert.Empty(t, alice.ofType(protocol.TypeGameState))
	assert.Empty(t, alice.ofType(protocol.TypeError))
}

func TestMouseInput_MovesPaddle(t *testing.T) {
	settings := testSettings()
	settings.WinningScore = 1000
	h := newHarness(t, settings)
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)
	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})
	h.router.Deliver(bob, protocol.PlayerReady{Ready: true})
	alice.await(t, protocol.TypeGameStart)

	h.router.Deliver(bob, protocol.MouseInput{PaddleY: 1e6})
	require.Eventually(t, func() bool {
		frames := alice.ofType(protocol.TypeGameState)
		if len(frames) == 0 {
			return false
		}
		state := frames[len(frames)-1]["state"].(map[string]any)
		p2 := state["paddle2"].(map[string]any)
		return p2["y"] == float64(match.PaddleMaxY)
	}, waitFor, time.Millisecond)
}

func TestRouter_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, testSettings())
	h.router.Stop()
	h.router.Stop()
	assert.False(t, h.router.Serving())
	assert.Equal(t, gameserver.ErrStopped, h.router.Run(context.Background()))
}

func TestRouter_StopWithoutRun(t *testing.T) {
	r := gameserver.New(testSettings(), memory.New(), zaptest.NewLogger(t))
	assert.NotPanics(t, r.Stop)
}

func TestBroadcast_SkipsDeadConnections(t *testing.T) {
	h := newHarness(t, testSettings())
	alice := h.seat(t, "alice", "pw123", 1)
	bob := h.seat(t, "bob", "pw456", 2)
	require.Eventually(t, func() bool { return len(bob.ofType(protocol.TypeLobbyUpdate)) >= 1 }, waitFor, time.Millisecond)

	// closed underneath the router before the disconnect is delivered
	bob.alive.Store(false)
	before := len(bob.types())
	h.router.Deliver(alice, protocol.PlayerReady{Ready: true})

	require.Eventually(t, func() bool {
		frames := alice.ofType(protocol.TypeLobbyUpdate)
		return frames[len(frames)-1]["player1Ready"] == true
	}, waitFor, time.Millisecond)
	assert.Equal(t, before, len(bob.types()))
}
