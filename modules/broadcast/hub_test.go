package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Amit00008/solana-chess/domain/protocol"
	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/Amit00008/solana-chess/events"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func connect(t *testing.T, h *Hub, id string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	client := NewClient(id, conn)
	h.Register(client)
	go client.WritePump()
	t.Cleanup(func() { h.Unregister(id) })
	return conn
}

func decodeType(t *testing.T, frame []byte) string {
	t.Helper()
	var msg struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(frame, &msg))
	return msg.Type
}

func TestHub_SendTo(t *testing.T) {
	h := NewHub(clock.NewMock())
	conn := connect(t, h, "c1")
	other := connect(t, h, "c2")

	h.SendTo("c1", protocol.Pong{Type: protocol.TypePong})
	h.SendTo("unknown", protocol.Pong{Type: protocol.TypePong})

	require.Eventually(t, func() bool { return len(conn.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "pong", decodeType(t, conn.Frames()[0]))
	assert.Empty(t, other.Frames())
}

func TestHub_SendToPreservesOrder(t *testing.T) {
	h := NewHub(clock.NewMock())
	conn := connect(t, h, "c1")

	for i := 0; i < 10; i++ {
		h.SendTo("c1", protocol.NewError(string(rune('a'+i))))
	}

	require.Eventually(t, func() bool { return len(conn.Frames()) == 10 }, time.Second, 5*time.Millisecond)
	for i, frame := range conn.Frames() {
		var msg protocol.Error
		require.NoError(t, json.Unmarshal(frame, &msg))
		assert.Equal(t, string(rune('a'+i)), msg.Message)
	}
}

func TestHub_BindUnbind(t *testing.T) {
	h := NewHub(clock.NewMock())
	connect(t, h, "c1")

	h.Bind("c1", "wallet-1", "game-1", room.Black)
	b, ok := h.Binding("c1")
	require.True(t, ok)
	assert.Equal(t, Binding{Wallet: "wallet-1", RoomID: "game-1", Color: room.Black}, b)

	h.Unbind("c1")
	b, ok = h.Binding("c1")
	require.True(t, ok)
	assert.Equal(t, Binding{Wallet: "wallet-1"}, b)

	_, ok = h.Binding("missing")
	assert.False(t, ok)
}

func TestHub_Stale(t *testing.T) {
	mock := clock.NewMock()
	h := NewHub(mock)
	connect(t, h, "quiet")
	connect(t, h, "chatty")

	mock.Add(45 * time.Second)
	h.Touch("chatty")
	assert.Empty(t, h.Stale(60*time.Second))

	mock.Add(30 * time.Second)
	assert.Equal(t, []string{"quiet"}, h.Stale(60*time.Second))
}

func TestHub_UnregisterAndKick(t *testing.T) {
	h := NewHub(clock.NewMock())
	conn := connect(t, h, "c1")
	assert.Equal(t, 1, h.ClientCount())

	h.Kick("c1")
	assert.True(t, conn.Closed())

	assert.True(t, h.Unregister("c1"))
	assert.False(t, h.Unregister("c1"))
	assert.Equal(t, 0, h.ClientCount())

	h.SendTo("c1", protocol.Pong{Type: protocol.TypePong})
}

func TestHub_RunBroadcastsAndCloses(t *testing.T) {
	h := NewHub(clock.NewMock())
	a := connect(t, h, "a")
	b := connect(t, h, "b")

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	h.BroadcastAll(protocol.ListGames{Type: protocol.TypeListGames, Games: []protocol.GameListing{}})
	require.Eventually(t, func() bool {
		return len(a.Frames()) == 1 && len(b.Frames()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "listGames", decodeType(t, a.Frames()[0]))

	cancel()
	h.Wait()
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Equal(t, 0, h.ClientCount())
}

type fakeLobby struct {
	games []protocol.GameListing
	err   error
}

func (f *fakeLobby) ListGames(_ context.Context) ([]protocol.GameListing, error) {
	return f.games, f.err
}

func TestBroadcastModule_LobbyChanged(t *testing.T) {
	m := NewModule(clock.NewMock())
	conn := connect(t, m.GetHub(), "c1")
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	m.lobby = &fakeLobby{games: []protocol.GameListing{
		{RoomID: "game-1", Players: 1, Status: "WAITING", BetAmount: 1, RequiredBet: "1000000000"},
	}}

	ev := events.LobbyChangedEvent{RoomID: "game-1", Reason: events.ChangeCreated, Timestamp: time.Now()}
	require.NoError(t, m.handleLobbyChanged(context.Background(), ev, nil))

	require.Eventually(t, func() bool { return len(conn.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	var msg protocol.ListGames
	require.NoError(t, json.Unmarshal(conn.Frames()[0], &msg))
	require.Len(t, msg.Games, 1)
	assert.Equal(t, "game-1", msg.Games[0].RoomID)
	assert.Equal(t, "1000000000", msg.Games[0].RequiredBet)

	m.lobby = &fakeLobby{err: errors.New("unavailable")}
	assert.Error(t, m.handleLobbyChanged(context.Background(), ev, nil))
}
