package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-shim/internal/game"
	"go.uber.org/zap"
)

type testBoard struct {
	game.Base
	value byte
}

func newTestBoard(name string) *testBoard {
	b := &testBoard{}
	b.Base = game.NewBase(name, 4, func(buf []byte) {
		buf[0] = 0xA5
		buf[3] = b.value
	})
	return b
}

func (b *testBoard) ControlReset() int                   { return 0 }
func (b *testBoard) SetOutput(index int, value byte) int { return 0 }
func (b *testBoard) SetOutputWord(word uint32)           {}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn, r.URL.Query().Get("board"))
		hub.Register(c)
		go c.WritePump()
		go c.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestPusherOnlySendsChanges(t *testing.T) {
	hub := NewHub(zap.NewNop())
	b := newTestBoard("IO")
	b.UpdateControlStatusBuffer()
	p := NewStatusPusher(hub, []game.Board{b}, 0)

	assert.Equal(t, 1, p.Push())
	assert.Equal(t, 0, p.Push())

	b.value = 7
	b.UpdateControlStatusBuffer()
	assert.Equal(t, 1, p.Push())

	b.SetFreeze(true)
	assert.Equal(t, 1, p.Push(), "冻结状态变化也要推送")

	msg := <-hub.broadcast
	assert.Equal(t, MessageTypeStatus, msg.Type)
	assert.Equal(t, "IO", msg.Board)
	var st BoardStatus
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	assert.Equal(t, "a5000000", st.Buffer)
	assert.Equal(t, 4, st.Size)
}

func TestStatusOf(t *testing.T) {
	b := newTestBoard("IO")
	b.value = 0x10
	b.UpdateControlStatusBuffer()
	st := StatusOf(b)
	assert.Equal(t, "a5000010", st.Buffer)
	assert.Equal(t, uint64(1), st.Updates)
	assert.False(t, st.Frozen)
}

func TestClientReceivesSubscribedBoards(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?board=LED")

	hello := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnected, hello.Type)
	require.Eventually(t, func() bool { return hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(&Message{Type: MessageTypeStatus, Board: "IO", Timestamp: 1})
	hub.Broadcast(&Message{Type: MessageTypeStatus, Board: "LED", Timestamp: 2})

	msg := readMessage(t, conn)
	assert.Equal(t, "LED", msg.Board)
	assert.Equal(t, int64(2), msg.Timestamp)
}

func TestClientSubscribeMessage(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?board=LED")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, Board: "IO"}))
	require.Eventually(t, func() bool {
		hub.clientsMu.RLock()
		defer hub.clientsMu.RUnlock()
		for _, c := range hub.clients {
			return c.Subscribed("IO") && !c.Subscribed("LED")
		}
		return false
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(&Message{Type: MessageTypeStatus, Board: "IO", Timestamp: 3})
	assert.Equal(t, "IO", readMessage(t, conn).Board)
}

func TestClientUnknownMessage(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Contains(t, string(msg.Data), "dance")
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := &Client{ID: "c1", Hub: hub, Send: make(chan []byte, 4)}
	hub.Register(c)
	<-c.Send // connected
	cancel()
	<-done

	_, ok := <-c.Send
	assert.False(t, ok)
	hub.Broadcast(&Message{Type: MessageTypePing})
	assert.Equal(t, 0, hub.GetOnlineCount())
}
