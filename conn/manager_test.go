package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchat/chat"
	"agentchat/protocol"
)

// fakeAgent accepts WebSocket clients and records what they send.
type fakeAgent struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []protocol.Frame
	auth     []string
	conns    chan *websocket.Conn
}

func newFakeAgent(t *testing.T) (*fakeAgent, *httptest.Server) {
	fa := &fakeAgent{t: t, conns: make(chan *websocket.Conn, 4)}
	ts := httptest.NewServer(http.HandlerFunc(fa.serve))
	t.Cleanup(ts.Close)
	return fa, ts
}

func (fa *fakeAgent) serve(w http.ResponseWriter, r *http.Request) {
	fa.mu.Lock()
	fa.auth = append(fa.auth, r.Header.Get("Authorization"))
	fa.mu.Unlock()

	ws, err := fa.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fa.conns <- ws
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		fa.mu.Lock()
		fa.received = append(fa.received, f)
		fa.mu.Unlock()
	}
}

func (fa *fakeAgent) accept() *websocket.Conn {
	fa.t.Helper()
	select {
	case ws := <-fa.conns:
		return ws
	case <-time.After(5 * time.Second):
		fa.t.Fatal("no client connected")
		return nil
	}
}

func (fa *fakeAgent) frames() []protocol.Frame {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return append([]protocol.Frame(nil), fa.received...)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/agents/chat/default"
}

// next waits for the first event matching match, skipping others.
func next(t *testing.T, m *Manager, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-m.Events():
			require.True(t, ok, "events closed")
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func isState(s chat.ConnState) func(Event) bool {
	return func(e Event) bool {
		se, ok := e.(StateEvent)
		return ok && se.State == s
	}
}

func newManager(t *testing.T, url string) *Manager {
	m := New(Options{URL: url, Token: "tok", InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSendBeforeOpen(t *testing.T) {
	m := New(Options{URL: "ws://127.0.0.1:1"})
	assert.ErrorIs(t, m.SendMessage(chat.NewUserMessage("hi")), ErrNotConnected)
	assert.ErrorIs(t, m.Cancel(), ErrNotConnected)
	assert.Equal(t, chat.ConnClosed, m.State())
	assert.NoError(t, m.Close())
}

func TestOpenAndExchange(t *testing.T) {
	fa, ts := newFakeAgent(t)
	m := newManager(t, wsURL(ts))
	m.Open(context.Background())

	next(t, m, isState(chat.ConnConnecting))
	next(t, m, isState(chat.ConnOpen))
	ws := fa.accept()

	data, err := protocol.Encode(protocol.ChatHistory{Messages: []*chat.Message{chat.NewUserMessage("earlier")}})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	e := next(t, m, func(e Event) bool { _, ok := e.(FrameEvent); return ok })
	history, ok := e.(FrameEvent).Frame.(protocol.ChatHistory)
	require.True(t, ok)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "earlier", history.Messages[0].Text())

	// non-conforming payloads produce nothing; the notification after them does
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"unknown"}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"scheduled-task","description":"water plants","timestamp":"2026-01-01T09:00:00Z"}`)))

	e = next(t, m, func(Event) bool { return true })
	note, ok := e.(NotificationEvent)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, "water plants", note.Task.Description)

	require.NoError(t, m.SendMessage(chat.NewUserMessage("hello")))
	require.NoError(t, m.SendApproval("approval_1", true))
	require.NoError(t, m.SendToolResult("call_1", []byte(`{"timezone":"UTC"}`)))
	require.NoError(t, m.Cancel())
	require.NoError(t, m.Clear())

	assert.Eventually(t, func() bool { return len(fa.frames()) == 5 }, 5*time.Second, 10*time.Millisecond)
	frames := fa.frames()
	req, ok := frames[0].(protocol.ChatRequest)
	require.True(t, ok)
	assert.Equal(t, "hello", req.Message.Text())
	assert.Equal(t, protocol.ApprovalResponse{ID: "approval_1", Approved: true}, frames[1])
	assert.IsType(t, protocol.ToolResult{}, frames[2])
	assert.IsType(t, protocol.ChatCancel{}, frames[3])
	assert.IsType(t, protocol.ChatClear{}, frames[4])

	fa.mu.Lock()
	assert.Equal(t, "Bearer tok", fa.auth[0])
	fa.mu.Unlock()
}

func TestReconnectsAfterDrop(t *testing.T) {
	fa, ts := newFakeAgent(t)
	m := newManager(t, wsURL(ts))
	m.Open(context.Background())

	next(t, m, isState(chat.ConnOpen))
	fa.accept().Close()

	e := next(t, m, func(e Event) bool { _, ok := e.(ErrorEvent); return ok })
	assert.Error(t, e.(ErrorEvent).Err)
	assert.ErrorIs(t, m.SendMessage(chat.NewUserMessage("lost")), ErrNotConnected)

	next(t, m, isState(chat.ConnOpen))
	fa.accept()
	assert.Equal(t, chat.ConnOpen, m.State())
}

func TestDialFailureReportsError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	m := newManager(t, url)
	m.Open(context.Background())

	e := next(t, m, func(e Event) bool { _, ok := e.(ErrorEvent); return ok })
	assert.Contains(t, e.(ErrorEvent).Err.Error(), "failed to connect")
	assert.NotEqual(t, chat.ConnOpen, m.State())
}

func TestCloseEndsEvents(t *testing.T) {
	_, ts := newFakeAgent(t)
	m := newManager(t, wsURL(ts))
	m.Open(context.Background())
	next(t, m, isState(chat.ConnOpen))

	require.NoError(t, m.Close())
	for range m.Events() {
	}
	assert.Equal(t, chat.ConnClosed, m.State())
	assert.ErrorIs(t, m.Clear(), ErrNotConnected)
}
