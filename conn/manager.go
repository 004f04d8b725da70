// Package conn owns the client's single WebSocket to an agent. It dials,
// reconnects with backoff, classifies inbound payloads into events and
// carries outbound frames for the chat controller.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"agentchat/chat"
	"agentchat/config"
	"agentchat/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	queueSize  = 64
)

var (
	ErrNotConnected = errors.New("not connected to the agent")
	ErrQueueFull    = errors.New("outbound queue is full")
)

// Event is delivered on Manager.Events.
type Event interface{ isEvent() }

// StateEvent reports a connection state change.
type StateEvent struct{ State chat.ConnState }

// FrameEvent carries a protocol frame from the agent.
type FrameEvent struct{ Frame protocol.Frame }

// NotificationEvent carries a scheduled-task notification.
type NotificationEvent struct{ Task protocol.ScheduledTask }

// ErrorEvent reports a failed dial or a dropped connection.
type ErrorEvent struct{ Err error }

func (StateEvent) isEvent()        {}
func (FrameEvent) isEvent()        {}
func (NotificationEvent) isEvent() {}
func (ErrorEvent) isEvent()        {}

type Options struct {
	URL   string
	Token string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

var _ chat.Sender = (*Manager)(nil)

// Manager is the sole owner of the connection. It implements chat.Sender.
type Manager struct {
	opts   Options
	events chan Event

	mu     sync.Mutex
	state  chat.ConnState
	send   chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Manager{
		opts:   opts,
		events: make(chan Event, queueSize),
		state:  chat.ConnClosed,
	}
}

// Events is closed after Close once the connection has shut down.
func (m *Manager) Events() <-chan Event { return m.events }

func (m *Manager) State() chat.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open starts connecting in the background. Failures are reported as events
// and retried until Close or ctx is done.
func (m *Manager) Open(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Close tears the connection down and waits for it to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (m *Manager) SendMessage(msg *chat.Message) error {
	return m.sendFrame(protocol.ChatRequest{Message: msg})
}

func (m *Manager) SendToolResult(toolCallID string, output json.RawMessage) error {
	return m.sendFrame(protocol.ToolResult{ToolCallID: toolCallID, Output: output})
}

func (m *Manager) SendApproval(approvalID string, approved bool) error {
	return m.sendFrame(protocol.ApprovalResponse{ID: approvalID, Approved: approved})
}

func (m *Manager) Cancel() error { return m.sendFrame(protocol.ChatCancel{}) }

func (m *Manager) Clear() error { return m.sendFrame(protocol.ChatClear{}) }

func (m *Manager) sendFrame(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	m.mu.Lock()
	send := m.send
	m.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	select {
	case send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer close(m.events)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.InitialBackoff
	b.MaxInterval = m.opts.MaxBackoff

	header := http.Header{}
	if m.opts.Token != "" {
		header.Set("Authorization", "Bearer "+m.opts.Token)
	}

	for {
		m.setState(ctx, chat.ConnConnecting)
		ws, resp, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			b.Reset()
			err = m.session(ctx, ws)
		} else {
			err = fmt.Errorf("failed to connect to %s: %w", m.opts.URL, err)
		}

		m.setState(ctx, chat.ConnClosed)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Conn] %v", err)
			}
			m.emit(ctx, ErrorEvent{Err: err})
		}

		wait := b.NextBackOff()
		if wait < 0 {
			wait = m.opts.MaxBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session serves one live connection. It returns when the connection drops
// or ctx is done.
func (m *Manager) session(ctx context.Context, ws *websocket.Conn) error {
	send := make(chan []byte, queueSize)
	m.mu.Lock()
	m.send = send
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.send = nil
		m.mu.Unlock()
	}()
	m.setState(ctx, chat.ConnOpen)

	readErr := make(chan error, 1)
	go func() { readErr <- m.readLoop(ctx, ws) }()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			ws.Close()
			<-readErr
			return nil
		case err := <-readErr:
			ws.Close()
			return err
		case data := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				ws.Close()
				<-readErr
				return fmt.Errorf("write failed: %w", err)
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.Close()
				<-readErr
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		// any traffic shows the agent is alive
		ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if task, ok := protocol.ParseNotification(data); ok {
			m.emit(ctx, NotificationEvent{Task: task})
			continue
		}
		f, err := protocol.Decode(data)
		if err != nil {
			if config.Debug {
				config.DebugLog.Printf("[Conn] dropping payload: %v", err)
			}
			continue
		}
		m.emit(ctx, FrameEvent{Frame: f})
	}
}

func (m *Manager) setState(ctx context.Context, s chat.ConnState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed {
		m.emit(ctx, StateEvent{State: s})
	}
}

// emit delivers e unless the manager is shutting down. The closed state is
// always delivered so consumers see the final transition.
func (m *Manager) emit(ctx context.Context, e Event) {
	if s, ok := e.(StateEvent); ok && s.State == chat.ConnClosed {
		select {
		case m.events <- e:
		default:
		}
		return
	}
	select {
	case m.events <- e:
	case <-ctx.Done():
	}
}
