// Package agent is the server side of a chat: one actor per agent name that
// owns the conversation history, runs model turns with tools, gates tool calls
// behind user approval and fires scheduled tasks.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"agentchat/chat"
	"agentchat/config"
	"agentchat/model"
	"agentchat/protocol"
	"agentchat/storage"
)

// DefaultMaxSteps bounds the model calls of one user request.
const DefaultMaxSteps = 10

var (
	ErrBusy            = errors.New("a response is already in progress")
	ErrRateLimited     = errors.New("too many requests, try again shortly")
	ErrNotUserMessage  = errors.New("chat request must carry a user message")
	ErrUnknownApproval = errors.New("no pending approval with that id")
	ErrNotClientTool   = errors.New("tool is not resolved by the client")

	errInvalidOutput = errors.New("tool returned invalid output")
	errInterrupted   = errors.New("tool call was interrupted")
)

// Conn is one attached client connection. Send must not block.
type Conn interface {
	ID() string
	Send(f protocol.Frame) error
}

// Options configures every agent created by a Hub.
type Options struct {
	Provider          model.Provider
	Tools             *Registry
	Store             *storage.Store
	MaxSteps          int
	ApprovalTimeout   time.Duration
	SystemPrompt      string
	RequestsPerMinute int
	Observer          Observer
	Now               func() time.Time
}

// OptionsFromConfig builds Options from the server section of cfg.
func OptionsFromConfig(cfg *config.Config, p model.Provider, store *storage.Store) Options {
	return Options{
		Provider:          p,
		Store:             store,
		MaxSteps:          cfg.Server.MaxSteps,
		ApprovalTimeout:   cfg.ApprovalTimeout(),
		SystemPrompt:      cfg.Server.SystemPrompt,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
	}
}

func (o Options) withDefaults() Options {
	if o.Tools == nil {
		o.Tools = DefaultTools()
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type attachment struct {
	conn    Conn
	limiter *rate.Limiter
}

// Agent holds one named conversation. All clients attached to it see the
// same history and the same stream. At most one turn runs at a time.
type Agent struct {
	name      string
	opts      Options
	scheduler *Scheduler

	mu      sync.Mutex
	history []*chat.Message
	conns   map[string]*attachment
	timers  map[string]*time.Timer
	cancel  context.CancelFunc
	running bool
	resume  bool
	steps   int
	// gen changes on clear; chunks from turns of an older generation are
	// dropped
	gen int

	// saveMu orders snapshots with their writes
	saveMu sync.Mutex
	wg     sync.WaitGroup
}

func newAgent(name string, opts Options, scheduler *Scheduler, history []*chat.Message) *Agent {
	return &Agent{
		name:      name,
		opts:      opts.withDefaults(),
		scheduler: scheduler,
		history:   history,
		conns:     make(map[string]*attachment),
		timers:    make(map[string]*time.Timer),
	}
}

func (a *Agent) Name() string { return a.name }

// History returns a copy of the conversation.
func (a *Agent) History() []*chat.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneAll(a.history)
}

// Running reports whether a turn is in progress.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Attach registers c and replays the history to it.
func (a *Agent) Attach(c Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()

	at := &attachment{conn: c}
	if rpm := a.opts.RequestsPerMinute; rpm > 0 {
		at.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60), 1+rpm/10)
	}
	a.conns[c.ID()] = at
	if err := c.Send(protocol.ChatHistory{Messages: cloneAll(a.history)}); err != nil {
		logf("[Agent %s] failed to send history to %s: %v", a.name, c.ID(), err)
	}
	a.opts.Observer.ConnectionOpened(a.name)
}

// Detach forgets a connection. A running turn keeps going.
func (a *Agent) Detach(connID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.conns[connID]; !ok {
		return
	}
	delete(a.conns, connID)
	a.opts.Observer.ConnectionClosed(a.name)
}

// Notify sends an out-of-band frame to every attached connection.
func (a *Agent) Notify(f protocol.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broadcastLocked(f, "")
}

// Handle processes one frame received from connID. Failures are reported to
// that connection as chat-error frames.
func (a *Agent) Handle(connID string, f protocol.Frame) {
	var err error
	switch f := f.(type) {
	case protocol.ChatRequest:
		err = a.request(connID, f.Message)
	case protocol.ChatCancel:
		a.Cancel()
	case protocol.ChatClear:
		err = a.Clear()
	case protocol.ApprovalResponse:
		err = a.Decide(f.ID, f.Approved)
	case protocol.ToolResult:
		err = a.ToolResult(f.ToolCallID, f.Output)
	default:
		err = fmt.Errorf("unexpected %s frame", f.FrameType())
	}
	if err != nil {
		logf("[Agent %s] %s from %s: %v", a.name, f.FrameType(), connID, err)
		a.sendTo(connID, protocol.ChatError{Error: err.Error()})
		return
	}
	switch f.(type) {
	case protocol.ChatRequest, protocol.ApprovalResponse, protocol.ToolResult:
		a.save()
	}
}

func (a *Agent) request(connID string, m *chat.Message) error {
	if m == nil || m.Role != chat.RoleUser {
		return ErrNotUserMessage
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if at, ok := a.conns[connID]; ok && at.limiter != nil && !at.limiter.Allow() {
		return ErrRateLimited
	}
	if a.running {
		return ErrBusy
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = a.opts.Now()
	}

	a.abandonPendingLocked()
	a.history = append(a.history, m)
	a.broadcastLocked(protocol.ChatMessage{Message: m.Clone()}, connID)
	a.steps = 0
	a.startLocked()
	return nil
}

// Cancel stops the running turn. Whatever was streamed stays in history.
func (a *Agent) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resume = false
	if a.cancel != nil {
		a.cancel()
	}
}

// Clear drops the conversation here, in storage and on every client.
func (a *Agent) Clear() error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.stopTimersLocked()
	a.gen++
	a.running = false
	a.resume = false
	a.steps = 0
	a.history = nil
	a.broadcastLocked(protocol.ChatHistory{Messages: []*chat.Message{}}, "")
	a.mu.Unlock()

	if a.opts.Store == nil {
		return nil
	}
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	if err := a.opts.Store.ClearMessages(context.Background(), a.name); err != nil {
		return fmt.Errorf("failed to clear stored history: %w", err)
	}
	return nil
}

// Decide records the user's answer to the approval with the given id and
// continues the turn once nothing else is waiting on the user.
func (a *Agent) Decide(approvalID string, approved bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, p := a.findApprovalLocked(approvalID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownApproval, approvalID)
	}
	if p.Approval.Decided() {
		if *p.Approval.Approved == approved {
			return nil
		}
		return chat.ErrApprovalFinal
	}
	outcome := ""
	if !approved {
		outcome = OutcomeDenied
	}
	a.decideLocked(m, p, approved, outcome)
	return nil
}

// expire denies an approval nobody answered in time.
func (a *Agent) expire(approvalID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, p := a.findApprovalLocked(approvalID)
	if p == nil || p.Approval.Decided() {
		return
	}
	logf("[Agent %s] approval %s for %s timed out", a.name, approvalID, p.ToolName)
	a.decideLocked(m, p, false, OutcomeTimeout)
}

func (a *Agent) decideLocked(m *chat.Message, p *chat.ToolPart, approved bool, outcome string) {
	id := p.Approval.ID
	a.stopTimerLocked(id)
	a.emitLocked(a.gen, m, chat.Chunk{
		Type:       chat.ChunkToolApprovalResponse,
		ToolCallID: p.ToolCallID,
		ApprovalID: id,
		Approved:   &approved,
	})
	if !approved {
		a.emitLocked(a.gen, m, chat.Chunk{Type: chat.ChunkToolOutputDenied, ToolCallID: p.ToolCallID})
		a.opts.Observer.ToolCalled(p.ToolName, outcome)
	}
	a.continueLocked(m)
}

// ToolResult accepts the output of a client-side tool.
func (a *Agent) ToolResult(toolCallID string, output json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, p := a.findToolLocked(toolCallID)
	if p == nil {
		return fmt.Errorf("%w: %s", chat.ErrUnknownTool, toolCallID)
	}
	if p.State == chat.ToolOutputAvailable {
		return nil
	}
	tool, ok := a.opts.Tools.Get(p.ToolName)
	if !ok || !tool.ClientSide() {
		return fmt.Errorf("%w: %s", ErrNotClientTool, p.ToolName)
	}
	if len(output) == 0 || !json.Valid(output) {
		output = chat.ErrorOutput(errInvalidOutput)
	}
	a.emitLocked(a.gen, m, chat.Chunk{Type: chat.ChunkToolOutputAvailable, ToolCallID: toolCallID, Output: output})
	a.opts.Observer.ToolCalled(p.ToolName, OutcomeClient)
	a.continueLocked(m)
	return nil
}

// Close cancels any running turn and waits for it to stop.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.resume = false
	a.stopTimersLocked()
	a.mu.Unlock()
	a.wg.Wait()
}

// continueLocked resumes the turn that owns m once no tool call of m is
// waiting on the user.
func (a *Agent) continueLocked(m *chat.Message) {
	if len(a.history) == 0 || a.history[len(a.history)-1] != m || a.blockedLocked(m) {
		return
	}
	if a.running {
		a.resume = true
		return
	}
	a.startLocked()
}

func (a *Agent) blockedLocked(m *chat.Message) bool {
	for _, p := range m.ToolParts() {
		switch p.State {
		case chat.ToolApprovalRequested:
			if !p.Approval.Decided() {
				return true
			}
		case chat.ToolInputAvailable:
			if t, ok := a.opts.Tools.Get(p.ToolName); ok && t.ClientSide() {
				return true
			}
		}
	}
	return false
}

func (a *Agent) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.running = true
	a.resume = false
	gen := a.gen
	a.opts.Observer.TurnStarted(a.name)

	a.wg.Add(1)
	go a.run(ctx, gen)
}

func (a *Agent) run(ctx context.Context, gen int) {
	defer a.wg.Done()
	a.turn(ctx, gen)
	a.save()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		// cleared while running; the flags already belong to the new state
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.running = false
	if a.resume {
		a.startLocked()
	}
}

// turn drives the newest assistant message until it needs the user, the
// model stops calling tools, the step limit is reached or ctx is cancelled.
func (a *Agent) turn(ctx context.Context, gen int) {
	m := a.prepare(gen)
	if m == nil {
		return
	}

	for ctx.Err() == nil {
		if paused := a.resolveTools(ctx, gen, m); paused || ctx.Err() != nil {
			break
		}
		if !a.needsModel(m) {
			break
		}
		if !a.takeStep() {
			logf("[Agent %s] step limit of %d reached", a.name, a.opts.MaxSteps)
			break
		}
		produced, err := a.step(ctx, gen, m)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logf("[Agent %s] model call failed: %v", a.name, err)
			a.emit(gen, m, chat.Chunk{Type: chat.ChunkError, ErrorText: err.Error()})
			return
		}
		if !produced {
			break
		}
	}
	a.emit(gen, m, chat.Chunk{Type: chat.ChunkFinish})
}

// prepare returns the assistant message the turn works on, starting a new
// one after a user message.
func (a *Agent) prepare(gen int) *chat.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || len(a.history) == 0 {
		return nil
	}
	if last := a.history[len(a.history)-1]; last.Role == chat.RoleAssistant {
		return last
	}
	m := &chat.Message{ID: uuid.NewString(), Role: chat.RoleAssistant, CreatedAt: a.opts.Now()}
	a.history = append(a.history, m)
	a.emitLocked(gen, m, chat.Chunk{Type: chat.ChunkStart})
	return m
}

func (a *Agent) needsModel(m *chat.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(m.Parts) == 0 {
		return true
	}
	_, ok := m.Parts[len(m.Parts)-1].(*chat.ToolPart)
	return ok
}

func (a *Agent) takeStep() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.steps >= a.opts.MaxSteps {
		return false
	}
	a.steps++
	return true
}

type toolJob struct {
	callID string
	name   string
	tool   *Tool
	args   map[string]any
	err    error
}

// resolveTools runs every tool call of m that can run now and reports
// whether any call is still waiting on the user.
func (a *Agent) resolveTools(ctx context.Context, gen int, m *chat.Message) bool {
	a.mu.Lock()
	var (
		jobs   []toolJob
		paused bool
	)
	for _, p := range m.ToolParts() {
		switch p.State {
		case chat.ToolInputAvailable:
			job := toolJob{callID: p.ToolCallID, name: p.ToolName}
			tool, ok := a.opts.Tools.Get(p.ToolName)
			if !ok {
				job.err = fmt.Errorf("unknown tool %q", p.ToolName)
				jobs = append(jobs, job)
				continue
			}
			args, err := decodeArgs(p.Input)
			if err != nil {
				job.err = err
				jobs = append(jobs, job)
				continue
			}
			switch {
			case tool.requiresApproval(args):
				a.requestApprovalLocked(gen, m, p)
				paused = true
			case tool.ClientSide():
				paused = true
			default:
				job.tool, job.args = tool, args
				jobs = append(jobs, job)
			}
		case chat.ToolApprovalRequested:
			if !p.Approval.Decided() {
				paused = true
				continue
			}
			tool, ok := a.opts.Tools.Get(p.ToolName)
			job := toolJob{callID: p.ToolCallID, name: p.ToolName, tool: tool}
			if !ok || tool.ClientSide() {
				job.err = fmt.Errorf("unknown tool %q", p.ToolName)
			} else {
				job.args, job.err = decodeArgs(p.Input)
			}
			jobs = append(jobs, job)
		case chat.ToolInputStreaming:
			paused = true
		}
	}
	a.mu.Unlock()

	for _, job := range jobs {
		if ctx.Err() != nil {
			return true
		}
		output, outcome := a.invoke(ctx, job)
		a.emit(gen, m, chat.Chunk{Type: chat.ChunkToolOutputAvailable, ToolCallID: job.callID, Output: output})
		a.opts.Observer.ToolCalled(job.name, outcome)
	}
	return paused
}

func (a *Agent) invoke(ctx context.Context, job toolJob) (json.RawMessage, string) {
	if job.err != nil {
		return chat.ErrorOutput(job.err), OutcomeError
	}
	env := ToolEnv{Agent: a.name, Scheduler: a.scheduler}
	result, err := job.tool.Execute(ctx, env, job.args)
	if err == nil {
		var out json.RawMessage
		if out, err = json.Marshal(result); err == nil {
			if config.Debug {
				config.DebugLog.Printf("[Agent %s] %s -> %s", a.name, job.name, out)
			}
			return out, OutcomeOK
		}
	}
	return chat.ErrorOutput(err), OutcomeError
}

func (a *Agent) requestApprovalLocked(gen int, m *chat.Message, p *chat.ToolPart) {
	id := "approval_" + shortID()
	a.emitLocked(gen, m, chat.Chunk{
		Type:       chat.ChunkToolApprovalRequest,
		ToolCallID: p.ToolCallID,
		ToolName:   p.ToolName,
		ApprovalID: id,
	})
	a.opts.Observer.ToolCalled(p.ToolName, OutcomeApproval)
	if a.opts.ApprovalTimeout > 0 {
		a.timers[id] = time.AfterFunc(a.opts.ApprovalTimeout, func() { a.expire(id) })
	}
}

// step makes one model call and streams its output into m. It reports
// whether the model produced anything.
func (a *Agent) step(ctx context.Context, gen int, m *chat.Message) (bool, error) {
	a.mu.Lock()
	msgs := a.providerMessagesLocked()
	before := len(m.Parts)
	a.mu.Unlock()

	var (
		textID       = "text_" + shortID()
		reasoningID  = "reasoning_" + shortID()
		textLen      int
		reasoningLen int
		reasoning    bool
	)
	endReasoning := func() {
		if !reasoning {
			return
		}
		a.emit(gen, m, chat.Chunk{Type: chat.ChunkReasoningEnd, ID: reasoningID})
		reasoning = false
		reasoningID, reasoningLen = "reasoning_"+shortID(), 0
	}

	err := a.opts.Provider.Chat(ctx, msgs, a.opts.Tools.Declarations(), func(d model.Delta) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Reasoning != "" {
			a.emit(gen, m, chat.Chunk{Type: chat.ChunkReasoningDelta, ID: reasoningID, Offset: reasoningLen, Delta: d.Reasoning})
			reasoningLen += len(d.Reasoning)
			reasoning = true
		}
		if d.Text != "" {
			endReasoning()
			a.emit(gen, m, chat.Chunk{Type: chat.ChunkTextDelta, ID: textID, Offset: textLen, Delta: d.Text})
			textLen += len(d.Text)
		}
		for _, call := range d.ToolCalls {
			endReasoning()
			a.emitToolCall(gen, m, call)
		}
		return nil
	})
	endReasoning()

	a.mu.Lock()
	produced := len(m.Parts) > before
	a.mu.Unlock()
	return produced, err
}

func (a *Agent) emitToolCall(gen int, m *chat.Message, call model.ToolCall) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := call.ID
	if id == "" || a.hasToolCallLocked(id) {
		id = "call_" + shortID()
	}
	a.emitLocked(gen, m, chat.Chunk{Type: chat.ChunkToolInputStart, ToolCallID: id, ToolName: call.Name})
	a.emitLocked(gen, m, chat.Chunk{
		Type:       chat.ChunkToolInputAvailable,
		ToolCallID: id,
		ToolName:   call.Name,
		Input:      call.ArgumentsJSON(),
	})
}

func (a *Agent) providerMessagesLocked() []model.Message {
	out := []model.Message{{Role: "system", Content: SystemPrompt(a.opts.SystemPrompt, a.opts.Now())}}
	for _, m := range a.history {
		out = append(out, toProviderMessages(m)...)
	}
	return out
}

// abandonPendingLocked settles tool calls left open in the last assistant
// message before a new user message is appended.
func (a *Agent) abandonPendingLocked() {
	if len(a.history) == 0 {
		return
	}
	m := a.history[len(a.history)-1]
	if m.Role != chat.RoleAssistant {
		return
	}
	denied := false
	for _, p := range m.ToolParts() {
		switch {
		case p.State.Terminal():
		case p.State == chat.ToolApprovalRequested && !p.Approval.Decided():
			a.stopTimerLocked(p.Approval.ID)
			a.emitLocked(a.gen, m, chat.Chunk{
				Type:       chat.ChunkToolApprovalResponse,
				ToolCallID: p.ToolCallID,
				ApprovalID: p.Approval.ID,
				Approved:   &denied,
			})
		default:
			a.emitLocked(a.gen, m, chat.Chunk{
				Type:       chat.ChunkToolOutputAvailable,
				ToolCallID: p.ToolCallID,
				Output:     chat.ErrorOutput(errInterrupted),
			})
		}
	}
}

func (a *Agent) emit(gen int, m *chat.Message, c chat.Chunk) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emitLocked(gen, m, c)
}

// emitLocked applies c to the agent's copy of m and, if it applied, sends it
// to every client.
func (a *Agent) emitLocked(gen int, m *chat.Message, c chat.Chunk) {
	if gen != a.gen {
		return
	}
	c.MessageID = m.ID
	if err := m.Apply(c); err != nil {
		logf("[Agent %s] dropping %s chunk for %s: %v", a.name, c.Type, m.ID, err)
		return
	}
	a.broadcastLocked(protocol.ChatChunk{Chunk: c}, "")
}

func (a *Agent) broadcastLocked(f protocol.Frame, except string) {
	for id, at := range a.conns {
		if id == except {
			continue
		}
		if err := at.conn.Send(f); err != nil {
			logf("[Agent %s] failed to send %s to %s: %v", a.name, f.FrameType(), id, err)
		}
	}
}

func (a *Agent) sendTo(connID string, f protocol.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if at, ok := a.conns[connID]; ok {
		if err := at.conn.Send(f); err != nil {
			logf("[Agent %s] failed to send %s to %s: %v", a.name, f.FrameType(), connID, err)
		}
	}
}

func (a *Agent) save() {
	if a.opts.Store == nil {
		return
	}
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	a.mu.Lock()
	snapshot := cloneAll(a.history)
	a.mu.Unlock()
	if err := a.opts.Store.SaveMessages(context.Background(), a.name, snapshot); err != nil {
		logf("[Agent %s] failed to save history: %v", a.name, err)
	}
}

func (a *Agent) findApprovalLocked(approvalID string) (*chat.Message, *chat.ToolPart) {
	for i := len(a.history) - 1; i >= 0; i-- {
		for _, p := range a.history[i].ToolParts() {
			if p.Approval != nil && p.Approval.ID == approvalID {
				return a.history[i], p
			}
		}
	}
	return nil, nil
}

func (a *Agent) findToolLocked(callID string) (*chat.Message, *chat.ToolPart) {
	for i := len(a.history) - 1; i >= 0; i-- {
		if p := a.history[i].ToolPart(callID); p != nil {
			return a.history[i], p
		}
	}
	return nil, nil
}

func (a *Agent) hasToolCallLocked(callID string) bool {
	_, p := a.findToolLocked(callID)
	return p != nil
}

func (a *Agent) stopTimerLocked(approvalID string) {
	if t, ok := a.timers[approvalID]; ok {
		t.Stop()
		delete(a.timers, approvalID)
	}
}

func (a *Agent) stopTimersLocked() {
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func logf(format string, args ...any) {
	if config.DebugLog != nil {
		config.DebugLog.Printf(format, args...)
	}
}
