package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentchat/chat"
	"agentchat/protocol"
	"agentchat/storage"
)

// Hub owns every agent of the server, created on first use with its history
// loaded from storage, and the scheduler shared by them.
type Hub struct {
	opts      Options
	scheduler *Scheduler

	mu     sync.Mutex
	agents map[string]*Agent
}

// NewHub returns a hub. Without a store, history is kept in memory only and
// the scheduling tools report that scheduling is unavailable.
func NewHub(opts Options) *Hub {
	h := &Hub{
		opts:   opts.withDefaults(),
		agents: make(map[string]*Agent),
	}
	if h.opts.Store != nil {
		h.scheduler = NewScheduler(h.opts.Store, h.fire)
		h.scheduler.now = h.opts.Now
	}
	return h
}

// Agent returns the agent called name, creating it if needed.
func (h *Hub) Agent(ctx context.Context, name string) (*Agent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if a, ok := h.agents[name]; ok {
		return a, nil
	}
	var history []*chat.Message
	if h.opts.Store != nil {
		var err error
		if history, err = h.opts.Store.LoadMessages(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to load history for %s: %w", name, err)
		}
	}
	a := newAgent(name, h.opts, h.scheduler, history)
	h.agents[name] = a
	logf("[Hub] Agent %s ready with %d messages", name, len(history))
	return a, nil
}

// Names lists the agents created so far.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.agents))
	for name := range h.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run fires scheduled tasks until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.scheduler == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return h.scheduler.Run(ctx)
}

// Close stops every agent's running turn.
func (h *Hub) Close() {
	h.mu.Lock()
	agents := make([]*Agent, 0, len(h.agents))
	for _, a := range h.agents {
		agents = append(agents, a)
	}
	h.mu.Unlock()
	for _, a := range agents {
		a.Close()
	}
}

func (h *Hub) fire(sc storage.Schedule) {
	h.opts.Observer.ScheduleFired(sc.Agent)

	h.mu.Lock()
	a := h.agents[sc.Agent]
	h.mu.Unlock()
	if a == nil {
		logf("[Hub] schedule %s fired for %s with no clients", sc.ID, sc.Agent)
		return
	}
	a.Notify(protocol.ScheduledTask{Description: sc.Description, Timestamp: h.opts.Now().UTC()})
}
