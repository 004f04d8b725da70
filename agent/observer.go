package agent

// Tool call outcomes reported to an Observer.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeDenied   = "denied"
	OutcomeTimeout  = "timeout"
	OutcomeClient   = "client"
	OutcomeApproval = "approval_requested"
)

// Observer receives runtime events, typically to feed metrics.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ConnectionOpened(agent string)
	ConnectionClosed(agent string)
	TurnStarted(agent string)
	ToolCalled(tool, outcome string)
	ScheduleFired(agent string)
}

type NopObserver struct{}

func (NopObserver) ConnectionOpened(string)   {}
func (NopObserver) ConnectionClosed(string)   {}
func (NopObserver) TurnStarted(string)        {}
func (NopObserver) ToolCalled(string, string) {}
func (NopObserver) ScheduleFired(string)      {}
