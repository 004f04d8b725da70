package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ToolState is the lifecycle position of one tool call.
type ToolState string

const (
	ToolInputStreaming    ToolState = "input-streaming"
	ToolInputAvailable    ToolState = "input-available"
	ToolApprovalRequested ToolState = "approval-requested"
	ToolOutputAvailable   ToolState = "output-available"
	ToolOutputDenied      ToolState = "output-denied"
)

var (
	ErrInvalidTransition = errors.New("invalid tool state transition")
	ErrAwaitingApproval  = errors.New("tool call is awaiting approval")
	ErrApprovalFinal     = errors.New("approval decision already recorded")
	ErrNoApproval        = errors.New("tool call has no pending approval")
)

func (s ToolState) rank() int {
	switch s {
	case ToolInputStreaming:
		return 0
	case ToolInputAvailable:
		return 1
	case ToolApprovalRequested:
		return 2
	case ToolOutputAvailable, ToolOutputDenied:
		return 3
	}
	return -1
}

// Terminal reports whether no further transition is possible.
func (s ToolState) Terminal() bool {
	return s == ToolOutputAvailable || s == ToolOutputDenied
}

// Valid reports whether s is one of the known states.
func (s ToolState) Valid() bool { return s.rank() >= 0 }

type Approval struct {
	ID       string `json:"id"`
	Approved *bool  `json:"approved,omitempty"`
}

// Decided reports whether the user has answered.
func (a *Approval) Decided() bool { return a != nil && a.Approved != nil }

type ToolPart struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	State      ToolState       `json:"state"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Approval   *Approval       `json:"approval,omitempty"`
}

func (*ToolPart) Kind() PartKind { return KindToolCall }

func (p *ToolPart) clone() Part {
	c := *p
	if p.Approval != nil {
		a := *p.Approval
		if a.Approved != nil {
			v := *a.Approved
			a.Approved = &v
		}
		c.Approval = &a
	}
	return &c
}

// Advance moves the call to state to. Re-applying the current state is a
// no-op. Backward moves and moves out of a terminal state fail with
// ErrInvalidTransition. While an approval is pending every move fails with
// ErrAwaitingApproval, and once decided the outcome must match the decision.
func (p *ToolPart) Advance(to ToolState) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, to)
	}
	if to == p.State {
		return nil
	}
	if p.State.Terminal() || to.rank() < p.State.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.State, to)
	}
	if p.State == ToolApprovalRequested {
		if !p.Approval.Decided() {
			return ErrAwaitingApproval
		}
		approved := *p.Approval.Approved
		if (to == ToolOutputAvailable && !approved) || (to == ToolOutputDenied && approved) {
			return fmt.Errorf("%w: %s contradicts approval decision", ErrInvalidTransition, to)
		}
	}
	p.State = to
	return nil
}

// RequestApproval gates the call behind the approval with the given id.
func (p *ToolPart) RequestApproval(approvalID string) error {
	if p.State == ToolApprovalRequested && p.Approval != nil && p.Approval.ID == approvalID {
		return nil
	}
	if err := p.Advance(ToolApprovalRequested); err != nil {
		return err
	}
	p.Approval = &Approval{ID: approvalID}
	return nil
}

// Decide records the user's answer to a pending approval. A denial resolves
// the call to output-denied immediately. The decision cannot be changed.
func (p *ToolPart) Decide(approved bool) error {
	if p.Approval.Decided() {
		if *p.Approval.Approved == approved {
			return nil
		}
		return ErrApprovalFinal
	}
	if p.Approval == nil || p.State != ToolApprovalRequested {
		return ErrNoApproval
	}
	p.Approval.Approved = &approved
	if !approved {
		return p.Deny()
	}
	return nil
}

// Resolve attaches output and moves the call to output-available.
func (p *ToolPart) Resolve(output json.RawMessage) error {
	if p.State == ToolOutputAvailable {
		return nil
	}
	if err := p.Advance(ToolOutputAvailable); err != nil {
		return err
	}
	p.Output = output
	return nil
}

// Deny moves the call to output-denied; denied calls carry no output.
func (p *ToolPart) Deny() error {
	if err := p.Advance(ToolOutputDenied); err != nil {
		return err
	}
	p.Output = nil
	return nil
}

// Pending reports whether the call waits on the user, either for an approval
// decision or for a client-side result.
func (p *ToolPart) Pending() bool {
	return !p.State.Terminal()
}

// ErrorOutput encodes a tool failure as structured output.
func ErrorOutput(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
