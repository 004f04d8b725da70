package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/chat"
)

// approvalThreshold is the operand magnitude above which calculate asks the
// user first.
const approvalThreshold = 1000

var errDivisionByZero = errors.New("division by zero")

// DefaultTools returns the demo tool set.
func DefaultTools() *Registry {
	return NewRegistry(
		weatherTool(),
		timezoneTool(),
		calculateTool(),
		scheduleTaskTool(),
		listSchedulesTool(),
		cancelScheduleTool(),
	)
}

func weatherTool() *Tool {
	return &Tool{
		Name:        "get_weather",
		Description: "Show the weather in a given city to the user",
		Schema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"city": map[string]any{"type": "string", "description": "City name"},
			},
			Required: []string{"city"},
		},
		NeedsApproval: func(map[string]any) bool { return true },
		Execute: func(ctx context.Context, env ToolEnv, args map[string]any) (any, error) {
			query, err := stringArg(args, "city")
			if err != nil {
				return nil, err
			}
			city, err := matchCity(query)
			if err != nil {
				return nil, err
			}
			return simulateWeather(city, time.Now()), nil
		},
	}
}

func timezoneTool() *Tool {
	return &Tool{
		Name:        chat.TimezoneToolName,
		Description: "Get the user's timezone and local time from their client",
		Schema: mcptypes.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}

func calculateTool() *Tool {
	return &Tool{
		Name:        "calculate",
		Description: "Perform a math calculation on two numbers. Large operands require user approval.",
		Schema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"a": map[string]any{"type": "number", "description": "First number"},
				"b": map[string]any{"type": "number", "description": "Second number"},
				"operator": map[string]any{
					"type":        "string",
					"description": "Arithmetic operation",
					"enum":        []any{"add", "subtract", "multiply", "divide", "power"},
				},
			},
			Required: []string{"a", "b", "operator"},
		},
		NeedsApproval: func(args map[string]any) bool {
			a, _ := numberArg(args, "a")
			b, _ := numberArg(args, "b")
			return math.Abs(a) > approvalThreshold || math.Abs(b) > approvalThreshold
		},
		Execute: func(ctx context.Context, env ToolEnv, args map[string]any) (any, error) {
			a, err := numberArg(args, "a")
			if err != nil {
				return nil, err
			}
			b, err := numberArg(args, "b")
			if err != nil {
				return nil, err
			}
			op, err := stringArg(args, "operator")
			if err != nil {
				return nil, err
			}
			result, err := calculate(a, b, op)
			if err != nil {
				return nil, err
			}
			return map[string]any{"expression": fmt.Sprintf("%g %s %g", a, symbol(op), b), "result": result}, nil
		},
	}
}

func calculate(a, b float64, op string) (float64, error) {
	switch op {
	case "add":
		return a + b, nil
	case "subtract":
		return a - b, nil
	case "multiply":
		return a * b, nil
	case "divide":
		if b == 0 {
			return 0, errDivisionByZero
		}
		return a / b, nil
	case "power":
		r := math.Pow(a, b)
		if math.IsInf(r, 0) || math.IsNaN(r) {
			return 0, fmt.Errorf("%g ^ %g is not a finite number", a, b)
		}
		return r, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", op)
	}
}

func symbol(op string) string {
	switch op {
	case "add":
		return "+"
	case "subtract":
		return "-"
	case "multiply":
		return "*"
	case "divide":
		return "/"
	case "power":
		return "^"
	}
	return op
}

func scheduleTaskTool() *Tool {
	return &Tool{
		Name:        "schedule_task",
		Description: "Schedule a task to be executed at a later time",
		Schema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"description": map[string]any{"type": "string", "description": "What to remind the user about"},
				"when": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type": map[string]any{
							"type": "string",
							"enum": []any{"scheduled", "delayed", "cron", "no-schedule"},
						},
						"date":         map[string]any{"type": "string", "description": "RFC 3339 date-time, for type scheduled"},
						"delaySeconds": map[string]any{"type": "number", "description": "Delay in seconds, for type delayed"},
						"cron":         map[string]any{"type": "string", "description": "Cron expression, for type cron"},
					},
					"required": []any{"type"},
				},
			},
			Required: []string{"description", "when"},
		},
		Execute: func(ctx context.Context, env ToolEnv, args map[string]any) (any, error) {
			description, err := stringArg(args, "description")
			if err != nil {
				return nil, err
			}
			when, err := parseWhen(args["when"])
			if err != nil {
				return nil, err
			}
			scheduler, err := env.scheduler()
			if err != nil {
				return nil, err
			}
			sc, err := scheduler.Schedule(ctx, env.Agent, description, when)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"id":      sc.ID,
				"message": fmt.Sprintf("Task scheduled for %s (%s)", sc.NextRun.Format(time.RFC3339), humanize.Time(sc.NextRun)),
			}, nil
		},
	}
}

func parseWhen(v any) (When, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return When{}, ErrNoSchedule
	}
	var w When
	w.Type, _ = m["type"].(string)
	switch w.Type {
	case "scheduled":
		raw, _ := m["date"].(string)
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return When{}, fmt.Errorf("invalid date %q: expected RFC 3339", raw)
		}
		w.Date = t
	case "delayed":
		d, err := numberArg(m, "delaySeconds")
		if err != nil {
			return When{}, err
		}
		w.DelaySeconds = d
	case "cron":
		w.Cron, _ = m["cron"].(string)
	}
	return w, nil
}

// ScheduledTaskInfo is one entry of get_scheduled_tasks output.
type ScheduledTaskInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Cron        string `json:"cron,omitempty"`
	NextRun     string `json:"nextRun"`
	Due         string `json:"due"`
}

func listSchedulesTool() *Tool {
	return &Tool{
		Name:        "get_scheduled_tasks",
		Description: "List all tasks that have been scheduled",
		Schema: mcptypes.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
		Execute: func(ctx context.Context, env ToolEnv, args map[string]any) (any, error) {
			scheduler, err := env.scheduler()
			if err != nil {
				return nil, err
			}
			schedules, err := scheduler.List(ctx, env.Agent)
			if err != nil {
				return nil, err
			}
			if len(schedules) == 0 {
				return "No scheduled tasks found.", nil
			}
			out := make([]ScheduledTaskInfo, len(schedules))
			for i, sc := range schedules {
				out[i] = ScheduledTaskInfo{
					ID:          sc.ID,
					Description: sc.Description,
					Type:        string(sc.Kind),
					Cron:        sc.Cron,
					NextRun:     sc.NextRun.Format(time.RFC3339),
					Due:         humanize.Time(sc.NextRun),
				}
			}
			return out, nil
		},
	}
}

func cancelScheduleTool() *Tool {
	return &Tool{
		Name:        "cancel_scheduled_task",
		Description: "Cancel a scheduled task using its ID",
		Schema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"taskId": map[string]any{"type": "string", "description": "The ID of the task to cancel"},
			},
			Required: []string{"taskId"},
		},
		Execute: func(ctx context.Context, env ToolEnv, args map[string]any) (any, error) {
			id, err := stringArg(args, "taskId")
			if err != nil {
				return nil, err
			}
			scheduler, err := env.scheduler()
			if err != nil {
				return nil, err
			}
			if err := scheduler.Cancel(ctx, env.Agent, id); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Task %s has been successfully canceled.", id), nil
		},
	}
}
