package chat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimezoneToolName is the tool the agent declares without an executor.
const TimezoneToolName = "get_user_timezone"

// UserTimezone answers get_user_timezone from the local clock.
func UserTimezone(now func() time.Time) ClientTool {
	return func(json.RawMessage) (any, error) {
		t := now()
		abbr, offset := t.Zone()
		return map[string]any{
			"timezone":     zoneName(t.Location()),
			"abbreviation": abbr,
			"utcOffset":    formatOffset(offset),
			"localTime":    t.Format(time.RFC3339),
		}, nil
	}
}

// RegisterDefaultClientTools installs the tools every client resolves.
func RegisterDefaultClientTools(c *Conversation) {
	c.RegisterClientTool(TimezoneToolName, UserTimezone(time.Now))
}

func zoneName(loc *time.Location) string {
	if name := loc.String(); name != "Local" {
		return name
	}
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):]
		}
	}
	return "UTC"
}

func formatOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return sign + time.Time{}.Add(time.Duration(seconds)*time.Second).Format("15:04")
}
