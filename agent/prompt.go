package agent

import (
	"fmt"
	"time"
)

const basePrompt = `You are a helpful assistant that can do various tasks.

You can look up the weather, find out the user's timezone, do arithmetic and schedule tasks.

If the user asks to schedule a task, use the schedule_task tool. Pick "scheduled" for a specific date and time, "delayed" for a relative delay, "cron" for recurring tasks, and "no-schedule" when the request has no usable time.

Dates passed to tools must be RFC 3339 with a timezone offset. When the user's timezone matters and is unknown, call get_user_timezone first.`

// SystemPrompt returns the instructions sent ahead of every model call.
// custom replaces the built-in text when set; the current date is always
// appended.
func SystemPrompt(custom string, now time.Time) string {
	prompt := basePrompt
	if custom != "" {
		prompt = custom
	}
	return fmt.Sprintf("%s\n\nThe current date and time is %s.", prompt, now.UTC().Format(time.RFC3339))
}
