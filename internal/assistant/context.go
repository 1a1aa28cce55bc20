// Package assistant is the learning advisor: a grounded chat session about the
// current day plus text-to-speech for its replies.
package assistant

import (
	"fmt"
	"strings"

	"sixty/internal/curriculum"
	"sixty/internal/domain"
	"sixty/internal/progress"
)

// Context is the curriculum position the advisor is briefed with.
type Context struct {
	Day   int                  `json:"day"`
	Phase curriculum.Phase     `json:"phase"`
	Title string               `json:"title"`
	Goal  string               `json:"goal"`
	Tasks []progress.TaskState `json:"tasks"`
}

// BuildContext describes day as seen from s. Unknown days yield an empty context.
func BuildContext(s domain.ProgressState, cat *curriculum.Catalog, day int) Context {
	info, ok := cat.Day(day)
	if !ok {
		return Context{Day: day}
	}
	return Context{
		Day:   info.Number,
		Phase: info.Phase,
		Title: info.Title,
		Goal:  info.Goal,
		Tasks: progress.TaskStates(s, cat, day),
	}
}

func (c Context) TaskStatus() string {
	return progress.FormatTaskStatus(c.Tasks)
}

// SystemInstruction is the brief a new chat session starts from.
func (c Context) SystemInstruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an elite Senior Developer Advisor for an intensive %d-day bootcamp.\n", curriculum.TotalDays)
	b.WriteString("FOCUS CONTEXT:\n")
	fmt.Fprintf(&b, "- Day %d/%d\n", c.Day, curriculum.TotalDays)
	fmt.Fprintf(&b, "- Module: %s\n", c.Phase.Label())
	fmt.Fprintf(&b, "- Topic: %s\n", c.Title)
	fmt.Fprintf(&b, "- Goal: %s\n", c.Goal)
	fmt.Fprintf(&b, "- Current Task Status: %s\n", c.TaskStatus())
	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("1. Always reference today's curriculum.\n")
	b.WriteString("2. Help unblock PENDING tasks.\n")
	b.WriteString("3. Use Google Search for modern syntax.\n")
	b.WriteString("4. Professional, tactical tone.")
	return b.String()
}
