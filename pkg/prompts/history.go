package prompts

import (
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

// Transcript labels. Each agent sees its own past replies as Assistant and
// the counterpart's as User.
const (
	UserLabel      = "User: "
	AssistantLabel = "Assistant: "
)

// FormatHistory renders history as the transcript perspective should see.
// An empty history yields an empty (non-nil) slice.
func FormatHistory(history []models.Message, perspective models.Role) []string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		label := AssistantLabel
		if msg.Role != perspective {
			label = UserLabel
		}
		lines = append(lines, label+msg.Content)
	}
	return lines
}
