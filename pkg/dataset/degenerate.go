package dataset

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/completion"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

// Rejection categories reported by GenerateBatch.
const (
	RejectTooShort    = "too_short"
	RejectErrorMarker = "error_marker"
	RejectAllFallback = "all_fallback"
)

// DegenerateError explains why a conversation was discarded.
type DegenerateError struct {
	Category string
	Reason   string
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("degenerate conversation: %s", e.Reason)
}

// Unwrap lets errors.Is match apperrors.ErrDegenerateConversation.
func (e *DegenerateError) Unwrap() error {
	return apperrors.ErrDegenerateConversation
}

var lowerErrorMarker = strings.ToLower(completion.ErrorMarker)

// CheckDegenerate rejects a conversation with fewer than two messages, with
// any message containing the error marker (ignoring case), or whose every
// turn is a canned fallback.
func CheckDegenerate(conv *models.Conversation) error {
	if conv == nil || len(conv.Messages) < 2 {
		n := 0
		if conv != nil {
			n = len(conv.Messages)
		}
		return &DegenerateError{Category: RejectTooShort, Reason: fmt.Sprintf("only %d message(s)", n)}
	}
	for i, msg := range conv.Messages {
		if strings.Contains(strings.ToLower(msg.Content), lowerErrorMarker) {
			return &DegenerateError{Category: RejectErrorMarker, Reason: fmt.Sprintf("message %d (%s) contains the error marker", i+1, msg.Role)}
		}
	}
	if n := len(conv.Turns); n > 0 && conv.FallbackCount() == n {
		return &DegenerateError{Category: RejectAllFallback, Reason: fmt.Sprintf("all %d turns are fallbacks", n)}
	}
	return nil
}
