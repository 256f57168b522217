package dataset

import (
	"errors"
	"strings"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/structured"
)

// Transcript labels used in fine-tuning memory.
const (
	memoryUserLabel      = "USER: "
	memoryAssistantLabel = "ASSISTANT: "
)

// exchange is one buyer question and the seller's answer.
type exchange struct {
	turn     int
	question models.TurnRecord
	answer   models.TurnRecord
}

// exchanges pairs each buyer turn with the seller turn that follows it.
// A trailing unanswered question is dropped.
func exchanges(dialog []models.TurnRecord) []exchange {
	var out []exchange
	for i := 0; i+1 < len(dialog); i++ {
		if dialog[i].Agent == models.RoleBuyer && dialog[i+1].Agent == models.RoleSeller {
			out = append(out, exchange{turn: dialog[i].TurnIndex, question: dialog[i], answer: dialog[i+1]})
			i++
		}
	}
	return out
}

// trainable reports whether a seller answer may be used as a training
// target. Canned fallbacks carry an empty ActionInput and are history only.
func (x exchange) trainable() bool {
	return x.answer.Outcome != models.TurnOutcomeFallback
}

// normalizeSellerOutput re-renders a seller reply with compact ActionInput
// JSON. ok is false when the reply lacks one of the five sections.
func normalizeSellerOutput(text string) (output string, ok bool) {
	parsed, err := structured.Parse(text)
	var perr *structured.ParseError
	if errors.As(err, &perr) {
		return text, false
	}
	return parsed.Format(), true
}

// FineTuneRows projects an example onto fine-tuning rows, one per generated
// seller reply that has all five sections. Memory is the USER/ASSISTANT
// transcript of the exchanges before the row's own.
func FineTuneRows(ex *models.DatasetExample) []models.FineTuneRow {
	var rows []models.FineTuneRow
	var memory []string

	for _, x := range exchanges(ex.Dialog()) {
		output, ok := normalizeSellerOutput(x.answer.ResponseText)
		if ok && x.trainable() {
			rows = append(rows, models.FineTuneRow{
				Memory:    strings.Join(memory, "\n"),
				UserInput: x.question.ResponseText,
				Output:    output,
			})
		}
		memory = append(memory,
			memoryUserLabel+x.question.ResponseText,
			memoryAssistantLabel+output)
	}
	return rows
}
