package dialog

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/completion"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/llm"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/scenarios"
)

// scriptedCompleter answers each role with numbered texts and records calls.
type scriptedCompleter struct {
	requests []completion.Request
	contexts []map[string]any
	seller   func(n int, req completion.Request) string
}

func (s *scriptedCompleter) Complete(ctx context.Context, req completion.Request) completion.Result {
	s.requests = append(s.requests, req)
	s.contexts = append(s.contexts, llm.GetContext(ctx))
	n := len(s.requests)
	if req.Role == models.RoleBuyer {
		return completion.Result{Text: fmt.Sprintf("Pergunta %d?", n), Outcome: completion.OutcomeSuccess, Attempts: 1}
	}
	if s.seller != nil {
		return completion.Result{Text: s.seller(n, req), Outcome: completion.OutcomeSuccess, Attempts: 1}
	}
	return completion.Result{
		Text:     "Input: " + req.LatestMessage + "\nThought: t\nActionInput: {}\nNextAgent: \nFinalResponse: Resposta",
		Outcome:  completion.OutcomeSuccess,
		Attempts: 1,
	}
}

func testSelection() scenarios.Selection {
	return scenarios.Selection{
		Kind:    scenarios.KindBudget,
		Context: "Você tem um orçamento de até 100 mil reais para comprar um carro.",
		Intent:  "Quero um carro econômico que não estoure o orçamento.",
		State:   "Paraná",
	}
}

func TestRun_AlternatesRoles(t *testing.T) {
	completer := &scriptedCompleter{}
	o := NewOrchestrator(completer, nil, Config{Turns: 3, Temperature: 0.2}, zap.NewNop())

	conv := o.Run(context.Background(), testSelection())

	require.Len(t, conv.Messages, 6)
	for i, msg := range conv.Messages {
		if i%2 == 0 {
			assert.Equal(t, models.RoleBuyer, msg.Role, "message %d", i)
		} else {
			assert.Equal(t, models.RoleSeller, msg.Role, "message %d", i)
		}
	}
	require.Len(t, conv.Turns, 6)
	assert.Equal(t, 1, conv.Turns[0].TurnIndex)
	assert.Equal(t, 1, conv.Turns[1].TurnIndex)
	assert.Equal(t, 3, conv.Turns[5].TurnIndex)
	assert.Equal(t, "budget", conv.ScenarioKind)
	assert.Equal(t, testSelection().Intent, conv.Intent)
	assert.NotEqual(t, conv.ID.String(), "00000000-0000-0000-0000-000000000000")
}

func TestRun_PromptsFollowTurnOrder(t *testing.T) {
	completer := &scriptedCompleter{}
	o := NewOrchestrator(completer, nil, Config{Turns: 2, Temperature: 0.2}, zap.NewNop())

	o.Run(context.Background(), testSelection())

	require.Len(t, completer.requests, 4)

	opening := completer.requests[0]
	assert.Equal(t, models.RoleBuyer, opening.Role)
	assert.False(t, opening.LengthLimited)
	assert.InDelta(t, 0.2, opening.Temperature, 1e-9)
	assert.Equal(t, prompts.OpeningInstruction, opening.LatestMessage)
	assert.Contains(t, opening.Prompt.User, "Conversation History:\n\n\nLatest User Message:\n"+prompts.OpeningInstruction)
	assert.Contains(t, opening.Prompt.System, "Você mora em Paraná.")
	assert.NotContains(t, opening.Prompt.System, prompts.FollowUpInstruction)

	firstSeller := completer.requests[1]
	assert.Equal(t, models.RoleSeller, firstSeller.Role)
	assert.True(t, firstSeller.LengthLimited)
	assert.Equal(t, "Pergunta 1?", firstSeller.LatestMessage)
	assert.Contains(t, firstSeller.Prompt.User, "Conversation History:\nUser: Pergunta 1?\n\n")
	assert.True(t, strings.HasSuffix(firstSeller.Prompt.System, prompts.DefaultLengthLimiter))

	followUp := completer.requests[2]
	assert.Equal(t, models.RoleBuyer, followUp.Role)
	assert.Contains(t, followUp.Prompt.System, prompts.FollowUpInstruction)
	assert.Contains(t, followUp.Prompt.User, "Assistant: Pergunta 1?\nUser: Input: Pergunta 1?")
	assert.True(t, strings.HasPrefix(followUp.LatestMessage, "Input: Pergunta 1?"))
}

func TestRun_RecordPrompts(t *testing.T) {
	tests := []struct {
		name   string
		record bool
	}{
		{"prompts recorded", true},
		{"prompts omitted", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator(&scriptedCompleter{}, nil, Config{Turns: 1, RecordPrompts: tt.record}, zap.NewNop())

			conv := o.Run(context.Background(), testSelection())

			for _, rec := range conv.Turns {
				assert.Equal(t, tt.record, rec.SystemPrompt != "", rec.Agent)
				assert.Equal(t, tt.record, rec.UserPrompt != "", rec.Agent)
				assert.Equal(t, models.TurnOutcomeGenerated, rec.Outcome)
				assert.Equal(t, 1, rec.Attempts)
			}
		})
	}
}

func TestRun_AnnotatesMalformedSellerReplies(t *testing.T) {
	completer := &scriptedCompleter{
		seller: func(n int, req completion.Request) string {
			return "O Onix custa R$ 90.000,00."
		},
	}
	o := NewOrchestrator(completer, nil, Config{Turns: 1}, zap.NewNop())

	conv := o.Run(context.Background(), testSelection())

	assert.Empty(t, conv.Turns[0].ParseError, "buyer turns are not parsed")
	assert.Contains(t, conv.Turns[1].ParseError, "missing section Input:")
	assert.Equal(t, "O Onix custa R$ 90.000,00.", conv.Messages[1].Content)
}

func TestRun_ObserverAndContext(t *testing.T) {
	var observed []models.TurnRecord
	completer := &scriptedCompleter{}
	o := NewOrchestrator(completer, nil, Config{Turns: 2}, zap.NewNop(),
		WithObserver(func(rec models.TurnRecord) { observed = append(observed, rec) }))

	conv := o.Run(context.Background(), testSelection())

	require.Len(t, observed, 4)
	assert.Equal(t, conv.Turns, observed)

	for i, values := range completer.contexts {
		assert.Equal(t, conv.ID.String(), values["conversation_id"])
		assert.Equal(t, i/2+1, values["turn"])
	}
	assert.Equal(t, "comprador", completer.contexts[0]["agent"])
	assert.Equal(t, "vendedor", completer.contexts[1]["agent"])
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}
	o := NewOrchestrator(&scriptedCompleter{}, nil, Config{Turns: 1}, zap.NewNop(), WithClock(clock))

	conv := o.Run(context.Background(), testSelection())

	assert.Equal(t, start, conv.StartedAt)
	assert.Equal(t, 1500, conv.DurationMs)
}

func TestRun_FallbackTurnsCounted(t *testing.T) {
	completer := &fallbackCompleter{}
	o := NewOrchestrator(completer, nil, Config{Turns: 2}, zap.NewNop())

	conv := o.Run(context.Background(), testSelection())

	assert.Len(t, conv.Messages, 4)
	assert.Equal(t, 4, conv.FallbackCount())
}

type fallbackCompleter struct{}

func (fallbackCompleter) Complete(_ context.Context, req completion.Request) completion.Result {
	return completion.Result{Text: completion.ErrorResponse, Outcome: completion.OutcomeFallback, Attempts: 3}
}
