package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies one of the two role-played participants of a sales dialog.
// The string values are the Portuguese agent names used in the dataset files.
type Role string

const (
	RoleBuyer  Role = "comprador"
	RoleSeller Role = "vendedor"
)

// Counterpart returns the other participant.
func (r Role) Counterpart() Role {
	if r == RoleBuyer {
		return RoleSeller
	}
	return RoleBuyer
}

// IsValid reports whether r is one of the two known roles.
func (r Role) IsValid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Message is a single utterance in a conversation. Messages are appended to
// the history and never mutated.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnOutcome records how the text of a turn was obtained.
type TurnOutcome string

const (
	TurnOutcomeGenerated TurnOutcome = "generated"
	TurnOutcomeCached    TurnOutcome = "cached"
	TurnOutcomeFallback  TurnOutcome = "fallback"
)

// TurnRecord is a Message plus the exact prompts that produced it.
type TurnRecord struct {
	TurnIndex    int         `json:"turno"`
	Agent        Role        `json:"agente"`
	SystemPrompt string      `json:"sistema_prompt,omitempty"`
	UserPrompt   string      `json:"prompt,omitempty"`
	ResponseText string      `json:"resposta"`
	Outcome      TurnOutcome `json:"origem,omitempty"`
	Attempts     int         `json:"tentativas,omitempty"`
	ParseError   string      `json:"erro_formato,omitempty"`
}

// Message returns the plain message view of the record.
func (t TurnRecord) Message() Message {
	return Message{Role: t.Agent, Content: t.ResponseText}
}

// Conversation is the output of one orchestrated buyer/seller dialog.
type Conversation struct {
	ID           uuid.UUID    `json:"id"`
	ScenarioKind string       `json:"scenario_kind"`
	Context      string       `json:"context"`
	Intent       string       `json:"intent"`
	Messages     []Message    `json:"messages"`
	Turns        []TurnRecord `json:"turns,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	DurationMs   int          `json:"duration_ms"`
}

// FallbackCount returns how many turns were answered from the fallback set.
func (c *Conversation) FallbackCount() int {
	n := 0
	for _, t := range c.Turns {
		if t.Outcome == TurnOutcomeFallback {
			n++
		}
	}
	return n
}

// DatasetExample is one accepted conversation. It is immutable once written.
type DatasetExample struct {
	ID           uuid.UUID    `json:"id"`
	Sequence     int          `json:"sequence"`
	ScenarioKind string       `json:"scenario_kind"`
	Context      string       `json:"context"`
	Intent       string       `json:"intent"`
	Messages     []Message    `json:"messages"`
	Turns        []TurnRecord `json:"turns,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewDatasetExample builds an example from a completed conversation.
func NewDatasetExample(seq int, conv *Conversation, now time.Time) *DatasetExample {
	id := conv.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &DatasetExample{
		ID:           id,
		Sequence:     seq,
		ScenarioKind: conv.ScenarioKind,
		Context:      conv.Context,
		Intent:       conv.Intent,
		Messages:     append([]Message(nil), conv.Messages...),
		Turns:        append([]TurnRecord(nil), conv.Turns...),
		CreatedAt:    now,
	}
}

// Dialog returns the turn records when prompts were captured, otherwise the
// messages projected onto turn records without prompts.
func (e *DatasetExample) Dialog() []TurnRecord {
	if len(e.Turns) > 0 {
		return e.Turns
	}
	dialog := make([]TurnRecord, len(e.Messages))
	for i, m := range e.Messages {
		dialog[i] = TurnRecord{
			TurnIndex:    i/2 + 1,
			Agent:        m.Role,
			ResponseText: m.Content,
		}
	}
	return dialog
}
