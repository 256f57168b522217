package llm

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	llmContextKey contextKey = "llm_context"

	conversationIDKey = "conversation_id"
	turnKey           = "turn"
	agentKey          = "agent"
)

// WithContext returns a context with call-recording values attached.
// The map is merged with any existing values.
func WithContext(ctx context.Context, values map[string]any) context.Context {
	existing := GetContext(ctx)
	if existing == nil {
		existing = make(map[string]any)
	}
	// Merge new values into existing
	for k, v := range values {
		existing[k] = v
	}
	return context.WithValue(ctx, llmContextKey, existing)
}

// GetContext retrieves the call-recording values from ctx, if present.
func GetContext(ctx context.Context) map[string]any {
	if c, ok := ctx.Value(llmContextKey).(map[string]any); ok {
		// Return a copy to prevent mutation
		copy := make(map[string]any, len(c))
		for k, v := range c {
			copy[k] = v
		}
		return copy
	}
	return nil
}

// WithConversationID tags every call made with ctx with the dialog's ID.
// It is sent to the provider as the X-Request-Id header.
func WithConversationID(ctx context.Context, id uuid.UUID) context.Context {
	return WithContext(ctx, map[string]any{conversationIDKey: id.String()})
}

// GetConversationID returns the dialog ID attached to ctx, or nil.
func GetConversationID(ctx context.Context) *uuid.UUID {
	values := GetContext(ctx)
	if values == nil {
		return nil
	}
	raw, ok := values[conversationIDKey].(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// WithTurnContext records which turn and agent a call belongs to.
func WithTurnContext(ctx context.Context, turn int, agent string) context.Context {
	return WithContext(ctx, map[string]any{
		turnKey:  turn,
		agentKey: agent,
	})
}
