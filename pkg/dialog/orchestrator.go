// Package dialog runs one buyer/seller conversation turn by turn.
package dialog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/completion"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/llm"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/scenarios"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/structured"
)

// Completer produces the text of one agent turn. *completion.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) completion.Result
}

var _ Completer = (*completion.Client)(nil)

// TurnObserver is called after every message is appended to the history.
type TurnObserver func(rec models.TurnRecord)

// Config controls a conversation.
type Config struct {
	Turns       int
	Temperature float64

	// RecordPrompts keeps the exact system and user prompts on each TurnRecord.
	RecordPrompts bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers a TurnObserver.
func WithObserver(fn TurnObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator alternates buyer and seller turns for a fixed turn count.
// Each Run owns its history; an Orchestrator holds no per-conversation state.
type Orchestrator struct {
	client   Completer
	composer *prompts.Composer
	cfg      Config
	observer TurnObserver
	now      func() time.Time
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator. A nil composer uses the defaults.
func NewOrchestrator(client Completer, composer *prompts.Composer, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if composer == nil {
		composer = prompts.NewComposer()
	}
	if cfg.Turns < 1 {
		cfg.Turns = 1
	}
	o := &Orchestrator{
		client:   client,
		composer: composer,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.Named("dialog"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run plays one conversation for sel. It always completes: a turn whose
// completion failed carries fallback text. The returned conversation holds
// exactly 2*Turns messages alternating buyer, seller.
func (o *Orchestrator) Run(ctx context.Context, sel scenarios.Selection) *models.Conversation {
	conv := &models.Conversation{
		ID:           uuid.New(),
		ScenarioKind: string(sel.Kind),
		Context:      sel.Context,
		Intent:       sel.Intent,
		Messages:     make([]models.Message, 0, 2*o.cfg.Turns),
		Turns:        make([]models.TurnRecord, 0, 2*o.cfg.Turns),
		StartedAt:    o.now(),
	}
	ctx = llm.WithConversationID(ctx, conv.ID)

	o.logger.Debug("Starting conversation",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("scenario", conv.ScenarioKind),
		zap.String("intent", conv.Intent),
		zap.String("state", sel.State))

	sellerRules := prompts.SellerRules()

	for turn := 0; turn < o.cfg.Turns; turn++ {
		// Buyer opens the turn.
		buyerRules := prompts.BuyerRules(sel.Context, sel.Intent, sel.State)
		latest := prompts.OpeningInstruction
		if turn > 0 {
			buyerRules = prompts.BuyerFollowUpRules(sel.Context, sel.Intent, sel.State)
			latest = conv.Messages[len(conv.Messages)-1].Content
		}
		question := o.playTurn(ctx, conv, turn, models.RoleBuyer, buyerRules, latest, false)

		// Seller answers with the question already in the history.
		o.playTurn(ctx, conv, turn, models.RoleSeller, sellerRules, question, true)
	}

	conv.DurationMs = int(o.now().Sub(conv.StartedAt).Milliseconds())

	o.logger.Info("Conversation completed",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("scenario", conv.ScenarioKind),
		zap.Int("messages", len(conv.Messages)),
		zap.Int("fallback_turns", conv.FallbackCount()),
		zap.Int("duration_ms", conv.DurationMs))

	return conv
}

// playTurn composes, completes and appends one message, returning its text.
func (o *Orchestrator) playTurn(
	ctx context.Context,
	conv *models.Conversation,
	turn int,
	role models.Role,
	rules string,
	latest string,
	lengthLimited bool,
) string {
	prompt := o.composer.Compose(role, rules, conv.Messages, latest, lengthLimited)

	res := o.client.Complete(llm.WithTurnContext(ctx, turn+1, string(role)), completion.Request{
		Role:          role,
		Prompt:        prompt,
		Temperature:   o.cfg.Temperature,
		LengthLimited: lengthLimited,
		LatestMessage: latest,
	})

	rec := models.TurnRecord{
		TurnIndex:    turn + 1,
		Agent:        role,
		ResponseText: res.Text,
		Outcome:      res.Outcome.TurnOutcome(),
		Attempts:     res.Attempts,
	}
	if o.cfg.RecordPrompts {
		rec.SystemPrompt = prompt.System
		rec.UserPrompt = prompt.User
	}
	if role == models.RoleSeller {
		if _, err := structured.Parse(res.Text); err != nil {
			rec.ParseError = err.Error()
			o.logger.Debug("Seller reply is not well-formed",
				zap.String("conversation_id", conv.ID.String()),
				zap.Int("turn", turn+1),
				zap.Error(err))
		}
	}

	conv.Messages = append(conv.Messages, rec.Message())
	conv.Turns = append(conv.Turns, rec)

	if o.observer != nil {
		o.observer(rec)
	}
	return res.Text
}
