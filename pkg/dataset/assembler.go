// Package dataset assembles orchestrated conversations into a fine-tuning
// dataset and writes it to one or more sinks.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/retry"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/scenarios"
)

// Runner plays one conversation. *dialog.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, sel scenarios.Selection) *models.Conversation
}

// Selector draws a scenario. *scenarios.Catalog implements it.
type Selector interface {
	Select() scenarios.Selection
}

// Config controls pacing between conversations.
type Config struct {
	DelayUnit     time.Duration
	MinDelayUnits int
	MaxDelayUnits int
}

// Report summarizes a batch.
type Report struct {
	Collected          int            `json:"collected"`
	Target             int            `json:"target"`
	AttemptsUsed       int            `json:"attempts_used"`
	Rejected           int            `json:"rejected"`
	RejectReasons      map[string]int `json:"reject_reasons,omitempty"`
	FallbackTurns      int            `json:"fallback_turns"`      // Across accepted examples
	InvalidSellerTurns int            `json:"invalid_seller_turns"` // Seller replies missing a section or with bad ActionInput
}

// Partial reports whether fewer examples than requested were collected.
func (r *Report) Partial() bool {
	return r.Collected < r.Target
}

func (r *Report) String() string {
	return fmt.Sprintf("collected %d/%d examples in %d attempts (%d rejected)",
		r.Collected, r.Target, r.AttemptsUsed, r.Rejected)
}

// Batch is the outcome of GenerateBatch.
type Batch struct {
	Examples []*models.DatasetExample
	Report   Report
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithSleeper replaces the pacing sleeper.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(a *Assembler) { a.sleep = sleep }
}

// WithClock replaces time.Now for example timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler collects valid conversations until a target count is reached
// or the attempt budget runs out.
type Assembler struct {
	runner   Runner
	selector Selector
	sink     Sink
	cfg      Config
	rng      *rand.Rand
	sleep    retry.Sleeper
	now      func() time.Time
	logger   *zap.Logger
}

// NewAssembler creates an Assembler. A nil sink discards examples.
func NewAssembler(runner Runner, selector Selector, sink Sink, cfg Config, rng *rand.Rand, logger *zap.Logger, opts ...Option) *Assembler {
	if sink == nil {
		sink = MultiSink(nil)
	}
	if rng == nil {
		rng = scenarios.NewRand(0)
	}
	a := &Assembler{
		runner:   runner,
		selector: selector,
		sink:     sink,
		cfg:      cfg,
		rng:      rng,
		sleep:    retry.Sleep,
		now:      time.Now,
		logger:   logger.Named("dataset"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GenerateBatch runs conversations until targetCount are accepted or
// maxAttempts have been made. A degenerate conversation consumes an attempt
// but not a slot. Collecting fewer than targetCount is reported through
// Report.Partial, not as an error; errors come only from the sink or from
// ctx, and the examples gathered so far are returned alongside them.
func (a *Assembler) GenerateBatch(ctx context.Context, targetCount, maxAttempts int) (*Batch, error) {
	batch := &Batch{
		Report: Report{Target: targetCount, RejectReasons: make(map[string]int)},
	}
	report := &batch.Report

	a.logger.Info("Starting batch",
		zap.Int("target", targetCount),
		zap.Int("max_attempts", maxAttempts))

	for report.Collected < targetCount && report.AttemptsUsed < maxAttempts {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		sel := a.selector.Select()
		conv := a.runner.Run(ctx, sel)
		report.AttemptsUsed++

		if err := ctx.Err(); err != nil {
			return batch, err
		}

		if err := CheckDegenerate(conv); err != nil {
			report.Rejected++
			var derr *DegenerateError
			if errors.As(err, &derr) {
				report.RejectReasons[derr.Category]++
			}
			a.logger.Warn("Discarding conversation",
				zap.Int("attempt", report.AttemptsUsed),
				zap.String("scenario", string(sel.Kind)),
				zap.Error(err))
			continue
		}

		ex := models.NewDatasetExample(report.Collected+1, conv, a.now())
		if err := a.sink.Write(ctx, ex); err != nil {
			return batch, fmt.Errorf("write example %d: %w", ex.Sequence, err)
		}

		batch.Examples = append(batch.Examples, ex)
		report.Collected++
		report.FallbackTurns += conv.FallbackCount()
		for _, t := range conv.Turns {
			if t.ParseError != "" {
				report.InvalidSellerTurns++
			}
		}

		a.logger.Info("Example collected",
			zap.Int("collected", report.Collected),
			zap.Int("target", targetCount),
			zap.Int("attempt", report.AttemptsUsed),
			zap.String("scenario", conv.ScenarioKind))

		if report.Collected < targetCount && report.AttemptsUsed < maxAttempts {
			if err := a.sleep(ctx, a.pause()); err != nil {
				return batch, err
			}
		}
	}

	if report.Partial() {
		a.logger.Warn("Batch incomplete", zap.String("report", report.String()))
	} else {
		a.logger.Info("Batch complete", zap.String("report", report.String()))
	}
	return batch, nil
}

// pause draws a delay uniformly from [MinDelayUnits, MaxDelayUnits] units.
func (a *Assembler) pause() time.Duration {
	lo, hi := a.cfg.MinDelayUnits, a.cfg.MaxDelayUnits
	if hi < lo {
		hi = lo
	}
	units := lo + a.rng.IntN(hi-lo+1)
	return time.Duration(units) * a.cfg.DelayUnit
}
