// Package completion wraps a completion service with a response cache,
// exponential-backoff retries and a canned fallback, so every call yields
// usable text.
package completion

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/llm"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/logging"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/retry"
)

// Outcome tags how a Result's text was obtained.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeCached   Outcome = "cached"
	OutcomeFallback Outcome = "fallback"
)

// TurnOutcome maps o onto the value recorded in dataset turn records.
func (o Outcome) TurnOutcome() models.TurnOutcome {
	switch o {
	case OutcomeCached:
		return models.TurnOutcomeCached
	case OutcomeFallback:
		return models.TurnOutcomeFallback
	default:
		return models.TurnOutcomeGenerated
	}
}

// Request is one logical completion for an agent turn.
type Request struct {
	Role          models.Role
	Prompt        prompts.Prompt
	Temperature   float64
	LengthLimited bool

	// LatestMessage is echoed by seller fallbacks.
	LatestMessage string
}

// Result is the text for a Request. Complete always returns one.
type Result struct {
	Text     string
	Outcome  Outcome
	Attempts int   // External calls made; 0 for cache hits and open-circuit fallbacks
	Err      error // Last service error when Outcome is OutcomeFallback
}

// Config controls retries and output limits.
type Config struct {
	MaxRetries     int           // Total external calls per request
	BackoffUnit    time.Duration // Attempt k>0 waits 2^k units
	ShortMaxTokens int           // Output cap for length-limited requests
	LongMaxTokens  int
	Fallback       FallbackMode
}

// DefaultConfig returns 3 attempts on a one-second unit with 150/500 token caps.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BackoffUnit:    time.Second,
		ShortMaxTokens: 150,
		LongMaxTokens:  500,
		Fallback:       FallbackCanned,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithCircuitBreaker skips straight to the fallback while cb is open.
func WithCircuitBreaker(cb *llm.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithRand sets the random source used to pick canned fallbacks.
func WithRand(rng *rand.Rand) Option {
	return func(c *Client) { c.rng = rng }
}

// WithFallbacks replaces the canned response set.
func WithFallbacks(f *FallbackSet) Option {
	return func(c *Client) { c.fallbacks = f }
}

// Client is the resilient completion caller used by both agents.
type Client struct {
	service   llm.CompletionService
	cache     *Cache
	cfg       Config
	backoff   *retry.Config
	sleep     retry.Sleeper
	breaker   *llm.CircuitBreaker
	fallbacks *FallbackSet
	rng       *rand.Rand
	logger    *zap.Logger
}

// NewClient creates a Client. A nil cache gets a fresh one.
func NewClient(service llm.CompletionService, cache *Cache, cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cache == nil {
		cache = NewCache()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackCanned
	}

	c := &Client{
		service: service,
		cache:   cache,
		cfg:     cfg,
		backoff: &retry.Config{
			MaxAttempts: cfg.MaxRetries,
			Unit:        cfg.BackoffUnit,
			Multiplier:  2.0,
		},
		sleep:     retry.Sleep,
		fallbacks: DefaultFallbacks(),
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		logger:    logger.Named("completion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the client's cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Render returns the exact text sent to the service for p, which is also
// the text the cache key is computed from.
func (c *Client) Render(p prompts.Prompt) string {
	if c.service.SeparatesRoles() {
		return p.System + "\x00" + p.User
	}
	return p.Combined()
}

// Complete returns text for req. It never fails: a cache hit returns the
// stored text without calling the service; otherwise up to MaxRetries calls
// are made with exponential backoff, and if all fail (or the context is
// cancelled, or the circuit is open) a fallback text is returned. Fallback
// texts are not cached.
func (c *Client) Complete(ctx context.Context, req Request) Result {
	key := CacheKey(c.Render(req.Prompt), req.Temperature, req.LengthLimited)
	if text, ok := c.cache.Get(ctx, key); ok {
		c.logger.Debug("Cache hit", zap.String("role", string(req.Role)))
		return Result{Text: text, Outcome: OutcomeCached}
	}

	if ok, err := c.breaker.Allow(); !ok {
		c.logger.Warn("Skipping completion call",
			zap.String("role", string(req.Role)),
			zap.Error(err))
		return c.fallback(req, 0, err)
	}

	callReq := c.buildRequest(req)
	attempts := 0
	c.logger.Debug("Requesting completion",
		zap.String("role", string(req.Role)),
		zap.String("prompt", logging.SanitizePrompt(callReq.Prompt)))

	text, err := retry.DoWithResult(ctx, c.backoff, c.sleep, func(attempt int) (string, error) {
		attempts = attempt + 1
		start := time.Now()

		text, err := c.service.Complete(ctx, callReq)
		if err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				err = llm.NewError(llm.ErrorTypeEmpty, "empty completion", true, nil)
			}
		}
		if err != nil {
			// Every failure is retried; the classification only informs the log.
			classified := llm.ClassifyError(err)
			c.logger.Warn("Completion attempt failed",
				zap.String("role", string(req.Role)),
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", c.cfg.MaxRetries),
				zap.String("error_type", string(classified.Type)),
				zap.Bool("retryable", llm.IsRetryable(classified)),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("error", logging.SanitizeError(err)))
			return "", err
		}
		return text, nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Error("Completion retries exhausted",
			zap.String("role", string(req.Role)),
			zap.Int("attempts", attempts),
			zap.String("fallback", string(c.cfg.Fallback)),
			zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()),
			zap.String("circuit", c.breaker.State().String()))
		return c.fallback(req, attempts, err)
	}

	c.breaker.RecordSuccess()
	if err := c.cache.Put(ctx, key, text); err != nil {
		c.logger.Warn("Failed to share completion", zap.String("error", logging.SanitizeError(err)))
		if c.cache.RemoteDisabled() {
			c.logger.Warn("Shared completion cache disabled after repeated failures")
		}
	}
	c.logger.Debug("Completion succeeded",
		zap.String("role", string(req.Role)),
		zap.Int("attempts", attempts),
		zap.String("response", logging.SanitizePrompt(text)))

	return Result{Text: text, Outcome: OutcomeSuccess, Attempts: attempts}
}

func (c *Client) buildRequest(req Request) *llm.CompletionRequest {
	maxTokens := c.cfg.LongMaxTokens
	if req.LengthLimited {
		maxTokens = c.cfg.ShortMaxTokens
	}

	callReq := &llm.CompletionRequest{
		Temperature:     req.Temperature,
		CandidateCount:  1,
		MaxOutputTokens: maxTokens,
	}
	if c.service.SeparatesRoles() {
		callReq.System = req.Prompt.System
		callReq.Prompt = req.Prompt.User
	} else {
		callReq.Prompt = req.Prompt.Combined()
	}
	return callReq
}

func (c *Client) fallback(req Request, attempts int, cause error) Result {
	text := ErrorResponse
	if c.cfg.Fallback == FallbackCanned {
		text = c.fallbacks.Pick(req.Role, req.LatestMessage, c.rng)
	}
	return Result{Text: text, Outcome: OutcomeFallback, Attempts: attempts, Err: cause}
}
