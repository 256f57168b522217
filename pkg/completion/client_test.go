package completion

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/llm"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/structured"
)

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func testPrompt() prompts.Prompt {
	return prompts.Prompt{System: "regras", User: "<|AgenteAtual|>BuyerAgent<|AgenteAtual|>"}
}

func newTestClient(svc llm.CompletionService, sleeper *recordingSleeper, opts ...Option) *Client {
	cfg := DefaultConfig()
	cfg.BackoffUnit = time.Millisecond
	opts = append([]Option{
		WithSleeper(sleeper.sleep),
		WithRand(rand.New(rand.NewPCG(1, 1))),
	}, opts...)
	return NewClient(svc, NewCache(), cfg, zap.NewNop(), opts...)
}

func failingService(err error) *llm.MockCompletionService {
	svc := llm.NewMockCompletionService()
	svc.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (string, error) {
		return "", err
	}
	return svc
}

func TestComplete_CachesIdenticalRequests(t *testing.T) {
	svc := llm.NewMockCompletionService()
	svc.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (string, error) {
		return "  Qual o preço do Civic?\n", nil
	}
	client := newTestClient(svc, &recordingSleeper{})
	req := Request{Role: models.RoleBuyer, Prompt: testPrompt(), Temperature: 0.2}

	first := client.Complete(context.Background(), req)
	second := client.Complete(context.Background(), req)

	assert.Equal(t, 1, svc.CompleteCalls)
	assert.Equal(t, OutcomeSuccess, first.Outcome)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, "Qual o preço do Civic?", first.Text)
	assert.Equal(t, OutcomeCached, second.Outcome)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, client.Cache().Len())
}

func TestComplete_CacheKeyIncludesTemperatureAndLengthLimit(t *testing.T) {
	svc := llm.NewMockCompletionService()
	client := newTestClient(svc, &recordingSleeper{})
	base := Request{Role: models.RoleBuyer, Prompt: testPrompt(), Temperature: 0.2}

	client.Complete(context.Background(), base)

	hotter := base
	hotter.Temperature = 0.7
	client.Complete(context.Background(), hotter)

	limited := base
	limited.LengthLimited = true
	client.Complete(context.Background(), limited)

	assert.Equal(t, 3, svc.CompleteCalls)
}

func TestComplete_BackoffSchedule(t *testing.T) {
	svc := failingService(errors.New("status code: 503, service unavailable"))
	sleeper := &recordingSleeper{}
	client := newTestClient(svc, sleeper)

	res := client.Complete(context.Background(), Request{Role: models.RoleBuyer, Prompt: testPrompt()})

	assert.Equal(t, 3, svc.CompleteCalls, "at most MaxRetries external calls")
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, sleeper.delays)
	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	require.Error(t, res.Err)
}

func TestComplete_SucceedsAfterRetry(t *testing.T) {
	svc := llm.NewMockCompletionService()
	svc.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (string, error) {
		if svc.CompleteCalls == 1 {
			return "", errors.New("429 Too Many Requests")
		}
		return "O Civic custa R$ 150.000,00.", nil
	}
	sleeper := &recordingSleeper{}
	client := newTestClient(svc, sleeper)

	res := client.Complete(context.Background(), Request{Role: models.RoleSeller, Prompt: testPrompt()})

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Millisecond}, sleeper.delays)
}

func TestComplete_EmptyCompletionIsRetried(t *testing.T) {
	svc := llm.NewMockCompletionService()
	svc.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (string, error) {
		if svc.CompleteCalls == 1 {
			return "   ", nil
		}
		return "ok", nil
	}
	client := newTestClient(svc, &recordingSleeper{})

	res := client.Complete(context.Background(), Request{Role: models.RoleBuyer, Prompt: testPrompt()})

	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 2, res.Attempts)
}

func TestComplete_FallbackLiveness(t *testing.T) {
	svc := failingService(errors.New("connection refused"))
	client := newTestClient(svc, &recordingSleeper{})
	fallbacks := DefaultFallbacks()

	buyer := client.Complete(context.Background(), Request{Role: models.RoleBuyer, Prompt: testPrompt()})
	assert.Equal(t, OutcomeFallback, buyer.Outcome)
	assert.Contains(t, fallbacks.Buyer, buyer.Text)
	assert.True(t, strings.HasSuffix(buyer.Text, "?"), "buyer fallback is a question")

	seller := client.Complete(context.Background(), Request{
		Role:          models.RoleSeller,
		Prompt:        testPrompt(),
		LatestMessage: "Qual o preço do Civic?",
	})
	assert.Equal(t, OutcomeFallback, seller.Outcome)

	parsed, err := structured.Parse(seller.Text)
	require.NoError(t, err)
	assert.Equal(t, "Qual o preço do Civic?", parsed.Input)
	assert.NotEmpty(t, parsed.FinalResponse)
	assert.Empty(t, parsed.NextAgent)
}

func TestComplete_ErrorMarkerMode(t *testing.T) {
	svc := failingService(errors.New("timeout"))
	cfg := DefaultConfig()
	cfg.Fallback = FallbackErrorMarker
	client := NewClient(svc, nil, cfg, zap.NewNop(), WithSleeper((&recordingSleeper{}).sleep))

	res := client.Complete(context.Background(), Request{Role: models.RoleSeller, Prompt: testPrompt()})

	assert.Equal(t, ErrorResponse, res.Text)
	assert.Contains(t, res.Text, ErrorMarker)
}

func TestComplete_FallbackIsNotCached(t *testing.T) {
	fail := true
	svc := llm.NewMockCompletionService()
	svc.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (string, error) {
		if fail {
			return "", errors.New("503")
		}
		return "recuperado", nil
	}
	client := newTestClient(svc, &recordingSleeper{})
	req := Request{Role: models.RoleBuyer, Prompt: testPrompt()}

	first := client.Complete(context.Background(), req)
	assert.Equal(t, OutcomeFallback, first.Outcome)
	assert.Equal(t, 0, client.Cache().Len())

	fail = false
	second := client.Complete(context.Background(), req)
	assert.Equal(t, OutcomeSuccess, second.Outcome)
	assert.Equal(t, "recuperado", second.Text)
}

func TestComplete_RequestShape(t *testing.T) {
	tests := []struct {
		name          string
		combined      bool
		lengthLimited bool
		wantSystem    string
		wantPrompt    string
		wantMaxTokens int
	}{
		{
			name:          "separated roles",
			wantSystem:    "regras",
			wantPrompt:    testPrompt().User,
			wantMaxTokens: 500,
		},
		{
			name:          "combined blob, length limited",
			combined:      true,
			lengthLimited: true,
			wantSystem:    "",
			wantPrompt:    testPrompt().Combined(),
			wantMaxTokens: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := llm.NewMockCompletionService()
			svc.Combined = tt.combined
			client := newTestClient(svc, &recordingSleeper{})

			client.Complete(context.Background(), Request{
				Role:          models.RoleSeller,
				Prompt:        testPrompt(),
				Temperature:   0.2,
				LengthLimited: tt.lengthLimited,
			})

			require.Len(t, svc.Requests, 1)
			got := svc.Requests[0]
			assert.Equal(t, tt.wantSystem, got.System)
			assert.Equal(t, tt.wantPrompt, got.Prompt)
			assert.Equal(t, tt.wantMaxTokens, got.MaxOutputTokens)
			assert.Equal(t, 1, got.CandidateCount)
			assert.InDelta(t, 0.2, got.Temperature, 1e-9)
		})
	}
}

func TestComplete_OpenCircuitSkipsService(t *testing.T) {
	svc := failingService(errors.New("503"))
	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})
	client := newTestClient(svc, &recordingSleeper{}, WithCircuitBreaker(breaker))

	first := client.Complete(context.Background(), Request{Role: models.RoleBuyer, Prompt: testPrompt()})
	assert.Equal(t, 3, first.Attempts)
	assert.Equal(t, llm.CircuitOpen, breaker.State())

	second := client.Complete(context.Background(), Request{Role: models.RoleSeller, Prompt: testPrompt()})
	assert.Equal(t, OutcomeFallback, second.Outcome)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, 3, svc.CompleteCalls, "no calls while the circuit is open")
}

func TestComplete_LogsClassificationAndBreakerCount(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      llm.ErrorType
		wantRetryable bool
	}{
		{"overloaded provider", errors.New("503 Service Unavailable"), llm.ErrorTypeEndpoint, true},
		{"bad key", errors.New("401 unauthorized"), llm.ErrorTypeAuth, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			svc := failingService(tt.err)
			breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{Threshold: 5, ResetAfter: time.Hour})
			cfg := DefaultConfig()
			client := NewClient(svc, NewCache(), cfg, zap.New(core),
				WithSleeper((&recordingSleeper{}).sleep),
				WithCircuitBreaker(breaker))

			res := client.Complete(context.Background(), Request{Role: models.RoleBuyer, Prompt: testPrompt()})

			// Classification never shortens the retry loop.
			assert.Equal(t, 3, res.Attempts)

			attempts := logs.FilterMessage("Completion attempt failed").All()
			require.Len(t, attempts, 3)
			fields := attempts[0].ContextMap()
			assert.Equal(t, string(tt.wantType), fields["error_type"])
			assert.Equal(t, tt.wantRetryable, fields["retryable"])

			exhausted := logs.FilterMessage("Completion retries exhausted").All()
			require.Len(t, exhausted, 1)
			assert.Equal(t, int64(1), exhausted[0].ContextMap()["consecutive_failures"])
		})
	}
}

func TestComplete_CancelledDuringBackoff(t *testing.T) {
	svc := failingService(errors.New("503"))
	sleeper := &recordingSleeper{err: context.Canceled}
	client := newTestClient(svc, sleeper)

	res := client.Complete(context.Background(), Request{Role: models.RoleBuyer, Prompt: testPrompt()})

	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, 1, svc.CompleteCalls)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestOutcome_TurnOutcome(t *testing.T) {
	assert.Equal(t, models.TurnOutcomeGenerated, OutcomeSuccess.TurnOutcome())
	assert.Equal(t, models.TurnOutcomeCached, OutcomeCached.TurnOutcome())
	assert.Equal(t, models.TurnOutcomeFallback, OutcomeFallback.TurnOutcome())
}

func TestCacheKey(t *testing.T) {
	k := CacheKey("prompt", 0.2, false)

	assert.Equal(t, k, CacheKey("prompt", 0.2, false))
	assert.NotEqual(t, k, CacheKey("prompt", 0.2, true))
	assert.NotEqual(t, k, CacheKey("prompt", 0.3, false))
	assert.NotEqual(t, k, CacheKey("prompt ", 0.2, false))
	assert.True(t, strings.HasPrefix(k, "completion:"))
}

func TestCache_Stats(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "a", "texto"))
	text, ok := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "texto", text)

	hits, misses := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}
