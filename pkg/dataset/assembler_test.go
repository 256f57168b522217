package dataset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/completion"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/scenarios"
)

// queueRunner returns the queued conversations in order, then healthy ones.
type queueRunner struct {
	queue []*models.Conversation
	calls int
	onRun func()
}

func (r *queueRunner) Run(_ context.Context, sel scenarios.Selection) *models.Conversation {
	r.calls++
	if r.onRun != nil {
		r.onRun()
	}
	if len(r.queue) > 0 {
		c := r.queue[0]
		r.queue = r.queue[1:]
		return c
	}
	conv := testConversation(3)
	conv.ScenarioKind = string(sel.Kind)
	return conv
}

type fixedSelector struct{}

func (fixedSelector) Select() scenarios.Selection {
	return scenarios.Selection{Kind: scenarios.KindBudget, Context: "c", Intent: "i", State: "Bahia"}
}

type sleepRecorder struct {
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func markerConversation() *models.Conversation {
	conv := testConversation(3)
	conv.Messages[1].Content = completion.ErrorResponse
	return conv
}

func newTestAssembler(runner Runner, sink Sink, sleeper *sleepRecorder) *Assembler {
	cfg := Config{DelayUnit: time.Millisecond, MinDelayUnits: 3, MaxDelayUnits: 7}
	return NewAssembler(runner, fixedSelector{}, sink, cfg, scenarios.NewRand(42), zap.NewNop(),
		WithSleeper(sleeper.sleep),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }))
}

func TestGenerateBatch_CollectsTarget(t *testing.T) {
	runner := &queueRunner{}
	sink := &recordingSink{}
	sleeper := &sleepRecorder{}
	a := newTestAssembler(runner, sink, sleeper)

	batch, err := a.GenerateBatch(context.Background(), 3, 5)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Report.Collected)
	assert.Equal(t, 3, batch.Report.AttemptsUsed)
	assert.False(t, batch.Report.Partial())
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, []int{1, 2, 3}, sink.written)

	require.Len(t, batch.Examples, 3)
	for i, ex := range batch.Examples {
		assert.Equal(t, i+1, ex.Sequence)
		assert.Equal(t, "budget", ex.ScenarioKind)
		assert.Len(t, ex.Messages, 6)
	}
}

func TestGenerateBatch_RejectsDegenerate(t *testing.T) {
	runner := &queueRunner{queue: []*models.Conversation{
		markerConversation(),
		{Messages: []models.Message{{Role: models.RoleBuyer, Content: "oi"}}},
	}}
	sink := &recordingSink{}
	a := newTestAssembler(runner, sink, &sleepRecorder{})

	batch, err := a.GenerateBatch(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Report.Collected)
	assert.Equal(t, 4, batch.Report.AttemptsUsed)
	assert.Equal(t, 2, batch.Report.Rejected)
	assert.Equal(t, map[string]int{RejectErrorMarker: 1, RejectTooShort: 1}, batch.Report.RejectReasons)
	assert.Equal(t, []int{1, 2}, sink.written, "rejected conversations never reach the sink")
	for _, ex := range batch.Examples {
		assert.NoError(t, CheckDegenerate(&models.Conversation{Messages: ex.Messages}))
	}
}

func TestGenerateBatch_RejectsAllFallbackConversation(t *testing.T) {
	canned := testConversation(2)
	for i := range canned.Turns {
		canned.Turns[i].Outcome = models.TurnOutcomeFallback
	}
	runner := &queueRunner{queue: []*models.Conversation{canned}}
	sink := &recordingSink{}
	a := newTestAssembler(runner, sink, &sleepRecorder{})

	batch, err := a.GenerateBatch(context.Background(), 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Report.Collected)
	assert.Equal(t, 2, batch.Report.AttemptsUsed)
	assert.Equal(t, map[string]int{RejectAllFallback: 1}, batch.Report.RejectReasons)
	assert.Zero(t, batch.Report.FallbackTurns, "rejected turns are not counted")
}

func TestGenerateBatch_PartialWhenAttemptsRunOut(t *testing.T) {
	runner := &queueRunner{queue: []*models.Conversation{
		markerConversation(), markerConversation(), markerConversation(), markerConversation(),
	}}
	a := newTestAssembler(runner, nil, &sleepRecorder{})

	batch, err := a.GenerateBatch(context.Background(), 3, 5)
	require.NoError(t, err)

	assert.True(t, batch.Report.Partial())
	assert.Equal(t, 1, batch.Report.Collected)
	assert.Equal(t, 5, batch.Report.AttemptsUsed)
	assert.Equal(t, 5, runner.calls, "attempt budget is never exceeded")
	assert.Len(t, batch.Examples, 1)
}

func TestGenerateBatch_SleepsBetweenSuccessesOnly(t *testing.T) {
	runner := &queueRunner{queue: []*models.Conversation{testConversation(3), markerConversation()}}
	sleeper := &sleepRecorder{}
	a := newTestAssembler(runner, nil, sleeper)

	_, err := a.GenerateBatch(context.Background(), 3, 10)
	require.NoError(t, err)

	// Three successes: a pause after the first two, none after the last.
	require.Len(t, sleeper.delays, 2)
	for _, d := range sleeper.delays {
		assert.GreaterOrEqual(t, d, 3*time.Millisecond)
		assert.LessOrEqual(t, d, 7*time.Millisecond)
	}
}

func TestGenerateBatch_SameSeedSameDelays(t *testing.T) {
	first, second := &sleepRecorder{}, &sleepRecorder{}

	_, err := newTestAssembler(&queueRunner{}, nil, first).GenerateBatch(context.Background(), 6, 6)
	require.NoError(t, err)
	_, err = newTestAssembler(&queueRunner{}, nil, second).GenerateBatch(context.Background(), 6, 6)
	require.NoError(t, err)

	assert.Equal(t, first.delays, second.delays)
}

func TestGenerateBatch_FixedDelayWhenRangeCollapses(t *testing.T) {
	sleeper := &sleepRecorder{}
	cfg := Config{DelayUnit: time.Second, MinDelayUnits: 2, MaxDelayUnits: 2}
	a := NewAssembler(&queueRunner{}, fixedSelector{}, nil, cfg, scenarios.NewRand(1), zap.NewNop(), WithSleeper(sleeper.sleep))

	_, err := a.GenerateBatch(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.delays)
}

func TestGenerateBatch_SinkErrorIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	a := newTestAssembler(&queueRunner{}, &recordingSink{err: boom}, &sleepRecorder{})

	batch, err := a.GenerateBatch(context.Background(), 3, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, batch.Report.Collected)
	assert.Equal(t, 1, batch.Report.AttemptsUsed)
}

func TestGenerateBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &queueRunner{}
	runner.onRun = func() {
		if runner.calls == 2 {
			cancel()
		}
	}
	a := newTestAssembler(runner, nil, &sleepRecorder{})

	batch, err := a.GenerateBatch(ctx, 5, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, batch.Report.Collected, "examples gathered before cancellation are kept")
	assert.Equal(t, 2, runner.calls)
}

func TestGenerateBatch_SleepErrorStops(t *testing.T) {
	sleeper := &sleepRecorder{err: context.DeadlineExceeded}
	a := newTestAssembler(&queueRunner{}, nil, sleeper)

	batch, err := a.GenerateBatch(context.Background(), 3, 3)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, batch.Report.Collected)
}

func TestGenerateBatch_ReportCountsTurnQuality(t *testing.T) {
	conv := testConversation(3)
	conv.Turns[1].Outcome = models.TurnOutcomeFallback
	conv.Turns[3].ParseError = "missing section NextAgent"
	conv.Turns[5].ParseError = "missing section Thought"
	a := newTestAssembler(&queueRunner{queue: []*models.Conversation{conv}}, nil, &sleepRecorder{})

	batch, err := a.GenerateBatch(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Report.FallbackTurns)
	assert.Equal(t, 2, batch.Report.InvalidSellerTurns)
}

func TestReport_String(t *testing.T) {
	r := Report{Collected: 2, Target: 3, AttemptsUsed: 5, Rejected: 3}
	assert.Equal(t, "collected 2/3 examples in 5 attempts (3 rejected)", r.String())
	assert.True(t, r.Partial())
}
