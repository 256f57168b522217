package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.Unit != time.Second {
		t.Errorf("expected Unit=1s, got %v", cfg.Unit)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
	if cfg.JitterFactor != 0 {
		t.Errorf("expected JitterFactor=0, got %f", cfg.JitterFactor)
	}
}

func TestConfig_DelayBefore(t *testing.T) {
	cfg := &Config{MaxAttempts: 4, Unit: 10 * time.Millisecond, Multiplier: 2.0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 80 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := cfg.DelayBefore(tt.attempt); got != tt.want {
			t.Errorf("DelayBefore(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestConfig_DelayBefore_MaxDelay(t *testing.T) {
	cfg := &Config{Unit: 100 * time.Millisecond, Multiplier: 2.0, MaxDelay: 150 * time.Millisecond}

	assert.Equal(t, 150*time.Millisecond, cfg.DelayBefore(1))
	assert.Equal(t, 150*time.Millisecond, cfg.DelayBefore(5))
}

func TestConfig_DelayBefore_JitterBounds(t *testing.T) {
	cfg := &Config{Unit: 100 * time.Millisecond, Multiplier: 2.0, JitterFactor: 0.25}

	for i := 0; i < 50; i++ {
		d := cfg.DelayBefore(1)
		if d < 150*time.Millisecond || d > 250*time.Millisecond {
			t.Fatalf("jittered delay %v outside [150ms, 250ms]", d)
		}
	}
}

func TestDoWithResult_SuccessFirstAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	callCount := 0

	got, err := DoWithResult(context.Background(), DefaultConfig(), sleeper.Sleep, func(attempt int) (string, error) {
		callCount++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, callCount)
	assert.Empty(t, sleeper.delays, "no sleep before the first attempt")
}

func TestDoWithResult_ExhaustsAttemptsWithDoublingDelays(t *testing.T) {
	sleeper := &recordingSleeper{}
	cfg := &Config{MaxAttempts: 3, Unit: time.Second, Multiplier: 2.0}

	var attempts []int
	_, err := DoWithResult(context.Background(), cfg, sleeper.Sleep, func(attempt int) (string, error) {
		attempts = append(attempts, attempt)
		return "", errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, []int{0, 1, 2}, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestDoWithResult_SuccessAfterRetries(t *testing.T) {
	sleeper := &recordingSleeper{}
	callCount := 0

	got, err := DoWithResult(context.Background(), DefaultConfig(), sleeper.Sleep, func(attempt int) (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errors.New("temporary error")
		}
		return callCount, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Len(t, sleeper.delays, 2)
}

func TestDoWithResult_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	_, err := DoWithResult(ctx, DefaultConfig(), Sleep, func(attempt int) (string, error) {
		callCount++
		return "", errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount, "first attempt runs, retry is abandoned")
}

func TestDoWithResult_NilConfigAndSleeper(t *testing.T) {
	callCount := 0
	_, err := DoWithResult(context.Background(), nil, nil, func(attempt int) (string, error) {
		callCount++
		return "", nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestDoWithResult_ZeroAttemptsStillCallsOnce(t *testing.T) {
	callCount := 0
	_, _ = DoWithResult(context.Background(), &Config{}, (&recordingSleeper{}).Sleep, func(attempt int) (string, error) {
		callCount++
		return "", errors.New("error")
	})
	assert.Equal(t, 1, callCount)
}

func TestDoWithResult_KeepsLastResult(t *testing.T) {
	sleeper := &recordingSleeper{}

	result, err := DoWithResult(context.Background(), DefaultConfig(), sleeper.Sleep, func(attempt int) (int, error) {
		return attempt * 10, errors.New("still failing")
	})

	require.Error(t, err)
	assert.Equal(t, 20, result)
}

func TestDoWithResult_Success(t *testing.T) {
	result, err := DoWithResult(context.Background(), DefaultConfig(), (&recordingSleeper{}).Sleep, func(attempt int) (string, error) {
		if attempt == 0 {
			return "", errors.New("first failure")
		}
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestSleep_ReturnsAfterDuration(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
