package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Config defines retry behavior with exponential backoff.
//
// Attempts are numbered from 0. No delay precedes attempt 0; attempt k>0 is
// preceded by Unit * Multiplier^k, so the default schedule is 2, 4, 8 units.
type Config struct {
	MaxAttempts  int           // Total attempts including the first
	Unit         time.Duration // Base time unit of the schedule
	Multiplier   float64
	MaxDelay     time.Duration // 0 disables the cap
	JitterFactor float64       // 0.0-1.0; 0 keeps the schedule exact
}

// DefaultConfig returns the completion-call defaults:
// 3 attempts, one-second unit, doubling, no cap, no jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Unit:        time.Second,
		Multiplier:  2.0,
	}
}

// DelayBefore returns how long to wait before the given attempt.
func (c *Config) DelayBefore(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	multiplier := c.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := time.Duration(float64(c.Unit) * math.Pow(multiplier, float64(attempt)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return applyJitter(delay, c.JitterFactor)
}

// applyJitter adds random jitter to a delay.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Sleeper blocks for d or until ctx is done. Tests inject a recording sleeper.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoWithResult executes fn and returns both result and error.
// Respects context cancellation during wait periods.
func DoWithResult[T any](ctx context.Context, cfg *Config, sleep Sleeper, fn func(attempt int) (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if sleep == nil {
		sleep = Sleep
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result T
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, cfg.DelayBefore(attempt)); err != nil {
				return result, err
			}
		}

		r, err := fn(attempt)
		if err == nil {
			return r, nil
		}
		lastErr = err
		result = r // Keep last result even on error
	}

	return result, lastErr
}
