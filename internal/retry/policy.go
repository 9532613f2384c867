package retry

import (
	"context"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/config"
)

// Policy describes how many times a step is retried and how long to wait between tries.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential
	Initial    time.Duration           // base delay
	Max        time.Duration           // cap for growth
	MaxRetries int                     // retries after the first failure
}

// DefaultPolicy returns the baseline policy (linear, 1s initial, 30s cap, 1 retry).
// Every external step in the worker gets at most two attempts.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 1}
}

// NewPolicy builds a policy from raw fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	if m := config.NormalizeRetryBackoff(string(mode)); m != "" {
		p.Mode = m
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig converts the serialized retry section into a Policy.
func FromConfig(rc config.RetryConfig) Policy {
	initial, _ := time.ParseDuration(rc.InitialDelay)
	maxDelay, _ := time.ParseDuration(rc.MaxDelay)
	return NewPolicy(rc.Backoff, initial, maxDelay, rc.MaxRetries)
}

// Attempts returns the total number of tries the policy allows.
func (p Policy) Attempts() int { return p.MaxRetries + 1 }

// Delay returns the backoff delay for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Do calls fn until it succeeds, shouldRetry rejects the error, or the policy is exhausted.
// attempt is 1-based. A nil shouldRetry retries every error. The last error is returned.
func (p Policy) Do(ctx context.Context, shouldRetry func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
