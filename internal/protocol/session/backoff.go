package session

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackOff builds the connect retry policy. The policy stops once
// maxElapsed has passed; zero keeps retrying until the context ends.
func NewBackOff(cfg BackoffConfig, maxElapsed time.Duration) backoff.BackOff {
	multiplier := cfg.Multiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	randomization := 0.0
	if cfg.Jitter {
		randomization = 0.5
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = cfg.InitialDelay
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialDelay),
		backoff.WithMultiplier(multiplier),
		backoff.WithMaxInterval(maxDelay),
		backoff.WithRandomizationFactor(randomization),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
}
