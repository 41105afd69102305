package transport

import (
	"math"
	"math/rand"
	"time"
)

// Retryer decides how reconnection attempts are spaced.
type Retryer interface {
	// NextDelay returns the delay before retry number attempt (0-based) and
	// whether to keep trying.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a successful connection.
	Reset()
}

// ExponentialBackoff spaces retries exponentially with optional jitter.
type ExponentialBackoff struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// MaxRetries bounds the number of attempts; 0 retries forever.
	MaxRetries int

	// JitterFactor spreads the delay by up to this fraction in either
	// direction, to avoid synchronized reconnect storms. 0 disables jitter.
	JitterFactor float64
}

// NewExponentialBackoff returns a backoff with 1s initial delay doubling up
// to 30s, jittered, retrying forever.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
}

// NextDelay implements Retryer.
func (r *ExponentialBackoff) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.JitterFactor > 0 {
		// math/rand is fine here; jitter is not security-sensitive.
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

// Reset implements Retryer.
func (r *ExponentialBackoff) Reset() {}

// FixedDelay retries on a constant interval.
type FixedDelay struct {
	// Delay between attempts.
	Delay time.Duration

	// MaxRetries bounds the number of attempts; 0 retries forever.
	MaxRetries int
}

// NewFixedDelay returns a fixed-interval retryer.
func NewFixedDelay(delay time.Duration, maxRetries int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxRetries: maxRetries}
}

// NextDelay implements Retryer.
func (r *FixedDelay) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

// Reset implements Retryer.
func (r *FixedDelay) Reset() {}
