package retry

import "time"

// MaxBackoff bounds every delay returned by ExponentialBackoff.
const MaxBackoff = 2 * time.Minute

// ExponentialBackoff returns base * 2^attempt, capped at MaxBackoff.
// Negative attempts are treated as the first attempt.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	return Capped(attempt, base, MaxBackoff)
}

// Capped is ExponentialBackoff with an explicit ceiling.
func Capped(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
