package boxsync

import "time"

const (
	defaultBaseInterval = 2 * time.Second
	maxBackoff          = 30 * time.Second
)

// calculateBackoff returns the wait before the next reconnect using
// exponential backoff. Each failure doubles the interval, capped at maxBackoff.
func calculateBackoff(failures int, baseInterval time.Duration) time.Duration {
	if failures <= 0 {
		return baseInterval
	}
	backoff := baseInterval
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
