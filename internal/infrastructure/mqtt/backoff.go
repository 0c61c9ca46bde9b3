package mqtt

import "time"

// backoffDelay returns how long to wait before connection attempt number
// attempt (1-based). The delay doubles with each failed attempt, starting
// at initial and never exceeding max.
//
// The function is pure so reconnection timing can be tested without a
// broker or a clock.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
