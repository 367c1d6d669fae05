package webhook

import "time"

// Backoff maps a failed attempt number to the delay before the next one.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Schedule is a fixed list of delays indexed by attempt-1. Attempts past the
// end of the list reuse the last delay.
type Schedule []time.Duration

// DefaultSchedule is the retry ladder used for endpoint deliveries.
var DefaultSchedule = Schedule{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	idx := min(max(attempt-1, 0), len(s)-1)
	return s[idx]
}
