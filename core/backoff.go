package core

import "time"

const (
	defaultBackoffInitial = 500 * time.Millisecond
	defaultBackoffMax     = 2 * time.Minute
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoffScheduler doubles from Initial per attempt, capped at Max.
type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	max := s.Max
	if max <= 0 {
		max = defaultBackoffMax
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
