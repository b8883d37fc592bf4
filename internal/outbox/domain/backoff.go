package domain

import (
	"math"
	"time"
)

// Backoff computes retry delays as min(Base * 2^(attempt-1), Max). A zero Max disables the cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the retry following the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
		if delay > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		delay *= 2
	}

	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}
