// Package backoff computes randomized, bounded, increasing retry delays.
package backoff

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Policy doubles a base delay per attempt, caps it, and adds uniform jitter.
type Policy struct {
	Base   time.Duration
	Jitter time.Duration
	Max    time.Duration
}

// Default mirrors a polite human retry: the first retry waits one to three seconds.
func Default() Policy {
	return Policy{
		Base:   time.Second,
		Jitter: 2 * time.Second,
		Max:    10 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if p.Max > 0 && delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	d := time.Duration(delay) + randomJitter(p.Jitter)
	if p.Max > 0 && d > p.Max+p.Jitter {
		d = p.Max + p.Jitter
	}
	return d
}

// Pause blocks for delay or until ctx is done, whichever comes first.
func Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
