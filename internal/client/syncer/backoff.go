package syncer

import (
	"sync"
	"time"
)

// backoff tracks consecutive failed drains.
type backoff struct {
	mu       sync.Mutex
	base     time.Duration
	max      time.Duration
	failures int
	until    time.Time
}

// delay is base*2^(n-1) capped at max.
func (b *backoff) delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := b.base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	if d > b.max {
		return b.max
	}
	return d
}

// fail records a failed drain at now and returns the wait before the next.
func (b *backoff) fail(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	d := b.delay(b.failures)
	b.until = now.Add(d)
	return d
}

func (b *backoff) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.until = time.Time{}
}

// ready reports whether an automatic drain may run at now.
func (b *backoff) ready(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !now.Before(b.until)
}
