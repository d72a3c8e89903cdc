package redis

import (
	"errors"
	"log"
	"sync"
	"time"
)

// errBreakerOpen is returned without attempting the call while the breaker
// is cooling down.
var errBreakerOpen = errors.New("redis breaker open")

// breaker trips after maxFailures consecutive errors and rejects calls for
// cooldown, then lets the next call through as a probe. A publisher behind a
// dead Redis must fail fast instead of blocking every event on a timeout.
type breaker struct {
	mu          sync.Mutex
	maxFailures int
	cooldown    time.Duration
	failures    int
	open        bool
	trippedAt   time.Time
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	return &breaker{maxFailures: maxFailures, cooldown: cooldown}
}

func (b *breaker) do(fn func() error) error {
	b.mu.Lock()
	if b.open {
		if time.Since(b.trippedAt) < b.cooldown {
			b.mu.Unlock()
			return errBreakerOpen
		}
		// Cooldown over: let this call probe the connection.
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.open || b.failures >= b.maxFailures {
			if !b.open {
				log.Printf("[redis] breaker tripped after %d failures", b.failures)
			}
			b.open = true
			b.trippedAt = time.Now()
		}
		return err
	}
	if b.open {
		log.Printf("[redis] breaker reset")
	}
	b.open = false
	b.failures = 0
	return nil
}
