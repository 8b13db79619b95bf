package safety

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCircuitOpen marks a circuit that has seen too many consecutive
// failures. Callers abort instead of spinning.
var ErrCircuitOpen = errors.New("circuit breaker open")

type circuit struct {
	name        string
	maxFailures int
	failures    int
	lastErr     error
}

func (c *circuit) record(err error) error {
	c.failures++
	c.lastErr = err
	if c.maxFailures > 0 && c.failures >= c.maxFailures {
		return fmt.Errorf("%w: %s failed %d consecutive times: %v", ErrCircuitOpen, c.name, c.failures, c.lastErr)
	}
	return nil
}

func (c *circuit) reset() {
	c.failures = 0
	c.lastErr = nil
}

// Breaker bounds consecutive failures of the two retried operations in a
// run: order placement and status polling. A nil Breaker disables bounding.
type Breaker struct {
	mu    sync.Mutex
	place circuit
	poll  circuit
}

func NewBreaker(maxPlaceFailures, maxPollFailures int) *Breaker {
	return &Breaker{
		place: circuit{name: "order placement", maxFailures: maxPlaceFailures},
		poll:  circuit{name: "status poll", maxFailures: maxPollFailures},
	}
}

// RecordPlaceFailure counts one placement failure; the returned error is
// non-nil (wrapping ErrCircuitOpen) once the threshold is crossed.
func (b *Breaker) RecordPlaceFailure(err error) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.place.record(err)
}

func (b *Breaker) ResetPlace() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.place.reset()
}

func (b *Breaker) RecordPollFailure(err error) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.poll.record(err)
}

func (b *Breaker) ResetPoll() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poll.reset()
}
