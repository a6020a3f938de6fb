// Package debounce coalesces bursts of requests for an expensive
// computation into a single run.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the most recently triggered function once the quiet period
// has elapsed without another trigger. Every caller that triggered during the
// burst receives the single result.
type Debouncer[T any] struct {
	delay time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	fn         func() T
	waiters    []chan T
}

func New[T any](delay time.Duration) *Debouncer[T] {
	return &Debouncer[T]{delay: delay}
}

// Trigger schedules fn after the quiet period, replacing any pending
// function and restarting the timer. The returned channel receives exactly
// one value, or is closed without a value if Stop cancels the run.
func (d *Debouncer[T]) Trigger(fn func() T) <-chan T {
	ch := make(chan T, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.fn = fn
	d.waiters = append(d.waiters, ch)
	d.generation++
	gen := d.generation

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })

	return ch
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// a later Trigger or Stop superseded this timer
	if gen != d.generation || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	waiters := d.waiters
	d.fn = nil
	d.waiters = nil
	d.timer = nil
	d.mu.Unlock()

	result := fn()
	for _, ch := range waiters {
		ch <- result
		close(ch)
	}
}

// Pending reports whether a run is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

// Stop cancels the pending run and closes every waiting channel.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	for _, ch := range d.waiters {
		close(ch)
	}
	d.fn = nil
	d.waiters = nil
}
