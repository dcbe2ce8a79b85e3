// Package debounce coalesces bursts of triggers into single deferred firings.
package debounce

import (
	"sync"
	"time"
)

// Controller coalesces triggers per key. Each Trigger resets the key's timer
// and replaces its pending payload; the callback fires once with the latest
// payload after the window elapses with no further triggers.
type Controller struct {
	window time.Duration
	fn     func(key string, payload any)

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
}

type entry struct {
	timer    *time.Timer
	payload  any
	deadline time.Time
}

// New creates a Controller firing fn after window of quiet per key.
func New(window time.Duration, fn func(key string, payload any)) *Controller {
	return &Controller{
		window:  window,
		fn:      fn,
		pending: make(map[string]*entry),
	}
}

// Trigger schedules or reschedules the key's firing. The payload replaces any
// pending payload for the key; only the latest survives.
func (c *Controller) Trigger(key string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	if e, ok := c.pending[key]; ok {
		e.payload = payload
		e.deadline = time.Now().Add(c.window)
		e.timer.Reset(c.window)
		return
	}

	e := &entry{payload: payload, deadline: time.Now().Add(c.window)}
	e.timer = time.AfterFunc(c.window, func() {
		c.fire(key)
	})
	c.pending[key] = e
}

func (c *Controller) fire(key string) {
	c.mu.Lock()
	e, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if time.Now().Before(e.deadline) {
		// A firing already in flight when Trigger re-armed the timer. The
		// re-armed timer delivers at the new deadline; this one is stale.
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	payload := e.payload
	c.mu.Unlock()

	c.fn(key, payload)
}

// Flush fires the key immediately if a trigger is pending. Returns true if
// something fired.
func (c *Controller) Flush(key string) bool {
	c.mu.Lock()
	e, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	e.timer.Stop()
	delete(c.pending, key)
	payload := e.payload
	c.mu.Unlock()

	c.fn(key, payload)
	return true
}

// FlushAll fires every pending key immediately.
func (c *Controller) FlushAll() {
	c.mu.Lock()
	drained := make(map[string]any, len(c.pending))
	for key, e := range c.pending {
		e.timer.Stop()
		drained[key] = e.payload
	}
	c.pending = make(map[string]*entry)
	c.mu.Unlock()

	for key, payload := range drained {
		c.fn(key, payload)
	}
}

// Cancel discards the key's pending trigger without firing.
func (c *Controller) Cancel(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.pending[key]; ok {
		e.timer.Stop()
		delete(c.pending, key)
	}
}

// Pending reports whether the key has an undelivered trigger.
func (c *Controller) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Stop cancels all pending triggers and rejects future ones.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.pending {
		e.timer.Stop()
		delete(c.pending, key)
	}
	c.stopped = true
}
