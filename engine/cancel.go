package engine

import "sync"

// CancellationSignal is a one-shot flag owned by the caller that started a
// long-running operation. The engine only observes it, at step boundaries.
type CancellationSignal struct {
	once sync.Once
	done chan struct{}
}

// NewCancellationSignal returns an unset signal.
func NewCancellationSignal() *CancellationSignal {
	return &CancellationSignal{done: make(chan struct{})}
}

// Cancel sets the signal. Calling it more than once has no further effect.
func (c *CancellationSignal) Cancel() {
	c.once.Do(func() { close(c.done) })
}

// Canceled reports whether Cancel has been called. A nil signal is never
// canceled.
func (c *CancellationSignal) Canceled() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal is set.
func (c *CancellationSignal) Done() <-chan struct{} {
	return c.done
}
