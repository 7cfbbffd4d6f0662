package session

import (
	"context"
	"sync"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/journal"
)

// Operation is a handle on one engine request made through a session.
type Operation struct {
	ID   string
	Name string

	signal *engine.CancellationSignal
	done   chan struct{}

	mu     sync.Mutex
	result journal.Event
}

func newOperation(id, name string, signal *engine.CancellationSignal) *Operation {
	return &Operation{ID: id, Name: name, signal: signal, done: make(chan struct{})}
}

// Cancellable reports whether the operation observes a cancellation signal.
func (o *Operation) Cancellable() bool {
	return o.signal != nil
}

// Done is closed once the terminal event has been journaled.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation's terminal event or ctx expiry.
func (o *Operation) Wait(ctx context.Context) (journal.Event, error) {
	select {
	case <-o.done:
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.result, nil
	case <-ctx.Done():
		return journal.Event{}, ctx.Err()
	}
}

func (o *Operation) complete(ev journal.Event) {
	o.mu.Lock()
	o.result = ev
	o.mu.Unlock()
	close(o.done)
}
