package engine

import "sync"

// OperationState is the lifecycle of a cancellable operation:
// Idle → Running → {Completed, Canceled, Errored}.
type OperationState int

const (
	StateIdle OperationState = iota
	StateRunning
	StateCompleted
	StateCanceled
	StateErrored
)

func (s OperationState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCanceled:
		return "canceled"
	case StateErrored:
		return "errored"
	default:
		return "idle"
	}
}

// Terminal reports whether no further transition is possible.
func (s OperationState) Terminal() bool {
	return s == StateCompleted || s == StateCanceled || s == StateErrored
}

type operation struct {
	name   string
	cancel *CancellationSignal

	mu    sync.Mutex
	state OperationState
}

func newOperation(name string, cancel *CancellationSignal) *operation {
	return &operation{name: name, cancel: cancel}
}

func (o *operation) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return false
	}
	o.state = StateRunning
	return true
}

// finish moves a running operation to a terminal state. It returns false if
// the operation is not running, so at most one terminal outcome is reported.
func (o *operation) finish(to OperationState) bool {
	if !to.Terminal() {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return false
	}
	o.state = to
	return true
}

func (o *operation) State() OperationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
