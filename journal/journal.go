// Package journal records the callback events delivered to simulator
// sessions so that clients can poll them after an asynchronous operation.
package journal

import (
	"errors"
	"time"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/internal/uuid"
)

var (
	// ErrNotFound is returned when a session has no journal.
	ErrNotFound = errors.New("journal not found")
	// ErrInvalidEvent is returned when an event cannot be stored.
	ErrInvalidEvent = errors.New("invalid journal event")
)

// Event is one callback delivered to a session.
type Event struct {
	Seq             uint64      `json:"seq"`
	ID              string      `json:"id"`
	SessionID       string      `json:"session_id"`
	OperationID     string      `json:"operation_id,omitempty"`
	Kind            engine.Kind `json:"kind"`
	Terminal        bool        `json:"terminal"`
	Code            string      `json:"code,omitempty"`
	Percent         int         `json:"percent,omitempty"`
	EnrollmentID    int32       `json:"enrollment_id,omitempty"`
	EnrollmentIDs   []int32     `json:"enrollment_ids,omitempty"`
	Value           int64       `json:"value,omitempty"`
	RemainingMillis int64       `json:"remaining_ms,omitempty"`
	Token           []byte      `json:"token,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Store persists events per session. Append assigns Seq, which increases
// strictly within a session.
type Store interface {
	Append(ev *Event) error
	// List returns the session's events with Seq greater than afterSeq, in order.
	List(sessionID string, afterSeq uint64) ([]Event, error)
	Sessions() ([]string, error)
	Close() error
}

// Prepare validates ev and fills in its ID and timestamp when unset.
func Prepare(ev *Event) error {
	if ev == nil || ev.SessionID == "" {
		return ErrInvalidEvent
	}
	if ev.Kind == "" {
		return ErrInvalidEvent
	}
	if ev.ID == "" {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.Terminal = ev.Kind.Terminal()
	return nil
}

// Clone returns a deep copy of ev.
func Clone(ev Event) Event {
	ev.EnrollmentIDs = append([]int32(nil), ev.EnrollmentIDs...)
	ev.Token = append([]byte(nil), ev.Token...)
	return ev
}
