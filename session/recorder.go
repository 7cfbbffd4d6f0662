package session

import (
	"time"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/hat"
	"github.com/jmcleod/fpsim/journal"
)

// recorder is the engine callback for a single operation. It journals every
// event and retires the operation on the terminal one.
type recorder struct {
	s  *Session
	op *Operation
}

var _ engine.SessionCallback = (*recorder)(nil)

func (r *recorder) record(ev journal.Event) {
	ev.SessionID = r.s.ID
	ev.OperationID = r.op.ID
	if err := r.s.store.Append(&ev); err != nil {
		r.s.logger.Error("journal append failed", "kind", ev.Kind, "operation", r.op.Name, "error", err)
	}
	r.s.logger.Debug("callback", "kind", ev.Kind, "operation", r.op.Name, "operation_id", r.op.ID)
	if ev.Kind.Terminal() {
		r.s.retire(r.op, ev)
	}
}

func (r *recorder) OnChallengeGenerated(challenge int64) {
	r.record(journal.Event{Kind: engine.KindChallengeGenerated, Value: challenge})
}

func (r *recorder) OnChallengeRevoked(challenge int64) {
	r.record(journal.Event{Kind: engine.KindChallengeRevoked, Value: challenge})
}

func (r *recorder) OnAcquired(info engine.AcquiredInfo) {
	r.record(journal.Event{Kind: engine.KindAcquired, Code: info.String()})
}

func (r *recorder) OnError(code engine.Error) {
	r.record(journal.Event{Kind: engine.KindError, Code: code.String()})
}

func (r *recorder) OnEnrollmentProgress(percent int) {
	r.record(journal.Event{Kind: engine.KindEnrollmentProgress, Percent: percent})
}

func (r *recorder) OnEnrolled(enrollmentID int32) {
	r.record(journal.Event{Kind: engine.KindEnrolled, EnrollmentID: enrollmentID})
}

func (r *recorder) OnAuthenticationSucceeded(enrollmentID int32, token *hat.Token) {
	ev := journal.Event{Kind: engine.KindAuthenticationSucceeded, EnrollmentID: enrollmentID}
	if token != nil {
		ev.Token, _ = token.MarshalBinary()
	}
	r.record(ev)
}

func (r *recorder) OnAuthenticationFailed() {
	r.record(journal.Event{Kind: engine.KindAuthenticationFailed})
}

func (r *recorder) OnLockoutTimed(remaining time.Duration) {
	r.record(journal.Event{Kind: engine.KindLockoutTimed, RemainingMillis: remaining.Milliseconds()})
}

func (r *recorder) OnLockoutPermanent() {
	r.record(journal.Event{Kind: engine.KindLockoutPermanent})
}

func (r *recorder) OnLockoutCleared() {
	r.record(journal.Event{Kind: engine.KindLockoutCleared})
}

func (r *recorder) OnInteractionDetected() {
	r.record(journal.Event{Kind: engine.KindInteractionDetected})
}

func (r *recorder) OnEnrollmentsEnumerated(enrollmentIDs []int32) {
	r.record(journal.Event{Kind: engine.KindEnrollmentsEnumerated, EnrollmentIDs: enrollmentIDs})
}

func (r *recorder) OnEnrollmentsRemoved(enrollmentIDs []int32) {
	r.record(journal.Event{Kind: engine.KindEnrollmentsRemoved, EnrollmentIDs: enrollmentIDs})
}

func (r *recorder) OnAuthenticatorIDRetrieved(authenticatorID int64) {
	r.record(journal.Event{Kind: engine.KindAuthenticatorIDRetrieved, Value: authenticatorID})
}

func (r *recorder) OnAuthenticatorIDInvalidated(authenticatorID int64) {
	r.record(journal.Event{Kind: engine.KindAuthenticatorIDInvalidated, Value: authenticatorID})
}
