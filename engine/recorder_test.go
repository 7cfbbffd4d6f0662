package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/jmcleod/fpsim/hat"
)

type event struct {
	kind      Kind
	code      Error
	info      AcquiredInfo
	percent   int
	id        int32
	ids       []int32
	value     int64
	token     *hat.Token
	remaining time.Duration
}

// recorder is a SessionCallback that keeps every event and signals terminal
// ones on a channel.
type recorder struct {
	mu         sync.Mutex
	events     []event
	terminal   chan event
	onProgress func(percent int)
}

var _ SessionCallback = (*recorder)(nil)

func newRecorder() *recorder {
	return &recorder{terminal: make(chan event, 16)}
}

func (r *recorder) add(ev event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.kind.Terminal() {
		r.terminal <- ev
	}
}

func (r *recorder) wait(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-r.terminal:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal callback")
		return event{}
	}
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) count(kind Kind) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) terminals() int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.kind.Terminal() {
			n++
		}
	}
	return n
}

func (r *recorder) OnChallengeGenerated(challenge int64) {
	r.add(event{kind: KindChallengeGenerated, value: challenge})
}

func (r *recorder) OnChallengeRevoked(challenge int64) {
	r.add(event{kind: KindChallengeRevoked, value: challenge})
}

func (r *recorder) OnAcquired(info AcquiredInfo) {
	r.add(event{kind: KindAcquired, info: info})
}

func (r *recorder) OnError(code Error) {
	r.add(event{kind: KindError, code: code})
}

func (r *recorder) OnEnrollmentProgress(percent int) {
	r.add(event{kind: KindEnrollmentProgress, percent: percent})
	if r.onProgress != nil {
		r.onProgress(percent)
	}
}

func (r *recorder) OnEnrolled(enrollmentID int32) {
	r.add(event{kind: KindEnrolled, id: enrollmentID})
}

func (r *recorder) OnAuthenticationSucceeded(enrollmentID int32, token *hat.Token) {
	r.add(event{kind: KindAuthenticationSucceeded, id: enrollmentID, token: token})
}

func (r *recorder) OnAuthenticationFailed() {
	r.add(event{kind: KindAuthenticationFailed})
}

func (r *recorder) OnLockoutTimed(remaining time.Duration) {
	r.add(event{kind: KindLockoutTimed, remaining: remaining})
}

func (r *recorder) OnLockoutPermanent() {
	r.add(event{kind: KindLockoutPermanent})
}

func (r *recorder) OnLockoutCleared() {
	r.add(event{kind: KindLockoutCleared})
}

func (r *recorder) OnInteractionDetected() {
	r.add(event{kind: KindInteractionDetected})
}

func (r *recorder) OnEnrollmentsEnumerated(enrollmentIDs []int32) {
	r.add(event{kind: KindEnrollmentsEnumerated, ids: enrollmentIDs})
}

func (r *recorder) OnEnrollmentsRemoved(enrollmentIDs []int32) {
	r.add(event{kind: KindEnrollmentsRemoved, ids: enrollmentIDs})
}

func (r *recorder) OnAuthenticatorIDRetrieved(authenticatorID int64) {
	r.add(event{kind: KindAuthenticatorIDRetrieved, value: authenticatorID})
}

func (r *recorder) OnAuthenticatorIDInvalidated(authenticatorID int64) {
	r.add(event{kind: KindAuthenticatorIDInvalidated, value: authenticatorID})
}
