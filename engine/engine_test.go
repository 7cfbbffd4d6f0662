package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fpsim/hat"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithStepDelay(time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	e := New(append(base, opts...)...)
	t.Cleanup(e.Close)
	return e
}

func enroll(t *testing.T, e *Engine) int32 {
	t.Helper()
	rec := newRecorder()
	e.Enroll(rec, &hat.Token{}, NewCancellationSignal())
	ev := rec.wait(t)
	require.Equal(t, KindEnrolled, ev.kind, "unexpected terminal %+v", ev)
	return ev.id
}

func TestEnrollEnumerateRemoveScenario(t *testing.T) {
	e := newTestEngine(t)

	rec := newRecorder()
	e.EnumerateEnrollments(rec)
	ev := rec.wait(t)
	require.Equal(t, KindEnrollmentsEnumerated, ev.kind)
	assert.Empty(t, ev.ids)

	n1 := enroll(t, e)
	assert.NotZero(t, n1)

	rec = newRecorder()
	e.EnumerateEnrollments(rec)
	ev = rec.wait(t)
	assert.Equal(t, []int32{n1}, ev.ids)

	before := e.AuthenticatorID()
	rec = newRecorder()
	e.RemoveEnrollments(rec, []int32{n1})
	ev = rec.wait(t)
	require.Equal(t, KindEnrollmentsRemoved, ev.kind)
	assert.Equal(t, []int32{n1}, ev.ids)
	assert.Empty(t, e.Enrollments())
	assert.NotEqual(t, before, e.AuthenticatorID())
}

func TestEnrollReportsProgressBeforeTerminal(t *testing.T) {
	e := newTestEngine(t)
	rec := newRecorder()
	e.Enroll(rec, nil, NewCancellationSignal())
	rec.wait(t)
	e.Wait()

	events := rec.snapshot()
	require.Len(t, events, DefaultConfig().EnrollSteps+1)
	last := 0
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, KindEnrollmentProgress, ev.kind)
		assert.Greater(t, ev.percent, last)
		last = ev.percent
	}
	assert.Equal(t, 100, last)
	assert.Equal(t, KindEnrolled, events[len(events)-1].kind)
	assert.Equal(t, 1, rec.terminals())
}

func TestEnrollCanceledBeforeStart(t *testing.T) {
	e := newTestEngine(t)
	cancel := NewCancellationSignal()
	cancel.Cancel()

	rec := newRecorder()
	e.Enroll(rec, nil, cancel)
	ev := rec.wait(t)
	e.Wait()

	assert.Equal(t, KindError, ev.kind)
	assert.Equal(t, ErrorCanceled, ev.code)
	assert.Zero(t, rec.count(KindEnrollmentProgress))
	assert.Empty(t, e.Enrollments())
	assert.Equal(t, 1, rec.terminals())
}

func TestEnrollCanceledMidway(t *testing.T) {
	e := newTestEngine(t)
	cancel := NewCancellationSignal()

	rec := newRecorder()
	rec.onProgress = func(percent int) {
		if percent < 100 {
			cancel.Cancel()
		}
	}
	e.Enroll(rec, nil, cancel)
	ev := rec.wait(t)
	e.Wait()

	assert.Equal(t, ErrorCanceled, ev.code)
	assert.Equal(t, 1, rec.count(KindEnrollmentProgress))
	assert.Empty(t, e.Enrollments())
}

func TestEnrollCancelAfterFinalStepStillCompletes(t *testing.T) {
	e := newTestEngine(t)
	cancel := NewCancellationSignal()

	rec := newRecorder()
	rec.onProgress = func(percent int) {
		if percent == 100 {
			cancel.Cancel()
		}
	}
	e.Enroll(rec, nil, cancel)
	ev := rec.wait(t)
	e.Wait()

	assert.Equal(t, KindEnrolled, ev.kind)
	assert.Equal(t, []int32{ev.id}, e.Enrollments())
	assert.Equal(t, 1, rec.terminals())
}

func TestEnrollNoSpace(t *testing.T) {
	e := newTestEngine(t, WithMaxEnrollments(1))
	id := enroll(t, e)

	rec := newRecorder()
	e.Enroll(rec, nil, NewCancellationSignal())
	ev := rec.wait(t)
	assert.Equal(t, KindError, ev.kind)
	assert.Equal(t, ErrorNoSpace, ev.code)
	assert.Equal(t, []int32{id}, e.Enrollments())
}

func TestAuthenticateEmptySetAlwaysNoEnrollments(t *testing.T) {
	for _, seed := range []uint64{DefaultSeed, 1, 42, 1 << 40} {
		e := newTestEngine(t, WithSeed(seed), WithMatchRate(1))
		rec := newRecorder()
		e.Authenticate(rec, 99, NewCancellationSignal())
		ev := rec.wait(t)
		e.Wait()
		assert.Equal(t, KindError, ev.kind, "seed %d", seed)
		assert.Equal(t, ErrorNoEnrollments, ev.code, "seed %d", seed)
		assert.Zero(t, rec.count(KindAuthenticationSucceeded))
	}
}

func TestAuthenticateMatchReportsLatestEnrollment(t *testing.T) {
	signer := hat.NewRandomSigner()
	defer signer.Destroy()

	e := newTestEngine(t, WithMatchRate(1), WithTokenSigner(signer), WithUserID(11))
	enroll(t, e)
	latest := enroll(t, e)

	rec := newRecorder()
	e.Authenticate(rec, 777, NewCancellationSignal())
	ev := rec.wait(t)
	e.Wait()

	require.Equal(t, KindAuthenticationSucceeded, ev.kind)
	assert.Equal(t, latest, ev.id)
	require.NotNil(t, ev.token)
	assert.Equal(t, int64(777), ev.token.Challenge)
	assert.Equal(t, int64(11), ev.token.UserID)
	assert.Equal(t, e.AuthenticatorID(), ev.token.AuthenticatorID)
	assert.Equal(t, hat.AuthenticatorFingerprint, ev.token.AuthenticatorType)
	assert.NoError(t, signer.Verify(ev.token))
	assert.Equal(t, DefaultConfig().AuthSteps, rec.count(KindAcquired))
}

func TestAuthenticateCanceled(t *testing.T) {
	e := newTestEngine(t)
	enroll(t, e)

	cancel := NewCancellationSignal()
	cancel.Cancel()
	rec := newRecorder()
	e.Authenticate(rec, 1, cancel)
	ev := rec.wait(t)
	e.Wait()
	assert.Equal(t, ErrorCanceled, ev.code)
	assert.Equal(t, 1, rec.terminals())
}

func TestAuthenticateOutcomesAreReproducible(t *testing.T) {
	run := func() []Kind {
		e := newTestEngine(t)
		enroll(t, e)
		var kinds []Kind
		for i := range 10 {
			rec := newRecorder()
			e.Authenticate(rec, int64(i), NewCancellationSignal())
			kinds = append(kinds, rec.wait(t).kind)
			e.Wait()
		}
		return kinds
	}
	assert.Equal(t, run(), run())
}

func TestTimedLockoutAndReset(t *testing.T) {
	e := newTestEngine(t, WithMatchRate(0), WithLockout(LockoutConfig{
		TimedThreshold: 2,
		Duration:       time.Hour,
	}))
	enroll(t, e)

	authenticate := func() event {
		rec := newRecorder()
		e.Authenticate(rec, 1, NewCancellationSignal())
		ev := rec.wait(t)
		e.Wait()
		return ev
	}

	assert.Equal(t, KindAuthenticationFailed, authenticate().kind)
	assert.Equal(t, LockoutNone, e.Lockout())
	assert.Equal(t, KindAuthenticationFailed, authenticate().kind)
	assert.Equal(t, LockoutTimed, e.Lockout())

	ev := authenticate()
	require.Equal(t, KindLockoutTimed, ev.kind)
	assert.Greater(t, ev.remaining, time.Duration(0))

	rec := newRecorder()
	e.ResetLockout(rec, &hat.Token{})
	assert.Equal(t, KindLockoutCleared, rec.wait(t).kind)
	assert.Equal(t, LockoutNone, e.Lockout())
	assert.Equal(t, KindAuthenticationFailed, authenticate().kind)
}

func TestTimedLockoutExpires(t *testing.T) {
	e := newTestEngine(t, WithMatchRate(0), WithLockout(LockoutConfig{
		TimedThreshold: 1,
		Duration:       20 * time.Millisecond,
	}))
	enroll(t, e)

	rec := newRecorder()
	e.Authenticate(rec, 1, NewCancellationSignal())
	rec.wait(t)
	e.Wait()
	require.Equal(t, LockoutTimed, e.Lockout())

	require.Eventually(t, func() bool {
		return e.Lockout() == LockoutNone
	}, time.Second, 5*time.Millisecond)
}

func TestPermanentLockout(t *testing.T) {
	e := newTestEngine(t, WithMatchRate(0), WithLockout(LockoutConfig{
		PermanentThreshold: 3,
	}))
	enroll(t, e)

	for range 3 {
		rec := newRecorder()
		e.Authenticate(rec, 1, NewCancellationSignal())
		require.Equal(t, KindAuthenticationFailed, rec.wait(t).kind)
		e.Wait()
	}
	assert.Equal(t, LockoutPermanent, e.Lockout())

	rec := newRecorder()
	e.Authenticate(rec, 1, NewCancellationSignal())
	assert.Equal(t, KindLockoutPermanent, rec.wait(t).kind)
	e.Wait()

	rec = newRecorder()
	e.ResetLockout(rec, nil)
	rec.wait(t)
	assert.Equal(t, LockoutNone, e.Lockout())
}

func TestSecondCancellableOperationRejected(t *testing.T) {
	e := newTestEngine(t, WithStepDelay(20*time.Millisecond))

	first := newRecorder()
	e.Enroll(first, nil, NewCancellationSignal())
	require.True(t, e.Busy())

	second := newRecorder()
	e.DetectInteraction(second, NewCancellationSignal())
	ev := second.wait(t)
	assert.Equal(t, KindError, ev.kind)
	assert.Equal(t, ErrorUnableToProcess, ev.code)

	assert.Equal(t, KindEnrolled, first.wait(t).kind)
	e.Wait()
	assert.False(t, e.Busy())
	assert.Equal(t, 1, first.terminals())
	assert.Equal(t, 1, second.terminals())
}

func TestDetectInteraction(t *testing.T) {
	e := newTestEngine(t)

	rec := newRecorder()
	e.DetectInteraction(rec, NewCancellationSignal())
	assert.Equal(t, KindInteractionDetected, rec.wait(t).kind)
	e.Wait()

	cancel := NewCancellationSignal()
	cancel.Cancel()
	rec = newRecorder()
	e.DetectInteraction(rec, cancel)
	ev := rec.wait(t)
	assert.Equal(t, ErrorCanceled, ev.code)
}

func TestRemoveDisjointIDsKeepsAuthenticatorID(t *testing.T) {
	e := newTestEngine(t)
	id := enroll(t, e)
	before := e.AuthenticatorID()

	rec := newRecorder()
	e.RemoveEnrollments(rec, []int32{id + 1, id + 2})
	ev := rec.wait(t)
	assert.Empty(t, ev.ids)
	assert.Equal(t, before, e.AuthenticatorID())
	assert.Equal(t, []int32{id}, e.Enrollments())

	// Removing from an already empty set never regenerates the id either.
	empty := newTestEngine(t)
	before = empty.AuthenticatorID()
	rec = newRecorder()
	empty.RemoveEnrollments(rec, []int32{1})
	rec.wait(t)
	assert.Equal(t, before, empty.AuthenticatorID())
}

func TestRemovePartialKeepsAuthenticatorID(t *testing.T) {
	e := newTestEngine(t)
	a := enroll(t, e)
	b := enroll(t, e)
	before := e.AuthenticatorID()

	rec := newRecorder()
	e.RemoveEnrollments(rec, []int32{a, a})
	ev := rec.wait(t)
	assert.Equal(t, []int32{a}, ev.ids)
	assert.Equal(t, []int32{b}, e.Enrollments())
	assert.Equal(t, before, e.AuthenticatorID())
}

func TestChallengeLifecycleIsReproducible(t *testing.T) {
	run := func() (int64, int64) {
		e := newTestEngine(t)
		rec := newRecorder()
		e.GenerateChallenge(rec)
		c1 := rec.wait(t).value

		active, ok := e.Challenge()
		require.True(t, ok)
		require.Equal(t, c1, active)

		e.RevokeChallenge(rec, c1)
		ev := rec.wait(t)
		require.Equal(t, KindChallengeRevoked, ev.kind)
		require.Equal(t, c1, ev.value)
		_, ok = e.Challenge()
		require.False(t, ok)

		e.GenerateChallenge(rec)
		c2 := rec.wait(t).value
		return c1, c2
	}

	a1, a2 := run()
	b1, b2 := run()
	assert.NotEqual(t, a1, a2)
	assert.Equal(t, a1, b1)
	assert.Equal(t, a2, b2)
}

func TestRevokeChallengeIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	rec := newRecorder()

	e.RevokeChallenge(rec, 5)
	e.RevokeChallenge(rec, 5)
	assert.Equal(t, 2, rec.count(KindChallengeRevoked))
	_, ok := e.Challenge()
	assert.False(t, ok)

	e.GenerateChallenge(rec)
	c := rec.wait(t).value
	e.RevokeChallenge(rec, c+1)
	_, ok = e.Challenge()
	assert.True(t, ok, "mismatched revoke must not clear the active challenge")
}

func TestAuthenticatorIDOperations(t *testing.T) {
	e := newTestEngine(t)
	rec := newRecorder()

	e.GetAuthenticatorID(rec)
	first := rec.wait(t)
	assert.Equal(t, KindAuthenticatorIDRetrieved, first.kind)
	assert.NotZero(t, first.value)

	e.InvalidateAuthenticatorID(rec)
	inv := rec.wait(t)
	assert.Equal(t, KindAuthenticatorIDInvalidated, inv.kind)
	assert.NotEqual(t, first.value, inv.value)

	e.GetAuthenticatorID(rec)
	assert.Equal(t, inv.value, rec.wait(t).value)
}

func TestEnrollmentIDsAreSeedDeterministic(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	assert.Equal(t, enroll(t, a), enroll(t, b))
	assert.Equal(t, a.AuthenticatorID(), b.AuthenticatorID())

	c := newTestEngine(t, WithSeed(7))
	assert.NotEqual(t, a.AuthenticatorID(), c.AuthenticatorID())
}

func TestEveryOperationDeliversOneTerminal(t *testing.T) {
	e := newTestEngine(t)
	ops := map[string]func(SessionCallback){
		"generate_challenge": e.GenerateChallenge,
		"revoke_challenge":   func(cb SessionCallback) { e.RevokeChallenge(cb, 1) },
		"enroll":             func(cb SessionCallback) { e.Enroll(cb, nil, NewCancellationSignal()) },
		"authenticate":       func(cb SessionCallback) { e.Authenticate(cb, 1, NewCancellationSignal()) },
		"detect":             func(cb SessionCallback) { e.DetectInteraction(cb, NewCancellationSignal()) },
		"enumerate":          e.EnumerateEnrollments,
		"remove":             func(cb SessionCallback) { e.RemoveEnrollments(cb, []int32{1}) },
		"get_id":             e.GetAuthenticatorID,
		"invalidate_id":      e.InvalidateAuthenticatorID,
		"reset_lockout":      func(cb SessionCallback) { e.ResetLockout(cb, nil) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			rec := newRecorder()
			op(rec)
			rec.wait(t)
			e.Wait()
			assert.Equal(t, 1, rec.terminals())
		})
	}
}
