// Package engine implements a simulated fingerprint sensor. It fabricates
// plausible responses to the biometric session protocol so that the layers
// above it can be exercised without hardware.
//
// Every operation reports its outcome through a SessionCallback rather than
// a return value. Enroll, Authenticate and DetectInteraction run on a
// background goroutine and observe their CancellationSignal between
// simulated capture steps; the remaining operations report synchronously.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/jmcleod/fpsim/hat"
)

// pcgStream is the second PCG seed word; only Config.Seed is configurable.
const pcgStream = 0x853c49e6748fea9b

// Engine is a simulated fingerprint sensor. All of its state is owned by the
// engine and guarded by a single mutex. At most one cancellable operation
// runs at a time; starting another while one is running is rejected with
// ErrorUnableToProcess.
type Engine struct {
	cfg    Config
	signer *hat.Signer
	userID int64
	logger *slog.Logger
	start  time.Time

	mu              sync.Mutex
	rng             *rand.Rand
	enrollments     map[int32]uint64
	enrollSeq       uint64
	authenticatorID int64
	challenge       int64
	hasChallenge    bool
	current         *operation
	lockout         *lockoutTracker

	wg sync.WaitGroup
}

// New creates an engine with an empty enrollment set.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:         DefaultConfig(),
		enrollments: make(map[int32]uint64),
		start:       time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	e.rng = rand.New(rand.NewPCG(e.cfg.Seed, pcgStream))
	e.lockout = newLockoutTracker(e.cfg.Lockout, e.logger)
	e.authenticatorID = e.newAuthenticatorIDLocked(0)
	return e
}

// GenerateChallenge draws a new challenge, stores it as the active one and
// reports it.
func (e *Engine) GenerateChallenge(cb SessionCallback) {
	e.mu.Lock()
	prev := e.challenge
	var c int64
	for c == 0 || c == prev {
		c = e.rng.Int64()
	}
	e.challenge = c
	e.hasChallenge = true
	e.mu.Unlock()

	e.logger.Debug("challenge generated")
	cb.OnChallengeGenerated(c)
}

// RevokeChallenge clears the active challenge if it equals challenge and
// reports the revocation. Revoking an absent or already revoked challenge is
// not an error.
func (e *Engine) RevokeChallenge(cb SessionCallback, challenge int64) {
	e.mu.Lock()
	if e.hasChallenge && e.challenge == challenge {
		e.hasChallenge = false
	}
	e.mu.Unlock()

	e.logger.Debug("challenge revoked")
	cb.OnChallengeRevoked(challenge)
}

// Enroll simulates a multi-step capture and adds a new enrollment. The token
// is opaque to the engine; it is validated by the caller.
func (e *Engine) Enroll(cb SessionCallback, token *hat.Token, cancel *CancellationSignal) {
	e.logger.Info("enroll requested", "has_token", token != nil)
	e.launch("enroll", cb, cancel, func(op *operation) {
		e.mu.Lock()
		full := e.cfg.MaxEnrollments > 0 && len(e.enrollments) >= e.cfg.MaxEnrollments
		e.mu.Unlock()
		if full {
			e.finish(op, StateErrored, func() { cb.OnError(ErrorNoSpace) })
			return
		}

		steps := max(e.cfg.EnrollSteps, 1)
		for i := range steps {
			if op.cancel.Canceled() {
				e.finish(op, StateCanceled, func() { cb.OnError(ErrorCanceled) })
				return
			}
			e.sleepStep()
			cb.OnEnrollmentProgress((i + 1) * 100 / steps)
		}

		e.mu.Lock()
		if e.cfg.MaxEnrollments > 0 && len(e.enrollments) >= e.cfg.MaxEnrollments {
			e.mu.Unlock()
			e.finish(op, StateErrored, func() { cb.OnError(ErrorNoSpace) })
			return
		}
		id := e.newEnrollmentIDLocked()
		e.enrollSeq++
		e.enrollments[id] = e.enrollSeq
		e.mu.Unlock()

		e.logger.Info("enrollment added", "enrollment_id", id)
		e.finish(op, StateCompleted, func() { cb.OnEnrolled(id) })
	})
}

// Authenticate simulates matching a finger against the enrollment set. The
// operationID is bound into the token reported on success.
func (e *Engine) Authenticate(cb SessionCallback, operationID int64, cancel *CancellationSignal) {
	e.logger.Info("authenticate requested")
	e.launch("authenticate", cb, cancel, func(op *operation) {
		e.mu.Lock()
		empty := len(e.enrollments) == 0
		e.mu.Unlock()
		if empty {
			e.finish(op, StateErrored, func() { cb.OnError(ErrorNoEnrollments) })
			return
		}

		switch state, remaining := e.lockout.status(); state {
		case LockoutPermanent:
			e.finish(op, StateErrored, cb.OnLockoutPermanent)
			return
		case LockoutTimed:
			e.finish(op, StateErrored, func() { cb.OnLockoutTimed(remaining) })
			return
		}

		for range max(e.cfg.AuthSteps, 1) {
			if op.cancel.Canceled() {
				e.finish(op, StateCanceled, func() { cb.OnError(ErrorCanceled) })
				return
			}
			e.sleepStep()
			cb.OnAcquired(AcquiredGood)
		}

		e.mu.Lock()
		matched := e.rng.Float64() < e.cfg.MatchRate
		id, ok := e.latestEnrollmentLocked()
		authenticatorID := e.authenticatorID
		e.mu.Unlock()

		if !ok {
			e.finish(op, StateErrored, func() { cb.OnError(ErrorNoEnrollments) })
			return
		}
		if !matched {
			state := e.lockout.recordFailure()
			e.logger.Info("authentication failed", "lockout", state.String())
			e.finish(op, StateCompleted, cb.OnAuthenticationFailed)
			return
		}

		e.lockout.recordSuccess()
		token := &hat.Token{
			Challenge:         operationID,
			UserID:            e.userID,
			AuthenticatorID:   authenticatorID,
			AuthenticatorType: hat.AuthenticatorFingerprint,
			Timestamp:         time.Since(e.start),
		}
		if e.signer != nil {
			if err := e.signer.Sign(token); err != nil {
				e.logger.Error("signing auth token", "error", err)
				e.finish(op, StateErrored, func() { cb.OnError(ErrorVendor) })
				return
			}
		}
		e.logger.Info("authentication succeeded", "enrollment_id", id)
		e.finish(op, StateCompleted, func() { cb.OnAuthenticationSucceeded(id, token) })
	})
}

// DetectInteraction simulates presence detection. Absent cancellation it
// always reports an interaction.
func (e *Engine) DetectInteraction(cb SessionCallback, cancel *CancellationSignal) {
	e.logger.Info("detect interaction requested")
	e.launch("detect_interaction", cb, cancel, func(op *operation) {
		for range max(e.cfg.DetectSteps, 1) {
			if op.cancel.Canceled() {
				e.finish(op, StateCanceled, func() { cb.OnError(ErrorCanceled) })
				return
			}
			e.sleepStep()
			cb.OnAcquired(AcquiredGood)
		}
		e.finish(op, StateCompleted, cb.OnInteractionDetected)
	})
}

// EnumerateEnrollments reports the enrollment set in ascending id order.
func (e *Engine) EnumerateEnrollments(cb SessionCallback) {
	cb.OnEnrollmentsEnumerated(e.Enrollments())
}

// RemoveEnrollments removes the given ids that are present and reports the
// ones actually removed. Emptying the set regenerates the authenticator id.
func (e *Engine) RemoveEnrollments(cb SessionCallback, enrollmentIDs []int32) {
	e.mu.Lock()
	removed := make([]int32, 0, len(enrollmentIDs))
	for _, id := range enrollmentIDs {
		if _, ok := e.enrollments[id]; ok {
			delete(e.enrollments, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 && len(e.enrollments) == 0 {
		e.authenticatorID = e.newAuthenticatorIDLocked(e.authenticatorID)
		e.logger.Info("enrollment set emptied, authenticator id regenerated")
	}
	e.mu.Unlock()

	slices.Sort(removed)
	e.logger.Info("enrollments removed", "requested", len(enrollmentIDs), "removed", len(removed))
	cb.OnEnrollmentsRemoved(removed)
}

// GetAuthenticatorID reports the current authenticator id.
func (e *Engine) GetAuthenticatorID(cb SessionCallback) {
	cb.OnAuthenticatorIDRetrieved(e.AuthenticatorID())
}

// InvalidateAuthenticatorID replaces the authenticator id and reports the
// new value.
func (e *Engine) InvalidateAuthenticatorID(cb SessionCallback) {
	e.mu.Lock()
	e.authenticatorID = e.newAuthenticatorIDLocked(e.authenticatorID)
	id := e.authenticatorID
	e.mu.Unlock()

	e.logger.Info("authenticator id invalidated")
	cb.OnAuthenticatorIDInvalidated(id)
}

// ResetLockout unlocks the sensor and stops any pending lockout timer. The
// token is opaque to the engine.
func (e *Engine) ResetLockout(cb SessionCallback, token *hat.Token) {
	e.lockout.reset()
	e.logger.Info("lockout reset", "has_token", token != nil)
	cb.OnLockoutCleared()
}

// Challenge returns the active challenge, if any.
func (e *Engine) Challenge() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.challenge, e.hasChallenge
}

// Enrollments returns the enrolled ids in ascending order.
func (e *Engine) Enrollments() []int32 {
	e.mu.Lock()
	ids := make([]int32, 0, len(e.enrollments))
	for id := range e.enrollments {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// AuthenticatorID returns the current authenticator id.
func (e *Engine) AuthenticatorID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authenticatorID
}

// Lockout returns the current lockout state.
func (e *Engine) Lockout() LockoutState {
	state, _ := e.lockout.status()
	return state
}

// Busy reports whether a cancellable operation is running.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Wait blocks until every started background operation has delivered its
// terminal callback.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close waits for background operations and stops the lockout timer.
func (e *Engine) Close() {
	e.wg.Wait()
	e.lockout.close()
}

// launch runs fn on a background goroutine as the engine's single in-flight
// operation.
func (e *Engine) launch(name string, cb SessionCallback, cancel *CancellationSignal, fn func(*operation)) {
	op := newOperation(name, cancel)

	e.mu.Lock()
	if e.current != nil {
		running := e.current.name
		e.mu.Unlock()
		e.logger.Warn("operation rejected, sensor busy", "operation", name, "running", running)
		cb.OnError(ErrorUnableToProcess)
		return
	}
	op.begin()
	e.current = op
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("operation panicked", "operation", name, "panic", fmt.Sprint(r))
				e.finish(op, StateErrored, func() { cb.OnError(ErrorVendor) })
			}
		}()
		fn(op)
	}()
}

// finish records op's terminal state, frees the engine for the next
// operation and delivers the terminal callback.
func (e *Engine) finish(op *operation, state OperationState, report func()) {
	if !op.finish(state) {
		e.logger.Error("duplicate terminal outcome suppressed", "operation", op.name, "state", state.String())
		return
	}
	e.mu.Lock()
	if e.current == op {
		e.current = nil
	}
	e.mu.Unlock()

	e.logger.Debug("operation finished", "operation", op.name, "state", state.String())
	report()
}

func (e *Engine) sleepStep() {
	if e.cfg.StepDelay > 0 {
		time.Sleep(e.cfg.StepDelay)
	}
}

func (e *Engine) newEnrollmentIDLocked() int32 {
	for {
		id := e.rng.Int32()
		if _, taken := e.enrollments[id]; id != 0 && !taken {
			return id
		}
	}
}

func (e *Engine) newAuthenticatorIDLocked(prev int64) int64 {
	for {
		id := e.rng.Int64()
		if id != 0 && id != prev {
			return id
		}
	}
}

// latestEnrollmentLocked returns the most recently enrolled id.
func (e *Engine) latestEnrollmentLocked() (int32, bool) {
	var (
		latest int32
		seq    uint64
		found  bool
	)
	for id, s := range e.enrollments {
		if !found || s > seq {
			latest, seq, found = id, s, true
		}
	}
	return latest, found
}
