package engine

import (
	"time"

	"github.com/jmcleod/fpsim/hat"
)

// SessionCallback receives the results of engine operations. Every
// operation delivers exactly one terminal event, optionally preceded by
// OnAcquired or OnEnrollmentProgress events. A callback passed to an
// operation is only used until that operation's terminal event.
type SessionCallback interface {
	OnChallengeGenerated(challenge int64)
	OnChallengeRevoked(challenge int64)
	OnAcquired(info AcquiredInfo)
	OnError(code Error)
	OnEnrollmentProgress(percent int)
	OnEnrolled(enrollmentID int32)
	OnAuthenticationSucceeded(enrollmentID int32, token *hat.Token)
	OnAuthenticationFailed()
	OnLockoutTimed(remaining time.Duration)
	OnLockoutPermanent()
	OnLockoutCleared()
	OnInteractionDetected()
	OnEnrollmentsEnumerated(enrollmentIDs []int32)
	OnEnrollmentsRemoved(enrollmentIDs []int32)
	OnAuthenticatorIDRetrieved(authenticatorID int64)
	OnAuthenticatorIDInvalidated(authenticatorID int64)
}

// Kind names a callback event.
type Kind string

const (
	KindChallengeGenerated         Kind = "challenge_generated"
	KindChallengeRevoked           Kind = "challenge_revoked"
	KindAcquired                   Kind = "acquired"
	KindError                      Kind = "error"
	KindEnrollmentProgress         Kind = "enrollment_progress"
	KindEnrolled                   Kind = "enrolled"
	KindAuthenticationSucceeded    Kind = "authentication_succeeded"
	KindAuthenticationFailed       Kind = "authentication_failed"
	KindLockoutTimed               Kind = "lockout_timed"
	KindLockoutPermanent           Kind = "lockout_permanent"
	KindLockoutCleared             Kind = "lockout_cleared"
	KindInteractionDetected        Kind = "interaction_detected"
	KindEnrollmentsEnumerated      Kind = "enrollments_enumerated"
	KindEnrollmentsRemoved         Kind = "enrollments_removed"
	KindAuthenticatorIDRetrieved   Kind = "authenticator_id_retrieved"
	KindAuthenticatorIDInvalidated Kind = "authenticator_id_invalidated"
)

// Terminal reports whether an event of this kind ends an operation.
func (k Kind) Terminal() bool {
	return k != KindAcquired && k != KindEnrollmentProgress
}

// AcquiredInfo describes the quality of a simulated capture step.
type AcquiredInfo int32

const (
	AcquiredUnknown AcquiredInfo = iota
	AcquiredGood
	AcquiredPartial
	AcquiredInsufficient
	AcquiredSensorDirty
	AcquiredTooSlow
	AcquiredTooFast
	AcquiredVendor
	AcquiredStart
)

func (a AcquiredInfo) String() string {
	switch a {
	case AcquiredGood:
		return "good"
	case AcquiredPartial:
		return "partial"
	case AcquiredInsufficient:
		return "insufficient"
	case AcquiredSensorDirty:
		return "sensor_dirty"
	case AcquiredTooSlow:
		return "too_slow"
	case AcquiredTooFast:
		return "too_fast"
	case AcquiredVendor:
		return "vendor"
	case AcquiredStart:
		return "start"
	default:
		return "unknown"
	}
}
