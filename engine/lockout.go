package engine

import (
	"log/slog"
	"sync"
	"time"
)

// LockoutState is the sensor's authentication lockout status.
type LockoutState int

const (
	LockoutNone LockoutState = iota
	LockoutTimed
	LockoutPermanent
)

func (s LockoutState) String() string {
	switch s {
	case LockoutTimed:
		return "timed"
	case LockoutPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// lockoutTracker counts failed authentications and drives the lockout
// state. A timed lockout expires on its own through a timer; the timer only
// touches tracker state and never a session callback.
type lockoutTracker struct {
	cfg    LockoutConfig
	logger *slog.Logger

	mu          sync.Mutex
	state       LockoutState
	consecutive int
	total       int
	timer       *time.Timer
	expires     time.Time
}

func newLockoutTracker(cfg LockoutConfig, logger *slog.Logger) *lockoutTracker {
	return &lockoutTracker{cfg: cfg, logger: logger}
}

// status returns the current state and, for a timed lockout, the time left.
func (l *lockoutTracker) status() (LockoutState, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LockoutTimed {
		return l.state, 0
	}
	remaining := time.Until(l.expires)
	if remaining < 0 {
		remaining = 0
	}
	return l.state, remaining
}

func (l *lockoutTracker) recordFailure() LockoutState {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutive++
	l.total++

	switch {
	case l.cfg.PermanentThreshold > 0 && l.total >= l.cfg.PermanentThreshold:
		l.stopTimerLocked()
		l.state = LockoutPermanent
		l.logger.Warn("permanent lockout", "failures", l.total)
	case l.cfg.TimedThreshold > 0 && l.consecutive >= l.cfg.TimedThreshold && l.state == LockoutNone:
		l.state = LockoutTimed
		l.expires = time.Now().Add(l.cfg.Duration)
		l.timer = time.AfterFunc(l.cfg.Duration, l.expire)
		l.logger.Warn("timed lockout", "failures", l.consecutive, "duration", l.cfg.Duration)
	}
	return l.state
}

func (l *lockoutTracker) recordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutive = 0
	l.total = 0
}

func (l *lockoutTracker) expire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LockoutTimed {
		return
	}
	l.state = LockoutNone
	l.consecutive = 0
	l.timer = nil
	l.logger.Info("timed lockout expired")
}

// reset unlocks the sensor and cancels any pending lockout timer.
func (l *lockoutTracker) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimerLocked()
	l.state = LockoutNone
	l.consecutive = 0
	l.total = 0
}

func (l *lockoutTracker) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimerLocked()
}

func (l *lockoutTracker) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.expires = time.Time{}
}
