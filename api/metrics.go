package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertTokenRejectionSpike AlertType = "token_rejection_spike"
	AlertLockoutResetSpike   AlertType = "lockout_reset_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// slidingWindow counts events inside a trailing time window.
type slidingWindow struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the count if the threshold was
// reached, resetting the window so one spike raises one alert.
func (s *slidingWindow) add(now time.Time) (int, bool) {
	s.times = append(s.times, now)
	s.times = trimWindow(s.times, now, s.window)
	if len(s.times) < s.threshold {
		return 0, false
	}
	n := len(s.times)
	s.times = s.times[:0]
	return n, true
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	tokenRejections slidingWindow
	lockoutResets   slidingWindow

	alertFn AlertFunc
}

const (
	defaultTokenRejectionWindow    = 1 * time.Minute
	defaultTokenRejectionThreshold = 20
	defaultLockoutResetWindow      = 5 * time.Minute
	defaultLockoutResetThreshold   = 10
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		tokenRejections: slidingWindow{window: defaultTokenRejectionWindow, threshold: defaultTokenRejectionThreshold},
		lockoutResets:   slidingWindow{window: defaultLockoutResetWindow, threshold: defaultLockoutResetThreshold},
		alertFn:         alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditTokenRejected:
		m.record(&m.tokenRejections, AlertTokenRejectionSpike, "token rejection rate exceeds threshold")
	case AuditLockoutReset:
		m.record(&m.lockoutResets, AlertLockoutResetSpike, "lockout reset rate exceeds threshold")
	}
}

func (m *metricsCollector) record(w *slidingWindow, typ AlertType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if n, hit := w.add(now); hit {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     n,
			Threshold: w.threshold,
			Timestamp: now,
		})
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
