// Package session layers the biometric session protocol over simulated
// sensors: one open session per sensor, per-operation callback routing into
// a journal, cancellation handles and auth token validation.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/hat"
	"github.com/jmcleod/fpsim/internal/uuid"
	"github.com/jmcleod/fpsim/journal"
)

// Manager owns the simulated sensors and the sessions opened on them.
type Manager struct {
	store  journal.Store
	signer *hat.Signer
	logger *slog.Logger

	mu       sync.RWMutex
	sensors  []*sensor
	sessions map[string]*Session
}

type sensor struct {
	id      int
	engine  *engine.Engine
	session *Session
}

// SensorInfo summarises a sensor's state.
type SensorInfo struct {
	ID              int    `json:"id"`
	Enrollments     int    `json:"enrollments"`
	Lockout         string `json:"lockout"`
	Busy            bool   `json:"busy"`
	SessionID       string `json:"session_id,omitempty"`
	AuthenticatorID int64  `json:"authenticator_id"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSigner enables token minting and validation.
func WithSigner(s *hat.Signer) Option {
	return func(m *Manager) {
		m.signer = s
	}
}

// WithSensor adds a sensor backed by e. Sensor ids follow the order in which
// they are added, starting at zero.
func WithSensor(e *engine.Engine) Option {
	return func(m *Manager) {
		m.sensors = append(m.sensors, &sensor{id: len(m.sensors), engine: e})
	}
}

// NewManager creates a Manager journaling into store. Without WithSensor a
// single default sensor is created.
func NewManager(store journal.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	m.logger = m.logger.With("component", "session")
	if len(m.sensors) == 0 {
		e := engine.New(engine.WithTokenSigner(m.signer), engine.WithLogger(m.logger))
		m.sensors = append(m.sensors, &sensor{id: 0, engine: e})
	}
	return m
}

// Open opens a session on sensorID for userID.
func (m *Manager) Open(sensorID int, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sensorID < 0 || sensorID >= len(m.sensors) {
		return nil, fmt.Errorf("%d: %w", sensorID, ErrSensorNotFound)
	}
	sn := m.sensors[sensorID]
	if sn.session != nil {
		return nil, fmt.Errorf("sensor %d: %w", sensorID, ErrSensorBusy)
	}

	id := uuid.New()
	s := &Session{
		ID:       id,
		SensorID: sensorID,
		UserID:   userID,
		engine:   sn.engine,
		store:    m.store,
		signer:   m.signer,
		logger:   m.logger.With("session_id", id, "sensor_id", sensorID),
		ops:      make(map[string]*Operation),
	}
	s.onClose = func() { m.release(s) }

	if err := m.store.Append(&journal.Event{SessionID: id, Kind: KindSessionOpened, Value: userID}); err != nil {
		return nil, fmt.Errorf("journaling session open: %w", err)
	}

	sn.session = s
	m.sessions[id] = s
	s.logger.Info("session opened", "user_id", userID)
	return s, nil
}

// Get returns the open session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// CloseSession closes the open session with the given id.
func (m *Manager) CloseSession(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Close()
}

// Events returns journaled events for a session, open or closed.
func (m *Manager) Events(sessionID string, after uint64) ([]journal.Event, error) {
	return m.store.List(sessionID, after)
}

// Sensors summarises every sensor.
func (m *Manager) Sensors() []SensorInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SensorInfo, 0, len(m.sensors))
	for _, sn := range m.sensors {
		info := SensorInfo{
			ID:              sn.id,
			Enrollments:     len(sn.engine.Enrollments()),
			Lockout:         sn.engine.Lockout().String(),
			Busy:            sn.engine.Busy(),
			AuthenticatorID: sn.engine.AuthenticatorID(),
		}
		if sn.session != nil {
			info.SessionID = sn.session.ID
		}
		out = append(out, info)
	}
	return out
}

// MintToken plays the role of the credential verifier: it signs a token
// bound to challenge that Enroll and ResetLockout will accept.
func (m *Manager) MintToken(challenge, userID int64) (*hat.Token, error) {
	if m.signer == nil {
		return nil, ErrNoSigner
	}
	return m.signer.Mint(challenge, userID, hat.AuthenticatorPassword)
}

// Shutdown closes every open session and stops the sensors.
func (m *Manager) Shutdown() error {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil && !errors.Is(err, ErrSessionClosed) {
			errs = append(errs, err)
		}
	}
	for _, sn := range m.sensors {
		sn.engine.Close()
	}
	return errors.Join(errs...)
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.ID)
	if s.SensorID < len(m.sensors) && m.sensors[s.SensorID].session == s {
		m.sensors[s.SensorID].session = nil
	}
}
