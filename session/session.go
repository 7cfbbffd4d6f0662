package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/hat"
	"github.com/jmcleod/fpsim/internal/uuid"
	"github.com/jmcleod/fpsim/journal"
)

const (
	// KindSessionOpened is journaled when a session is opened.
	KindSessionOpened engine.Kind = "session_opened"
	// KindSessionClosed is journaled when a session is closed.
	KindSessionClosed engine.Kind = "session_closed"
)

// Session is the single open session on a sensor. Each request gets its own
// Operation and callback; results are journaled and retrievable via Events.
type Session struct {
	ID       string
	SensorID int
	UserID   int64

	engine  *engine.Engine
	store   journal.Store
	signer  *hat.Signer
	logger  *slog.Logger
	onClose func()

	mu     sync.Mutex
	closed bool
	ops    map[string]*Operation
}

// GenerateChallenge asks the engine for a new challenge.
func (s *Session) GenerateChallenge() (*Operation, error) {
	op, cb, err := s.begin("generate_challenge", nil)
	if err != nil {
		return nil, err
	}
	s.engine.GenerateChallenge(cb)
	return op, nil
}

// RevokeChallenge revokes challenge.
func (s *Session) RevokeChallenge(challenge int64) (*Operation, error) {
	op, cb, err := s.begin("revoke_challenge", nil)
	if err != nil {
		return nil, err
	}
	s.engine.RevokeChallenge(cb, challenge)
	return op, nil
}

// Enroll starts an enrollment. The token must be bound to the active
// challenge when the session validates tokens.
func (s *Session) Enroll(token *hat.Token) (*Operation, error) {
	if err := s.checkToken(token); err != nil {
		return nil, err
	}
	signal := engine.NewCancellationSignal()
	op, cb, err := s.begin("enroll", signal)
	if err != nil {
		return nil, err
	}
	s.engine.Enroll(cb, token, signal)
	return op, nil
}

// Authenticate starts an authentication bound to operationID.
func (s *Session) Authenticate(operationID int64) (*Operation, error) {
	signal := engine.NewCancellationSignal()
	op, cb, err := s.begin("authenticate", signal)
	if err != nil {
		return nil, err
	}
	s.engine.Authenticate(cb, operationID, signal)
	return op, nil
}

// DetectInteraction starts presence detection.
func (s *Session) DetectInteraction() (*Operation, error) {
	signal := engine.NewCancellationSignal()
	op, cb, err := s.begin("detect_interaction", signal)
	if err != nil {
		return nil, err
	}
	s.engine.DetectInteraction(cb, signal)
	return op, nil
}

// EnumerateEnrollments reports the sensor's enrollments.
func (s *Session) EnumerateEnrollments() (*Operation, error) {
	op, cb, err := s.begin("enumerate_enrollments", nil)
	if err != nil {
		return nil, err
	}
	s.engine.EnumerateEnrollments(cb)
	return op, nil
}

// RemoveEnrollments removes the given enrollments.
func (s *Session) RemoveEnrollments(ids []int32) (*Operation, error) {
	op, cb, err := s.begin("remove_enrollments", nil)
	if err != nil {
		return nil, err
	}
	s.engine.RemoveEnrollments(cb, ids)
	return op, nil
}

// GetAuthenticatorID reports the authenticator id.
func (s *Session) GetAuthenticatorID() (*Operation, error) {
	op, cb, err := s.begin("get_authenticator_id", nil)
	if err != nil {
		return nil, err
	}
	s.engine.GetAuthenticatorID(cb)
	return op, nil
}

// InvalidateAuthenticatorID replaces the authenticator id.
func (s *Session) InvalidateAuthenticatorID() (*Operation, error) {
	op, cb, err := s.begin("invalidate_authenticator_id", nil)
	if err != nil {
		return nil, err
	}
	s.engine.InvalidateAuthenticatorID(cb)
	return op, nil
}

// ResetLockout clears any lockout. The token is validated like Enroll's.
func (s *Session) ResetLockout(token *hat.Token) (*Operation, error) {
	if err := s.checkToken(token); err != nil {
		return nil, err
	}
	op, cb, err := s.begin("reset_lockout", nil)
	if err != nil {
		return nil, err
	}
	s.engine.ResetLockout(cb, token)
	return op, nil
}

// Cancel sets the cancellation signal of an in-flight operation. The engine
// observes it at its next step boundary.
func (s *Session) Cancel(operationID string) error {
	s.mu.Lock()
	op, ok := s.ops[operationID]
	s.mu.Unlock()
	if !ok || !op.Cancellable() {
		return fmt.Errorf("%s: %w", operationID, ErrOperationNotFound)
	}
	s.logger.Info("cancel requested", "operation", op.Name, "operation_id", op.ID)
	op.signal.Cancel()
	return nil
}

// Events returns journaled events with a sequence number above after.
func (s *Session) Events(after uint64) ([]journal.Event, error) {
	return s.store.List(s.ID, after)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels in-flight operations, waits for their terminal callbacks,
// revokes the active challenge and journals the closure.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	for _, op := range s.ops {
		if op.Cancellable() {
			op.signal.Cancel()
		}
	}
	s.mu.Unlock()

	s.engine.Wait()

	if challenge, ok := s.engine.Challenge(); ok {
		op := newOperation(uuid.New(), "revoke_challenge", nil)
		s.track(op)
		s.engine.RevokeChallenge(&recorder{s: s, op: op}, challenge)
	}

	err := s.store.Append(&journal.Event{SessionID: s.ID, Kind: KindSessionClosed})
	if err != nil {
		err = fmt.Errorf("journaling session close: %w", err)
	}
	s.logger.Info("session closed")
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

func (s *Session) begin(name string, signal *engine.CancellationSignal) (*Operation, *recorder, error) {
	op := newOperation(uuid.New(), name, signal)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionClosed
	}
	s.ops[op.ID] = op
	return op, &recorder{s: s, op: op}, nil
}

func (s *Session) track(op *Operation) {
	s.mu.Lock()
	s.ops[op.ID] = op
	s.mu.Unlock()
}

func (s *Session) retire(op *Operation, terminal journal.Event) {
	s.mu.Lock()
	_, ok := s.ops[op.ID]
	delete(s.ops, op.ID)
	s.mu.Unlock()
	if !ok {
		s.logger.Error("terminal event for retired operation", "operation", op.Name, "operation_id", op.ID)
		return
	}
	op.complete(terminal)
}

// checkToken verifies the token MAC and that it is bound to the engine's
// active challenge. Without a signer tokens are passed through unchecked.
func (s *Session) checkToken(token *hat.Token) error {
	if s.signer == nil {
		return nil
	}
	if token == nil {
		return fmt.Errorf("%w: missing token", hat.ErrInvalidToken)
	}
	if err := s.signer.Verify(token); err != nil {
		return err
	}
	challenge, ok := s.engine.Challenge()
	if !ok || challenge != token.Challenge {
		return fmt.Errorf("%w: challenge mismatch", hat.ErrInvalidToken)
	}
	return nil
}
