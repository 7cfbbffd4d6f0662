package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/hat"
	"github.com/jmcleod/fpsim/journal"
	"github.com/jmcleod/fpsim/journal/memory"
	"github.com/jmcleod/fpsim/session"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T, signer *hat.Signer, engineOpts ...engine.Option) *session.Manager {
	t.Helper()
	opts := append([]engine.Option{
		engine.WithStepDelay(time.Millisecond),
		engine.WithLogger(quietLogger()),
		engine.WithTokenSigner(signer),
	}, engineOpts...)
	m := session.NewManager(memory.NewStore(),
		session.WithLogger(quietLogger()),
		session.WithSigner(signer),
		session.WithSensor(engine.New(opts...)),
	)
	t.Cleanup(func() { m.Shutdown() })
	return m
}

func wait(t *testing.T, op *session.Operation) journal.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	ev, err := op.Wait(ctx)
	require.NoError(t, err)
	return ev
}

func enrollWithToken(t *testing.T, m *session.Manager, s *session.Session) int32 {
	t.Helper()
	op, err := s.GenerateChallenge()
	require.NoError(t, err)
	challenge := wait(t, op).Value

	tok, err := m.MintToken(challenge, s.UserID)
	require.NoError(t, err)

	op, err = s.Enroll(tok)
	require.NoError(t, err)
	ev := wait(t, op)
	require.Equal(t, engine.KindEnrolled, ev.Kind, "unexpected terminal %+v", ev)
	return ev.EnrollmentID
}

func TestOpenOneSessionPerSensor(t *testing.T) {
	m := newManager(t, nil)

	s, err := m.Open(0, 10)
	require.NoError(t, err)

	_, err = m.Open(0, 11)
	assert.True(t, errors.Is(err, session.ErrSensorBusy))

	_, err = m.Open(3, 10)
	assert.True(t, errors.Is(err, session.ErrSensorNotFound))

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.CloseSession(s.ID))
	_, err = m.Get(s.ID)
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))

	_, err = m.Open(0, 11)
	assert.NoError(t, err)
}

func TestEnrollJournalsProgressAndTerminal(t *testing.T) {
	signer := hat.NewRandomSigner()
	m := newManager(t, signer)
	s, err := m.Open(0, 1)
	require.NoError(t, err)

	id := enrollWithToken(t, m, s)

	events, err := s.Events(0)
	require.NoError(t, err)
	kinds := make([]engine.Kind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []engine.Kind{
		session.KindSessionOpened,
		engine.KindChallengeGenerated,
		engine.KindEnrollmentProgress,
		engine.KindEnrollmentProgress,
		engine.KindEnrollmentProgress,
		engine.KindEnrollmentProgress,
		engine.KindEnrollmentProgress,
		engine.KindEnrolled,
	}, kinds)
	assert.Equal(t, id, events[len(events)-1].EnrollmentID)
	assert.Equal(t, events[2].OperationID, events[len(events)-1].OperationID)

	op, err := s.EnumerateEnrollments()
	require.NoError(t, err)
	assert.Equal(t, []int32{id}, wait(t, op).EnrollmentIDs)
}

func TestEnrollRejectsBadTokens(t *testing.T) {
	signer := hat.NewRandomSigner()
	m := newManager(t, signer)
	s, err := m.Open(0, 1)
	require.NoError(t, err)

	_, err = s.Enroll(nil)
	assert.True(t, errors.Is(err, hat.ErrInvalidToken))

	op, err := s.GenerateChallenge()
	require.NoError(t, err)
	challenge := wait(t, op).Value

	stale, err := m.MintToken(challenge+1, 1)
	require.NoError(t, err)
	_, err = s.Enroll(stale)
	assert.True(t, errors.Is(err, hat.ErrInvalidToken))

	forged := hat.NewRandomSigner()
	bad, err := forged.Mint(challenge, 1, hat.AuthenticatorPassword)
	require.NoError(t, err)
	_, err = s.Enroll(bad)
	assert.True(t, errors.Is(err, hat.ErrInvalidToken))
}

func TestCancelEnroll(t *testing.T) {
	m := newManager(t, nil, engine.WithStepDelay(20*time.Millisecond))
	s, err := m.Open(0, 1)
	require.NoError(t, err)

	op, err := s.Enroll(nil)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(op.ID))

	ev := wait(t, op)
	assert.Equal(t, engine.KindError, ev.Kind)
	assert.Equal(t, engine.ErrorCanceled.String(), ev.Code)

	err = s.Cancel(op.ID)
	assert.True(t, errors.Is(err, session.ErrOperationNotFound))
}

func TestAuthenticateReturnsSignedToken(t *testing.T) {
	signer := hat.NewRandomSigner()
	m := newManager(t, signer, engine.WithMatchRate(1))
	s, err := m.Open(0, 1)
	require.NoError(t, err)
	id := enrollWithToken(t, m, s)

	op, err := s.Authenticate(4242)
	require.NoError(t, err)
	ev := wait(t, op)
	require.Equal(t, engine.KindAuthenticationSucceeded, ev.Kind)
	assert.Equal(t, id, ev.EnrollmentID)

	tok, err := hat.Parse(ev.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(4242), tok.Challenge)
	assert.NoError(t, signer.Verify(tok))
}

func TestRemoveEnrollmentsChangesAuthenticatorID(t *testing.T) {
	m := newManager(t, nil)
	s, err := m.Open(0, 1)
	require.NoError(t, err)

	op, err := s.Enroll(nil)
	require.NoError(t, err)
	id := wait(t, op).EnrollmentID

	op, err = s.GetAuthenticatorID()
	require.NoError(t, err)
	before := wait(t, op).Value

	op, err = s.RemoveEnrollments([]int32{id})
	require.NoError(t, err)
	assert.Equal(t, []int32{id}, wait(t, op).EnrollmentIDs)

	op, err = s.GetAuthenticatorID()
	require.NoError(t, err)
	assert.NotEqual(t, before, wait(t, op).Value)
}

func TestCloseCancelsAndRevokes(t *testing.T) {
	m := newManager(t, nil, engine.WithStepDelay(20*time.Millisecond))
	s, err := m.Open(0, 1)
	require.NoError(t, err)

	op, err := s.GenerateChallenge()
	require.NoError(t, err)
	challenge := wait(t, op).Value

	enrollOp, err := s.Enroll(nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, s.Closed())

	ev := wait(t, enrollOp)
	assert.Equal(t, engine.ErrorCanceled.String(), ev.Code)

	_, err = s.DetectInteraction()
	assert.True(t, errors.Is(err, session.ErrSessionClosed))
	assert.True(t, errors.Is(s.Close(), session.ErrSessionClosed))

	events, err := m.Events(s.ID, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 3)
	revoked := events[len(events)-2]
	assert.Equal(t, engine.KindChallengeRevoked, revoked.Kind)
	assert.Equal(t, challenge, revoked.Value)
	assert.Equal(t, session.KindSessionClosed, events[len(events)-1].Kind)

	info := m.Sensors()
	require.Len(t, info, 1)
	assert.Empty(t, info[0].SessionID)
	assert.Equal(t, 0, info[0].Enrollments)
}

func TestResetLockoutRequiresToken(t *testing.T) {
	signer := hat.NewRandomSigner()
	m := newManager(t, signer)
	s, err := m.Open(0, 1)
	require.NoError(t, err)

	_, err = s.ResetLockout(nil)
	assert.True(t, errors.Is(err, hat.ErrInvalidToken))

	op, err := s.GenerateChallenge()
	require.NoError(t, err)
	tok, err := m.MintToken(wait(t, op).Value, 1)
	require.NoError(t, err)

	op, err = s.ResetLockout(tok)
	require.NoError(t, err)
	assert.Equal(t, engine.KindLockoutCleared, wait(t, op).Kind)
}

func TestMintTokenWithoutSigner(t *testing.T) {
	m := newManager(t, nil)
	_, err := m.MintToken(1, 1)
	assert.True(t, errors.Is(err, session.ErrNoSigner))
}

func TestBusySensorRejectsSecondOperation(t *testing.T) {
	m := newManager(t, nil, engine.WithStepDelay(20*time.Millisecond))
	s, err := m.Open(0, 1)
	require.NoError(t, err)

	first, err := s.Enroll(nil)
	require.NoError(t, err)
	second, err := s.DetectInteraction()
	require.NoError(t, err)

	ev := wait(t, second)
	assert.Equal(t, engine.ErrorUnableToProcess.String(), ev.Code)
	assert.Equal(t, engine.KindEnrolled, wait(t, first).Kind)
}
