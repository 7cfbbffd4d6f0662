package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/journal"
)

func TestAppendAssignsSequence(t *testing.T) {
	s := NewStore()

	for range 3 {
		require.NoError(t, s.Append(&journal.Event{SessionID: "s1", Kind: engine.KindAcquired}))
	}
	require.NoError(t, s.Append(&journal.Event{SessionID: "s2", Kind: engine.KindEnrolled, EnrollmentID: 4}))

	events, err := s.List("s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
		assert.False(t, ev.Terminal)
	}

	events, err = s.List("s2", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.True(t, events[0].Terminal)
}

func TestListAfter(t *testing.T) {
	s := NewStore()
	for range 5 {
		require.NoError(t, s.Append(&journal.Event{SessionID: "s", Kind: engine.KindEnrollmentProgress}))
	}
	events, err := s.List("s", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(4), events[0].Seq)

	events, err = s.List("s", 5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListUnknownSession(t *testing.T) {
	s := NewStore()
	_, err := s.List("missing", 0)
	assert.True(t, errors.Is(err, journal.ErrNotFound))
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.Append(&journal.Event{Kind: engine.KindEnrolled}), journal.ErrInvalidEvent)
	assert.ErrorIs(t, s.Append(&journal.Event{SessionID: "s"}), journal.ErrInvalidEvent)
}

func TestStoredEventsAreIsolated(t *testing.T) {
	s := NewStore()
	ev := &journal.Event{SessionID: "s", Kind: engine.KindEnrollmentsRemoved, EnrollmentIDs: []int32{1, 2}}
	require.NoError(t, s.Append(ev))
	ev.EnrollmentIDs[0] = 99

	events, err := s.List("s", 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, events[0].EnrollmentIDs)

	events[0].EnrollmentIDs[1] = 77
	again, err := s.List("s", 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, again[0].EnrollmentIDs)
}

func TestSessions(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(&journal.Event{SessionID: "b", Kind: engine.KindLockoutCleared}))
	require.NoError(t, s.Append(&journal.Event{SessionID: "a", Kind: engine.KindLockoutCleared}))
	ids, err := s.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
