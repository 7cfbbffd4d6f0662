// Package memory provides a thread-safe in-memory journal.Store.
package memory

import (
	"slices"
	"sync"

	"github.com/jmcleod/fpsim/journal"
)

// Store is a thread-safe in-memory implementation of journal.Store.
// Suitable for testing and single-process use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]journal.Event
}

var _ journal.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string][]journal.Event)}
}

func (s *Store) Append(ev *journal.Event) error {
	if err := journal.Prepare(ev); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.data[ev.SessionID]
	ev.Seq = uint64(len(events)) + 1
	s.data[ev.SessionID] = append(events, journal.Clone(*ev))
	return nil
}

func (s *Store) List(sessionID string, afterSeq uint64) ([]journal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events, ok := s.data[sessionID]
	if !ok {
		return nil, journal.ErrNotFound
	}
	out := make([]journal.Event, 0, len(events))
	for _, ev := range events {
		if ev.Seq > afterSeq {
			out = append(out, journal.Clone(ev))
		}
	}
	return out, nil
}

func (s *Store) Sessions() ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) Close() error {
	return nil
}
