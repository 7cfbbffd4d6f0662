// Package postgres implements journal.Store backed by PostgreSQL.
//
// Sequence numbers are allocated per session from the journal_sessions
// counter row inside the same transaction that inserts the event, so
// concurrent appends to one session never share a number.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/journal"
)

// Store implements journal.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures the
// schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Append(ev *journal.Event) error {
	if err := journal.Prepare(ev); err != nil {
		return err
	}
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var seq int64
	err = tx.QueryRow(ctx,
		`INSERT INTO journal_sessions (session_id, last_seq) VALUES ($1, 1)
		 ON CONFLICT (session_id) DO UPDATE SET last_seq = journal_sessions.last_seq + 1
		 RETURNING last_seq`,
		ev.SessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("allocating sequence: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO journal_events (session_id, seq, id, operation_id, kind, terminal, code,
		     percent, enrollment_id, enrollment_ids, value, remaining_ms, token, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ev.SessionID, seq, ev.ID, ev.OperationID, string(ev.Kind), ev.Terminal, ev.Code,
		int32(ev.Percent), ev.EnrollmentID, ev.EnrollmentIDs, ev.Value, ev.RemainingMillis,
		ev.Token, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	ev.Seq = uint64(seq)
	return nil
}

func (s *Store) List(sessionID string, afterSeq uint64) ([]journal.Event, error) {
	ctx := context.Background()
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM journal_sessions WHERE session_id = $1)`,
		sessionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", sessionID, journal.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, operation_id, kind, terminal, code, percent, enrollment_id,
		     enrollment_ids, value, remaining_ms, token, created_at
		 FROM journal_events WHERE session_id = $1 AND seq > $2 ORDER BY seq`,
		sessionID, int64(afterSeq))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []journal.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		ev.SessionID = sessionID
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (journal.Event, error) {
	var (
		ev        journal.Event
		seq       int64
		kind      string
		percent   int32
		createdAt time.Time
	)
	err := row.Scan(&seq, &ev.ID, &ev.OperationID, &kind, &ev.Terminal, &ev.Code, &percent,
		&ev.EnrollmentID, &ev.EnrollmentIDs, &ev.Value, &ev.RemainingMillis, &ev.Token, &createdAt)
	if err != nil {
		return journal.Event{}, fmt.Errorf("scanning event: %w", err)
	}
	ev.Seq = uint64(seq)
	ev.Kind = engine.Kind(kind)
	ev.Percent = int(percent)
	ev.CreatedAt = createdAt.UTC()
	return ev, nil
}

func (s *Store) Sessions() ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT session_id FROM journal_sessions ORDER BY session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
