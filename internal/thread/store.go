// Package thread persists conversation checkpoints keyed by thread ID.
//
// A checkpoint is the complete message log of one thread, stored as a single
// JSONB document and replaced wholesale on every save. There is no partial
// update path: the turn engine always loads the full log, appends to it in
// memory, and saves it back.
package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable indicates the checkpoint backend could not be reached or
// failed to complete the operation. Callers check it with errors.Is().
var ErrUnavailable = errors.New("checkpoint storage unavailable")

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages thread checkpoints backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	q      querier
	logger *slog.Logger
}

// NewStore creates a checkpoint Store.
func NewStore(q querier, logger *slog.Logger) (*Store, error) {
	if q == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{q: q, logger: logger}, nil
}

// Load returns the full message log for a thread. A thread that has never
// been saved yields an empty log, not an error.
func (s *Store) Load(ctx context.Context, threadID string) ([]*ai.Message, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}

	var raw []byte
	err := s.q.QueryRow(ctx,
		`SELECT messages FROM threads WHERE thread_id = $1`,
		threadID,
	).Scan(&raw)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return []*ai.Message{}, nil
	case err != nil:
		return nil, fmt.Errorf("%w: loading thread %s: %v", ErrUnavailable, threadID, err)
	}

	var messages []*ai.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling thread %s: %w", threadID, err)
	}
	if messages == nil {
		messages = []*ai.Message{}
	}

	s.logger.Debug("loaded thread", "thread_id", threadID, "messages", len(messages))
	return messages, nil
}

// Save replaces the thread's message log with the given one, creating the
// thread row if it does not exist yet.
func (s *Store) Save(ctx context.Context, threadID string, messages []*ai.Message) error {
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}
	if messages == nil {
		messages = []*ai.Message{}
	}

	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling thread %s: %w", threadID, err)
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO threads (thread_id, messages, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (thread_id) DO UPDATE
		 SET messages = EXCLUDED.messages, updated_at = now()`,
		threadID, raw,
	)
	if err != nil {
		return fmt.Errorf("%w: saving thread %s: %v", ErrUnavailable, threadID, err)
	}

	s.logger.Debug("saved thread", "thread_id", threadID, "messages", len(messages))
	return nil
}

// Delete removes a thread's checkpoint. Deleting a thread that does not
// exist is not an error.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread ID is required")
	}

	_, err := s.q.Exec(ctx, `DELETE FROM threads WHERE thread_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("%w: deleting thread %s: %v", ErrUnavailable, threadID, err)
	}

	s.logger.Debug("deleted thread", "thread_id", threadID)
	return nil
}
