package thread

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row with a canned Scan result.
type fakeRow struct {
	data []byte
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return errors.New("fakeRow: expected one destination")
	}
	p, ok := dest[0].(*[]byte)
	if !ok {
		return errors.New("fakeRow: expected *[]byte destination")
	}
	*p = r.data
	return nil
}

// fakeQuerier records calls and returns canned results.
type fakeQuerier struct {
	row     *fakeRow
	execErr error

	execSQL  string
	execArgs []any
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execSQL = sql
	q.execArgs = args
	return pgconn.CommandTag{}, q.execErr
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return q.row
}

func newTestStore(t *testing.T, q querier) *Store {
	t.Helper()
	s, err := NewStore(q, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestLoad_MissingThreadReturnsEmptyLog(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{row: &fakeRow{err: pgx.ErrNoRows}})

	messages, err := s.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if messages == nil || len(messages) != 0 {
		t.Errorf("expected empty non-nil log, got %v", messages)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	stored := []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("hello")),
		ai.NewModelMessage(ai.NewTextPart("hi there")),
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		t.Fatal(err)
	}

	s := newTestStore(t, &fakeQuerier{row: &fakeRow{data: raw}})

	messages, err := s.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != ai.RoleUser || messages[0].Content[0].Text != "hello" {
		t.Errorf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != ai.RoleModel || messages[1].Content[0].Text != "hi there" {
		t.Errorf("unexpected second message: %+v", messages[1])
	}
}

func TestLoad_BackendErrorIsUnavailable(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{row: &fakeRow{err: errors.New("connection refused")}})

	_, err := s.Load(context.Background(), "t1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSave_UpsertsFullLog(t *testing.T) {
	q := &fakeQuerier{}
	s := newTestStore(t, q)

	messages := []*ai.Message{ai.NewUserMessage(ai.NewTextPart("hello"))}
	if err := s.Save(context.Background(), "t1", messages); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !strings.Contains(q.execSQL, "ON CONFLICT (thread_id) DO UPDATE") {
		t.Errorf("expected upsert, got SQL: %s", q.execSQL)
	}
	if len(q.execArgs) != 2 || q.execArgs[0] != "t1" {
		t.Fatalf("unexpected args: %v", q.execArgs)
	}

	var saved []*ai.Message
	if err := json.Unmarshal(q.execArgs[1].([]byte), &saved); err != nil {
		t.Fatalf("unmarshaling saved payload: %v", err)
	}
	if len(saved) != 1 || saved[0].Content[0].Text != "hello" {
		t.Errorf("unexpected saved payload: %+v", saved)
	}
}

func TestSave_BackendErrorIsUnavailable(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{execErr: errors.New("connection refused")})

	err := s.Save(context.Background(), "t1", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDelete_MissingThreadIsNotAnError(t *testing.T) {
	q := &fakeQuerier{}
	s := newTestStore(t, q)

	if err := s.Delete(context.Background(), "never-saved"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !strings.Contains(q.execSQL, "DELETE FROM threads") {
		t.Errorf("unexpected SQL: %s", q.execSQL)
	}
}

func TestStore_EmptyThreadIDRejected(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{})
	ctx := context.Background()

	if _, err := s.Load(ctx, ""); err == nil {
		t.Error("Load accepted empty thread ID")
	}
	if err := s.Save(ctx, "", nil); err == nil {
		t.Error("Save accepted empty thread ID")
	}
	if err := s.Delete(ctx, ""); err == nil {
		t.Error("Delete accepted empty thread ID")
	}
}
