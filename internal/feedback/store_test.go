package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{
		"memory": NewMemoryStore(100, 0),
	}

	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	stores["sqlite"] = sq

	if dsn := os.Getenv("FEEDBACK_TEST_DATABASE_URL"); dsn != "" {
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			t.Fatalf("connect postgres: %v", err)
		}
		t.Cleanup(pool.Close)
		if _, err := pool.Exec(context.Background(), `TRUNCATE classification_feedback`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		stores["postgres"] = NewPostgresStore(pool, nil, time.Minute)
	}
	return stores
}

func TestStore_SaveGet(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := New("req-1", false, "safety_compliance", "should have escalated")
			if err := s.Save(ctx, f); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := s.Get(ctx, "req-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ID != f.ID || got.Correct || got.ExpectedCategory != "safety_compliance" || got.Comment != "should have escalated" {
				t.Errorf("unexpected feedback: %+v", got)
			}
			if d := got.CreatedAt.Sub(f.CreatedAt); d > time.Millisecond || d < -time.Millisecond {
				t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, f.CreatedAt)
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Save(ctx, New("req-2", false, "informational", ""))
			second := New("req-2", true, "", "")
			if err := s.Save(ctx, second); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := s.Get(ctx, "req-2")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ID != second.ID || !got.Correct || got.ExpectedCategory != "" {
				t.Errorf("expected second save to win, got %+v", got)
			}
		})
	}
}

func TestStore_Purge(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			old := New("old", true, "", "")
			old.CreatedAt = now.Add(-48 * time.Hour)
			fresh := New("fresh", true, "", "")
			fresh.CreatedAt = now
			s.Save(ctx, old)
			s.Save(ctx, fresh)

			n, err := s.Purge(ctx, now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("purge: %v", err)
			}
			if n != 1 {
				t.Errorf("expected 1 purged, got %d", n)
			}
			if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected old entry purged, got %v", err)
			}
			if _, err := s.Get(ctx, "fresh"); err != nil {
				t.Errorf("expected fresh entry kept, got %v", err)
			}
		})
	}
}

func TestMemoryStore_Bounded(t *testing.T) {
	s := NewMemoryStore(2, 0)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		s.Save(ctx, New(id, true, "", ""))
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s.Len())
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected oldest entry evicted, got %v", err)
	}
}

func TestPing(t *testing.T) {
	if err := Ping(context.Background(), NewMemoryStore(1, 0)); err != nil {
		t.Errorf("memory store ping: %v", err)
	}
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ping.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer sq.Close()
	if err := Ping(context.Background(), sq); err != nil {
		t.Errorf("sqlite ping: %v", err)
	}
}

func TestValidate(t *testing.T) {
	long := make([]rune, MaxCommentLength+1)
	for i := range long {
		long[i] = 'é'
	}

	tests := []struct {
		name   string
		f      Feedback
		fields []string
	}{
		{"valid", Feedback{RequestID: "r", ExpectedCategory: "informational", Comment: "ok"}, nil},
		{"missing request", Feedback{}, []string{"request_id"}},
		{"bad category", Feedback{RequestID: "r", ExpectedCategory: "billing"}, []string{"expected_category"}},
		{"long comment", Feedback{RequestID: "r", Comment: string(long)}, []string{"comment"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if tt.fields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(ve.Fields) != len(tt.fields) || ve.Fields[0].Field != tt.fields[0] {
				t.Errorf("expected fields %v, got %+v", tt.fields, ve.Fields)
			}
		})
	}
}
