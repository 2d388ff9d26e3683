package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps feedback in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS classification_feedback (
			id TEXT NOT NULL,
			request_id TEXT PRIMARY KEY,
			correct INTEGER NOT NULL,
			expected_category TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON classification_feedback(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init feedback schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, f Feedback) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO classification_feedback(id,request_id,correct,expected_category,comment,created_at) VALUES(?,?,?,?,?,?)
	ON CONFLICT(request_id) DO UPDATE SET id=excluded.id,correct=excluded.correct,expected_category=excluded.expected_category,comment=excluded.comment,created_at=excluded.created_at`,
		f.ID, f.RequestID, f.Correct, f.ExpectedCategory, f.Comment, f.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, requestID string) (Feedback, error) {
	var f Feedback
	row := s.db.QueryRowContext(ctx, `SELECT id,request_id,correct,expected_category,comment,created_at FROM classification_feedback WHERE request_id=?`, requestID)
	if err := row.Scan(&f.ID, &f.RequestID, &f.Correct, &f.ExpectedCategory, &f.Comment, &f.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Feedback{}, ErrNotFound
		}
		return Feedback{}, fmt.Errorf("query feedback: %w", err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

func (s *SQLiteStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM classification_feedback WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge feedback: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
