package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "contact-center:feedback:"

// PostgresStore keeps feedback in PostgreSQL. Reads go through Redis when a
// client is configured.
type PostgresStore struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewPostgresStore wraps db. rdb may be nil.
func NewPostgresStore(db *pgxpool.Pool, rdb *redis.Client, cacheTTL time.Duration) *PostgresStore {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &PostgresStore{db: db, redis: rdb, cacheTTL: cacheTTL}
}

func (s *PostgresStore) Save(ctx context.Context, f Feedback) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO classification_feedback (id, request_id, correct, expected_category, comment, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		ON CONFLICT (request_id) DO UPDATE
		SET id = EXCLUDED.id,
		    correct = EXCLUDED.correct,
		    expected_category = EXCLUDED.expected_category,
		    comment = EXCLUDED.comment,
		    created_at = EXCLUDED.created_at
	`, f.ID, f.RequestID, f.Correct, f.ExpectedCategory, f.Comment, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}

	if s.redis != nil {
		s.redis.Del(ctx, redisKeyPrefix+f.RequestID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, requestID string) (Feedback, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+requestID).Bytes()
		if err == nil {
			var f Feedback
			if err := json.Unmarshal(cached, &f); err == nil {
				return f, nil
			}
		}
	}

	f, err := s.getDB(ctx, requestID)
	if err != nil {
		return Feedback{}, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(f); err == nil {
			s.redis.Set(ctx, redisKeyPrefix+requestID, data, s.cacheTTL)
		}
	}
	return f, nil
}

func (s *PostgresStore) getDB(ctx context.Context, requestID string) (Feedback, error) {
	var (
		f        Feedback
		expected *string
		comment  *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, request_id, correct, expected_category, comment, created_at
		FROM classification_feedback
		WHERE request_id = $1
	`, requestID).Scan(&f.ID, &f.RequestID, &f.Correct, &expected, &comment, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Feedback{}, ErrNotFound
		}
		return Feedback{}, fmt.Errorf("query feedback: %w", err)
	}
	if expected != nil {
		f.ExpectedCategory = *expected
	}
	if comment != nil {
		f.Comment = *comment
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

// Purge deletes old rows. Cached copies age out with the cache TTL.
func (s *PostgresStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM classification_feedback WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge feedback: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
