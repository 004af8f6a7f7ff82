package registry

import (
	"context"

	apperrors "github.com/coursekit/coursekit/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Schema creates the session_records table. The primary key on user_id plus
// the upsert in Put is what makes replacement linearizable per user.
const Schema = `
CREATE TABLE IF NOT EXISTS session_records (
	user_id   TEXT PRIMARY KEY,
	token     TEXT NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL
);`

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists session records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewPostgresStore] pgxpool.New")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "[NewPostgresStore] ping")
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "[NewPostgresStore] create schema")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Put(ctx context.Context, record SessionRecord) error {
	if record.UserID == "" {
		return errors.New("[PostgresStore.Put] userID is required")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_records (user_id, token, issued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET token = EXCLUDED.token, issued_at = EXCLUDED.issued_at`,
		record.UserID, record.Token, record.IssuedAt)
	if err != nil {
		return errors.Wrap(err, "[PostgresStore.Put] upsert")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (SessionRecord, error) {
	if userID == "" {
		return SessionRecord{}, errors.New("[PostgresStore.Get] userID is required")
	}

	var record SessionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, token, issued_at FROM session_records WHERE user_id = $1`,
		userID).Scan(&record.UserID, &record.Token, &record.IssuedAt)
	if err == pgx.ErrNoRows {
		return SessionRecord{}, apperrors.ErrRecordNotFound
	}
	if err != nil {
		return SessionRecord{}, errors.Wrap(err, "[PostgresStore.Get] select")
	}
	return record, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("[PostgresStore.Delete] userID is required")
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM session_records WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "[PostgresStore.Delete] delete")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
