package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions and frame batches in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS posture_sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			duration_ms BIGINT,
			frame_count BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);`,
		`CREATE TABLE IF NOT EXISTS posture_frames (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			frame_index BIGINT NOT NULL,
			ts_ms BIGINT NOT NULL,
			bodies JSONB NOT NULL,
			posture JSONB,
			PRIMARY KEY (session_id, frame_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_posture_frames_session_ts ON posture_frames (session_id, ts_ms);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// UpsertSession creates or refreshes the session row. It never touches
// ended_at or duration_ms; those belong to FinalizeSession. A finalized
// row is terminal: the update only applies while the row is still
// active, so a late metadata refresh cannot reactivate a session.
func (s *PostgresStore) UpsertSession(ctx context.Context, meta SessionMeta) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO posture_sessions (session_id, user_id, started_at, frame_count, active)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE
		 SET frame_count = EXCLUDED.frame_count, active = EXCLUDED.active
		 WHERE posture_sessions.active`,
		meta.SessionID,
		meta.UserID,
		meta.StartedAt,
		meta.FrameCount,
		meta.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// WriteBatch writes all frames of one batch in a single transaction.
// Rows the store already holds for the same (session, frame index) are
// skipped, so retrying a batch never duplicates frames. Returns the
// number of rows actually inserted.
func (s *PostgresStore) WriteBatch(ctx context.Context, sessionID, userID string, batch Batch) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	written := 0
	for _, f := range batch.Frames {
		bodies, err := json.Marshal(f.Bodies)
		if err != nil {
			return 0, fmt.Errorf("encode frame %d bodies: %w", f.FrameIndex, err)
		}
		var posture []byte
		if f.Verdict != nil {
			posture, err = json.Marshal(f.Verdict)
			if err != nil {
				return 0, fmt.Errorf("encode frame %d posture: %w", f.FrameIndex, err)
			}
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO posture_frames (session_id, user_id, frame_index, ts_ms, bodies, posture)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (session_id, frame_index) DO NOTHING`,
			sessionID,
			userID,
			f.FrameIndex,
			f.TimestampMS,
			bodies,
			posture,
		)
		if err != nil {
			return 0, fmt.Errorf("write frame %d: %w", f.FrameIndex, err)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return written, nil
}

// FinalizeSession marks the session inactive, computing the duration
// from the stored start time. It succeeds even for sessions that never
// wrote a frame; when the session row itself is missing (the initial
// upsert may have been lost), a terminal row is created so the session
// never dangles as active.
func (s *PostgresStore) FinalizeSession(ctx context.Context, sessionID, userID string, endedAt time.Time) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO posture_sessions (session_id, user_id, started_at, ended_at, duration_ms, frame_count, active)
		 VALUES ($1, $2, $3, $3, 0, 0, FALSE)
		 ON CONFLICT (session_id) DO UPDATE
		 SET ended_at = $3,
		     duration_ms = (EXTRACT(EPOCH FROM ($3::timestamptz - posture_sessions.started_at)) * 1000)::BIGINT,
		     active = FALSE
		 RETURNING session_id`,
		sessionID,
		userID,
		endedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("finalize session: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
