package store

import (
	"context"
	"errors"
	"time"

	"github.com/avitale/postura/internal/pose"
)

var ErrSessionNotFound = errors.New("session not found")

// FrameRecord is one persisted frame: its position in the session's
// global frame sequence, the canonical monotonic timestamp, the raw
// bodies, and the posture verdict when one could be derived.
type FrameRecord struct {
	FrameIndex  int64         `json:"frame_index"`
	TimestampMS int64         `json:"timestamp"`
	Bodies      []pose.Body   `json:"poses"`
	Verdict     *pose.Verdict `json:"posture,omitempty"`
}

// Batch is a sealed, contiguous run of frames handed to the store as
// one atomic write. Offset is the global index of the first frame.
type Batch struct {
	Offset int64
	Frames []FrameRecord
}

// SessionMeta is the session-level record upserted at start, on batch
// completion, and at finalization.
type SessionMeta struct {
	SessionID  string
	UserID     string
	StartedAt  time.Time
	FrameCount int64
	Active     bool
}

// Store persists recording sessions and their frame batches.
//
// UpsertSession is idempotent on session id. WriteBatch must be atomic
// per batch and safe to retry: rewriting frames the store already holds
// for the same (session, frame index) identity never duplicates them.
// FinalizeSession marks the session inactive and must succeed even when
// no frames were ever written for it.
type Store interface {
	UpsertSession(ctx context.Context, meta SessionMeta) error
	WriteBatch(ctx context.Context, sessionID, userID string, batch Batch) (int, error)
	FinalizeSession(ctx context.Context, sessionID, userID string, endedAt time.Time) (string, error)
	Close() error
}
