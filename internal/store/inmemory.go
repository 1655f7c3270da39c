package store

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is an in-process store for local/dev use and tests. It
// mirrors the Postgres semantics: idempotent session upserts, frame
// writes keyed by (session, frame index), finalize that always lands.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
}

type sessionRecord struct {
	meta       SessionMeta
	endedAt    time.Time
	durationMS int64
	frames     map[int64]FrameRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*sessionRecord)}
}

func (s *InMemoryStore) UpsertSession(_ context.Context, meta SessionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.session(meta.SessionID)
	// A finalized session is terminal; a late metadata refresh must
	// not reactivate it.
	if !rec.endedAt.IsZero() {
		return nil
	}
	rec.meta = meta
	return nil
}

func (s *InMemoryStore) WriteBatch(_ context.Context, sessionID, userID string, batch Batch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.session(sessionID)
	if rec.meta.UserID == "" {
		rec.meta.UserID = userID
	}
	written := 0
	for _, f := range batch.Frames {
		if _, exists := rec.frames[f.FrameIndex]; exists {
			continue
		}
		rec.frames[f.FrameIndex] = f
		written++
	}
	return written, nil
}

func (s *InMemoryStore) FinalizeSession(_ context.Context, sessionID, userID string, endedAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.session(sessionID)
	if rec.meta.UserID == "" {
		rec.meta.UserID = userID
	}
	if rec.meta.StartedAt.IsZero() {
		rec.meta.StartedAt = endedAt
	}
	rec.meta.Active = false
	rec.endedAt = endedAt
	rec.durationMS = endedAt.Sub(rec.meta.StartedAt).Milliseconds()
	return sessionID, nil
}

func (s *InMemoryStore) Close() error { return nil }

// Session returns the stored metadata for a session.
func (s *InMemoryStore) Session(sessionID string) (SessionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return SessionMeta{}, ErrSessionNotFound
	}
	return rec.meta, nil
}

// FrameCount returns the number of distinct frames stored for a session.
func (s *InMemoryStore) FrameCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(rec.frames)
}

// session returns the record for id, creating it if needed. Callers
// hold s.mu.
func (s *InMemoryStore) session(id string) *sessionRecord {
	rec, ok := s.sessions[id]
	if !ok {
		rec = &sessionRecord{frames: make(map[int64]FrameRecord)}
		s.sessions[id] = rec
	}
	return rec
}
