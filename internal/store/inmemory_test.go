package store

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryWriteBatchIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	batch := Batch{Offset: 0, Frames: []FrameRecord{
		{FrameIndex: 0, TimestampMS: 100},
		{FrameIndex: 1, TimestampMS: 101},
		{FrameIndex: 2, TimestampMS: 102},
	}}

	written, err := s.WriteBatch(ctx, "s1", "u1", batch)
	if err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}

	// A retry of the same batch must not duplicate frames.
	written, err = s.WriteBatch(ctx, "s1", "u1", batch)
	if err != nil {
		t.Fatalf("retry WriteBatch() error = %v", err)
	}
	if written != 0 {
		t.Fatalf("retry written = %d, want 0", written)
	}
	if got := s.FrameCount("s1"); got != 3 {
		t.Fatalf("FrameCount = %d, want 3", got)
	}
}

func TestInMemoryUpsertOverwrites(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	started := time.Now().UTC()

	meta := SessionMeta{SessionID: "s1", UserID: "u1", StartedAt: started, FrameCount: 0, Active: true}
	if err := s.UpsertSession(ctx, meta); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	meta.FrameCount = 50
	if err := s.UpsertSession(ctx, meta); err != nil {
		t.Fatalf("second UpsertSession() error = %v", err)
	}

	got, err := s.Session("s1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if got.FrameCount != 50 || !got.Active {
		t.Fatalf("session = %+v, want frame count 50 and active", got)
	}
}

func TestInMemoryUpsertAfterFinalizeStaysTerminal(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	started := time.Now().UTC().Add(-time.Minute)

	meta := SessionMeta{SessionID: "s1", UserID: "u1", StartedAt: started, Active: true}
	if err := s.UpsertSession(ctx, meta); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}
	if _, err := s.FinalizeSession(ctx, "s1", "u1", started.Add(time.Minute)); err != nil {
		t.Fatalf("FinalizeSession() error = %v", err)
	}

	// A metadata refresh arriving after the finalize must not flip the
	// session back to active.
	meta.FrameCount = 7
	if err := s.UpsertSession(ctx, meta); err != nil {
		t.Fatalf("late UpsertSession() error = %v", err)
	}

	got, err := s.Session("s1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if got.Active {
		t.Fatalf("session reactivated by a late metadata refresh: %+v", got)
	}
}

func TestInMemoryFinalizeZeroFrameSession(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	// Finalize must land even when neither an upsert nor a batch write
	// ever reached the store for this session.
	id, err := s.FinalizeSession(ctx, "ghost", "u1", time.Now().UTC())
	if err != nil {
		t.Fatalf("FinalizeSession() error = %v", err)
	}
	if id != "ghost" {
		t.Fatalf("FinalizeSession() id = %q, want %q", id, "ghost")
	}

	got, err := s.Session("ghost")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if got.Active {
		t.Fatalf("finalized session still active: %+v", got)
	}
}

func TestInMemoryFinalizeAfterRecording(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	started := time.Now().UTC().Add(-time.Minute)

	if err := s.UpsertSession(ctx, SessionMeta{SessionID: "s1", UserID: "u1", StartedAt: started, Active: true}); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}
	if _, err := s.FinalizeSession(ctx, "s1", "u1", started.Add(time.Minute)); err != nil {
		t.Fatalf("FinalizeSession() error = %v", err)
	}

	s.mu.RLock()
	rec := s.sessions["s1"]
	s.mu.RUnlock()
	if rec.durationMS != time.Minute.Milliseconds() {
		t.Fatalf("durationMS = %d, want %d", rec.durationMS, time.Minute.Milliseconds())
	}
}
