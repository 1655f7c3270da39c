package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/avitale/postura/internal/observability"
	"github.com/avitale/postura/internal/pose"
	"github.com/avitale/postura/internal/store"
)

var (
	ErrAlreadyRecording = errors.New("a recording session is already active")
	ErrNotRecording     = errors.New("no active recording session")

	// Stop wraps its failure in one of these so callers can tell which
	// step failed; the session is finalized underneath either way.
	ErrFinalUploadFailed = errors.New("final batch upload failed")
	ErrFinalizeFailed    = errors.New("session finalize failed")
)

type state string

const (
	stateIdle       state = "idle"
	stateRecording  state = "recording"
	stateFinalizing state = "finalizing"
)

const (
	DefaultBatchSize = 50

	defaultMaxConcurrentUploads = 4
	defaultUploadTimeout        = 10 * time.Second
)

// Config tunes the recorder's batching and upload behavior.
type Config struct {
	BatchSize            int
	MaxConcurrentUploads int64
	UploadTimeout        time.Duration
}

// StartInfo describes a freshly started session.
type StartInfo struct {
	SessionID string
	UserID    string
	StartedAt time.Time
}

// StopResult is the definitive outcome of a stopped session. It is
// returned even when the final upload failed: the session underneath is
// finalized either way.
type StopResult struct {
	SessionID  string
	FrameCount int64
	StartedAt  time.Time
	Duration   time.Duration
}

// Recorder owns the recording session lifecycle. A single mutex guards
// all mutable session state; no store I/O ever happens while it is
// held. Batch writes run on their own goroutines, bounded by a
// semaphore, so Ingest never blocks on the network; Stop is the only
// operation that may block its caller.
type Recorder struct {
	store         store.Store
	metrics       *observability.Metrics
	logger        *slog.Logger
	uploadTimeout time.Duration
	sem           *semaphore.Weighted

	mu          sync.Mutex
	state       state
	sessionID   string
	userID      string
	startedAt   time.Time
	imageWidth  int
	imageHeight int
	frameCount  int64
	clock       *Timestamper
	batch       *batcher

	// Tracks the start metadata upsert and the steady-state batch
	// uploads of the current session so Stop can wait for every store
	// write enqueued before the active-flag flip.
	uploads sync.WaitGroup
}

func New(st store.Store, metrics *observability.Metrics, cfg Config) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxConcurrentUploads <= 0 {
		cfg.MaxConcurrentUploads = defaultMaxConcurrentUploads
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	return &Recorder{
		store:         st,
		metrics:       metrics,
		logger:        slog.Default(),
		uploadTimeout: cfg.UploadTimeout,
		sem:           semaphore.NewWeighted(cfg.MaxConcurrentUploads),
		state:         stateIdle,
		clock:         NewTimestamper(),
		batch:         newBatcher(cfg.BatchSize),
	}
}

// Start begins a new session. Only one session runs per process:
// calling Start while another session is recording (or still
// finalizing) returns ErrAlreadyRecording rather than silently
// discarding the in-flight session's state.
func (r *Recorder) Start(userID string, imageWidth, imageHeight int) (StartInfo, error) {
	r.mu.Lock()
	if r.state != stateIdle {
		r.mu.Unlock()
		return StartInfo{}, ErrAlreadyRecording
	}
	r.state = stateRecording
	r.sessionID = uuid.NewString()
	r.userID = userID
	r.startedAt = time.Now().UTC()
	r.imageWidth = imageWidth
	r.imageHeight = imageHeight
	r.frameCount = 0
	r.clock.Reset()
	r.batch.reset()
	meta := r.metaLocked()
	r.uploads.Add(1)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveRecording.Set(1)
		r.metrics.SessionEvents.WithLabelValues("started").Inc()
	}

	// Fire-and-forget for the caller: the session row appearing in the
	// store must not gate frame ingestion. Stop's barrier still waits
	// for it, so a slow upsert cannot land after FinalizeSession and
	// flip the row back to active.
	go func() {
		defer r.uploads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.uploadTimeout)
		defer cancel()
		if err := r.store.UpsertSession(ctx, meta); err != nil {
			r.logger.Error("session metadata upsert failed",
				"session_id", meta.SessionID, "error", err)
		}
	}()

	return StartInfo{SessionID: meta.SessionID, UserID: userID, StartedAt: meta.StartedAt}, nil
}

// Ingest accepts one frame from the producer, assigning it the next
// global frame index and a strictly increasing timestamp. The verdict
// is whatever the caller classified upstream; nil means the primary
// body lacked the required landmarks and the frame is stored without a
// posture field. Returns the assigned frame index and true on
// acceptance, or -1 and false when no session is recording: the frame
// is dropped, not queued. Ingest never blocks on store I/O.
func (r *Recorder) Ingest(frame pose.Frame, verdict *pose.Verdict) (int64, bool) {
	r.mu.Lock()
	if r.state != stateRecording {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.FramesDropped.Inc()
		}
		return -1, false
	}

	rec := store.FrameRecord{
		FrameIndex:  r.frameCount,
		TimestampMS: r.clock.Next(),
		Bodies:      frame.Bodies,
		Verdict:     verdict,
	}
	r.frameCount++

	sealed, ok := r.batch.append(rec)
	var meta store.SessionMeta
	if ok {
		meta = r.metaLocked()
		r.uploads.Add(1)
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.FramesIngested.Inc()
	}
	if ok {
		go r.uploadBatch(meta, sealed)
	}
	return rec.FrameIndex, true
}

// Stop ends the session. The active flag flips and the buffer drains
// under the same critical section, so a racing Ingest either lands
// before the drain snapshot or is dropped. Stop then waits for the
// steady-state uploads enqueued before the flip, writes the drained
// remainder when persist is set, and finalizes the session metadata
// regardless of the final upload's outcome so the session always
// reaches a terminal, queryable state. A final upload or finalize
// failure is returned alongside the result; it does not leave the
// session active.
func (r *Recorder) Stop(ctx context.Context, persist bool) (StopResult, error) {
	r.mu.Lock()
	if r.state != stateRecording {
		r.mu.Unlock()
		return StopResult{}, ErrNotRecording
	}
	r.state = stateFinalizing
	sessionID := r.sessionID
	userID := r.userID
	startedAt := r.startedAt
	frameCount := r.frameCount
	final, hasFinal := r.batch.drain()
	r.mu.Unlock()

	// Barrier: every store write handed off before the flip has
	// settled, the start metadata upsert included.
	r.uploads.Wait()

	var uploadErr error
	if persist && hasFinal {
		begin := time.Now()
		_, err := r.store.WriteBatch(ctx, sessionID, userID, final)
		if err != nil {
			uploadErr = fmt.Errorf("%w: %v", ErrFinalUploadFailed, err)
			r.logger.Error("final batch upload failed",
				"session_id", sessionID, "offset", final.Offset,
				"frames", len(final.Frames), "error", err)
			r.observeUpload("failure", 0)
		} else {
			r.observeUpload("success", time.Since(begin))
		}
	}

	endedAt := time.Now().UTC()
	if _, err := r.store.FinalizeSession(ctx, sessionID, userID, endedAt); err != nil {
		r.logger.Error("session finalize failed", "session_id", sessionID, "error", err)
		if uploadErr == nil {
			uploadErr = fmt.Errorf("%w: %v", ErrFinalizeFailed, err)
		}
	}

	r.mu.Lock()
	r.state = stateIdle
	r.sessionID = ""
	r.userID = ""
	r.startedAt = time.Time{}
	r.frameCount = 0
	r.imageWidth = 0
	r.imageHeight = 0
	r.clock.Reset()
	r.batch.reset()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveRecording.Set(0)
		r.metrics.SessionEvents.WithLabelValues("stopped").Inc()
	}

	return StopResult{
		SessionID:  sessionID,
		FrameCount: frameCount,
		StartedAt:  startedAt,
		Duration:   endedAt.Sub(startedAt),
	}, uploadErr
}

// Shutdown persists and finalizes an active session during process
// shutdown. A recorder with no active session is a no-op.
func (r *Recorder) Shutdown(ctx context.Context) error {
	_, err := r.Stop(ctx, true)
	if errors.Is(err, ErrNotRecording) {
		return nil
	}
	return err
}

// Active reports whether a session is currently recording.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateRecording
}

// SessionID returns the current session id, empty when idle.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// FrameCount returns the number of frames ingested so far.
func (r *Recorder) FrameCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}

// Duration returns the elapsed recording time, zero when idle.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startedAt.IsZero() {
		return 0
	}
	return time.Since(r.startedAt)
}

// ImageSize returns the frame dimensions declared at session start.
func (r *Recorder) ImageSize() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.imageWidth, r.imageHeight
}

// uploadBatch writes one sealed batch and refreshes the session's
// frame-count metadata. A failure here is logged and swallowed: the
// session keeps recording and the batch's frames are lost, a bounded
// window of at most one batch per failure.
func (r *Recorder) uploadBatch(meta store.SessionMeta, batch store.Batch) {
	defer r.uploads.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.uploadTimeout)
	defer cancel()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.logger.Error("batch upload slot unavailable",
			"session_id", meta.SessionID, "offset", batch.Offset, "error", err)
		r.observeUpload("failure", 0)
		return
	}
	defer r.sem.Release(1)

	begin := time.Now()
	written, err := r.store.WriteBatch(ctx, meta.SessionID, meta.UserID, batch)
	if err != nil {
		r.logger.Error("batch upload failed",
			"session_id", meta.SessionID, "offset", batch.Offset,
			"frames", len(batch.Frames), "error", err)
		r.observeUpload("failure", 0)
		return
	}
	r.observeUpload("success", time.Since(begin))

	r.logger.Debug("batch uploaded",
		"session_id", meta.SessionID, "offset", batch.Offset, "written", written)

	if err := r.store.UpsertSession(ctx, meta); err != nil {
		r.logger.Error("frame-count metadata update failed",
			"session_id", meta.SessionID, "error", err)
	}
}

func (r *Recorder) observeUpload(status string, d time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.BatchUploads.WithLabelValues(status).Inc()
	if status == "success" {
		r.metrics.ObserveBatchUploadLatency(d)
	}
}

// metaLocked snapshots session metadata; callers hold r.mu.
func (r *Recorder) metaLocked() store.SessionMeta {
	return store.SessionMeta{
		SessionID:  r.sessionID,
		UserID:     r.userID,
		StartedAt:  r.startedAt,
		FrameCount: r.frameCount,
		Active:     true,
	}
}
