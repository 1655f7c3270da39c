package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/avitale/postura/internal/config"
	"github.com/avitale/postura/internal/observability"
	"github.com/avitale/postura/internal/pose"
	"github.com/avitale/postura/internal/recorder"
)

type Server struct {
	cfg       config.Config
	recorder  *recorder.Recorder
	metrics   *observability.Metrics
	storeMode string
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, rec *recorder.Recorder, metrics *observability.Metrics, storeMode string) *Server {
	return &Server{
		cfg:       cfg,
		recorder:  rec,
		metrics:   metrics,
		storeMode: storeMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from
				// the same origin, so another website cannot drive the
				// user's camera session if the service is ever exposed
				// beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser producers often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/recording/start", s.handleStartRecording)
	r.Post("/v1/recording/stop", s.handleStopRecording)
	r.Get("/v1/recording/status", s.handleRecordingStatus)
	r.Get("/v1/frames/ws", s.handleFramesWS)
	r.Post("/v1/classify", s.handleClassify)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode,
	})
}

type startRequest struct {
	UserID      string `json:"user_id"`
	ImageWidth  int    `json:"image_width"`
	ImageHeight int    `json:"image_height"`
}

type startResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	BatchSize int       `json:"batch_size"`
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	if req.ImageWidth <= 0 || req.ImageHeight <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_image_size",
			"image_width and image_height must be positive")
		return
	}

	info, err := s.recorder.Start(req.UserID, req.ImageWidth, req.ImageHeight)
	if err != nil {
		if errors.Is(err, recorder.ErrAlreadyRecording) {
			respondError(w, http.StatusConflict, "already_recording", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, startResponse{
		SessionID: info.SessionID,
		UserID:    info.UserID,
		StartedAt: info.StartedAt,
		BatchSize: s.cfg.BatchSize,
	})
}

type stopRequest struct {
	Persist *bool `json:"persist"`
}

type stopResponse struct {
	SessionID  string    `json:"session_id"`
	FrameCount int64     `json:"frame_count"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	persist := true
	if req.Persist != nil {
		persist = *req.Persist
	}

	res, err := s.recorder.Stop(r.Context(), persist)
	if errors.Is(err, recorder.ErrNotRecording) {
		respondError(w, http.StatusConflict, "not_recording", err.Error())
		return
	}
	if err != nil {
		// The session is finalized underneath; name the step that
		// failed rather than conflating it with success.
		code := "final_upload_failed"
		if errors.Is(err, recorder.ErrFinalizeFailed) {
			code = "finalize_failed"
		}
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":       err.Error(),
			"code":        code,
			"session_id":  res.SessionID,
			"frame_count": res.FrameCount,
		})
		return
	}

	respondJSON(w, http.StatusOK, stopResponse{
		SessionID:  res.SessionID,
		FrameCount: res.FrameCount,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
	})
}

type statusResponse struct {
	Active     bool   `json:"active"`
	SessionID  string `json:"session_id,omitempty"`
	FrameCount int64  `json:"frame_count"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{
		Active:     s.recorder.Active(),
		SessionID:  s.recorder.SessionID(),
		FrameCount: s.recorder.FrameCount(),
		DurationMS: s.recorder.Duration().Milliseconds(),
	})
}

type classifyRequest struct {
	ImageWidth  int             `json:"image_width"`
	ImageHeight int             `json:"image_height"`
	Landmarks   []pose.Keypoint `json:"landmarks"`
}

type classifyResponse struct {
	Verdict *pose.Verdict `json:"verdict"`
}

// handleClassify runs the posture classifier on one body without
// recording anything, for producer-side preview and debugging.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.ImageWidth <= 0 || req.ImageHeight <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_image_size",
			"image_width and image_height must be positive")
		return
	}

	resp := classifyResponse{}
	body := pose.Body{Landmarks: req.Landmarks}
	if v, ok := pose.Classify(body, float64(req.ImageWidth), float64(req.ImageHeight)); ok {
		resp.Verdict = &v
		s.metrics.Verdicts.WithLabelValues(string(v.Posture)).Inc()
	}
	respondJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
