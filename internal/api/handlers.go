package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/voicetrigger/internal/datastore"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
)

const (
	defaultDetectionLimit = 20
	maxDetectionLimit     = 500
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// WakeWordStatus reports the detector counters.
type WakeWordStatus struct {
	Enabled          bool    `json:"enabled"`
	Threshold        float32 `json:"threshold"`
	Detections       uint64  `json:"detections"`
	FalsePositives   uint64  `json:"false_positives"`
	Inferences       uint64  `json:"inferences"`
	InferenceErrors  uint64  `json:"inference_errors"`
	LastConfidence   float32 `json:"last_confidence"`
	LastLatencyMs    uint32  `json:"last_latency_ms"`
	AverageLatencyMs float32 `json:"average_latency_ms"`
	DroppedSignals   uint64  `json:"dropped_signals"`
	ThrottledCycles  uint64  `json:"throttled_cycles"`
	ValidationState  string  `json:"validation_state"`
}

// AudioStatus reports the capture state.
type AudioStatus struct {
	Capturing       bool    `json:"capturing"`
	Level           float32 `json:"level"`
	VoiceDetected   bool    `json:"voice_detected"`
	SamplesCaptured uint64  `json:"samples_captured"`
	SamplesStreamed uint64  `json:"samples_streamed"`
}

// SessionStatus reports the listening cycle.
type SessionStatus struct {
	State           string     `json:"state"`
	SessionsStarted uint64     `json:"sessions_started"`
	CurrentID       string     `json:"current_id,omitempty"`
	CurrentTrigger  string     `json:"current_trigger,omitempty"`
	CurrentStarted  *time.Time `json:"current_started,omitempty"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	NodeName      string          `json:"node_name,omitempty"`
	NodeID        string          `json:"node_id,omitempty"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	WakeWord      *WakeWordStatus `json:"wakeword,omitempty"`
	Audio         *AudioStatus    `json:"audio,omitempty"`
	Session       *SessionStatus  `json:"session,omitempty"`
}

// ThresholdRequest is the body of PUT /api/v1/wakeword/threshold.
type ThresholdRequest struct {
	Threshold *float32 `json:"threshold"`
}

// DetectionResponse is one entry of GET /api/v1/detections.
type DetectionResponse struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Room          string    `json:"room,omitempty"`
	Confidence    float32   `json:"confidence"`
	LatencyMs     uint32    `json:"latency_ms"`
	DetectedAt    time.Time `json:"detected_at"`
	FalsePositive bool      `json:"false_positive"`
}

// ActionResult is the body of successful control actions.
type ActionResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleError logs err and answers with an ErrorResponse.
func (s *Server) HandleError(c echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Debug("API error", fields...)
	}
	return c.JSON(code, resp)
}

func (s *Server) unavailable(c echo.Context, what string) error {
	return s.HandleError(c, nil, what+" not available", http.StatusServiceUnavailable)
}

func (s *Server) ok(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, ActionResult{Success: true, Message: message, Timestamp: time.Now()})
}

// GetStatus handles GET /api/v1/status.
func (s *Server) GetStatus(c echo.Context) error {
	resp := StatusResponse{
		NodeName:      s.config.NodeName,
		NodeID:        s.config.NodeID,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}

	if s.detector != nil {
		st := s.detector.Stats()
		resp.WakeWord = &WakeWordStatus{
			Enabled:          st.Enabled,
			Threshold:        st.Threshold,
			Detections:       st.Detections,
			FalsePositives:   st.FalsePositives,
			Inferences:       st.Inferences,
			InferenceErrors:  st.InferenceErrors,
			LastConfidence:   st.LastConfidence,
			LastLatencyMs:    st.LastLatencyMs,
			AverageLatencyMs: st.AverageLatencyMs,
			DroppedSignals:   st.DroppedSignals,
			ThrottledCycles:  st.ThrottledCycles,
			ValidationState:  st.ValidationState,
		}
	}

	if s.audio != nil {
		resp.Audio = &AudioStatus{
			Capturing:       s.audio.IsCapturing(),
			Level:           s.audio.AudioLevel(),
			VoiceDetected:   s.audio.IsVoiceDetected(),
			SamplesCaptured: s.audio.SamplesCaptured(),
			SamplesStreamed: s.audio.SamplesStreamed(),
		}
	}

	if s.sessions != nil {
		ss := &SessionStatus{
			State:           s.sessions.State().String(),
			SessionsStarted: s.sessions.SessionsStarted(),
		}
		if cur, ok := s.sessions.Current(); ok {
			started := cur.Started
			ss.CurrentID = cur.ID
			ss.CurrentTrigger = string(cur.Trigger)
			ss.CurrentStarted = &started
		}
		resp.Session = ss
	}

	return c.JSON(http.StatusOK, resp)
}

// EnableWakeWord handles POST /api/v1/wakeword/enable.
func (s *Server) EnableWakeWord(c echo.Context) error {
	if s.detector == nil {
		return s.unavailable(c, "wake word detector")
	}
	s.detector.Enable(s.ctx)
	return s.ok(c, "wake word detection enabled")
}

// DisableWakeWord handles POST /api/v1/wakeword/disable.
func (s *Server) DisableWakeWord(c echo.Context) error {
	if s.detector == nil {
		return s.unavailable(c, "wake word detector")
	}
	s.detector.Disable()
	return s.ok(c, "wake word detection disabled")
}

// ResetWakeWord handles POST /api/v1/wakeword/reset.
func (s *Server) ResetWakeWord(c echo.Context) error {
	if s.detector == nil {
		return s.unavailable(c, "wake word detector")
	}
	s.detector.Reset()
	return s.ok(c, "wake word detector reset")
}

// SetThreshold handles PUT /api/v1/wakeword/threshold.
func (s *Server) SetThreshold(c echo.Context) error {
	if s.detector == nil {
		return s.unavailable(c, "wake word detector")
	}

	var req ThresholdRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "invalid request body", http.StatusBadRequest)
	}
	if req.Threshold == nil {
		return s.HandleError(c, nil, "threshold is required", http.StatusBadRequest)
	}
	t := *req.Threshold
	if t <= 0 || t > 1 {
		return s.HandleError(c, nil, "threshold must be in (0, 1]", http.StatusBadRequest)
	}

	s.detector.SetThreshold(t)
	s.log.Info("wake word threshold changed", logger.Float32("threshold", t))
	return c.JSON(http.StatusOK, map[string]any{"threshold": t})
}

// GetDetections handles GET /api/v1/detections?limit=N.
func (s *Server) GetDetections(c echo.Context) error {
	if s.store == nil {
		return s.unavailable(c, "detection history")
	}

	limit := defaultDetectionLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s.HandleError(c, err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = min(n, maxDetectionLimit)
	}

	rows, err := s.store.RecentDetections(c.Request().Context(), limit)
	if err != nil {
		return s.HandleError(c, err, "failed to load detections", http.StatusInternalServerError)
	}

	out := make([]DetectionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, detectionResponse(&rows[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func detectionResponse(d *datastore.Detection) DetectionResponse {
	return DetectionResponse{
		ID:            d.ID,
		SessionID:     d.SessionID,
		Room:          d.Room,
		Confidence:    d.Confidence,
		LatencyMs:     d.LatencyMs,
		DetectedAt:    d.DetectedAt,
		FalsePositive: d.FalsePositive,
	}
}

// ReportFalsePositive handles POST /api/v1/detections/:id/false-positive.
// Only detections still inside the feedback window are accepted, each once.
func (s *Server) ReportFalsePositive(c echo.Context) error {
	if s.detector == nil || s.feedback == nil {
		return s.unavailable(c, "false positive feedback")
	}

	id := c.Param("id")
	if _, ok := s.feedback.Take(id); !ok {
		return s.HandleError(c, nil, "detection is unknown or its feedback window has closed", http.StatusConflict)
	}

	s.detector.RecordFalsePositive()

	if s.store != nil {
		if err := s.store.MarkFalsePositive(c.Request().Context(), id); err != nil {
			// counted already; the history row may not be written yet
			s.log.Warn("failed to flag detection in history",
				logger.String("detection_id", id),
				logger.Bool("not_found", errors.IsCategory(err, errors.CategoryNotFound)),
				logger.Error(err))
		}
	}

	s.log.Info("false positive reported", logger.String("detection_id", id))
	return s.ok(c, "false positive recorded")
}

// PushToTalk handles POST /api/v1/session/push-to-talk.
func (s *Server) PushToTalk(c echo.Context) error {
	if s.sessions == nil {
		return s.unavailable(c, "session control")
	}
	if !s.sessions.TriggerPushToTalk() {
		return s.HandleError(c, nil, "a session is already active or cooling down", http.StatusConflict)
	}
	return s.ok(c, "session started")
}
