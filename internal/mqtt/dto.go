package mqtt

import (
	"time"

	"github.com/tphakala/voicetrigger/internal/session"
)

// DetectionEventDTO is published to <topic>/detection for each wake word
// that starts a session.
//
// Field names are part of the MQTT contract consumed by home automation
// rules; add fields, do not rename them.
type DetectionEventDTO struct {
	DetectionID string    `json:"detectionId"`
	SessionID   string    `json:"sessionId"`
	NodeID      string    `json:"nodeId,omitempty"`
	Room        string    `json:"room,omitempty"`
	Confidence  float32   `json:"confidence"`
	LatencyMs   uint32    `json:"latencyMs"`
	Time        time.Time `json:"time"`
}

// SessionEventDTO is published to <topic>/session when a session starts and
// when it ends.
type SessionEventDTO struct {
	SessionID  string    `json:"sessionId"`
	NodeID     string    `json:"nodeId,omitempty"`
	Room       string    `json:"room,omitempty"`
	State      string    `json:"state"` // "started" or "ended"
	Trigger    string    `json:"trigger"`
	Reason     string    `json:"reason,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Samples    uint64    `json:"samples,omitempty"`
	Time       time.Time `json:"time"`
}

// NewDetectionEventDTO builds the detection payload for a session started by
// a wake word. It returns nil for push-to-talk sessions.
func NewDetectionEventDTO(info *session.Info, nodeID string) *DetectionEventDTO {
	if info.Detection == nil {
		return nil
	}
	d := info.Detection
	ts := d.Time
	if ts.IsZero() {
		ts = info.Started
	}
	return &DetectionEventDTO{
		DetectionID: d.ID,
		SessionID:   info.ID,
		NodeID:      nodeID,
		Room:        info.Room,
		Confidence:  d.Confidence,
		LatencyMs:   d.LatencyMs,
		Time:        ts,
	}
}

// NewSessionEventDTO builds the session payload. An info with a zero Ended
// time describes a session start.
func NewSessionEventDTO(info *session.Info, nodeID string) SessionEventDTO {
	dto := SessionEventDTO{
		SessionID: info.ID,
		NodeID:    nodeID,
		Room:      info.Room,
		State:     "started",
		Trigger:   string(info.Trigger),
		Time:      info.Started,
	}
	if !info.Ended.IsZero() {
		dto.State = "ended"
		dto.Reason = string(info.Reason)
		dto.DurationMs = info.Duration().Milliseconds()
		dto.Samples = info.Samples
		dto.Time = info.Ended
	}
	return dto
}
