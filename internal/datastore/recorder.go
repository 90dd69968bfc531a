package datastore

import (
	"context"

	"github.com/tphakala/voicetrigger/internal/audiocore/export"
	"github.com/tphakala/voicetrigger/internal/session"
)

// Recorder is a session.Sink that stores detections when their session
// starts and sessions when they end.
type Recorder struct {
	store   Interface
	nodeID  string
	clipDir string // set when clips are exported, to record their path
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Interface, nodeID, clipDir string) *Recorder {
	return &Recorder{store: store, nodeID: nodeID, clipDir: clipDir}
}

func (r *Recorder) Name() string { return "datastore" }

func (r *Recorder) SessionStarted(ctx context.Context, info session.Info) error {
	d := info.Detection
	if d == nil {
		return nil
	}
	detectedAt := d.Time
	if detectedAt.IsZero() {
		detectedAt = info.Started
	}
	return r.store.SaveDetection(ctx, &Detection{
		ID:         d.ID,
		SessionID:  info.ID,
		NodeID:     r.nodeID,
		Room:       info.Room,
		Confidence: d.Confidence,
		LatencyMs:  d.LatencyMs,
		DetectedAt: detectedAt,
	})
}

func (r *Recorder) Audio(context.Context, session.Info, []int16) error { return nil }

func (r *Recorder) SessionEnded(ctx context.Context, info session.Info) error {
	s := &Session{
		ID:         info.ID,
		Trigger:    string(info.Trigger),
		NodeID:     r.nodeID,
		Room:       info.Room,
		StartedAt:  info.Started,
		EndedAt:    info.Ended,
		EndReason:  string(info.Reason),
		DurationMs: info.Duration().Milliseconds(),
		Samples:    info.Samples,
	}
	if info.Detection != nil {
		id := info.Detection.ID
		s.DetectionID = &id
	}
	if r.clipDir != "" {
		s.ClipPath = export.ClipPath(r.clipDir, info.ID, info.Started)
	}
	return r.store.SaveSession(ctx, s)
}
