package datastore

import "time"

// Detection is a confirmed wake word.
type Detection struct {
	ID            string `gorm:"primaryKey;size:36"`
	SessionID     string `gorm:"size:36;index:idx_detections_session"`
	NodeID        string `gorm:"size:64"`
	Room          string `gorm:"size:64"`
	Confidence    float32
	LatencyMs     uint32
	DetectedAt    time.Time `gorm:"index:idx_detections_detected_at"`
	FalsePositive bool      `gorm:"index:idx_detections_false_positive"`
	CreatedAt     time.Time
}

// Session is a finished streaming session.
type Session struct {
	ID          string    `gorm:"primaryKey;size:36"`
	DetectionID *string   `gorm:"size:36"` // nil for push-to-talk
	Trigger     string    `gorm:"size:32"`
	NodeID      string    `gorm:"size:64"`
	Room        string    `gorm:"size:64"`
	StartedAt   time.Time `gorm:"index:idx_sessions_started_at"`
	EndedAt     time.Time
	EndReason   string `gorm:"size:32"`
	DurationMs  int64
	Samples     uint64
	ClipPath    string
}
