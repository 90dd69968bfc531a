package wakeword

import "math"

// Stats is a snapshot of the detector counters.
type Stats struct {
	Enabled          bool
	Threshold        float32
	Detections       uint64
	FalsePositives   uint64
	Inferences       uint64
	InferenceErrors  uint64
	TotalLatencyMs   uint64
	LastConfidence   float32
	LastLatencyMs    uint32
	AverageLatencyMs float32
	SignalsPosted    uint64
	SignalsHandled   uint64
	DroppedSignals   uint64
	ThrottledCycles  uint64
	IdleWakeups      uint64
	ValidationState  string
}

// Stats returns the current counters. Individual fields are read atomically;
// the snapshot as a whole is not.
func (d *Detector) Stats() Stats {
	return Stats{
		Enabled:          d.enabled.Load(),
		Threshold:        d.Threshold(),
		Detections:       d.detections.Load(),
		FalsePositives:   d.falsePositives.Load(),
		Inferences:       d.inferences.Load(),
		InferenceErrors:  d.inferenceErrors.Load(),
		TotalLatencyMs:   d.totalLatencyMs.Load(),
		LastConfidence:   d.LastConfidence(),
		LastLatencyMs:    d.lastLatencyMs.Load(),
		AverageLatencyMs: d.AverageLatency(),
		SignalsPosted:    d.signalsPosted.Load(),
		SignalsHandled:   d.signalsHandled.Load(),
		DroppedSignals:   d.droppedSignals.Load(),
		ThrottledCycles:  d.throttled.Load(),
		IdleWakeups:      d.idleWakeups.Load(),
		ValidationState:  d.ValidationState().String(),
	}
}

func (d *Detector) DetectionCount() uint64 { return d.detections.Load() }

func (d *Detector) FalsePositiveCount() uint64 { return d.falsePositives.Load() }

func (d *Detector) InferenceCount() uint64 { return d.inferences.Load() }

func (d *Detector) LastConfidence() float32 {
	return math.Float32frombits(d.lastConfidence.Load())
}

func (d *Detector) LastLatencyMs() uint32 { return d.lastLatencyMs.Load() }

// AverageLatency returns the mean detection latency in milliseconds, 0 before
// the first detection.
func (d *Detector) AverageLatency() float32 {
	n := d.detections.Load()
	if n == 0 {
		return 0
	}
	return float32(d.totalLatencyMs.Load()) / float32(n)
}
