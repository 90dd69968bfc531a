// Package metrics provides the Prometheus collectors of voicetrigger.
package metrics

import "time"

// ShutdownTimeout bounds the metrics endpoint shutdown.
const ShutdownTimeout = 5 * time.Second

// Session end reasons.
const (
	ReasonSilence  = "silence"
	ReasonMaxTime  = "max_duration"
	ReasonStopped  = "stopped"
	ReasonCanceled = "canceled"
)

var (
	// inference runs take single-digit milliseconds on desktop CPUs and
	// tens of milliseconds on small boards
	inferenceBuckets = []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.03, 0.05, 0.1, 0.25}
	sessionBuckets   = []float64{0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15}
)
