package errors

import (
	"fmt"
	"testing"
)

// BenchmarkErrorCreationNoTelemetry tests error creation performance when telemetry is disabled
func BenchmarkErrorCreationNoTelemetry(b *testing.B) {
	SetTelemetryReporter(nil)

	b.ReportAllocs()

	for b.Loop() {
		_ = New(fmt.Errorf("test error")).
			Component("wakeword").
			Category(CategoryModelInference).
			Build()
	}
}

// BenchmarkErrorCreationWithContext measures the builder with context attached
func BenchmarkErrorCreationWithContext(b *testing.B) {
	SetTelemetryReporter(nil)

	b.ReportAllocs()

	for b.Loop() {
		_ = New(fmt.Errorf("test error")).
			Component("wakeword").
			Category(CategoryModelInference).
			Context("operation", "invoke").
			Context("inference_count", 42).
			Build()
	}
}

// BenchmarkErrorCreationWithTelemetry tests error creation when a reporter is active
func BenchmarkErrorCreationWithTelemetry(b *testing.B) {
	SetTelemetryReporter(&countingReporter{enabled: true})
	b.Cleanup(func() { SetTelemetryReporter(nil) })

	b.ReportAllocs()

	for b.Loop() {
		_ = New(fmt.Errorf("publish to mqtt://u:p@broker failed")).
			Category(CategoryMQTTPublish).
			Build()
	}
}

// BenchmarkPrivacyScrubbing tests the performance of privacy scrubbing
func BenchmarkPrivacyScrubbing(b *testing.B) {
	msg := "Error connecting to https://api.example.com?api_key=1234567890abcdef&node_id=test123&token=secret"

	b.ReportAllocs()

	for b.Loop() {
		_ = basicURLScrub(msg)
	}
}
