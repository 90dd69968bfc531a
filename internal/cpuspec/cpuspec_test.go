package cpuspec

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceCores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i9-12900K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13600K", 6},
		{"Intel(R) Core(TM) i3-14100", 4},
		{"Intel(R) Core(TM) i7-8700K CPU @ 3.70GHz", 0},
		{"Apple M1", 4},
		{"Apple M4", 6},
		{"Apple M2 Max", 12},
		{"Apple M1 Ultra", 16},
		{"Apple M3 Pro", 8},
		{"ARM Cortex-A72", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.brand, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, performanceCores(tt.brand))
		})
	}
}

func TestInferenceThreads(t *testing.T) {
	t.Parallel()

	n := runtime.NumCPU()

	assert.Equal(t, 1, CPUSpec{}.InferenceThreads(1))
	assert.Equal(t, n, CPUSpec{}.InferenceThreads(n+8), "requested is capped at available CPUs")

	auto := CPUSpec{PerformanceCores: 8}.InferenceThreads(0)
	assert.Equal(t, min(n, maxAutoThreads), auto)

	single := CPUSpec{PhysicalCores: 1}.InferenceThreads(0)
	assert.Equal(t, 1, single)

	assert.GreaterOrEqual(t, CPUSpec{}.InferenceThreads(0), 1)
}

func TestGetCPUSpec(t *testing.T) {
	t.Parallel()

	spec := GetCPUSpec()
	assert.GreaterOrEqual(t, spec.LogicalCores, 0)
	assert.GreaterOrEqual(t, spec.PerformanceCores, 0)
}
