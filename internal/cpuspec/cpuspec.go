// Package cpuspec inspects the host CPU to size inference thread pools.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// maxAutoThreads caps the automatic thread count. The wake-word model is small
// and more threads only add scheduling jitter to the audio path.
const maxAutoThreads = 2

var (
	intelHybridRegex  = regexp.MustCompile(`intel.*core.*i[3579]-(1[234])(\d)00`)
	appleSiliconRegex = regexp.MustCompile(`apple\s+m([1-4])(?:\s+(pro|max|ultra))?`)
)

// CPUSpec describes the host CPU.
type CPUSpec struct {
	BrandName        string
	Vendor           string
	PhysicalCores    int
	LogicalCores     int
	PerformanceCores int
	SIMD             []string
}

// GetCPUSpec returns the host CPU description.
func GetCPUSpec() CPUSpec {
	brand := cpuid.CPU.BrandName
	spec := CPUSpec{
		BrandName:        brand,
		Vendor:           cpuid.CPU.VendorString,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: performanceCores(brand),
	}

	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.SSE4, "sse4"},
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			spec.SIMD = append(spec.SIMD, f.name)
		}
	}
	return spec
}

// InferenceThreads returns the interpreter thread count. A positive requested
// value is honoured up to the number of available CPUs; otherwise the count is
// derived from the core layout and capped at maxAutoThreads.
func (c CPUSpec) InferenceThreads(requested int) int {
	available := runtime.NumCPU()
	if requested > 0 {
		return min(requested, available)
	}

	cores := c.PerformanceCores
	if cores <= 0 {
		cores = c.PhysicalCores
	}
	if cores <= 0 {
		cores = available
	}
	return max(1, min(cores, available, maxAutoThreads))
}

// performanceCores returns the P-core count of known hybrid CPUs, 0 otherwise.
func performanceCores(brand string) int {
	brand = strings.ToLower(brand)

	if m := intelHybridRegex.FindStringSubmatch(brand); m != nil {
		// 12th to 14th gen desktop parts: i9 and i7 have 8 P-cores, i5 has
		// 6 and i3 has 4
		switch {
		case strings.Contains(brand, "i9-"), strings.Contains(brand, "i7-"):
			return 8
		case strings.Contains(brand, "i5-"):
			return 6
		case strings.Contains(brand, "i3-"):
			return 4
		}
	}

	if m := appleSiliconRegex.FindStringSubmatch(brand); m != nil {
		gen, variant := m[1], m[2]
		switch variant {
		case "":
			if gen == "4" {
				return 6
			}
			return 4
		case "pro":
			return 8
		case "max":
			if gen == "1" {
				return 8
			}
			return 12
		case "ultra":
			if gen == "1" {
				return 16
			}
			return 24
		}
	}

	return 0
}
