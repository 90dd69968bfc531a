// Package memory accounts buffer allocations against two regions: a small fast
// internal region and a large external one. Components ask an Arena for their
// long-lived buffers so a node with a tight fast-memory budget fails at startup
// instead of under load.
package memory

import (
	"sync/atomic"
	"unsafe"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/voicetrigger/internal/errors"
)

// Region identifies a memory region.
type Region string

const (
	RegionInternal Region = "internal"
	RegionExternal Region = "external"
)

// Arena tracks reservations against a byte limit. A limit <= 0 means unlimited.
// Arena is safe for concurrent use.
type Arena struct {
	region   Region
	limit    int64
	used     atomic.Int64
	peak     atomic.Int64
	allocs   atomic.Uint64
	failures atomic.Uint64
}

// Stats is a snapshot of arena usage.
type Stats struct {
	Region   Region
	Limit    int64
	Used     int64
	Peak     int64
	Allocs   uint64
	Failures uint64
}

// NewArena creates an arena for region with the given byte limit.
func NewArena(region Region, limit int64) *Arena {
	return &Arena{region: region, limit: limit}
}

// NewExternalArena creates the large-region arena sized from the memory currently
// available to the system. If the system cannot be queried the arena is unlimited.
func NewExternalArena() *Arena {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return NewArena(RegionExternal, 0)
	}
	// leave the other half to the rest of the system
	return NewArena(RegionExternal, int64(vm.Available/2)) //nolint:gosec // halved uint64 fits
}

// Select returns the arena a component should allocate from.
func Select(useLarge bool, internal, external *Arena) *Arena {
	if useLarge && external != nil {
		return external
	}
	return internal
}

// Region returns the arena's region, RegionInternal for a nil arena.
func (a *Arena) Region() Region {
	if a == nil {
		return RegionInternal
	}
	return a.region
}

func (a *Arena) reserve(n int64) error {
	for {
		used := a.used.Load()
		next := used + n
		if a.limit > 0 && next > a.limit {
			a.failures.Add(1)
			return errors.Newf("%s memory exhausted: requested %d bytes, %d of %d in use", a.region, n, used, a.limit).
				Component("memory").
				Category(errors.CategoryResource).
				Context("region", string(a.region)).
				Context("requested_bytes", n).
				Context("available_bytes", a.limit-used).
				Build()
		}
		if a.used.CompareAndSwap(used, next) {
			a.allocs.Add(1)
			for {
				peak := a.peak.Load()
				if next <= peak || a.peak.CompareAndSwap(peak, next) {
					break
				}
			}
			return nil
		}
	}
}

func (a *Arena) release(n int64) {
	if a.used.Add(-n) < 0 {
		a.used.Store(0)
	}
}

// Stats returns a usage snapshot.
func (a *Arena) Stats() Stats {
	if a == nil {
		return Stats{Region: RegionInternal}
	}
	return Stats{
		Region:   a.region,
		Limit:    a.limit,
		Used:     a.used.Load(),
		Peak:     a.peak.Load(),
		Allocs:   a.allocs.Load(),
		Failures: a.failures.Load(),
	}
}

// Alloc returns a zeroed slice of n elements reserved against the arena.
// A nil arena allocates without accounting.
func Alloc[T any](a *Arena, n int) ([]T, error) {
	if n < 0 {
		return nil, errors.Newf("negative allocation size %d", n).
			Component("memory").
			Category(errors.CategoryValidation).
			Build()
	}
	if a != nil {
		if err := a.reserve(sizeOf[T](n)); err != nil {
			return nil, err
		}
	}
	return make([]T, n), nil
}

// Free returns the slice's capacity to the arena.
func Free[T any](a *Arena, s []T) {
	if a == nil || s == nil {
		return
	}
	a.release(sizeOf[T](cap(s)))
}

func sizeOf[T any](n int) int64 {
	var zero T
	return int64(unsafe.Sizeof(zero)) * int64(n)
}
