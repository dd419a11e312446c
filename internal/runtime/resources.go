package runtime

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostResources is the schedulable capacity of the host.
type HostResources struct {
	MemoryBytes int64
	CPUs        int
}

// TaskResources is one task's reservation.
type TaskResources struct {
	MemoryBytes int64
	CPUs        int
}

// DetectHost probes total host memory and logical CPU count, falling back
// to conservative values when probing fails.
func DetectHost() HostResources {
	h := HostResources{
		MemoryBytes: 2 << 30,
		CPUs:        runtime.NumCPU(),
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		h.MemoryBytes = int64(vm.Total)
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		h.CPUs = n
	}
	return h
}

// Limiter admits tasks against host capacity. A task's reservation is
// clamped to the host totals, so a single oversized task can still run
// alone rather than deadlock.
type Limiter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	total   HostResources
	usedMem int64
	usedCPU int
}

// NewLimiter returns a limiter over the given capacity.
func NewLimiter(total HostResources) *Limiter {
	if total.MemoryBytes <= 0 {
		total.MemoryBytes = 1 << 30
	}
	if total.CPUs <= 0 {
		total.CPUs = 1
	}
	l := &Limiter{total: total}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Total returns the limiter's capacity.
func (l *Limiter) Total() HostResources { return l.total }

// Clamp caps a reservation to host capacity.
func (l *Limiter) Clamp(res TaskResources) TaskResources {
	if res.MemoryBytes > l.total.MemoryBytes {
		res.MemoryBytes = l.total.MemoryBytes
	}
	if res.CPUs > l.total.CPUs {
		res.CPUs = l.total.CPUs
	}
	if res.MemoryBytes < 0 {
		res.MemoryBytes = 0
	}
	if res.CPUs < 0 {
		res.CPUs = 0
	}
	return res
}

// Acquire blocks until the (clamped) reservation fits, or the context is
// cancelled. The returned reservation is what must be passed to Release.
func (l *Limiter) Acquire(ctx context.Context, res TaskResources) (TaskResources, error) {
	res = l.Clamp(res)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-done:
		}
	}()
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.usedMem+res.MemoryBytes > l.total.MemoryBytes || l.usedCPU+res.CPUs > l.total.CPUs {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("waiting for resources: %w", err)
		}
		l.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("waiting for resources: %w", err)
	}
	l.usedMem += res.MemoryBytes
	l.usedCPU += res.CPUs
	return res, nil
}

// Release returns a reservation obtained from Acquire.
func (l *Limiter) Release(res TaskResources) {
	l.mu.Lock()
	l.usedMem -= res.MemoryBytes
	l.usedCPU -= res.CPUs
	l.cond.Broadcast()
	l.mu.Unlock()
}
