package runtime

import (
	"context"
	"testing"
	"time"
)

func TestLimiterClamp(t *testing.T) {
	l := NewLimiter(HostResources{MemoryBytes: 1000, CPUs: 2})
	got := l.Clamp(TaskResources{MemoryBytes: 5000, CPUs: 8})
	if got.MemoryBytes != 1000 || got.CPUs != 2 {
		t.Errorf("Clamp = %+v", got)
	}
	got = l.Clamp(TaskResources{MemoryBytes: -1, CPUs: -1})
	if got.MemoryBytes != 0 || got.CPUs != 0 {
		t.Errorf("Clamp negative = %+v", got)
	}
}

func TestLimiterAcquireRelease(t *testing.T) {
	l := NewLimiter(HostResources{MemoryBytes: 1000, CPUs: 2})
	ctx := context.Background()

	first, err := l.Acquire(ctx, TaskResources{MemoryBytes: 600, CPUs: 1})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// A second reservation that does not fit must wait for the first.
	acquired := make(chan TaskResources)
	go func() {
		res, err := l.Acquire(ctx, TaskResources{MemoryBytes: 600, CPUs: 1})
		if err != nil {
			t.Errorf("second Acquire: %v", err)
		}
		acquired <- res
	}()

	select {
	case <-acquired:
		t.Fatal("second reservation admitted over capacity")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release(first)
	select {
	case res := <-acquired:
		l.Release(res)
	case <-time.After(time.Second):
		t.Fatal("second reservation never admitted")
	}
}

func TestLimiterOversizedRunsAlone(t *testing.T) {
	// A reservation beyond host capacity is clamped so it can still run.
	l := NewLimiter(HostResources{MemoryBytes: 1000, CPUs: 2})
	res, err := l.Acquire(context.Background(), TaskResources{MemoryBytes: 1 << 40, CPUs: 64})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if res.MemoryBytes != 1000 || res.CPUs != 2 {
		t.Errorf("reservation = %+v", res)
	}
	l.Release(res)
}

func TestLimiterAcquireCancelled(t *testing.T) {
	l := NewLimiter(HostResources{MemoryBytes: 1000, CPUs: 1})
	held, err := l.Acquire(context.Background(), TaskResources{MemoryBytes: 1000, CPUs: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, TaskResources{MemoryBytes: 500, CPUs: 1}); err == nil {
		t.Error("Acquire returned without capacity or cancellation")
	}
}

func TestDetectHost(t *testing.T) {
	h := DetectHost()
	if h.MemoryBytes <= 0 || h.CPUs <= 0 {
		t.Errorf("DetectHost = %+v", h)
	}
}
