package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

func TestEachIsolatesFailures(t *testing.T) {
	p := NewPool(3)
	boom := errors.New("boom")

	var ran atomic.Int32
	errs := p.Each(t.Context(), 6, func(_ context.Context, i int) error {
		ran.Add(1)
		switch i {
		case 1:
			return boom
		case 4:
			panic("bad record")
		}
		return nil
	})

	if ran.Load() != 6 {
		t.Errorf("ran %d units, want 6", ran.Load())
	}
	for i, err := range errs {
		switch i {
		case 1:
			if !errors.Is(err, boom) {
				t.Errorf("errs[1] = %v, want boom", err)
			}
		case 4:
			if err == nil {
				t.Error("errs[4] = nil, want recovered panic")
			}
		default:
			if err != nil {
				t.Errorf("errs[%d] = %v, want nil", i, err)
			}
		}
	}
}

func TestEachCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := NewPool(1).Each(ctx, 3, func(context.Context, int) error { return nil })
	for i, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("errs[%d] = %v", i, err)
		}
	}
}

func TestNewPoolMinimumSize(t *testing.T) {
	if got := NewPool(0).Size(); got != 1 {
		t.Errorf("Size = %d, want 1", got)
	}
}

// TestPropertyEachBoundsConcurrency verifies every index runs exactly once
// and no more than size units are ever in flight.
func TestPropertyEachBoundsConcurrency(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(1, 8).Draw(rt, "size")
		n := rapid.IntRange(0, 40).Draw(rt, "n")

		var inFlight, peak atomic.Int32
		hits := make([]atomic.Int32, n)
		NewPool(size).Each(context.Background(), n, func(_ context.Context, i int) error {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			hits[i].Add(1)
			inFlight.Add(-1)
			return nil
		})

		if int(peak.Load()) > size {
			rt.Fatalf("peak concurrency %d exceeds size %d", peak.Load(), size)
		}
		for i := range hits {
			if hits[i].Load() != 1 {
				rt.Fatalf("index %d ran %d times", i, hits[i].Load())
			}
		}
	})
}
