package pool

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
)

func TestRunCoversRange(t *testing.T) {
	t.Parallel()
	for _, workers := range []int{1, 3, 8} {
		p := New(workers)
		var mu sync.Mutex
		seen := make([]int, 10)
		if err := p.Run(10, func(tid, lo, hi int) error {
			mu.Lock()
			defer mu.Unlock()
			for i := lo; i < hi; i++ {
				seen[i]++
			}
			return nil
		}); err != nil {
			t.Fatalf("%+v", err)
		}
		for i, n := range seen {
			if n != 1 {
				t.Fatalf("index %d visited %d times with %d workers", i, n, workers)
			}
		}
	}
}

func TestRunError(t *testing.T) {
	t.Parallel()
	p := New(4)
	err := p.Run(8, func(tid, lo, hi int) error {
		if lo == 0 {
			return errors.Errorf("boom")
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestNilPool(t *testing.T) {
	t.Parallel()
	var p *Pool
	if p.Workers() != 1 {
		t.Fatalf("%d, expected 1", p.Workers())
	}
	calls := 0
	if err := p.Run(5, func(tid, lo, hi int) error {
		calls++
		if tid != 0 || lo != 0 || hi != 5 {
			return errors.Errorf("unexpected chunk %d [%d,%d)", tid, lo, hi)
		}
		return nil
	}); err != nil {
		t.Fatalf("%+v", err)
	}
	if calls != 1 {
		t.Fatalf("%d, expected a single sequential call", calls)
	}
}
