// Package pool runs data-parallel loops on a fixed set of workers.
//
// A Pool is an explicit handle: functions that parallelize take one as an
// argument instead of flipping a process-global switch, and a nil Pool means
// run sequentially on the calling goroutine.
package pool

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool partitions loops statically across a fixed number of workers.
type Pool struct {
	workers int
}

// New returns a pool with the given number of workers.
// Non-positive means GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the worker count, which is 1 for a nil pool.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Run splits the range [0, n) into one contiguous chunk per worker and calls
// fn(tid, lo, hi) for each chunk. It returns the first error encountered.
// Chunk boundaries depend only on n and the worker count, so partial results
// gathered per tid are deterministic.
func (p *Pool) Run(n int, fn func(tid, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	w := p.Workers()
	if w > n {
		w = n
	}
	if w == 1 {
		return fn(0, 0, n)
	}
	g := new(errgroup.Group)
	for t := 0; t < w; t++ {
		lo, hi := t*n/w, (t+1)*n/w
		g.Go(func() error { return fn(t, lo, hi) })
	}
	return g.Wait()
}
