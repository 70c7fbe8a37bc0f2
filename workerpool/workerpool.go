// Package workerpool implements the optional WorkerPool collaborator
// named in §6 ("workerPool?... sign(rings, master, tx, index?, type?)"),
// used by sign() to dispatch per-input ECDSA signing concurrently instead
// of looping serially (§4.4 sign(mtx, options), §5 suspension points).
//
// Dispatch is bounded by golang.org/x/sync/semaphore rather than an
// unbounded goroutine-per-input fan-out, so a transaction with many
// inputs cannot exhaust the process's CPU budget.
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// SignFunc signs a single input and returns an error if that input could
// not be signed (e.g. ErrKeyMismatch); the pool does not interpret the
// error, only propagates the first one encountered.
type SignFunc func(ctx context.Context, inputIndex int) error

// Pool bounds concurrent signing work to a fixed number of slots.
type Pool struct {
	sem *semaphore.Weighted
}

// New returns a Pool that runs at most concurrency signing tasks at once.
func New(concurrency int64) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{sem: semaphore.NewWeighted(concurrency)}
}

// SignAll runs fn(ctx, i) for every i in [0, n), waiting for all to
// complete. It returns the first error encountered (in index order),
// matching the spec's requirement that "the result must be identical"
// whether or not a pool is used.
func (p *Pool) SignAll(ctx context.Context, n int, fn SignFunc) error {
	errs := make([]error, n)
	done := make(chan int, n)

	for i := 0; i < n; i++ {
		i := i
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer p.sem.Release(1)
			errs[i] = fn(ctx, i)
			done <- i
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
