// Package pool runs a worker function over a statically partitioned item
// list with a fixed number of concurrent workers and a progress reporter.
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bookscout/bookscout/internal/logger"
)

// WorkerFunc processes one contiguous slice of the input. worker is the
// slice's ordinal, usable as a session tag. Implementations must recover
// their own per-item failures; a panic takes its worker down.
type WorkerFunc[T any] func(items []T, worker int)

// progressInterval is how often the reporter logs percent complete.
const progressInterval = 2 * time.Second

// Pool partitions work across a fixed number of workers. Items are split
// into contiguous near-equal slices; order is preserved within a slice but
// slices run concurrently, so global completion order is undefined. There
// is no cancellation mid-run: bound the input list to bound the work.
type Pool[T any] struct {
	numWorkers int
	interval   time.Duration

	// counter counts items examined (not items successfully processed).
	counter atomic.Int64
}

// New creates a pool with the given worker count (minimum 1).
func New[T any](numWorkers int) *Pool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool[T]{numWorkers: numWorkers, interval: progressInterval}
}

// ItemDone records one examined item. Workers call this once per item
// regardless of whether processing succeeded.
func (p *Pool[T]) ItemDone() {
	p.counter.Add(1)
}

// Done returns the number of items examined so far.
func (p *Pool[T]) Done() int64 {
	return p.counter.Load()
}

// Run blocks until every worker and the progress reporter finish.
func (p *Pool[T]) Run(items []T, fn WorkerFunc[T]) {
	total := len(items)
	if total == 0 {
		return
	}
	p.counter.Store(0)

	stop := make(chan struct{})
	var reporter sync.WaitGroup
	reporter.Add(1)
	go func() {
		defer reporter.Done()
		p.report(total, stop)
	}()

	var workers sync.WaitGroup
	for i := 0; i < p.numWorkers; i++ {
		start := i * total / p.numWorkers
		end := (i + 1) * total / p.numWorkers
		if start == end {
			continue
		}
		workers.Add(1)
		go func(slice []T, worker int) {
			defer workers.Done()
			fn(slice, worker)
		}(items[start:end], i)
	}

	workers.Wait()
	close(stop)
	reporter.Wait()
}

func (p *Pool[T]) report(total int, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			done := p.counter.Load()
			logger.Info("progress",
				"done", done, "total", total,
				"percent", float64(done)/float64(total)*100)
		case <-stop:
			return
		}
	}
}

// Partition returns the slice boundaries Run uses, exposed for planning
// shard manifests with identical boundaries.
func Partition(total, parts int) [][2]int {
	if parts < 1 {
		parts = 1
	}
	bounds := make([][2]int, 0, parts)
	for i := 0; i < parts; i++ {
		start := i * total / parts
		end := (i + 1) * total / parts
		if start == end {
			continue
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
