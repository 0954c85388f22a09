package pools

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrPoolStarted is returned when Start is called twice
var ErrPoolStarted = errors.New("worker pool already started")

// Source hands out work items. Next blocks until an item is available; any
// error ends the calling worker's loop.
type Source[T any] interface {
	Next() (T, error)
}

// HandleFunc processes one item on behalf of worker w
type HandleFunc[T any] func(w *Worker, item T)

// WorkerPool runs a fixed number of workers that all pull from one shared
// Source. Any idle worker may take the next item; the pool size never
// changes after construction.
type WorkerPool[T any] struct {
	numWorkers int
	workers    []*Worker
	started    atomic.Bool
	wg         sync.WaitGroup
	done       chan struct{}

	// Statistics
	stats struct {
		completed atomic.Uint64
		busy      atomic.Int64
	}
}

// Worker is one worker identity of the pool. It carries counters only; no
// item-derived state survives between items.
type Worker struct {
	ID int

	completed atomic.Uint64
	busy      atomic.Bool
	exitErr   atomic.Value
}

// exitReason keeps the stored type stable for atomic.Value
type exitReason struct {
	err error
}

// NewWorkerPool creates a pool of numWorkers workers. Values below 1 are
// raised to 1.
func NewWorkerPool[T any](numWorkers int) *WorkerPool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}

	pool := &WorkerPool[T]{
		numWorkers: numWorkers,
		workers:    make([]*Worker, numWorkers),
		done:       make(chan struct{}),
	}
	for i := range pool.workers {
		pool.workers[i] = &Worker{ID: i}
	}
	return pool
}

// Start launches every worker. Each runs until source.Next returns an error.
func (p *WorkerPool[T]) Start(source Source[T], handle HandleFunc[T]) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPoolStarted
	}

	p.wg.Add(p.numWorkers)
	for _, w := range p.workers {
		go p.run(w, source, handle)
	}

	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	return nil
}

// run is the main loop for a worker goroutine
func (p *WorkerPool[T]) run(w *Worker, source Source[T], handle HandleFunc[T]) {
	defer p.wg.Done()

	for {
		item, err := source.Next()
		if err != nil {
			w.exitErr.Store(exitReason{err})
			return
		}

		w.busy.Store(true)
		p.stats.busy.Add(1)

		handle(w, item)

		p.stats.busy.Add(-1)
		w.busy.Store(false)
		w.completed.Add(1)
		p.stats.completed.Add(1)
	}
}

// Wait blocks until every worker has exited
func (p *WorkerPool[T]) Wait() {
	if !p.started.Load() {
		return
	}
	<-p.done
}

// WaitTimeout is Wait with an upper bound. It reports whether all workers exited.
func (p *WorkerPool[T]) WaitTimeout(d time.Duration) bool {
	if !p.started.Load() {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// Size returns the fixed number of workers
func (p *WorkerPool[T]) Size() int {
	return p.numWorkers
}

// Stats returns pool statistics
func (p *WorkerPool[T]) Stats() WorkerPoolStats {
	stats := WorkerPoolStats{
		NumWorkers: p.numWorkers,
		Completed:  p.stats.completed.Load(),
		Busy:       int(p.stats.busy.Load()),
		Workers:    make([]WorkerStats, p.numWorkers),
	}

	for i, w := range p.workers {
		ws := WorkerStats{
			ID:        w.ID,
			Completed: w.completed.Load(),
			Busy:      w.busy.Load(),
		}
		if reason, ok := w.exitErr.Load().(exitReason); ok {
			ws.Exited = true
			ws.ExitErr = reason.err
		}
		stats.Workers[i] = ws
	}

	return stats
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers int
	Completed  uint64
	Busy       int
	Workers    []WorkerStats
}

// WorkerStats contains the counters of a single worker
type WorkerStats struct {
	ID        int
	Completed uint64
	Busy      bool
	Exited    bool
	ExitErr   error
}
