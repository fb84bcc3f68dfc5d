// Package parallel runs framebuffer work across a fixed set of goroutines.
//
// The coherency engine uses it to split reconciliation of large regions
// into bands of rows that touch disjoint parts of the canonical
// framebuffer.
package parallel

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines with one queue per worker. An idle
// worker steals from the other queues before blocking on its own.
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			fn()
			continue
		default:
		}
		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}
		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			fn()
		}
	}
}

func drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// ExecuteAll runs every function and waits for all of them. On a closed
// pool the functions run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() || len(work) == 1 {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		task := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.queues[i%p.workers] <- task:
		case <-p.done:
			task()
		}
	}
	wg.Wait()
}

// Rows splits r into horizontal bands of at most rows rows and calls fn for
// each band in parallel. It returns when every band is done.
func (p *WorkerPool) Rows(r image.Rectangle, rows int, fn func(band image.Rectangle)) {
	if r.Empty() {
		return
	}
	rows = max(rows, 1)
	work := make([]func(), 0, (r.Dy()+rows-1)/rows)
	for y := r.Min.Y; y < r.Max.Y; y += rows {
		band := image.Rect(r.Min.X, y, r.Max.X, min(y+rows, r.Max.Y))
		work = append(work, func() { fn(band) })
	}
	p.ExecuteAll(work)
}

// Close stops the workers after they finish queued work. It is safe to
// call more than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
