package accel

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// DefaultMaxScale is the largest scale a SoftwareBackend allocates unless
// configured otherwise. At 8 the buffer takes 128 MiB.
const DefaultMaxScale = 8

type batch struct {
	handle SyncHandle
	cmds   []Cmd
}

// SoftwareBackend executes commands on a Canvas from a worker goroutine.
// It is the fallback when no GPU backend is registered and the reference
// the GPU backends are tested against.
type SoftwareBackend struct {
	log      *slog.Logger
	maxScale int

	mu        sync.Mutex
	cond      *sync.Cond
	canvas    *Canvas
	queue     []batch
	submitted SyncHandle
	completed SyncHandle
	running   bool
	closed    bool
	done      chan struct{}
}

var _ Backend = (*SoftwareBackend)(nil)

// NewSoftwareBackend creates a backend accepting scales up to maxScale
// (DefaultMaxScale if maxScale <= 0). A nil logger discards output.
func NewSoftwareBackend(maxScale int, log *slog.Logger) *SoftwareBackend {
	if maxScale <= 0 {
		maxScale = DefaultMaxScale
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	b := &SoftwareBackend{log: log, maxScale: maxScale}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Name implements Backend.
func (b *SoftwareBackend) Name() string { return "software" }

// MaxScale implements Backend.
func (b *SoftwareBackend) MaxScale() int { return b.maxScale }

// Init implements Backend.
func (b *SoftwareBackend) Init(s int) error {
	if s < 1 || s > b.maxScale {
		return fmt.Errorf("%w: %d (max %d)", ErrScale, s, b.maxScale)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendLost
	}
	b.idleLocked()
	b.canvas = NewCanvas(s)
	if !b.running {
		b.running = true
		b.done = make(chan struct{})
		go b.worker()
	}
	b.log.Debug("accel: software backend initialized", "scale", s)
	return nil
}

// Submit implements Backend.
func (b *SoftwareBackend) Submit(cmds []Cmd) (SyncHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return 0, ErrBackendLost
	case b.canvas == nil:
		return 0, ErrNotInitialized
	}
	b.submitted++
	b.queue = append(b.queue, batch{handle: b.submitted, cmds: cmds})
	b.cond.Broadcast()
	return b.submitted, nil
}

// Wait implements Backend.
func (b *SoftwareBackend) Wait(handles ...SyncHandle) error {
	var target SyncHandle
	for _, h := range handles {
		target = max(target, h)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.completed < target && !b.closed {
		b.cond.Wait()
	}
	if b.completed < target {
		return ErrBackendLost
	}
	return nil
}

// ReadSamples implements Backend.
func (b *SoftwareBackend) ReadSamples(r image.Rectangle) ([]uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return nil, err
	}
	return b.canvas.Samples(r), nil
}

// ReadScaled implements Backend.
func (b *SoftwareBackend) ReadScaled(r image.Rectangle) (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return nil, err
	}
	return b.canvas.Scaled(r), nil
}

// Close implements Backend. Queued work is dropped.
func (b *SoftwareBackend) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	b.cond.Broadcast()
	running, done := b.running, b.done
	b.mu.Unlock()
	if running {
		<-done
	}
}

func (b *SoftwareBackend) readyLocked() error {
	if b.closed {
		return ErrBackendLost
	}
	if b.canvas == nil {
		return ErrNotInitialized
	}
	b.idleLocked()
	return nil
}

// idleLocked waits until the worker has drained the queue.
func (b *SoftwareBackend) idleLocked() {
	for b.completed < b.submitted && !b.closed {
		b.cond.Wait()
	}
}

func (b *SoftwareBackend) worker() {
	defer close(b.done)
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			return
		}
		next := b.queue[0]
		b.queue = b.queue[1:]
		canvas := b.canvas

		// Readers and Init wait for completed == submitted, so the canvas
		// is not touched by anyone else while unlocked.
		b.mu.Unlock()
		for i := range next.cmds {
			canvas.Execute(&next.cmds[i])
		}
		b.mu.Lock()

		b.completed = next.handle
		b.cond.Broadcast()
	}
}
