package psxgpu

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/psxgpu/internal/coherency"
	"github.com/gogpu/psxgpu/internal/gp0"
	"github.com/gogpu/psxgpu/internal/parallel"
	"github.com/gogpu/psxgpu/internal/vram"
)

// VRAM dimensions in halfwords.
const (
	VRAMWidth  = vram.Width
	VRAMHeight = vram.Height
)

// GPU is an emulated PS1-class graphics processor.
//
// All framebuffer access from outside goes through WriteGP0, WriteGP1,
// ReadWord, ReadRegion and WriteRegion; reads always see the reconciled
// framebuffer regardless of which rasterizer produced it.
//
// GPU is NOT safe for concurrent use.
type GPU struct {
	opts options
	log  *slog.Logger

	fb      *vram.Framebuffer
	dec     *gp0.Decoder
	eng     *coherency.Engine
	pool    *parallel.WorkerPool
	backend Backend
}

// New creates a GPU in its reset state.
func New(opts ...Option) (*GPU, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.scale < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScale, o.scale)
	}

	g := &GPU{
		opts:    o,
		log:     Logger(),
		fb:      vram.New(),
		pool:    parallel.NewWorkerPool(o.workers),
		backend: o.backend,
	}
	g.dec = gp0.New(sink{g}, g.log)
	g.eng = coherency.New(g.fb, g.pool, g.log)
	g.eng.SetStrict(o.strict)
	g.eng.SetColorMode(o.colorMode())

	var err error
	if o.accelerated {
		err = g.enable(o.scale)
	} else {
		err = g.checkScale(o.scale)
	}
	if err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// Close releases the worker pool and the backend.
func (g *GPU) Close() {
	g.eng.Disable()
	if g.backend != nil {
		g.backend.Close()
		g.backend = nil
	}
	g.pool.Close()
}

// checkScale validates s against the backend enable would attach,
// creating it on first need. Scale 1 needs no backend to be valid.
func (g *GPU) checkScale(s int) error {
	if s < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidScale, s)
	}
	if s == 1 && g.backend == nil {
		return nil
	}
	if g.backend == nil {
		g.backend = newBackend()
	}
	if limit := g.backend.MaxScale(); s > limit {
		return fmt.Errorf("%w: %d exceeds %s limit %d", ErrScaleTooLarge, s, g.backend.Name(), limit)
	}
	return nil
}

func (g *GPU) enable(s int) error {
	if g.backend == nil {
		g.backend = newBackend()
	}
	if err := g.checkScale(s); err != nil {
		return err
	}
	if err := g.eng.Enable(g.backend, s); err != nil {
		return fmt.Errorf("psxgpu: enable %s backend: %w", g.backend.Name(), err)
	}
	return nil
}

// SetScale changes the accelerated resolution multiplier. The atlas is
// invalidated; work in flight finishes first. The scale is checked
// against the backend limit even while the accelerated path is off, and
// on error the previous scale stays in effect.
func (g *GPU) SetScale(s int) error {
	if err := g.checkScale(s); err != nil {
		return err
	}
	if g.eng.Accelerated() {
		if err := g.enable(s); err != nil {
			return err
		}
	}
	g.opts.scale = s
	g.log.Info("psxgpu: scale changed", "scale", s)
	return nil
}

// Scale returns the configured resolution multiplier.
func (g *GPU) Scale() int {
	return g.opts.scale
}

// SetAccelerated turns the accelerated rasterizer on or off. Turning it
// off keeps the software rendition of every pixel.
func (g *GPU) SetAccelerated(on bool) error {
	if on == g.eng.Accelerated() {
		return nil
	}
	if !on {
		g.eng.Disable()
		return nil
	}
	return g.enable(g.opts.scale)
}

// Accelerated reports whether the accelerated rasterizer is running.
func (g *GPU) Accelerated() bool {
	return g.eng.Accelerated()
}

// BackendName names the accelerated backend, or returns "" before one
// has been created.
func (g *GPU) BackendName() string {
	if g.backend == nil {
		return ""
	}
	return g.backend.Name()
}

// AcceleratedErr returns the backend error that switched the GPU back to
// software rendering, or nil.
func (g *GPU) AcceleratedErr() error {
	return g.eng.Err()
}

// Stats returns rendering diagnostics.
func (g *GPU) Stats() coherency.Stats {
	return g.eng.Stats()
}

// WriteGP0 writes one word to the drawing port.
func (g *GPU) WriteGP0(w uint32) {
	g.dec.WriteGP0(w)
}

// WriteGP1 writes one word to the display-control port.
func (g *GPU) WriteGP1(w uint32) {
	g.dec.WriteGP1(w)
}

// ReadWord reads GPUREAD.
func (g *GPU) ReadWord() uint32 {
	return g.dec.ReadWord()
}

// Status reads GPUSTAT.
func (g *GPU) Status() uint32 {
	return g.dec.Status()
}

// Sync waits for all accelerated work and marks its coverage. Front ends
// call it once per frame.
func (g *GPU) Sync() {
	g.eng.Sync()
}

// ReadRegion returns the canonical pixels of r row-major after
// reconciling them. r is clamped to the framebuffer.
func (g *GPU) ReadRegion(r image.Rectangle) []uint16 {
	r = vram.Clamp(r)
	g.eng.Reconcile(r)
	out := make([]uint16, r.Dx()*r.Dy())
	g.fb.ReadRect(r, out)
	return out
}

// WriteRegion stores px into r and returns the number of pixels written.
// px is row-major over r; the parts of r outside the framebuffer are
// dropped. The written region becomes software authoritative.
func (g *GPU) WriteRegion(r image.Rectangle, px []uint16) int {
	n := g.fb.WriteRect(r, px)
	g.eng.Invalidate(vram.Clamp(r))
	return n
}
