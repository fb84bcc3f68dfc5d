// Package coherency keeps the canonical framebuffer and the accelerated
// scaled buffer consistent.
//
// Every primitive is drawn by the software rasterizer into the canonical
// framebuffer. When a backend is attached the engine also submits it to the
// backend and records the covered pixels. Once a submission is known
// complete its coverage is marked in the render atlas, and any later read
// of a marked pixel takes the accelerated value instead (reconciliation).
package coherency

import (
	"image"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/gogpu/psxgpu/internal/accel"
	"github.com/gogpu/psxgpu/internal/atlas"
	"github.com/gogpu/psxgpu/internal/parallel"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/softraster"
	"github.com/gogpu/psxgpu/internal/vram"
)

const (
	// bandRows is the number of rows one reconciliation task handles.
	bandRows = 32

	// maxPending bounds the submissions tracked before the engine forces
	// a full sync.
	maxPending = 4096
)

// Stats are diagnostic counters.
type Stats struct {
	Draws      uint64 // primitives drawn
	Submits    uint64 // backend submissions
	Seeded     uint64 // canonical pixels copied into the scaled buffer
	Reconciled uint64 // canonical pixels whose value a reconcile changed
	Waits      uint64 // batched backend waits
	Hazards    uint64 // texture reads that needed reconciliation
}

type span struct {
	y, x0, x1 int
}

// pending is the coverage of a submission not yet known complete.
type pending struct {
	handle accel.SyncHandle
	bounds image.Rectangle
	spans  []span
}

// Engine drives both rasterizers and owns the render atlas.
//
// Engine is NOT safe for concurrent use.
type Engine struct {
	fb   *vram.Framebuffer
	soft *softraster.Rasterizer
	pool *parallel.WorkerPool
	log  *slog.Logger

	backend accel.Backend
	scale   int
	strict  bool
	color   accel.ColorMode
	err     error

	atlas    *atlas.Atlas
	resident *atlas.Atlas
	pending  []pending

	stats Stats
}

// New returns an engine drawing into fb in software only. pool runs
// reconciliation bands; a nil logger discards output.
func New(fb *vram.Framebuffer, pool *parallel.WorkerPool, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		fb:       fb,
		soft:     softraster.New(fb),
		pool:     pool,
		log:      log,
		scale:    1,
		atlas:    atlas.New(vram.Width, vram.Height),
		resident: atlas.New(vram.Width, vram.Height),
	}
}

// SetStrict selects strict fidelity: a texture read of accelerated content
// reconciles the whole framebuffer and drops all scaled content.
func (e *Engine) SetStrict(strict bool) {
	e.strict = strict
}

// SetColorMode sets the colour handling of accelerated draws submitted
// from now on.
func (e *Engine) SetColorMode(m accel.ColorMode) {
	e.color = m
}

// Enable attaches b at scale factor s. b is initialized by Enable; the
// atlas starts empty. On error the engine stays in its previous mode.
func (e *Engine) Enable(b accel.Backend, s int) error {
	if err := b.Init(s); err != nil {
		return err
	}
	e.backend, e.scale, e.err = b, s, nil
	e.Reset()
	e.log.Info("coherency: accelerated rendering enabled", "backend", b.Name(), "scale", s)
	return nil
}

// Disable detaches the backend. The canonical framebuffer keeps the
// software rendition of every pixel; the caller owns the backend.
func (e *Engine) Disable() {
	if e.backend == nil {
		return
	}
	e.backend = nil
	e.scale = 1
	e.Reset()
}

// Accelerated reports whether a backend is attached.
func (e *Engine) Accelerated() bool { return e.backend != nil }

// Scale returns the active scale factor, 1 without a backend.
func (e *Engine) Scale() int { return e.scale }

// Err returns the error that detached the backend, if any.
func (e *Engine) Err() error { return e.err }

// Atlas returns the render atlas.
func (e *Engine) Atlas() *atlas.Atlas { return e.atlas }

// Stats returns the diagnostic counters.
func (e *Engine) Stats() Stats { return e.stats }

// fail detaches the backend after an error. Software rendering continues.
func (e *Engine) fail(err error) {
	e.log.Warn("coherency: accelerated backend failed, continuing in software",
		"backend", e.backend.Name(), "err", err)
	e.err = err
	e.backend = nil
	e.scale = 1
	e.Reset()
}

// Reset clears the atlas, the residency map and pending coverage. Work in
// flight is left to finish and its results are ignored.
func (e *Engine) Reset() {
	e.atlas.Clear()
	e.resident.Clear()
	e.pending = nil
}

// Draw renders p on both paths.
func (e *Engine) Draw(p *prim.Primitive) {
	e.stats.Draws++
	if e.backend != nil {
		e.drawAccelerated(p)
	}
	e.soft.Draw(p)
}

func (e *Engine) drawAccelerated(p *prim.Primitive) {
	if !softraster.Drawable(p) {
		return
	}
	if fp := softraster.TextureFootprint(p); fp != nil {
		e.Hazard(fp...)
		if e.backend == nil {
			return
		}
	}

	var cmds []accel.Cmd
	if p.Kind == prim.Fill {
		for _, r := range softraster.FillRects(p) {
			e.resident.MarkRect(r)
		}
	} else {
		r := p.Clip().Intersect(vram.Bounds)
		if r.Empty() {
			return
		}
		e.resident.Gaps(r, func(y, x0, x1 int) {
			cmds = append(cmds, accel.Seed(e.fb, image.Rect(x0, y, x1, y+1)))
			e.stats.Seeded += uint64(x1 - x0)
		})
		e.resident.MarkRect(r)
	}
	cmds = append(cmds, accel.Build(p, e.fb, e.resident, e.color))

	h, err := e.backend.Submit(cmds)
	if err != nil {
		e.fail(err)
		return
	}
	e.stats.Submits++

	pd := pending{handle: h}
	softraster.Coverage(p, func(y, x0, x1 int) {
		pd.spans = append(pd.spans, span{y, x0, x1})
		pd.bounds = pd.bounds.Union(image.Rect(x0, y, x1, y+1))
	})
	if len(pd.spans) > 0 {
		e.pending = append(e.pending, pd)
	}
	if len(e.pending) > maxPending {
		e.Sync()
	}
}

// commit marks the coverage of every pending submission up to and
// including handle h. Backends complete submissions in order.
func (e *Engine) commit(h accel.SyncHandle) {
	e.pending = slices.DeleteFunc(e.pending, func(pd pending) bool {
		if pd.handle > h {
			return false
		}
		for _, s := range pd.spans {
			e.atlas.MarkSpan(s.y, s.x0, s.x1)
		}
		return true
	})
}

// wait blocks on the pending submissions overlapping r with one batched
// wait and commits them. A zero rectangle waits for everything.
func (e *Engine) wait(r image.Rectangle, all bool) bool {
	var handles []accel.SyncHandle
	var last accel.SyncHandle
	for _, pd := range e.pending {
		if all || pd.bounds.Overlaps(r) {
			handles = append(handles, pd.handle)
			last = max(last, pd.handle)
		}
	}
	if len(handles) == 0 {
		return true
	}
	e.stats.Waits++
	if err := e.backend.Wait(handles...); err != nil {
		e.fail(err)
		return false
	}
	e.commit(last)
	return true
}

// Sync waits for all submitted work and commits its coverage.
func (e *Engine) Sync() {
	if e.backend == nil {
		return
	}
	e.wait(image.Rectangle{}, true)
}

// Reconcile makes the canonical framebuffer over r reflect the latest
// accelerated rendering: every atlas-marked pixel takes the backend sample
// for its block, quantized to 5 bits per channel. Unmarked pixels are left
// alone. Reconcile is idempotent.
func (e *Engine) Reconcile(r image.Rectangle) {
	r = vram.Clamp(r)
	if r.Empty() || e.backend == nil {
		return
	}
	if !e.wait(r, false) || !e.atlas.Any(r) {
		return
	}
	samples, err := e.backend.ReadSamples(r)
	if err != nil {
		e.fail(err)
		return
	}

	// Bands cover disjoint rows of the framebuffer.
	var changed atomic.Uint64
	e.pool.Rows(r, bandRows, func(band image.Rectangle) {
		var n uint64
		e.atlas.Spans(band, func(y, x0, x1 int) {
			row := e.fb.Row(y, x0, x1)
			base := (y-r.Min.Y)*r.Dx() + x0 - r.Min.X
			for i := range row {
				px := vram.FromRGBA8(accel.Unpack(samples[base+i]))
				if px != row[i] {
					row[i] = px
					n++
				}
			}
		})
		changed.Add(n)
	})
	e.stats.Reconciled += changed.Load()
}

// Hazard prepares for a texture read of rects: accelerated content there
// is reconciled first. In strict mode the whole framebuffer is reconciled
// and all scaled content is dropped.
func (e *Engine) Hazard(rects ...image.Rectangle) {
	if e.backend == nil {
		return
	}
	hit := false
	for _, r := range rects {
		if e.atlas.Any(r) || e.overlapsPending(r) {
			hit = true
			break
		}
	}
	if !hit {
		return
	}
	e.stats.Hazards++
	if e.strict {
		e.Sync()
		e.Reconcile(vram.Bounds)
		e.Reset()
		return
	}
	for _, r := range rects {
		e.Reconcile(r)
	}
}

func (e *Engine) overlapsPending(r image.Rectangle) bool {
	for _, pd := range e.pending {
		if pd.bounds.Overlaps(r) {
			return true
		}
	}
	return false
}

// Invalidate records a direct write to r: the canonical framebuffer is
// authoritative there again and the scaled copy is stale.
func (e *Engine) Invalidate(r image.Rectangle) {
	r = vram.Clamp(r)
	if r.Empty() {
		return
	}
	e.atlas.ClearRect(r)
	e.resident.ClearRect(r)
	for i := range e.pending {
		pd := &e.pending[i]
		if pd.bounds.Overlaps(r) {
			pd.spans = cut(pd.spans, r)
		}
	}
}

// cut removes the parts of spans inside r.
func cut(spans []span, r image.Rectangle) []span {
	out := spans[:0:0]
	for _, s := range spans {
		if s.y < r.Min.Y || s.y >= r.Max.Y || s.x1 <= r.Min.X || s.x0 >= r.Max.X {
			out = append(out, s)
			continue
		}
		if s.x0 < r.Min.X {
			out = append(out, span{s.y, s.x0, r.Min.X})
		}
		if s.x1 > r.Max.X {
			out = append(out, span{s.y, r.Max.X, s.x1})
		}
	}
	return out
}
