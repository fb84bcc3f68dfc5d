package coherency

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/psxgpu/internal/vram"
)

// Composite returns region r (clamped) at the active scale: accelerated
// content where the atlas is marked, canonical pixels enlarged with
// nearest-neighbour sampling everywhere else. Without a backend it is the
// canonical region at scale 1.
func (e *Engine) Composite(r image.Rectangle) (*image.RGBA, error) {
	r = vram.Clamp(r)
	lo := e.fb.RGBA(r)
	if e.backend == nil || r.Empty() {
		return lo, nil
	}
	e.Sync()
	if e.backend == nil {
		return lo, nil
	}
	hi, err := e.backend.ReadScaled(r)
	if err != nil {
		e.fail(err)
		return lo, nil
	}

	s := e.scale
	out := image.NewRGBA(hi.Bounds())
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), lo, lo.Bounds(), draw.Src, nil)
	e.atlas.Spans(r, func(y, x0, x1 int) {
		blk := image.Rect(x0-r.Min.X, y-r.Min.Y, x1-r.Min.X, y+1-r.Min.Y)
		blk = image.Rectangle{Min: blk.Min.Mul(s), Max: blk.Max.Mul(s)}
		draw.Draw(out, blk, hi, blk.Min, draw.Src)
	})
	return out, nil
}
