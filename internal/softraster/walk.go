package softraster

import (
	"image"

	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/vram"
)

// Hardware limits on primitive extent. Lines and polygons with an edge at
// or beyond these distances are not drawn at all.
const (
	maxEdgeX = 1024
	maxEdgeY = 512
)

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func edgeTooLong(a, b prim.Vertex) bool {
	return abs(a.X-b.X) >= maxEdgeX || abs(a.Y-b.Y) >= maxEdgeY
}

// Drawable reports whether the hardware would draw p at all.
func Drawable(p *prim.Primitive) bool {
	v := &p.Vertices
	switch p.Kind {
	case prim.Triangle:
		return !edgeTooLong(v[0], v[1]) && !edgeTooLong(v[1], v[2]) && !edgeTooLong(v[2], v[0])
	case prim.Line:
		return !edgeTooLong(v[0], v[1])
	default:
		return p.W > 0 && p.H > 0
	}
}

// cross is the z component of (b-a)×(c-a).
func cross(a, b, c image.Point) int64 {
	return int64(b.X-a.X)*int64(c.Y-a.Y) - int64(b.Y-a.Y)*int64(c.X-a.X)
}

// edgeBias is 0 for top and left edges of a positively wound triangle and
// -1 otherwise, which excludes samples lying exactly on right and bottom
// edges.
func edgeBias(from, to image.Point) int64 {
	d := to.Sub(from)
	if d.Y < 0 || (d.Y == 0 && d.X > 0) {
		return 0
	}
	return -1
}

// WalkTriangle visits every integer sample point inside clip covered by
// the triangle v under the top-left fill rule. fn receives the edge
// function weights of the three vertices, in input order, and their sum.
// The weights of a covered sample are all non-negative.
//
// The walk depends only on the ratio between vertex coordinates and the
// sample grid, so calling it with coordinates and clip scaled by s covers
// sample (x·s, y·s) exactly when the unscaled walk covers (x, y).
func WalkTriangle(v [3]image.Point, clip image.Rectangle, fn func(x, y int, w *[3]int64, area int64)) {
	area := cross(v[0], v[1], v[2])
	if area == 0 {
		return
	}
	a, b, c := 0, 1, 2
	if area < 0 {
		b, c = 2, 1
		area = -area
	}
	pa, pb, pc := v[a], v[b], v[c]

	box := image.Rect(
		min(pa.X, pb.X, pc.X), min(pa.Y, pb.Y, pc.Y),
		max(pa.X, pb.X, pc.X)+1, max(pa.Y, pb.Y, pc.Y)+1,
	).Intersect(clip)
	if box.Empty() {
		return
	}

	biasA, biasB, biasC := edgeBias(pb, pc), edgeBias(pc, pa), edgeBias(pa, pb)

	// Edge functions are affine: step them along x instead of
	// re-evaluating each sample.
	stepA, stepB, stepC := int64(pb.Y-pc.Y), int64(pc.Y-pa.Y), int64(pa.Y-pb.Y)

	var w [3]int64
	for y := box.Min.Y; y < box.Max.Y; y++ {
		p := image.Pt(box.Min.X, y)
		ea, eb, ec := cross(pb, pc, p), cross(pc, pa, p), cross(pa, pb, p)
		for x := box.Min.X; x < box.Max.X; x++ {
			if ea+biasA >= 0 && eb+biasB >= 0 && ec+biasC >= 0 {
				w[a], w[b], w[c] = ea, eb, ec
				fn(x, y, &w, area)
			}
			ea += stepA
			eb += stepB
			ec += stepC
		}
	}
}

// WalkLine visits the pixels of the line from a to b with a 16.16 DDA.
// fn receives the step index i out of k steps (k = 0 for a single point).
func WalkLine(a, b image.Point, fn func(x, y, i, k int)) {
	dx, dy := b.X-a.X, b.Y-a.Y
	k := max(abs(dx), abs(dy))
	if k == 0 {
		fn(a.X, a.Y, 0, 0)
		return
	}
	sx := (int64(dx) << 16) / int64(k)
	sy := (int64(dy) << 16) / int64(k)
	x := int64(a.X)<<16 + 1<<15
	y := int64(a.Y)<<16 + 1<<15
	for i := 0; i <= k; i++ {
		fn(int(x>>16), int(y>>16), i, k)
		x += sx
		y += sy
	}
}

// Lerp interpolates between two 8-bit values at step i of k, rounding to
// nearest.
func Lerp(a, b uint8, i, k int) uint8 {
	if k == 0 {
		return a
	}
	return uint8((int(a)*(k-i) + int(b)*i + k/2) / k)
}

// FillRects returns the in-bounds rectangles written by a fill. Fills wrap
// at the framebuffer edges.
func FillRects(p *prim.Primitive) []image.Rectangle {
	v := p.Vertices[0]
	return vram.Split(v.X, v.Y, p.W, p.H)
}

func points(p *prim.Primitive) [3]image.Point {
	v := &p.Vertices
	return [3]image.Point{{v[0].X, v[0].Y}, {v[1].X, v[1].Y}, {v[2].X, v[2].Y}}
}

// spanner merges per-pixel visits into horizontal spans.
type spanner struct {
	fn     func(y, x0, x1 int)
	y      int
	x0, x1 int
	open   bool
}

func (s *spanner) add(x, y int) {
	if s.open && y == s.y && x == s.x1 {
		s.x1++
		return
	}
	s.flush()
	s.y, s.x0, s.x1, s.open = y, x, x+1, true
}

func (s *spanner) flush() {
	if s.open {
		s.fn(s.y, s.x0, s.x1)
		s.open = false
	}
}

// Coverage reports the pixels p writes at native resolution, ignoring the
// mask test and texture transparency, as horizontal spans. Spans are
// clipped to the drawing area (fills excepted) and to the framebuffer.
func Coverage(p *prim.Primitive, fn func(y, x0, x1 int)) {
	if !Drawable(p) {
		return
	}
	if p.Kind == prim.Fill {
		for _, r := range FillRects(p) {
			for y := r.Min.Y; y < r.Max.Y; y++ {
				fn(y, r.Min.X, r.Max.X)
			}
		}
		return
	}
	clip := p.Clip().Intersect(vram.Bounds)
	switch p.Kind {
	case prim.Triangle:
		s := spanner{fn: fn}
		WalkTriangle(points(p), clip, func(x, y int, _ *[3]int64, _ int64) {
			s.add(x, y)
		})
		s.flush()
	case prim.Line:
		s := spanner{fn: fn}
		a, b := p.Vertices[0], p.Vertices[1]
		WalkLine(image.Pt(a.X, a.Y), image.Pt(b.X, b.Y), func(x, y, _, _ int) {
			if image.Pt(x, y).In(clip) {
				s.add(x, y)
			}
		})
		s.flush()
	case prim.Rectangle:
		for y := clip.Min.Y; y < clip.Max.Y; y++ {
			fn(y, clip.Min.X, clip.Max.X)
		}
	}
}
