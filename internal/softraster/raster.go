// Package softraster is the pixel-exact software rasterizer.
//
// It draws primitives straight into the canonical framebuffer with the
// hardware's fixed-point rules: top-left fill convention, 16.16 line
// stepping, 4×4 ordered dithering, the four semi-transparency equations,
// mask test and mask set, and draw-area clipping. The accelerated backends
// reuse its walkers and pixel arithmetic so that both paths agree on
// coverage.
package softraster

import (
	"image"

	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/vram"
)

// Rasterizer draws into a canonical framebuffer.
//
// Rasterizer is NOT safe for concurrent use.
type Rasterizer struct {
	fb  *vram.Framebuffer
	tex fbSource
}

// New returns a rasterizer drawing into fb.
func New(fb *vram.Framebuffer) *Rasterizer {
	return &Rasterizer{fb: fb, tex: fbSource{fb: fb}}
}

// Framebuffer returns the target framebuffer.
func (r *Rasterizer) Framebuffer() *vram.Framebuffer {
	return r.fb
}

// Draw rasterizes p.
func (r *Rasterizer) Draw(p *prim.Primitive) {
	if !Drawable(p) {
		return
	}
	if p.Textured() {
		r.tex.pageX, r.tex.pageY = p.Page.X, p.Page.Y
		r.tex.clutX, r.tex.clutY = p.ClutX, p.ClutY
	}
	switch p.Kind {
	case prim.Triangle:
		r.triangle(p)
	case prim.Line:
		r.line(p)
	case prim.Rectangle:
		r.rectangle(p)
	case prim.Fill:
		r.fill(p)
	}
}

// Dithered reports whether p goes through the dither stage.
func Dithered(p *prim.Primitive) bool {
	if !p.State.Dither || p.Kind == prim.Rectangle || p.Texture == prim.Raw {
		return false
	}
	return p.Gouraud || p.Texture == prim.Modulated
}

// shade computes and stores one pixel. c is the 8-bit vertex colour at
// the pixel; u and v are texture coordinates before the window.
func (r *Rasterizer) shade(p *prim.Primitive, x, y int, c [3]uint8, u, v uint8, dither bool) {
	st := &p.State
	dst := r.fb.At(x, y)
	if st.CheckMask && dst.Masked() {
		return
	}

	var out vram.Pixel
	stp := false
	if p.Textured() {
		u, v = st.Window.Apply(u, v)
		t := Texel(&r.tex, p.Page.Depth, u, v)
		if t == 0 {
			return
		}
		stp = t.Masked()
		if p.Texture == prim.Raw {
			out = t &^ vram.MaskBit
		} else {
			c = [3]uint8{Modulate(t.R(), c[0]), Modulate(t.G(), c[1]), Modulate(t.B(), c[2])}
			out = r.quantize(c, x, y, dither)
		}
	} else {
		out = r.quantize(c, x, y, dither)
	}

	if p.SemiTrans && (!p.Textured() || stp) {
		out = BlendPixel(p.Blend(), dst, out)
	}
	r.fb.Set(x, y, out.WithMask(st.SetMask || stp))
}

func (r *Rasterizer) quantize(c [3]uint8, x, y int, dither bool) vram.Pixel {
	if dither {
		return vram.RGB5(Dither(c[0], x, y), Dither(c[1], x, y), Dither(c[2], x, y))
	}
	return vram.RGB8(c[0], c[1], c[2])
}

func vertexColor(v *prim.Vertex) [3]uint8 {
	return [3]uint8{v.R, v.G, v.B}
}

func (r *Rasterizer) triangle(p *prim.Primitive) {
	clip := p.Clip().Intersect(vram.Bounds)
	vs := &p.Vertices
	flat := vertexColor(&vs[0])
	dither := Dithered(p)
	WalkTriangle(points(p), clip, func(x, y int, w *[3]int64, area int64) {
		c := flat
		if p.Gouraud {
			c = [3]uint8{
				InterpColor(w, area, vs[0].R, vs[1].R, vs[2].R),
				InterpColor(w, area, vs[0].G, vs[1].G, vs[2].G),
				InterpColor(w, area, vs[0].B, vs[1].B, vs[2].B),
			}
		}
		var u, v uint8
		if p.Textured() {
			u = interpFloor(w, area, vs[0].U, vs[1].U, vs[2].U)
			v = interpFloor(w, area, vs[0].V, vs[1].V, vs[2].V)
		}
		r.shade(p, x, y, c, u, v, dither)
	})
}

// interpFloor interpolates a vertex attribute, rounding down.
func interpFloor(w *[3]int64, area int64, a0, a1, a2 uint8) uint8 {
	return uint8((w[0]*int64(a0) + w[1]*int64(a1) + w[2]*int64(a2)) / area)
}

// InterpFixed interpolates a vertex attribute with s fractional steps per
// unit and rounds down: the result is floor(value·s).
func InterpFixed(w *[3]int64, area int64, s int, a0, a1, a2 uint8) int {
	return int((w[0]*int64(a0) + w[1]*int64(a1) + w[2]*int64(a2)) * int64(s) / area)
}

// InterpColor interpolates an 8-bit colour channel, rounding to nearest.
func InterpColor(w *[3]int64, area int64, a0, a1, a2 uint8) uint8 {
	return uint8((w[0]*int64(a0) + w[1]*int64(a1) + w[2]*int64(a2) + area/2) / area)
}

func (r *Rasterizer) line(p *prim.Primitive) {
	clip := p.Clip().Intersect(vram.Bounds)
	a, b := &p.Vertices[0], &p.Vertices[1]
	dither := Dithered(p)
	WalkLine(image.Pt(a.X, a.Y), image.Pt(b.X, b.Y), func(x, y, i, k int) {
		if !image.Pt(x, y).In(clip) {
			return
		}
		c := vertexColor(a)
		if p.Gouraud {
			c = [3]uint8{Lerp(a.R, b.R, i, k), Lerp(a.G, b.G, i, k), Lerp(a.B, b.B, i, k)}
		}
		r.shade(p, x, y, c, 0, 0, dither)
	})
}

// RectTexel returns the texture coordinate of the pixel d steps from a
// rectangle's origin along one axis.
func RectTexel(origin uint8, d int, flip bool) uint8 {
	if flip {
		return uint8(int(origin) - d)
	}
	return uint8(int(origin) + d)
}

func (r *Rasterizer) rectangle(p *prim.Primitive) {
	clip := p.Clip().Intersect(vram.Bounds)
	o := &p.Vertices[0]
	c := vertexColor(o)
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		v := RectTexel(o.V, y-o.Y, p.Page.FlipY)
		for x := clip.Min.X; x < clip.Max.X; x++ {
			u := RectTexel(o.U, x-o.X, p.Page.FlipX)
			r.shade(p, x, y, c, u, v, false)
		}
	}
}

func (r *Rasterizer) fill(p *prim.Primitive) {
	o := &p.Vertices[0]
	px := vram.RGB8(o.R, o.G, o.B)
	for _, rc := range FillRects(p) {
		for y := rc.Min.Y; y < rc.Max.Y; y++ {
			row := r.fb.Row(y, rc.Min.X, rc.Max.X)
			for i := range row {
				row[i] = px
			}
		}
	}
}
