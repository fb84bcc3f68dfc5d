package softraster

import (
	"image"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/vram"
)

// Source addresses texture memory relative to the texture page origin and
// the colour lookup table origin.
type Source interface {
	// PageAt returns the halfword at column x, row y of the page.
	PageAt(x, y int) vram.Pixel
	// ClutAt returns lookup table entry i.
	ClutAt(i int) vram.Pixel
}

// PageWidth returns the page width in halfwords for a colour depth.
func PageWidth(d drawstate.TextureDepth) int {
	switch d {
	case drawstate.Depth4:
		return 64
	case drawstate.Depth8:
		return 128
	default:
		return 256
	}
}

// ClutWidth returns the lookup table length for a colour depth, 0 for
// direct colour.
func ClutWidth(d drawstate.TextureDepth) int {
	switch d {
	case drawstate.Depth4:
		return 16
	case drawstate.Depth8:
		return 256
	default:
		return 0
	}
}

// Texel fetches the texel at (u, v) of a page. The texture window must
// already be applied. A zero result is fully transparent.
func Texel(src Source, depth drawstate.TextureDepth, u, v uint8) vram.Pixel {
	switch depth {
	case drawstate.Depth4:
		hw := src.PageAt(int(u)>>2, int(v))
		return src.ClutAt(int(hw>>((u&3)*4)) & 0xF)
	case drawstate.Depth8:
		hw := src.PageAt(int(u)>>1, int(v))
		return src.ClutAt(int(hw>>((u&1)*8)) & 0xFF)
	default:
		return src.PageAt(int(u), int(v))
	}
}

// fbSource reads texture memory straight from the canonical framebuffer.
type fbSource struct {
	fb           *vram.Framebuffer
	pageX, pageY int
	clutX, clutY int
}

func (s *fbSource) PageAt(x, y int) vram.Pixel {
	return s.fb.At(s.pageX+x, s.pageY+y)
}

func (s *fbSource) ClutAt(i int) vram.Pixel {
	return s.fb.At(s.clutX+i, s.clutY)
}

// TextureFootprint returns the framebuffer rectangles a textured primitive
// may read: the used part of its texture page and its lookup table. It
// returns nil for untextured primitives.
func TextureFootprint(p *prim.Primitive) []image.Rectangle {
	if !p.Textured() {
		return nil
	}
	r := PageRect(p)
	rects := vram.Split(p.Page.X+r.Min.X, p.Page.Y+r.Min.Y, r.Dx(), r.Dy())
	if n := ClutWidth(p.Page.Depth); n > 0 {
		rects = append(rects, vram.Split(p.ClutX, p.ClutY, n, 1)...)
	}
	return rects
}

// PageRect returns the halfwords of the texture page a textured primitive
// may read, relative to the page origin.
func PageRect(p *prim.Primitive) image.Rectangle {
	u0, u1, v0, v1 := texelRange(p)
	shift := 0
	switch p.Page.Depth {
	case drawstate.Depth4:
		shift = 2
	case drawstate.Depth8:
		shift = 1
	}
	return image.Rect(u0>>shift, v0, u1>>shift+1, v1+1)
}

// texelRange returns the inclusive texel bounds a primitive can address.
// Anything that may wrap inside the page falls back to the full page.
func texelRange(p *prim.Primitive) (u0, u1, v0, v1 int) {
	win := p.State.Window
	if win.MaskX != 0 || win.MaskY != 0 {
		return 0, 255, 0, 255
	}
	switch p.Kind {
	case prim.Rectangle:
		v := p.Vertices[0]
		u0, u1 = int(v.U), int(v.U)+p.W-1
		if p.Page.FlipX {
			u0, u1 = int(v.U)-p.W+1, int(v.U)
		}
		v0, v1 = int(v.V), int(v.V)+p.H-1
		if p.Page.FlipY {
			v0, v1 = int(v.V)-p.H+1, int(v.V)
		}
	default:
		u0, v0 = 255, 255
		for _, vx := range p.Vertices {
			u0, u1 = min(u0, int(vx.U)), max(u1, int(vx.U))
			v0, v1 = min(v0, int(vx.V)), max(v1, int(vx.V))
		}
	}
	if u0 < 0 || u1 > 255 {
		u0, u1 = 0, 255
	}
	if v0 < 0 || v1 > 255 {
		v0, v1 = 0, 255
	}
	return u0, u1, v0, v1
}
