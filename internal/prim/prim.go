// Package prim defines the decoded draw operations handed from the command
// decoder to both rasterizers.
package prim

import (
	"image"

	"github.com/gogpu/psxgpu/internal/drawstate"
)

// Kind is the primitive shape.
type Kind uint8

const (
	Triangle Kind = iota
	Line
	Rectangle
	Fill
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Triangle:
		return "Triangle"
	case Line:
		return "Line"
	case Rectangle:
		return "Rectangle"
	case Fill:
		return "Fill"
	default:
		return "Unknown"
	}
}

// TextureMode selects how texels combine with the vertex colour.
type TextureMode uint8

const (
	// Untextured primitives use the vertex colour only.
	Untextured TextureMode = iota
	// Modulated multiplies texel and vertex colour (0x80 is neutral).
	Modulated
	// Raw uses the texel unchanged.
	Raw
)

// Vertex is one corner in drawing coordinates (offset already applied).
type Vertex struct {
	X, Y    int
	R, G, B uint8
	U, V    uint8
}

// Primitive is one decoded drawable shape with everything a rasterizer
// needs. Triangles use Vertices[0:3], lines Vertices[0:2], rectangles and
// fills Vertices[0] plus W and H.
type Primitive struct {
	Kind      Kind
	Vertices  [3]Vertex
	W, H      int
	Gouraud   bool
	Texture   TextureMode
	SemiTrans bool
	Page      drawstate.TexturePage
	ClutX     int
	ClutY     int
	State     drawstate.State // register snapshot at emission
}

// Textured reports whether the primitive samples a texture.
func (p *Primitive) Textured() bool {
	return p.Texture != Untextured && p.Kind != Fill && p.Kind != Line
}

// Blend returns the semi-transparency equation in effect.
func (p *Primitive) Blend() drawstate.BlendMode {
	return p.Page.Blend
}

// Bounds returns the half-open bounding box of the primitive's vertices
// before clipping.
func (p *Primitive) Bounds() image.Rectangle {
	switch p.Kind {
	case Rectangle, Fill:
		v := p.Vertices[0]
		return image.Rect(v.X, v.Y, v.X+p.W, v.Y+p.H)
	case Line:
		a, b := p.Vertices[0], p.Vertices[1]
		return image.Rect(min(a.X, b.X), min(a.Y, b.Y), max(a.X, b.X)+1, max(a.Y, b.Y)+1)
	default:
		minX, minY := p.Vertices[0].X, p.Vertices[0].Y
		maxX, maxY := minX, minY
		for _, v := range p.Vertices[1:] {
			minX, maxX = min(minX, v.X), max(maxX, v.X)
			minY, maxY = min(minY, v.Y), max(maxY, v.Y)
		}
		return image.Rect(minX, minY, maxX+1, maxY+1)
	}
}

// Clip returns the region the primitive may write: its bounds intersected
// with the drawing area. Fills ignore the drawing area.
func (p *Primitive) Clip() image.Rectangle {
	if p.Kind == Fill {
		return p.Bounds()
	}
	return p.Bounds().Intersect(p.State.Area.Rect())
}
