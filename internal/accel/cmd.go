package accel

import (
	"image"

	"github.com/gogpu/psxgpu/internal/atlas"
	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/softraster"
	"github.com/gogpu/psxgpu/internal/vram"
)

// Op selects what a Cmd does to the scaled buffer.
type Op uint8

const (
	// OpSeed copies canonical pixels into their scaled blocks.
	OpSeed Op = iota
	// OpTriangle draws a triangle.
	OpTriangle
	// OpLine draws a line one canonical pixel wide.
	OpLine
	// OpRect draws a sprite or solid rectangle.
	OpRect
	// OpFill clears scaled rectangles to a solid colour.
	OpFill
)

var opNames = [...]string{"seed", "triangle", "line", "rect", "fill"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Dither selects where native-depth draws apply the ordered dither.
type Dither uint8

const (
	// DitherOff never dithers.
	DitherOff Dither = iota
	// DitherNative dithers at canonical pixel positions, so every scaled
	// block shares one matrix entry.
	DitherNative
	// DitherScaled dithers at scaled pixel positions.
	DitherScaled
)

// ColorMode is the colour handling of accelerated draws. The zero value
// keeps 8 bits per channel.
type ColorMode struct {
	// Native rounds drawn colours to 5 bits per channel like the
	// canonical path.
	Native bool
	// Dither applies to Native draws whose state enables dithering.
	Dither Dither
}

// Cmd is one self-contained unit of accelerated work. Everything a backend
// needs is captured at build time so the command can execute after the
// canonical framebuffer has moved on.
type Cmd struct {
	Op Op

	// Rect is the canonical region the command may touch: the clipped
	// bounds for draws, the copied region for seeds.
	Rect image.Rectangle

	// Prim is the primitive being drawn. Unused by OpSeed.
	Prim prim.Primitive

	// Pixels holds the canonical content of Rect for OpSeed, row-major.
	Pixels []vram.Pixel

	// Texture is the texel snapshot of a textured draw, nil otherwise.
	Texture *Texture

	// Mask is the canonical mask plane over Rect when the draw tests the
	// mask bit, nil otherwise.
	Mask *Mask

	// Color is the colour handling of draws.
	Color ColorMode
}

// Texture is the part of a texture page and lookup table a draw may read.
type Texture struct {
	Depth        drawstate.TextureDepth
	PageX, PageY int

	// Rect is the snapshotted part of the page, in halfwords relative to
	// the page origin.
	Rect image.Rectangle
	Page []vram.Pixel
	Clut []vram.Pixel

	// Resident marks 15-bit texels whose scaled block holds a trustworthy
	// copy. Backends sample those from the scaled buffer. Nil for
	// palettized pages.
	Resident []bool
}

var _ softraster.Source = (*Texture)(nil)

func (t *Texture) index(x, y int) (int, bool) {
	pt := image.Pt(x, y)
	if !pt.In(t.Rect) {
		return 0, false
	}
	return (y-t.Rect.Min.Y)*t.Rect.Dx() + x - t.Rect.Min.X, true
}

// PageAt implements softraster.Source. Halfwords outside the snapshot read
// as transparent.
func (t *Texture) PageAt(x, y int) vram.Pixel {
	i, ok := t.index(x, y)
	if !ok {
		return 0
	}
	return t.Page[i]
}

// ClutAt implements softraster.Source.
func (t *Texture) ClutAt(i int) vram.Pixel {
	if i >= len(t.Clut) {
		return 0
	}
	return t.Clut[i]
}

// IsResident reports whether 15-bit texel (u, v) may be read from the
// scaled buffer.
func (t *Texture) IsResident(u, v uint8) bool {
	if t.Resident == nil {
		return false
	}
	i, ok := t.index(int(u), int(v))
	return ok && t.Resident[i]
}

// Mask is a snapshot of canonical mask bits.
type Mask struct {
	Rect image.Rectangle
	Bits []bool
}

// At reports the mask bit of canonical pixel (x, y). Pixels outside the
// snapshot read as unmasked.
func (m *Mask) At(x, y int) bool {
	if m == nil || !image.Pt(x, y).In(m.Rect) {
		return false
	}
	return m.Bits[(y-m.Rect.Min.Y)*m.Rect.Dx()+x-m.Rect.Min.X]
}

// Seed returns a command that copies the canonical content of r (clamped)
// into the scaled buffer.
func Seed(fb *vram.Framebuffer, r image.Rectangle) Cmd {
	r = vram.Clamp(r)
	px := make([]vram.Pixel, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		px = append(px, fb.Row(y, r.Min.X, r.Max.X)...)
	}
	return Cmd{Op: OpSeed, Rect: r, Pixels: px}
}

// Build translates p into a draw command. fb is the canonical framebuffer
// as the primitive would see it and resident reports which canonical
// pixels have a trustworthy scaled copy; resident may be nil.
func Build(p *prim.Primitive, fb *vram.Framebuffer, resident *atlas.Atlas, mode ColorMode) Cmd {
	c := Cmd{Prim: *p, Color: mode}
	switch p.Kind {
	case prim.Triangle:
		c.Op = OpTriangle
	case prim.Line:
		c.Op = OpLine
	case prim.Rectangle:
		c.Op = OpRect
	case prim.Fill:
		c.Op = OpFill
	}
	if p.Kind == prim.Fill {
		c.Rect = p.Bounds()
		return c
	}
	c.Rect = p.Clip().Intersect(vram.Bounds)
	if p.Textured() {
		c.Texture = snapshotTexture(p, fb, resident, c.Rect)
	}
	if p.State.CheckMask {
		c.Mask = &Mask{Rect: c.Rect, Bits: fb.MaskPlane(c.Rect)}
	}
	return c
}

// snapshotTexture captures the texels p may read. Texels inside the
// draw's own target are never resident; they read the canonical copy
// taken before the draw.
func snapshotTexture(p *prim.Primitive, fb *vram.Framebuffer, resident *atlas.Atlas, target image.Rectangle) *Texture {
	r := softraster.PageRect(p)
	t := &Texture{
		Depth: p.Page.Depth,
		PageX: p.Page.X,
		PageY: p.Page.Y,
		Rect:  r,
		Page:  fb.Snapshot(p.Page.X+r.Min.X, p.Page.Y+r.Min.Y, r.Dx(), r.Dy()),
	}
	if n := softraster.ClutWidth(p.Page.Depth); n > 0 {
		t.Clut = fb.Snapshot(p.ClutX, p.ClutY, n, 1)
		return t
	}
	if resident == nil {
		return t
	}
	t.Resident = make([]bool, 0, len(t.Page))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			pt := image.Pt((p.Page.X+x)&(vram.Width-1), (p.Page.Y+y)&(vram.Height-1))
			t.Resident = append(t.Resident, resident.IsMarked(pt.X, pt.Y) && !pt.In(target))
		}
	}
	return t
}
