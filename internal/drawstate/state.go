// Package drawstate holds the persistent GPU register set mutated by the
// command decoder and read by both rasterizers.
//
// State is a plain value type. The decoder owns the live copy and hands a
// copy to every primitive it emits, so a rasterizer always sees a
// consistent snapshot even when register writes and draws interleave.
package drawstate

import "image"

// BlendMode selects one of the four semi-transparency equations.
// B is the framebuffer colour and F the primitive colour.
type BlendMode uint8

const (
	// BlendAverage is B/2 + F/2.
	BlendAverage BlendMode = iota
	// BlendAdd is B + F.
	BlendAdd
	// BlendSubtract is B - F.
	BlendSubtract
	// BlendAddQuarter is B + F/4.
	BlendAddQuarter
)

// String returns the equation name.
func (m BlendMode) String() string {
	switch m {
	case BlendAverage:
		return "Average"
	case BlendAdd:
		return "Add"
	case BlendSubtract:
		return "Subtract"
	case BlendAddQuarter:
		return "AddQuarter"
	default:
		return "Unknown"
	}
}

// TextureDepth is the colour depth of a texture page.
type TextureDepth uint8

const (
	// Depth4 pages hold four 4-bit lookup-table indices per halfword.
	Depth4 TextureDepth = iota
	// Depth8 pages hold two 8-bit lookup-table indices per halfword.
	Depth8
	// Depth15 pages hold direct 15-bit colours.
	Depth15
)

// TexturePage locates a 256×256 texel page in video memory.
type TexturePage struct {
	X, Y  int // origin in halfwords
	Blend BlendMode
	Depth TextureDepth
	FlipX bool // rectangles only
	FlipY bool // rectangles only
}

// TexturePageFromWord decodes the texpage fields shared by the E1 command
// and the polygon texpage attribute.
func TexturePageFromWord(w uint32) TexturePage {
	depth := TextureDepth((w >> 7) & 3)
	if depth > Depth15 {
		// The reserved setting behaves like 15-bit.
		depth = Depth15
	}
	return TexturePage{
		X:     int(w&0xF) * 64,
		Y:     int((w>>4)&1) * 256,
		Blend: BlendMode((w >> 5) & 3),
		Depth: depth,
		FlipX: w&(1<<12) != 0,
		FlipY: w&(1<<13) != 0,
	}
}

// Word encodes the page back into the low GPUSTAT/E1 bit layout.
func (p TexturePage) Word() uint32 {
	w := uint32(p.X/64)&0xF | uint32(p.Y/256&1)<<4 | uint32(p.Blend)<<5 | uint32(p.Depth)<<7
	if p.FlipX {
		w |= 1 << 12
	}
	if p.FlipY {
		w |= 1 << 13
	}
	return w
}

// TextureWindow restricts texture coordinates to a repeating sub-window.
// All fields are in 8-texel steps.
type TextureWindow struct {
	MaskX, MaskY     uint8
	OffsetX, OffsetY uint8
}

// Apply maps texture coordinates through the window.
func (w TextureWindow) Apply(u, v uint8) (uint8, uint8) {
	u = u&^(w.MaskX*8) | (w.OffsetX&w.MaskX)*8
	v = v&^(w.MaskY*8) | (w.OffsetY&w.MaskY)*8
	return u, v
}

// DrawArea is the inclusive drawing-area clip rectangle.
type DrawArea struct {
	Left, Top, Right, Bottom int
}

// Contains reports whether (x, y) lies inside the area.
func (a DrawArea) Contains(x, y int) bool {
	return x >= a.Left && x <= a.Right && y >= a.Top && y <= a.Bottom
}

// Rect returns the area as a half-open rectangle. An inverted area yields
// an empty rectangle.
func (a DrawArea) Rect() image.Rectangle {
	if a.Right < a.Left || a.Bottom < a.Top {
		return image.Rectangle{}
	}
	return image.Rect(a.Left, a.Top, a.Right+1, a.Bottom+1)
}

// State is the complete GPU register set.
type State struct {
	TexPage       TexturePage
	Window        TextureWindow
	Area          DrawArea
	OffsetX       int
	OffsetY       int
	SetMask       bool // force the mask bit on every drawn pixel
	CheckMask     bool // skip pixels whose mask bit is already set
	Dither        bool
	DrawToDisplay bool
	IRQ           bool
	Display       Display
}

// Default returns the power-on register state.
func Default() State {
	return State{Display: DefaultDisplay()}
}

// SetDrawMode applies GP0(E1h).
func (s *State) SetDrawMode(w uint32) {
	s.TexPage = TexturePageFromWord(w)
	s.Dither = w&(1<<9) != 0
	s.DrawToDisplay = w&(1<<10) != 0
}

// SetTextureWindow applies GP0(E2h).
func (s *State) SetTextureWindow(w uint32) {
	s.Window = TextureWindow{
		MaskX:   uint8(w & 0x1F),
		MaskY:   uint8((w >> 5) & 0x1F),
		OffsetX: uint8((w >> 10) & 0x1F),
		OffsetY: uint8((w >> 15) & 0x1F),
	}
}

// SetAreaTopLeft applies GP0(E3h).
func (s *State) SetAreaTopLeft(w uint32) {
	s.Area.Left = int(w & 0x3FF)
	s.Area.Top = int((w >> 10) & 0x1FF)
}

// SetAreaBottomRight applies GP0(E4h).
func (s *State) SetAreaBottomRight(w uint32) {
	s.Area.Right = int(w & 0x3FF)
	s.Area.Bottom = int((w >> 10) & 0x1FF)
}

// SetOffset applies GP0(E5h). Both offsets are signed 11-bit values.
func (s *State) SetOffset(w uint32) {
	s.OffsetX = SignExtend11(w)
	s.OffsetY = SignExtend11(w >> 11)
}

// SetMaskBits applies GP0(E6h).
func (s *State) SetMaskBits(w uint32) {
	s.SetMask = w&1 != 0
	s.CheckMask = w&2 != 0
}

// SignExtend11 interprets the low 11 bits of w as a signed integer.
func SignExtend11(w uint32) int {
	return int(int32(w<<21) >> 21)
}
