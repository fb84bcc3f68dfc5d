// Package vram implements the canonical framebuffer: 1024×512 halfwords of
// video memory shared by display output, texture pages, colour lookup
// tables and drawing.
//
// The Framebuffer is the single source of truth for everything the emulated
// processor can observe. Coordinates wrap at the edges the same way the
// hardware address generator does (X modulo 1024, Y modulo 512).
package vram

import (
	"encoding/binary"
	"errors"
	"image"
)

// Framebuffer dimensions in halfwords.
const (
	Width  = 1024
	Height = 512

	// Size is the number of bytes in a Framebuffer.
	Size = Width * Height * 2
)

// ErrShortBuffer is returned by UnmarshalBinary for truncated input.
var ErrShortBuffer = errors.New("vram: short buffer")

// Bounds is the framebuffer rectangle.
var Bounds = image.Rect(0, 0, Width, Height)

// Framebuffer is the canonical 16-bit video memory.
//
// Framebuffer is NOT safe for concurrent use.
type Framebuffer struct {
	pix []Pixel
}

// New returns a zeroed framebuffer.
func New() *Framebuffer {
	return &Framebuffer{pix: make([]Pixel, Width*Height)}
}

// Clamp intersects r with the framebuffer bounds after canonicalizing it.
// Out-of-range requests never fail; they shrink (possibly to empty).
func Clamp(r image.Rectangle) image.Rectangle {
	return r.Canon().Intersect(Bounds)
}

// Index returns the pixel index for (x, y) with hardware wrapping.
func Index(x, y int) int {
	return (y&(Height-1))*Width + (x & (Width - 1))
}

// At returns the pixel at (x, y), wrapping out-of-range coordinates.
func (f *Framebuffer) At(x, y int) Pixel {
	return f.pix[Index(x, y)]
}

// Set stores p at (x, y), wrapping out-of-range coordinates.
func (f *Framebuffer) Set(x, y int, p Pixel) {
	f.pix[Index(x, y)] = p
}

// Pix returns the backing slice in row-major order. Callers in this module
// use it for hot loops; mutating it bypasses no bookkeeping because the
// framebuffer keeps none.
func (f *Framebuffer) Pix() []Pixel {
	return f.pix
}

// Row returns the pixels of row y between x0 (inclusive) and x1 (exclusive).
// The range must lie inside the framebuffer.
func (f *Framebuffer) Row(y, x0, x1 int) []Pixel {
	base := y * Width
	return f.pix[base+x0 : base+x1]
}

// ReadRect copies the pixels of r (clamped) into dst row by row and returns
// the number of pixels copied. dst must hold at least r.Dx()*r.Dy() values.
func (f *Framebuffer) ReadRect(r image.Rectangle, dst []uint16) int {
	r = Clamp(r)
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for _, p := range f.Row(y, r.Min.X, r.Max.X) {
			dst[n] = uint16(p)
			n++
		}
	}
	return n
}

// WriteRect stores src into r (clamped) row by row. src is laid out
// row-major over r itself, so columns and rows that fall outside the
// framebuffer are skipped rather than shifted in. It returns the number of
// pixels written.
func (f *Framebuffer) WriteRect(r image.Rectangle, src []uint16) int {
	r = r.Canon()
	c := r.Intersect(Bounds)
	stride := r.Dx()
	n := 0
	for y := c.Min.Y; y < c.Max.Y; y++ {
		off := (y-r.Min.Y)*stride + c.Min.X - r.Min.X
		if off >= len(src) {
			break
		}
		n += copyPixels(f.Row(y, c.Min.X, c.Max.X), src[off:])
	}
	return n
}

func copyPixels(dst []Pixel, src []uint16) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = Pixel(src[i])
	}
	return n
}

// MaskPlane returns the mask bits of r (clamped) as a row-major bool slice.
func (f *Framebuffer) MaskPlane(r image.Rectangle) []bool {
	r = Clamp(r)
	out := make([]bool, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for _, p := range f.Row(y, r.Min.X, r.Max.X) {
			out = append(out, p.Masked())
		}
	}
	return out
}

// Snapshot copies the wrapped rectangle starting at (x, y) of size w×h.
// Unlike ReadRect it follows hardware wrapping, which is what texture pages
// and lookup tables near the right or bottom edge need.
func (f *Framebuffer) Snapshot(x, y, w, h int) []Pixel {
	out := make([]Pixel, w*h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			out[row*w+col] = f.At(x+col, y+row)
		}
	}
	return out
}

// Reset zeroes the framebuffer.
func (f *Framebuffer) Reset() {
	clear(f.pix)
}

// Clone returns a deep copy of f.
func (f *Framebuffer) Clone() *Framebuffer {
	c := New()
	copy(c.pix, f.pix)
	return c
}

// MarshalBinary encodes the framebuffer as little-endian halfwords.
func (f *Framebuffer) MarshalBinary() ([]byte, error) {
	out := make([]byte, Size)
	for i, p := range f.pix {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(p))
	}
	return out, nil
}

// UnmarshalBinary restores a framebuffer produced by MarshalBinary.
func (f *Framebuffer) UnmarshalBinary(data []byte) error {
	if len(data) < Size {
		return ErrShortBuffer
	}
	if f.pix == nil {
		f.pix = make([]Pixel, Width*Height)
	}
	for i := range f.pix {
		f.pix[i] = Pixel(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return nil
}

// Split breaks the w×h area starting at (x, y) into at most four
// in-bounds rectangles, following hardware wrapping at the right and
// bottom edges. x and y are reduced modulo the framebuffer size first.
func Split(x, y, w, h int) []image.Rectangle {
	if w <= 0 || h <= 0 {
		return nil
	}
	w, h = min(w, Width), min(h, Height)
	x, y = x&(Width-1), y&(Height-1)
	xs := [][2]int{{x, min(x+w, Width)}}
	if x+w > Width {
		xs = append(xs, [2]int{0, x + w - Width})
	}
	ys := [][2]int{{y, min(y+h, Height)}}
	if y+h > Height {
		ys = append(ys, [2]int{0, y + h - Height})
	}
	out := make([]image.Rectangle, 0, len(xs)*len(ys))
	for _, yr := range ys {
		for _, xr := range xs {
			out = append(out, image.Rect(xr[0], yr[0], xr[1], yr[1]))
		}
	}
	return out
}
