package vram

import (
	"image"
)

// RGBA renders r (clamped) as an opaque 8-bit image using the 15-bit
// display decode. The returned image has its origin at (0, 0).
func (f *Framebuffer) RGBA(r image.Rectangle) *image.RGBA {
	r = Clamp(r)
	img := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(0, y-r.Min.Y)
		for _, p := range f.Row(y, r.Min.X, r.Max.X) {
			red, green, blue, _ := p.RGBA8()
			img.Pix[off+0] = red
			img.Pix[off+1] = green
			img.Pix[off+2] = blue
			img.Pix[off+3] = 0xFF
			off += 4
		}
	}
	return img
}

// RGBA24 renders a display area in 24-bit colour mode. x and y address the
// first halfword; w is the width in 24-bit pixels. Each pixel occupies 1.5
// halfwords, so a row of w pixels spans 3w bytes starting at byte 2x.
func (f *Framebuffer) RGBA24(x, y, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for row := 0; row < h; row++ {
		off := img.PixOffset(0, row)
		base := x * 2
		for col := 0; col < w; col++ {
			b := base + col*3
			img.Pix[off+0] = f.byteAt(b, y+row)
			img.Pix[off+1] = f.byteAt(b+1, y+row)
			img.Pix[off+2] = f.byteAt(b+2, y+row)
			img.Pix[off+3] = 0xFF
			off += 4
		}
	}
	return img
}

// byteAt reads byte b of row y in little-endian halfword order.
func (f *Framebuffer) byteAt(b, y int) uint8 {
	p := f.At(b>>1, y)
	if b&1 == 0 {
		return uint8(p)
	}
	return uint8(p >> 8)
}
