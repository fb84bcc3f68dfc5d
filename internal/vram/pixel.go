package vram

// Pixel is one canonical framebuffer halfword: 5 bits each of red, green
// and blue (red in the low bits) plus the mask bit in bit 15.
type Pixel uint16

// MaskBit is the mask (semi-transparency/"do not draw") bit of a Pixel.
const MaskBit Pixel = 0x8000

// RGB5 packs three 5-bit channels into a Pixel with the mask bit clear.
func RGB5(r, g, b uint8) Pixel {
	return Pixel(r&0x1F) | Pixel(g&0x1F)<<5 | Pixel(b&0x1F)<<10
}

// RGB8 packs three 8-bit channels into a Pixel by truncation.
func RGB8(r, g, b uint8) Pixel {
	return RGB5(Truncate8(r), Truncate8(g), Truncate8(b))
}

// R returns the 5-bit red channel.
func (p Pixel) R() uint8 { return uint8(p & 0x1F) }

// G returns the 5-bit green channel.
func (p Pixel) G() uint8 { return uint8((p >> 5) & 0x1F) }

// B returns the 5-bit blue channel.
func (p Pixel) B() uint8 { return uint8((p >> 10) & 0x1F) }

// Masked reports whether the mask bit is set.
func (p Pixel) Masked() bool { return p&MaskBit != 0 }

// WithMask returns p with the mask bit set to m.
func (p Pixel) WithMask(m bool) Pixel {
	if m {
		return p | MaskBit
	}
	return p &^ MaskBit
}

// RGBA8 expands the colour channels to 8 bits and reports the mask bit as
// alpha 255. This is the scaled-buffer representation of a canonical pixel.
func (p Pixel) RGBA8() (r, g, b, a uint8) {
	r, g, b = Expand5(p.R()), Expand5(p.G()), Expand5(p.B())
	if p.Masked() {
		a = 0xFF
	}
	return r, g, b, a
}

// FromRGBA8 quantizes an 8-bit colour back to a Pixel, rounding each
// channel to nearest. Alpha at or above 128 sets the mask bit.
func FromRGBA8(r, g, b, a uint8) Pixel {
	return RGB5(Quantize8(r), Quantize8(g), Quantize8(b)).WithMask(a >= 0x80)
}
