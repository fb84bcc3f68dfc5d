package softraster

import (
	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/vram"
)

// ditherMatrix is the 4×4 ordered dither offset table, indexed [y&3][x&3].
var ditherMatrix = [4][4]int{
	{-4, +0, -3, +1},
	{+2, -2, +3, -1},
	{-3, +1, -4, +0},
	{+3, -1, +2, -2},
}

// DitherOffset returns the offset added to 8-bit channels at (x, y).
func DitherOffset(x, y int) int {
	return ditherMatrix[y&3][x&3]
}

// Dither applies the ordered dither offset for (x, y) to an 8-bit channel
// and truncates it to 5 bits.
func Dither(c uint8, x, y int) uint8 {
	v := int(c) + ditherMatrix[y&3][x&3]
	v = min(max(v, 0), 255)
	return uint8(v) >> 3
}

// Modulate multiplies a 5-bit texel channel by an 8-bit vertex colour
// channel. 0x80 leaves the texel unchanged. The result is 8-bit.
func Modulate(t5, c8 uint8) uint8 {
	return uint8(min(int(t5)*int(c8)/16, 255))
}

// Blend5 applies a semi-transparency equation to one 5-bit channel.
// b is the framebuffer value, f the primitive value.
func Blend5(mode drawstate.BlendMode, b, f uint8) uint8 {
	return uint8(blend(mode, int(b), int(f), 31))
}

// Blend8 is Blend5 on 8-bit channels.
func Blend8(mode drawstate.BlendMode, b, f uint8) uint8 {
	return uint8(blend(mode, int(b), int(f), 255))
}

func blend(mode drawstate.BlendMode, b, f, top int) int {
	switch mode {
	case drawstate.BlendAdd:
		return min(b+f, top)
	case drawstate.BlendSubtract:
		return max(b-f, 0)
	case drawstate.BlendAddQuarter:
		return min(b+f>>2, top)
	default:
		return (b + f) >> 1
	}
}

// BlendPixel blends every colour channel of f over b. The mask bit of the
// result is taken from f.
func BlendPixel(mode drawstate.BlendMode, b, f vram.Pixel) vram.Pixel {
	return vram.RGB5(
		Blend5(mode, b.R(), f.R()),
		Blend5(mode, b.G(), f.G()),
		Blend5(mode, b.B(), f.B()),
	) | f&vram.MaskBit
}
