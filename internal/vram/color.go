package vram

// expand5LUT converts a 5-bit channel to 8 bits by bit replication.
// 0 maps to 0 and 31 maps to 255.
var expand5LUT [32]uint8

// quantize8LUT converts an 8-bit channel to 5 bits with rounding.
var quantize8LUT [256]uint8

func init() {
	for i := 0; i < 32; i++ {
		//nolint:gosec // G115: i < 32
		c := uint8(i)
		expand5LUT[i] = c<<3 | c>>2
	}
	for i := 0; i < 256; i++ {
		//nolint:gosec // G115: result is at most 31
		quantize8LUT[i] = uint8((i*31 + 127) / 255)
	}
}

// Expand5 widens a 5-bit channel value to 8 bits.
func Expand5(c uint8) uint8 {
	return expand5LUT[c&0x1F]
}

// Quantize8 narrows an 8-bit channel value to 5 bits, rounding to nearest.
// Quantize8(Expand5(c)) == c for every 5-bit c.
func Quantize8(v uint8) uint8 {
	return quantize8LUT[v]
}

// Truncate8 narrows an 8-bit channel value to 5 bits the way the hardware
// does: by dropping the low three bits.
func Truncate8(v uint8) uint8 {
	return v >> 3
}
