package drawstate

// Change identifies which register group a state mutation touched.
// The decoder reports every mutation in arrival order.
type Change uint8

const (
	ChangeDrawMode Change = iota
	ChangeTextureWindow
	ChangeDrawArea
	ChangeOffset
	ChangeMask
	ChangeDisplay
	ChangeIRQ
	ChangeReset
)

// String returns the change name for logs.
func (c Change) String() string {
	switch c {
	case ChangeDrawMode:
		return "DrawMode"
	case ChangeTextureWindow:
		return "TextureWindow"
	case ChangeDrawArea:
		return "DrawArea"
	case ChangeOffset:
		return "Offset"
	case ChangeMask:
		return "Mask"
	case ChangeDisplay:
		return "Display"
	case ChangeIRQ:
		return "IRQ"
	case ChangeReset:
		return "Reset"
	default:
		return "Unknown"
	}
}

// StatusBits returns the GPUSTAT bits owned by the register set. The
// decoder ORs in the readiness bits.
func (s *State) StatusBits() uint32 {
	st := s.TexPage.Word() & 0x1FF
	st |= b2u(s.Dither) << 9
	st |= b2u(s.DrawToDisplay) << 10
	st |= b2u(s.SetMask) << 11
	st |= b2u(s.CheckMask) << 12
	st |= 1 << 13 // interlace field, not emulated
	st |= b2u(s.Display.Force368) << 16
	st |= uint32(s.Display.HRes) << 17
	st |= b2u(s.Display.DoubleHeight) << 19
	st |= uint32(s.Display.Mode) << 20
	st |= b2u(s.Display.Depth24) << 21
	st |= b2u(s.Display.Interlaced) << 22
	st |= b2u(!s.Display.Enabled) << 23
	st |= b2u(s.IRQ) << 24
	st |= uint32(s.Display.DMA) << 29
	return st
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
