package drawstate

import (
	"encoding/binary"
	"errors"
)

// ErrBadEncoding is returned when decoding a malformed register dump.
var ErrBadEncoding = errors.New("drawstate: bad encoding")

// stateVersion is bumped whenever the wire layout changes.
const stateVersion = 1

// wireState is the fixed-size save-state layout of State.
type wireState struct {
	Version       uint8
	TexPage       uint32
	Window        [4]uint8
	Area          [4]int16
	Offset        [2]int16
	SetMask       bool
	CheckMask     bool
	Dither        bool
	DrawToDisplay bool
	IRQ           bool
	StartX        int16
	StartY        int16
	HRange        [2]int16
	VRange        [2]int16
	Mode          uint32
	Enabled       bool
	DMA           uint8
}

// EncodedSize is the length of a MarshalBinary result.
var EncodedSize = binary.Size(wireState{})

// MarshalBinary encodes the register set in a fixed little-endian layout.
func (s *State) MarshalBinary() ([]byte, error) {
	d := s.Display
	w := wireState{
		Version:       stateVersion,
		TexPage:       s.TexPage.Word(),
		Window:        [4]uint8{s.Window.MaskX, s.Window.MaskY, s.Window.OffsetX, s.Window.OffsetY},
		Area:          [4]int16{int16(s.Area.Left), int16(s.Area.Top), int16(s.Area.Right), int16(s.Area.Bottom)},
		Offset:        [2]int16{int16(s.OffsetX), int16(s.OffsetY)},
		SetMask:       s.SetMask,
		CheckMask:     s.CheckMask,
		Dither:        s.Dither,
		DrawToDisplay: s.DrawToDisplay,
		IRQ:           s.IRQ,
		StartX:        int16(d.StartX),
		StartY:        int16(d.StartY),
		HRange:        [2]int16{int16(d.HRange[0]), int16(d.HRange[1])},
		VRange:        [2]int16{int16(d.VRange[0]), int16(d.VRange[1])},
		Mode:          d.modeWord(),
		Enabled:       d.Enabled,
		DMA:           uint8(d.DMA),
	}
	return binary.Append(nil, binary.LittleEndian, &w)
}

// UnmarshalBinary restores a register set produced by MarshalBinary.
func (s *State) UnmarshalBinary(data []byte) error {
	var w wireState
	if _, err := binary.Decode(data, binary.LittleEndian, &w); err != nil {
		return errors.Join(ErrBadEncoding, err)
	}
	if w.Version != stateVersion {
		return ErrBadEncoding
	}
	st := State{
		TexPage:       TexturePageFromWord(w.TexPage),
		Window:        TextureWindow{MaskX: w.Window[0], MaskY: w.Window[1], OffsetX: w.Window[2], OffsetY: w.Window[3]},
		Area:          DrawArea{Left: int(w.Area[0]), Top: int(w.Area[1]), Right: int(w.Area[2]), Bottom: int(w.Area[3])},
		OffsetX:       int(w.Offset[0]),
		OffsetY:       int(w.Offset[1]),
		SetMask:       w.SetMask,
		CheckMask:     w.CheckMask,
		Dither:        w.Dither,
		DrawToDisplay: w.DrawToDisplay,
		IRQ:           w.IRQ,
	}
	st.Display = Display{
		StartX:  int(w.StartX),
		StartY:  int(w.StartY),
		HRange:  [2]int{int(w.HRange[0]), int(w.HRange[1])},
		VRange:  [2]int{int(w.VRange[0]), int(w.VRange[1])},
		Enabled: w.Enabled,
		DMA:     DMADirection(w.DMA & 3),
	}
	st.Display.SetMode(w.Mode)
	*s = st
	return nil
}

// modeWord re-encodes the GP1(08h) fields.
func (d Display) modeWord() uint32 {
	w := uint32(d.HRes) & 3
	w |= b2u(d.DoubleHeight) << 2
	w |= uint32(d.Mode&1) << 3
	w |= b2u(d.Depth24) << 4
	w |= b2u(d.Interlaced) << 5
	w |= b2u(d.Force368) << 6
	return w
}
