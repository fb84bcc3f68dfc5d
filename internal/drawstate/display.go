package drawstate

import "image"

// HorizontalResolution is the GP1(08h) horizontal mode.
type HorizontalResolution uint8

const (
	H256 HorizontalResolution = iota
	H320
	H512
	H640
)

// Pixels returns the visible width in pixels.
func (h HorizontalResolution) Pixels() int {
	switch h {
	case H320:
		return 320
	case H512:
		return 512
	case H640:
		return 640
	default:
		return 256
	}
}

// VideoMode is the GP1(08h) video standard.
type VideoMode uint8

const (
	NTSC VideoMode = iota
	PAL
)

// String returns the mode name.
func (m VideoMode) String() string {
	if m == PAL {
		return "PAL/50Hz"
	}
	return "NTSC/60Hz"
}

// DMADirection is the GP1(04h) DMA mode.
type DMADirection uint8

const (
	DMAOff DMADirection = iota
	DMAFIFO
	DMACPUToGPU
	DMAGPUToCPU
)

// Default display ranges after reset.
const (
	defaultHRangeStart = 0x200
	defaultHRangeEnd   = 0x200 + 256*10
	defaultVRangeStart = 0x010
	defaultVRangeEnd   = 0x010 + 240
)

// Display is the display-control part of the register set (GP1 port).
type Display struct {
	StartX, StartY int // first displayed halfword in video memory
	HRange         [2]int
	VRange         [2]int
	HRes           HorizontalResolution
	Force368       bool
	DoubleHeight   bool
	Mode           VideoMode
	Depth24        bool
	Interlaced     bool
	Enabled        bool
	DMA            DMADirection
}

// DefaultDisplay returns the display registers after GP1(00h).
func DefaultDisplay() Display {
	return Display{
		HRange: [2]int{defaultHRangeStart, defaultHRangeEnd},
		VRange: [2]int{defaultVRangeStart, defaultVRangeEnd},
	}
}

// Width returns the displayed width in pixels.
func (d Display) Width() int {
	if d.Force368 {
		return 368
	}
	return d.HRes.Pixels()
}

// Height returns the displayed height in lines.
func (d Display) Height() int {
	h := d.VRange[1] - d.VRange[0]
	if h <= 0 {
		return 0
	}
	if d.DoubleHeight && d.Interlaced {
		h *= 2
	}
	return h
}

// Rect returns the displayed area in video-memory halfwords. In 24-bit
// mode a pixel spans 1.5 halfwords.
func (d Display) Rect() image.Rectangle {
	w := d.Width()
	if d.Depth24 {
		w = w * 3 / 2
	}
	return image.Rect(d.StartX, d.StartY, d.StartX+w, d.StartY+d.Height())
}

// SetEnabled applies GP1(03h). Bit 0 set means display off.
func (d *Display) SetEnabled(w uint32) {
	d.Enabled = w&1 == 0
}

// SetDMA applies GP1(04h).
func (d *Display) SetDMA(w uint32) {
	d.DMA = DMADirection(w & 3)
}

// SetStart applies GP1(05h).
func (d *Display) SetStart(w uint32) {
	d.StartX = int(w & 0x3FE)
	d.StartY = int((w >> 10) & 0x1FF)
}

// SetHRange applies GP1(06h).
func (d *Display) SetHRange(w uint32) {
	d.HRange = [2]int{int(w & 0xFFF), int((w >> 12) & 0xFFF)}
}

// SetVRange applies GP1(07h).
func (d *Display) SetVRange(w uint32) {
	d.VRange = [2]int{int(w & 0x3FF), int((w >> 10) & 0x3FF)}
}

// SetMode applies GP1(08h).
func (d *Display) SetMode(w uint32) {
	d.HRes = HorizontalResolution(w & 3)
	d.DoubleHeight = w&(1<<2) != 0
	d.Mode = VideoMode((w >> 3) & 1)
	d.Depth24 = w&(1<<4) != 0
	d.Interlaced = w&(1<<5) != 0
	d.Force368 = w&(1<<6) != 0
}
