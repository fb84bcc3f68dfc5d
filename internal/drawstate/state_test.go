package drawstate

import (
	"errors"
	"image"
	"testing"
)

func TestTexturePageFromWord(t *testing.T) {
	tests := []struct {
		name string
		w    uint32
		want TexturePage
	}{
		{"zero", 0, TexturePage{}},
		{"base", 0x1F, TexturePage{X: 15 * 64, Y: 256}},
		{"blend add", 1 << 5, TexturePage{Blend: BlendAdd}},
		{"depth 8", 1 << 7, TexturePage{Depth: Depth8}},
		{"reserved depth", 3 << 7, TexturePage{Depth: Depth15}},
		{"flips", 3 << 12, TexturePage{FlipX: true, FlipY: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TexturePageFromWord(tt.w); got != tt.want {
				t.Errorf("TexturePageFromWord(%#x) = %+v, want %+v", tt.w, got, tt.want)
			}
		})
	}
}

func TestTextureWindowApply(t *testing.T) {
	w := TextureWindow{MaskX: 0x1F, OffsetX: 0x02}
	// Mask 0x1F*8 = 0xF8: only the low 3 bits survive, offset ORs in 0x10.
	if u, v := w.Apply(0xFF, 0x42); u != 0x17 || v != 0x42 {
		t.Errorf("Apply(0xFF, 0x42) = (%#x, %#x), want (0x17, 0x42)", u, v)
	}
	if u, _ := (TextureWindow{}).Apply(0xAB, 0); u != 0xAB {
		t.Errorf("zero window changed u to %#x", u)
	}
}

func TestDrawAreaRect(t *testing.T) {
	a := DrawArea{Left: 0, Top: 0, Right: 7, Bottom: 7}
	if got := a.Rect(); got != image.Rect(0, 0, 8, 8) {
		t.Errorf("Rect() = %v, want (0,0)-(8,8)", got)
	}
	if !a.Contains(7, 7) || a.Contains(8, 0) {
		t.Error("Contains is not inclusive of the bottom-right corner only")
	}
	if got := (DrawArea{Left: 5, Right: 4}).Rect(); !got.Empty() {
		t.Errorf("inverted area Rect() = %v, want empty", got)
	}
}

func TestSignExtend11(t *testing.T) {
	tests := []struct {
		w    uint32
		want int
	}{
		{0, 0},
		{0x3FF, 1023},
		{0x400, -1024},
		{0x7FF, -1},
		{0xFFFFF801, 1}, // high bits ignored
	}
	for _, tt := range tests {
		if got := SignExtend11(tt.w); got != tt.want {
			t.Errorf("SignExtend11(%#x) = %d, want %d", tt.w, got, tt.want)
		}
	}
}

func TestSetters(t *testing.T) {
	s := Default()
	s.SetDrawMode(0x0600 | 0x25) // dither, draw-to-display, page 5, blend 1
	s.SetAreaTopLeft(10 | 20<<10)
	s.SetAreaBottomRight(300 | 200<<10)
	s.SetOffset(0x7FF | 5<<11)
	s.SetMaskBits(3)

	if !s.Dither || !s.DrawToDisplay {
		t.Error("draw mode flags not applied")
	}
	if s.TexPage.X != 5*64 || s.TexPage.Blend != BlendAdd {
		t.Errorf("TexPage = %+v", s.TexPage)
	}
	if s.Area != (DrawArea{Left: 10, Top: 20, Right: 300, Bottom: 200}) {
		t.Errorf("Area = %+v", s.Area)
	}
	if s.OffsetX != -1 || s.OffsetY != 5 {
		t.Errorf("offset = (%d, %d), want (-1, 5)", s.OffsetX, s.OffsetY)
	}
	if !s.SetMask || !s.CheckMask {
		t.Error("mask bits not applied")
	}
}

func TestDisplay(t *testing.T) {
	d := DefaultDisplay()
	if d.Enabled {
		t.Error("display enabled after reset")
	}
	d.SetEnabled(0)
	d.SetStart(64 | 16<<10)
	d.SetMode(1 | 1<<4) // 320 wide, 24-bit
	if !d.Enabled {
		t.Error("SetEnabled(0) did not enable the display")
	}
	if d.Width() != 320 || d.Height() != 240 {
		t.Errorf("size = %dx%d, want 320x240", d.Width(), d.Height())
	}
	if got := d.Rect(); got != image.Rect(64, 16, 64+480, 16+240) {
		t.Errorf("Rect() = %v", got)
	}
	d.SetMode(1 << 6)
	if d.Width() != 368 {
		t.Errorf("force-368 width = %d", d.Width())
	}
}

func TestStatusBits(t *testing.T) {
	s := Default()
	if got := s.StatusBits(); got&(1<<23) == 0 {
		t.Errorf("StatusBits() = %#x, want display-disabled bit", got)
	}
	s.SetMaskBits(2)
	s.IRQ = true
	s.Display.SetDMA(2)
	got := s.StatusBits()
	if got&(1<<12) == 0 || got&(1<<24) == 0 || (got>>29)&3 != 2 {
		t.Errorf("StatusBits() = %#x", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	s := Default()
	s.SetDrawMode(0x3FFF)
	s.SetTextureWindow(0xFFFFF)
	s.SetAreaTopLeft(1 | 2<<10)
	s.SetAreaBottomRight(1023 | 511<<10)
	s.SetOffset(0x400 | 0x3FF<<11)
	s.SetMaskBits(1)
	s.IRQ = true
	s.Display.SetEnabled(0)
	s.Display.SetStart(0x3FE | 0x1FF<<10)
	s.Display.SetHRange(0x260 | 0xC60<<12)
	s.Display.SetVRange(0x20 | 0x110<<10)
	s.Display.SetMode(0x7F)
	s.Display.SetDMA(3)

	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != EncodedSize {
		t.Fatalf("len = %d, want %d", len(data), EncodedSize)
	}
	var got State
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Errorf("round trip:\n got %+v\nwant %+v", got, s)
	}

	if err := got.UnmarshalBinary(data[:3]); !errors.Is(err, ErrBadEncoding) {
		t.Errorf("short input error = %v, want ErrBadEncoding", err)
	}
	data[0] = 99
	if err := got.UnmarshalBinary(data); !errors.Is(err, ErrBadEncoding) {
		t.Errorf("bad version error = %v, want ErrBadEncoding", err)
	}
}

func TestChangeString(t *testing.T) {
	if ChangeDrawArea.String() != "DrawArea" || Change(200).String() != "Unknown" {
		t.Error("unexpected Change names")
	}
}
