package softraster

import (
	"image"
	"testing"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/vram"
)

// fullArea returns a register state whose drawing area is the whole
// framebuffer.
func fullArea() drawstate.State {
	s := drawstate.Default()
	s.Area = drawstate.DrawArea{Right: vram.Width - 1, Bottom: vram.Height - 1}
	return s
}

func rect(x, y, w, h int, r, g, b uint8) *prim.Primitive {
	return &prim.Primitive{
		Kind:     prim.Rectangle,
		Vertices: [3]prim.Vertex{{X: x, Y: y, R: r, G: g, B: b}},
		W:        w,
		H:        h,
		State:    fullArea(),
	}
}

func TestSolidRectangleScenario(t *testing.T) {
	fb := vram.New()
	r := New(fb)
	p := rect(0, 0, 8, 8, 0xF8, 0x80, 0x08)
	p.State.SetMask = true
	r.Draw(p)

	want := vram.RGB5(31, 16, 1) | vram.MaskBit
	for y := 0; y < vram.Height; y++ {
		for x := 0; x < vram.Width; x++ {
			got := fb.At(x, y)
			inside := x < 8 && y < 8
			switch {
			case inside && got != want:
				t.Fatalf("At(%d, %d) = %#04x, want %#04x", x, y, uint16(got), uint16(want))
			case !inside && got != 0:
				t.Fatalf("At(%d, %d) = %#04x outside the rectangle", x, y, uint16(got))
			}
		}
	}
}

func TestBlendEquations(t *testing.T) {
	tests := []struct {
		mode drawstate.BlendMode
		b, f uint8
		want uint8
	}{
		{drawstate.BlendAverage, 20, 10, 15},
		{drawstate.BlendAverage, 31, 0, 15},
		{drawstate.BlendAdd, 20, 10, 30},
		{drawstate.BlendAdd, 20, 20, 31},
		{drawstate.BlendSubtract, 20, 10, 10},
		{drawstate.BlendSubtract, 5, 10, 0},
		{drawstate.BlendAddQuarter, 20, 12, 23},
		{drawstate.BlendAddQuarter, 30, 31, 31},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if got := Blend5(tt.mode, tt.b, tt.f); got != tt.want {
				t.Errorf("Blend5(%d, %d) = %d, want %d", tt.b, tt.f, got, tt.want)
			}

			// Same arithmetic through the rasterizer on a known background.
			fb := vram.New()
			bg := vram.RGB5(tt.b, tt.b, tt.b)
			fb.Set(3, 3, bg)
			p := rect(3, 3, 1, 1, tt.f<<3, tt.f<<3, tt.f<<3)
			p.SemiTrans = true
			p.Page.Blend = tt.mode
			New(fb).Draw(p)
			if got := fb.At(3, 3); got != vram.RGB5(tt.want, tt.want, tt.want) {
				t.Errorf("drawn pixel = %#04x, want channels %d", uint16(got), tt.want)
			}
		})
	}
}

func TestMaskSemantics(t *testing.T) {
	t.Run("check skips masked pixels", func(t *testing.T) {
		fb := vram.New()
		fb.Set(1, 1, vram.RGB5(1, 2, 3)|vram.MaskBit)
		p := rect(0, 0, 4, 4, 0xFF, 0xFF, 0xFF)
		p.State.CheckMask = true
		New(fb).Draw(p)
		if got := fb.At(1, 1); got != vram.RGB5(1, 2, 3)|vram.MaskBit {
			t.Errorf("masked pixel changed to %#04x", uint16(got))
		}
		if got := fb.At(0, 0); got != 0x7FFF {
			t.Errorf("unmasked pixel = %#04x, want 0x7fff", uint16(got))
		}
	})
	t.Run("set marks every drawn pixel", func(t *testing.T) {
		fb := vram.New()
		p := rect(0, 0, 2, 2, 0, 0, 0)
		p.State.SetMask = true
		New(fb).Draw(p)
		if got := fb.At(1, 1); got != vram.MaskBit {
			t.Errorf("black pixel with mask-set = %#04x, want 0x8000", uint16(got))
		}
	})
}

func TestDrawAreaClip(t *testing.T) {
	fb := vram.New()
	p := rect(0, 0, 16, 16, 0xFF, 0, 0)
	p.State.Area = drawstate.DrawArea{Left: 4, Top: 4, Right: 7, Bottom: 7}
	New(fb).Draw(p)
	n := 0
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if fb.At(x, y) != 0 {
				n++
			}
		}
	}
	if n != 16 {
		t.Errorf("drew %d pixels, want 16 inside the inclusive 4..7 area", n)
	}
}

func TestTriangleFillRule(t *testing.T) {
	fb := vram.New()
	// Two triangles sharing the diagonal of an 8×8 square must cover every
	// pixel exactly once.
	tri := func(a, b, c image.Point) *prim.Primitive {
		return &prim.Primitive{
			Kind: prim.Triangle,
			Vertices: [3]prim.Vertex{
				{X: a.X, Y: a.Y, R: 8, G: 8, B: 8},
				{X: b.X, Y: b.Y},
				{X: c.X, Y: c.Y},
			},
			SemiTrans: true,
			Page:      drawstate.TexturePage{Blend: drawstate.BlendAdd},
			State:     fullArea(),
		}
	}
	r := New(fb)
	r.Draw(tri(image.Pt(0, 0), image.Pt(8, 0), image.Pt(0, 8)))
	r.Draw(tri(image.Pt(8, 0), image.Pt(8, 8), image.Pt(0, 8)))
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			want := vram.Pixel(0)
			if x < 8 && y < 8 {
				want = vram.RGB5(1, 1, 1)
			}
			if got := fb.At(x, y); got != want {
				t.Fatalf("At(%d, %d) = %#04x, want %#04x", x, y, uint16(got), uint16(want))
			}
		}
	}
}

func TestOversizedTriangleRejected(t *testing.T) {
	fb := vram.New()
	p := &prim.Primitive{
		Kind:     prim.Triangle,
		Vertices: [3]prim.Vertex{{X: 0, Y: 0, R: 0xFF}, {X: 1024, Y: 0}, {X: 0, Y: 10}},
		State:    fullArea(),
	}
	New(fb).Draw(p)
	if fb.At(0, 0) != 0 {
		t.Error("triangle with a 1024-wide edge was drawn")
	}
}

func TestLine(t *testing.T) {
	fb := vram.New()
	p := &prim.Primitive{
		Kind:     prim.Line,
		Vertices: [3]prim.Vertex{{X: 0, Y: 0, R: 0xFF}, {X: 4, Y: 2, R: 0xFF}},
		State:    fullArea(),
	}
	New(fb).Draw(p)
	want := []image.Point{{0, 0}, {1, 1}, {2, 1}, {3, 2}, {4, 2}}
	n := 0
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			if fb.At(x, y) != 0 {
				n++
			}
		}
	}
	if n != len(want) {
		t.Errorf("line drew %d pixels, want %d", n, len(want))
	}
	for _, pt := range want {
		if fb.At(pt.X, pt.Y) != vram.RGB5(31, 0, 0) {
			t.Errorf("pixel %v not drawn", pt)
		}
	}
}

func TestFill(t *testing.T) {
	fb := vram.New()
	fb.Set(1020, 0, vram.MaskBit)
	p := &prim.Primitive{
		Kind:     prim.Fill,
		Vertices: [3]prim.Vertex{{X: 1008, Y: 0, G: 0xFF}},
		W:        32,
		H:        1,
		State:    drawstate.Default(), // empty drawing area is ignored
	}
	p.State.CheckMask = true
	New(fb).Draw(p)
	green := vram.RGB5(0, 31, 0)
	if fb.At(1020, 0) != green {
		t.Error("fill did not overwrite a masked pixel")
	}
	if fb.At(15, 0) != green || fb.At(16, 0) != 0 {
		t.Error("fill did not wrap at the right edge")
	}
}

// testSource is a page of direct texels plus a lookup table.
type testSource struct {
	page map[image.Point]vram.Pixel
	clut []vram.Pixel
}

func (s *testSource) PageAt(x, y int) vram.Pixel { return s.page[image.Pt(x, y)] }
func (s *testSource) ClutAt(i int) vram.Pixel    { return s.clut[i] }

func TestTexelDepths(t *testing.T) {
	src := &testSource{
		page: map[image.Point]vram.Pixel{{0, 0}: 0x4321, {1, 2}: 0xBEEF},
		clut: make([]vram.Pixel, 256),
	}
	for i := range src.clut {
		src.clut[i] = vram.Pixel(0x100 + i)
	}
	tests := []struct {
		name  string
		depth drawstate.TextureDepth
		u, v  uint8
		want  vram.Pixel
	}{
		{"4bpp nibble 0", drawstate.Depth4, 0, 0, 0x101},
		{"4bpp nibble 3", drawstate.Depth4, 3, 0, 0x104},
		{"8bpp low", drawstate.Depth8, 0, 0, 0x121},
		{"8bpp high", drawstate.Depth8, 1, 0, 0x143},
		{"15bpp", drawstate.Depth15, 1, 2, 0xBEEF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Texel(src, tt.depth, tt.u, tt.v); got != tt.want {
				t.Errorf("Texel = %#04x, want %#04x", uint16(got), uint16(tt.want))
			}
		})
	}
}

func TestTexturedRectangle(t *testing.T) {
	fb := vram.New()
	// 15-bit page at (64, 0): texel (0,0) opaque, (1,0) transparent,
	// (2,0) semi-transparent.
	fb.Set(64, 0, vram.RGB5(10, 0, 0))
	fb.Set(66, 0, vram.RGB5(0, 10, 0)|vram.MaskBit)
	fb.Set(302, 100, vram.RGB5(0, 20, 0))

	p := rect(300, 100, 3, 1, 0x80, 0x80, 0x80)
	p.Texture = prim.Raw
	p.SemiTrans = true
	p.Page = drawstate.TexturePage{X: 64, Depth: drawstate.Depth15, Blend: drawstate.BlendAdd}
	New(fb).Draw(p)

	if got := fb.At(300, 100); got != vram.RGB5(10, 0, 0) {
		t.Errorf("opaque texel = %#04x", uint16(got))
	}
	if got := fb.At(301, 100); got != 0 {
		t.Errorf("transparent texel drew %#04x", uint16(got))
	}
	// STP texel blends and carries its mask bit.
	if got := fb.At(302, 100); got != vram.RGB5(0, 30, 0)|vram.MaskBit {
		t.Errorf("semi-transparent texel = %#04x", uint16(got))
	}
}

func TestModulate(t *testing.T) {
	if got := Modulate(16, 0x80); got != 128 {
		t.Errorf("Modulate(16, 0x80) = %d, want 128", got)
	}
	if got := Modulate(31, 0xFF); got != 255 {
		t.Errorf("Modulate saturates to %d, want 255", got)
	}
}

func TestDither(t *testing.T) {
	if got := Dither(4, 0, 0); got != 0 {
		t.Errorf("Dither(4, 0, 0) = %d, want 0", got)
	}
	if got := Dither(5, 2, 1); got != 1 {
		t.Errorf("Dither(5, 2, 1) = %d, want 1", got)
	}
	if got := Dither(255, 1, 3); got != 31 {
		t.Errorf("Dither clamps to %d, want 31", got)
	}
}

func TestCoverageMatchesDraw(t *testing.T) {
	prims := []*prim.Primitive{
		{Kind: prim.Triangle, Vertices: [3]prim.Vertex{{X: 3, Y: 1, R: 255}, {X: 40, Y: 17, R: 255}, {X: 9, Y: 30, R: 255}}},
		{Kind: prim.Line, Vertices: [3]prim.Vertex{{X: 50, Y: 40, R: 255}, {X: 2, Y: 33, R: 255}}},
		rect(5, 5, 7, 3, 255, 0, 0),
	}
	for _, p := range prims {
		t.Run(p.Kind.String(), func(t *testing.T) {
			p.State = fullArea()
			fb := vram.New()
			New(fb).Draw(p)
			covered := map[image.Point]bool{}
			Coverage(p, func(y, x0, x1 int) {
				for x := x0; x < x1; x++ {
					covered[image.Pt(x, y)] = true
				}
			})
			for y := 0; y < 64; y++ {
				for x := 0; x < 64; x++ {
					drawn := fb.At(x, y) != 0
					if drawn != covered[image.Pt(x, y)] {
						t.Fatalf("(%d, %d): drawn=%v covered=%v", x, y, drawn, covered[image.Pt(x, y)])
					}
				}
			}
		})
	}
}

func TestWalkTriangleScaled(t *testing.T) {
	v := [3]image.Point{{1, 2}, {13, 5}, {4, 11}}
	native := map[image.Point]bool{}
	WalkTriangle(v, image.Rect(0, 0, 64, 64), func(x, y int, _ *[3]int64, _ int64) {
		native[image.Pt(x, y)] = true
	})
	const s = 3
	var sv [3]image.Point
	for i := range v {
		sv[i] = v[i].Mul(s)
	}
	WalkTriangle(sv, image.Rect(0, 0, 64*s, 64*s), func(x, y int, _ *[3]int64, _ int64) {
		if x%s == 0 && y%s == 0 && !native[image.Pt(x/s, y/s)] {
			t.Errorf("scaled sample (%d, %d) covered but native (%d, %d) is not", x, y, x/s, y/s)
		}
		if x%s == 0 && y%s == 0 {
			delete(native, image.Pt(x/s, y/s))
		}
	})
	if len(native) != 0 {
		t.Errorf("native pixels without a scaled top-left sample: %v", native)
	}
}

func TestTextureFootprint(t *testing.T) {
	p := rect(0, 0, 16, 8, 0x80, 0x80, 0x80)
	p.Texture = prim.Modulated
	p.Vertices[0].U, p.Vertices[0].V = 32, 64
	p.Page = drawstate.TexturePage{X: 128, Y: 256, Depth: drawstate.Depth4}
	p.ClutX, p.ClutY = 16, 480
	got := TextureFootprint(p)
	want := []image.Rectangle{
		image.Rect(128+8, 256+64, 128+12, 256+72),
		image.Rect(16, 480, 32, 481),
	}
	if len(got) != len(want) {
		t.Fatalf("TextureFootprint = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rect %d = %v, want %v", i, got[i], want[i])
		}
	}
	p.Texture = prim.Untextured
	if TextureFootprint(p) != nil {
		t.Error("untextured primitive has a footprint")
	}
}

func BenchmarkTriangle(b *testing.B) {
	fb := vram.New()
	r := New(fb)
	p := &prim.Primitive{
		Kind:     prim.Triangle,
		Vertices: [3]prim.Vertex{{X: 0, Y: 0, R: 255}, {X: 300, Y: 20, G: 255}, {X: 40, Y: 220, B: 255}},
		Gouraud:  true,
		State:    fullArea(),
	}
	p.State.Dither = true
	for i := 0; i < b.N; i++ {
		r.Draw(p)
	}
}
