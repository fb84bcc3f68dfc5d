package gpu

import (
	"encoding/binary"
	"image"
	"strings"
	"testing"

	"github.com/gogpu/psxgpu/internal/accel"
	"github.com/gogpu/psxgpu/internal/atlas"
	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/softraster"
	"github.com/gogpu/psxgpu/internal/vram"
)

func fullArea() drawstate.State {
	st := drawstate.Default()
	st.Area = drawstate.DrawArea{Right: vram.Width - 1, Bottom: vram.Height - 1}
	return st
}

func build(p prim.Primitive) accel.Cmd {
	return accel.Build(&p, vram.New(), nil, accel.ColorMode{})
}

func TestTriangleWinding(t *testing.T) {
	tests := []struct {
		name  string
		verts [3]prim.Vertex
		order [3]int
	}{
		{"counter-clockwise", [3]prim.Vertex{{X: 0, Y: 0, R: 1}, {X: 0, Y: 10, R: 2}, {X: 10, Y: 0, R: 3}}, [3]int{0, 2, 1}},
		{"clockwise", [3]prim.Vertex{{X: 0, Y: 0, R: 1}, {X: 10, Y: 0, R: 2}, {X: 0, Y: 10, R: 3}}, [3]int{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := build(prim.Primitive{Kind: prim.Triangle, Vertices: tt.verts, State: fullArea()})
			b := newBatch(2)
			b.add(&cmd)
			if len(b.jobs) != 1 {
				t.Fatalf("got %d jobs", len(b.jobs))
			}
			j := b.jobs[0]
			for i, k := range tt.order {
				if got := j.params[pVertex+4*i+2]; got != uint32(tt.verts[k].R) {
					t.Errorf("slot %d holds vertex colour %d, want %d", i, got, tt.verts[k].R)
				}
			}
			if area := j.params[pExtra+1]; area != 400 {
				t.Errorf("area = %d, want 400", area)
			}
			if j.size != image.Pt(21, 21) {
				t.Errorf("grid = %v, want 21×21", j.size)
			}
		})
	}
}

func TestDegenerateCommandsProduceNoJobs(t *testing.T) {
	cmds := []accel.Cmd{
		build(prim.Primitive{Kind: prim.Triangle, Vertices: [3]prim.Vertex{{X: 0}, {X: 5}, {X: 10}}, State: fullArea()}),
		build(prim.Primitive{Kind: prim.Triangle, Vertices: [3]prim.Vertex{{X: 0}, {X: 1024}, {Y: 5}}, State: fullArea()}),
		build(prim.Primitive{Kind: prim.Rectangle, Vertices: [3]prim.Vertex{{X: 2000}}, W: 4, H: 4, State: fullArea()}),
		build(prim.Primitive{Kind: prim.Line, Vertices: [3]prim.Vertex{{X: -50, Y: -50}, {X: -40, Y: -40}}, State: fullArea()}),
		{Op: accel.OpSeed},
	}
	b := newBatch(2)
	for i := range cmds {
		b.add(&cmds[i])
	}
	if len(b.jobs) != 0 {
		t.Errorf("got %d jobs, want none", len(b.jobs))
	}
	if got := len(b.auxBytes()); got != 4 {
		t.Errorf("empty aux = %d bytes, want 4", got)
	}
}

func TestFillSplitsAtEdges(t *testing.T) {
	cmd := build(prim.Primitive{
		Kind:     prim.Fill,
		Vertices: [3]prim.Vertex{{X: 1008, Y: 500, R: 255}},
		W:        32,
		H:        16,
	})
	b := newBatch(3)
	b.add(&cmd)
	if len(b.jobs) != len(softraster.FillRects(&cmd.Prim)) || len(b.jobs) != 4 {
		t.Fatalf("got %d jobs, want 4", len(b.jobs))
	}
	want := accel.PackPixel(vram.RGB8(255, 0, 0))
	for _, j := range b.jobs {
		if j.params[pVertex+2] != want {
			t.Errorf("fill value = %#x, want %#x", j.params[pVertex+2], want)
		}
		if j.params[pOp] != opFill {
			t.Errorf("op = %d", j.params[pOp])
		}
	}
	if b.jobs[0].size != image.Pt(16*3, 12*3) {
		t.Errorf("first grid = %v", b.jobs[0].size)
	}
}

func TestLineEntries(t *testing.T) {
	p := prim.Primitive{
		Kind:     prim.Line,
		Vertices: [3]prim.Vertex{{X: 0, Y: 0, R: 0}, {X: 4, Y: 2, R: 200}},
		Gouraud:  true,
		State:    fullArea(),
	}
	cmd := build(p)
	b := newBatch(4)
	b.add(&cmd)
	if len(b.jobs) != 1 {
		t.Fatalf("got %d jobs", len(b.jobs))
	}
	j := b.jobs[0]
	if n := j.params[pExtra+2]; n != 5 {
		t.Fatalf("entries = %d, want 5", n)
	}
	if j.size != image.Pt(20, 4) {
		t.Errorf("grid = %v, want 20×4", j.size)
	}
	wantPts := []image.Point{{0, 0}, {1, 1}, {2, 1}, {3, 2}, {4, 2}}
	for i, pt := range wantPts {
		pos := b.aux[j.params[pAux]+uint32(2*i)]
		if got := image.Pt(int(pos&0xFFFF), int(pos>>16)); got != pt {
			t.Errorf("entry %d at %v, want %v", i, got, pt)
		}
	}
	last := b.aux[j.params[pAux]+9]
	if last&0xFF != 200 {
		t.Errorf("last colour = %#x, want red 200", last)
	}
}

func TestTexturedRectangleBindings(t *testing.T) {
	fb := vram.New()
	fb.Set(324, 0, vram.RGB5(31, 0, 0))
	resident := atlas.New(vram.Width, vram.Height)
	resident.Mark(324, 0)
	p := prim.Primitive{
		Kind:     prim.Rectangle,
		Vertices: [3]prim.Vertex{{X: 10, Y: 10, U: 5, V: 0}},
		W:        2,
		H:        2,
		Texture:  prim.Raw,
		Page:     drawstate.TexturePage{X: 320, Depth: drawstate.Depth15, FlipX: true},
		State:    fullArea(),
	}
	p.State.CheckMask = true
	cmd := accel.Build(&p, fb, resident, accel.ColorMode{})

	b := newBatch(2)
	b.add(&cmd)
	j := b.jobs[0]
	want := flagTextured | flagRaw | flagCheckMask | flagFlipX
	if f := j.params[pFlags]; f != want {
		t.Errorf("flags = %#b, want %#b", f, want)
	}
	if j.params[pTex] != 320 || j.params[pTex+2] != uint32(drawstate.Depth15) {
		t.Errorf("texture params = %v", j.params[pTex:pTex+4])
	}
	if j.params[pAux+1] != none {
		t.Error("15-bit page bound a lookup table")
	}
	// Texels 4 and 5 of row 0 are snapshotted; only 4 is resident.
	if off := j.params[pAux+2]; off == none || b.aux[off] != 1 || b.aux[off+1] != 0 {
		t.Error("resident texel not bound")
	}
	if j.params[pAux+3] == none {
		t.Error("mask plane not bound")
	}
	if j.params[pVertex] != 10 || j.params[pVertex+1] != 10 {
		t.Error("rectangle origin must stay native")
	}
}

func TestUniformLayout(t *testing.T) {
	cmd := accel.Seed(vram.New(), image.Rect(0, 0, 3, 3))
	b := newBatch(5)
	b.add(&cmd)
	b.add(&cmd)
	u := b.uniforms()
	if len(u) != 2*paramStride {
		t.Fatalf("uniforms = %d bytes", len(u))
	}
	if got := binary.LittleEndian.Uint32(u[paramStride+4*pScale:]); got != 5 {
		t.Errorf("second scale = %d, want 5", got)
	}
	if gx, gy := b.jobs[0].groups(); gx != 2 || gy != 2 {
		t.Errorf("groups = %d×%d, want 2×2", gx, gy)
	}
	if b.jobs[1].params[pAux] != 9 {
		t.Errorf("second seed reads aux at %d, want 9", b.jobs[1].params[pAux])
	}
}

func TestColorFlags(t *testing.T) {
	gouraud := prim.Primitive{
		Kind:     prim.Triangle,
		Gouraud:  true,
		Vertices: [3]prim.Vertex{{X: 0, Y: 0, R: 200}, {X: 10, Y: 0, G: 200}, {X: 0, Y: 10, B: 200}},
		State:    fullArea(),
	}
	gouraud.State.Dither = true
	flat := gouraud
	flat.Gouraud = false

	tests := []struct {
		name string
		p    prim.Primitive
		mode accel.ColorMode
		want uint32
	}{
		{"high color", gouraud, accel.ColorMode{Dither: accel.DitherNative}, 0},
		{"native", gouraud, accel.ColorMode{Native: true}, flagNative},
		{"native dither", gouraud, accel.ColorMode{Native: true, Dither: accel.DitherNative}, flagNative | flagDither},
		{"scaled dither", gouraud, accel.ColorMode{Native: true, Dither: accel.DitherScaled}, flagNative | flagDither | flagDitherScaled},
		{"flat is never dithered", flat, accel.ColorMode{Native: true, Dither: accel.DitherScaled}, flagNative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := accel.Build(&tt.p, vram.New(), nil, tt.mode)
			b := newBatch(2)
			b.add(&cmd)
			if len(b.jobs) != 1 {
				t.Fatalf("got %d jobs", len(b.jobs))
			}
			const mask = flagNative | flagDither | flagDitherScaled
			if got := b.jobs[0].params[pFlags] & mask; got != tt.want {
				t.Errorf("colour flags = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestShaderCompiles(t *testing.T) {
	code, err := compileRaster()
	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("naga feature not available: %v", err)
		}
		t.Fatalf("compileRaster() = %v", err)
	}
	if len(code) == 0 || code[0] != 0x07230203 {
		t.Errorf("not SPIR-V: %d words", len(code))
	}
}
