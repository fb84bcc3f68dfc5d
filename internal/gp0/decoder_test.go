package gp0

import (
	"image"
	"testing"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
)

// event is one recorded sink call.
type event struct {
	kind   string
	prim   prim.Primitive
	change drawstate.Change
	xfer   Transfer
	src    image.Point
	px     []uint16
}

type recorder struct {
	events []event
	vram   []uint16 // returned by ReadVRAM
}

func (r *recorder) Draw(p *prim.Primitive) {
	r.events = append(r.events, event{kind: "draw", prim: *p})
}

func (r *recorder) StateChanged(c drawstate.Change) {
	r.events = append(r.events, event{kind: "state", change: c})
}

func (r *recorder) CopyVRAM(src image.Point, dst Transfer) {
	r.events = append(r.events, event{kind: "copy", src: src, xfer: dst})
}

func (r *recorder) WriteVRAM(row Transfer, px []uint16) {
	r.events = append(r.events, event{kind: "write", xfer: row, px: append([]uint16(nil), px...)})
}

func (r *recorder) ReadVRAM(t Transfer) []uint16 {
	r.events = append(r.events, event{kind: "read", xfer: t})
	return r.vram
}

func (r *recorder) draws() []prim.Primitive {
	var out []prim.Primitive
	for _, e := range r.events {
		if e.kind == "draw" {
			out = append(out, e.prim)
		}
	}
	return out
}

func newTestDecoder(t *testing.T) (*Decoder, *recorder) {
	t.Helper()
	r := &recorder{}
	return New(r, nil), r
}

func feed(d *Decoder, words ...uint32) {
	for _, w := range words {
		d.WriteGP0(w)
	}
}

func TestArgCount(t *testing.T) {
	tests := []struct {
		op   byte
		want int
	}{
		{0x00, 0},
		{0x01, 0},
		{0x02, 2},
		{0x03, 0},
		{0x1F, 0},
		{0x20, 3},  // flat triangle
		{0x24, 6},  // flat textured triangle
		{0x28, 4},  // flat quad
		{0x2C, 8},  // flat textured quad
		{0x30, 5},  // gouraud triangle
		{0x38, 7},  // gouraud quad
		{0x3C, 11}, // gouraud textured quad
		{0x40, 2},  // line
		{0x48, 2},  // polyline
		{0x50, 3},  // gouraud line
		{0x60, 2},  // variable rectangle
		{0x64, 3},  // variable textured rectangle
		{0x68, 1},  // 1×1
		{0x74, 2},  // 8×8 textured
		{0x78, 1},  // 16×16
		{0x80, 3},
		{0xA0, 2},
		{0xC0, 2},
		{0xE1, 0},
		{0xE7, 0},
		{0xFF, 0},
	}
	for _, tt := range tests {
		if got := ArgCount(tt.op); got != tt.want {
			t.Errorf("ArgCount(%#02x) = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestReservedOpcodesAreNoOps(t *testing.T) {
	d, r := newTestDecoder(t)
	for _, op := range []uint32{0x00, 0x03, 0x10, 0x1E, 0xE0, 0xE7, 0xFF} {
		d.WriteGP0(op << 24)
		if !d.Idle() {
			t.Fatalf("opcode %#02x left the decoder in phase %s", op, d.Phase())
		}
	}
	if len(r.events) != 0 {
		t.Errorf("reserved opcodes emitted %d events", len(r.events))
	}
	// The stream continues normally afterwards.
	feed(d, 0x68FF0000, 0x00050004)
	if got := r.draws(); len(got) != 1 || got[0].Kind != prim.Rectangle {
		t.Fatalf("draws after reserved opcodes = %+v", got)
	}
}

func TestIRQOpcode(t *testing.T) {
	d, r := newTestDecoder(t)
	d.WriteGP0(0x1F000000)
	if !d.State().IRQ || d.Status()&(1<<24) == 0 {
		t.Error("GP0(1Fh) did not raise IRQ")
	}
	d.WriteGP1(0x02000000)
	if d.State().IRQ {
		t.Error("GP1(02h) did not acknowledge IRQ")
	}
	if len(r.events) != 2 || r.events[0].change != drawstate.ChangeIRQ {
		t.Errorf("events = %+v", r.events)
	}
}

func TestFlatTriangle(t *testing.T) {
	d, r := newTestDecoder(t)
	d.WriteGP0(0xE5000000 | 10 | 20<<11) // offset (10, 20)
	feed(d, 0x20112233, 0x00000000, 0x00000010, 0x00100000)
	draws := r.draws()
	if len(draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(draws))
	}
	p := draws[0]
	if p.Kind != prim.Triangle || p.Gouraud || p.Textured() {
		t.Errorf("primitive = %+v", p)
	}
	want := [3]image.Point{{10, 20}, {26, 20}, {10, 36}}
	for i, v := range p.Vertices {
		if (image.Point{v.X, v.Y}) != want[i] {
			t.Errorf("vertex %d = (%d, %d), want %v", i, v.X, v.Y, want[i])
		}
		if v.R != 0x33 || v.G != 0x22 || v.B != 0x11 {
			t.Errorf("vertex %d colour = %02x%02x%02x", i, v.R, v.G, v.B)
		}
	}
}

func TestTexturedGouraudQuad(t *testing.T) {
	d, r := newTestDecoder(t)
	// Gouraud textured quad. Vertex 0 carries the CLUT (x=16, y=511),
	// vertex 1 the texpage (x=5*64, y=256, 8-bit).
	feed(d,
		0x3C0000FF,
		0x00000000, 0x7FC10000,
		0x0000FF00, 0x00000010, 0x00951010,
		0x00FF0000, 0x00100000, 0x00002000,
		0x00FFFFFF, 0x00100010, 0x00003030,
	)
	if !d.Idle() {
		t.Fatalf("decoder in phase %s after quad", d.Phase())
	}
	draws := r.draws()
	if len(draws) != 2 {
		t.Fatalf("quad produced %d triangles, want 2", len(draws))
	}
	a, b := draws[0], draws[1]
	if a.Texture != prim.Modulated || !a.Gouraud {
		t.Errorf("first triangle = %+v", a)
	}
	if a.ClutX != 16 || a.ClutY != 511 {
		t.Errorf("CLUT = (%d, %d), want (16, 511)", a.ClutX, a.ClutY)
	}
	if a.Page.X != 5*64 || a.Page.Y != 256 || a.Page.Depth != drawstate.Depth8 {
		t.Errorf("page = %+v", a.Page)
	}
	if d.State().TexPage.X != 5*64 {
		t.Error("polygon texpage did not update the global page")
	}
	if b.Vertices[0] != a.Vertices[1] || b.Vertices[1] != a.Vertices[2] {
		t.Error("second triangle does not share the quad's middle edge")
	}
	if v := b.Vertices[2]; v.R != 0xFF || v.G != 0xFF || v.U != 0x30 || v.V != 0x30 {
		t.Errorf("fourth vertex = %+v", v)
	}
	// The texpage change is reported before the draws.
	if r.events[0].kind != "state" || r.events[0].change != drawstate.ChangeDrawMode {
		t.Errorf("first event = %+v, want texpage change", r.events[0])
	}
}

func TestPolyline(t *testing.T) {
	d, r := newTestDecoder(t)
	feed(d, 0x48FFFFFF, 0x00000000, 0x00000010)
	if d.Phase() != "Polyline" {
		t.Fatalf("phase = %s, want Polyline", d.Phase())
	}
	feed(d, 0x00100010, 0x00100000, 0x55555555)
	if !d.Idle() {
		t.Fatalf("terminator not recognised, phase %s", d.Phase())
	}
	draws := r.draws()
	if len(draws) != 3 {
		t.Fatalf("got %d segments, want 3", len(draws))
	}
	for i := 1; i < len(draws); i++ {
		if draws[i].Vertices[0] != draws[i-1].Vertices[1] {
			t.Errorf("segment %d does not start where %d ended", i, i-1)
		}
	}
}

func TestGouraudPolyline(t *testing.T) {
	d, r := newTestDecoder(t)
	feed(d, 0x580000FF, 0x00000000, 0x0000FF00, 0x00000010, 0x00FF0000, 0x00100010, 0x50005000)
	draws := r.draws()
	if len(draws) != 2 || !d.Idle() {
		t.Fatalf("got %d segments, idle=%v", len(draws), d.Idle())
	}
	if v := draws[1].Vertices[0]; v.G != 0xFF {
		t.Errorf("second segment start colour = %+v, want green", v)
	}
	if v := draws[1].Vertices[1]; v.B != 0xFF || v.X != 16 || v.Y != 16 {
		t.Errorf("second segment end = %+v", v)
	}
}

func TestRectangleSizes(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
		w, h  int
	}{
		{"variable", []uint32{0x60000000, 0x00000000, 0x00200030}, 0x30, 0x20},
		{"dot", []uint32{0x68000000, 0x00000000}, 1, 1},
		{"8x8", []uint32{0x70000000, 0x00000000}, 8, 8},
		{"16x16 textured", []uint32{0x7C000000, 0x00000000, 0x00001234}, 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, r := newTestDecoder(t)
			feed(d, tt.words...)
			draws := r.draws()
			if len(draws) != 1 {
				t.Fatalf("got %d draws", len(draws))
			}
			if draws[0].W != tt.w || draws[0].H != tt.h {
				t.Errorf("size = %dx%d, want %dx%d", draws[0].W, draws[0].H, tt.w, tt.h)
			}
		})
	}
}

func TestFillAlignment(t *testing.T) {
	d, r := newTestDecoder(t)
	feed(d, 0x02102030, 0x0008001F, 0x00050011)
	p := r.draws()[0]
	if p.Kind != prim.Fill || p.Vertices[0].X != 0x10 || p.Vertices[0].Y != 8 {
		t.Errorf("fill origin = (%d, %d), want (16, 8)", p.Vertices[0].X, p.Vertices[0].Y)
	}
	if p.W != 0x20 || p.H != 5 {
		t.Errorf("fill size = %dx%d, want 32x5", p.W, p.H)
	}
}

func TestOrderingBetweenStateAndDraws(t *testing.T) {
	d, r := newTestDecoder(t)
	// Drawing area (0,0)-(7,7), a dot, area shrunk to (3,3), another dot.
	feed(d,
		0xE3000000,
		0xE4000000|7|7<<10,
		0x68FFFFFF, 0x00000000,
		0xE4000000|3|3<<10,
		0x68FFFFFF, 0x00000000,
	)
	draws := r.draws()
	if len(draws) != 2 {
		t.Fatalf("got %d draws", len(draws))
	}
	if draws[0].State.Area.Right != 7 || draws[1].State.Area.Right != 3 {
		t.Errorf("draw areas = %d, %d; want 7, 3", draws[0].State.Area.Right, draws[1].State.Area.Right)
	}
	kinds := ""
	for _, e := range r.events {
		kinds += e.kind[:1]
	}
	if kinds != "ssdsd" {
		t.Errorf("event order = %q, want \"ssdsd\"", kinds)
	}
}

func TestCPUToVRAMTransfer(t *testing.T) {
	d, r := newTestDecoder(t)
	// 3×2 block at (1023, 2) wraps at the right edge.
	feed(d, 0xA0000000, 0x0002_03FF, 0x0002_0003)
	if d.Phase() != "ReceivingPixels" {
		t.Fatalf("phase = %s", d.Phase())
	}
	if d.Status()&(1<<26) != 0 {
		t.Error("ready-for-command bit set during transfer")
	}
	feed(d, 0x0002_0001, 0x0004_0003, 0x0006_0005)
	if !d.Idle() {
		t.Fatalf("transfer did not finish, phase %s", d.Phase())
	}
	var rows []event
	for _, e := range r.events {
		if e.kind == "write" {
			rows = append(rows, e)
		}
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].xfer != (Transfer{X: 1023, Y: 3, W: 3, H: 1}) {
		t.Errorf("row 1 = %+v", rows[1].xfer)
	}
	if got := rows[1].px; got[0] != 4 || got[2] != 6 {
		t.Errorf("row 1 pixels = %v", got)
	}
	if n := len(rows[0].xfer.Rects()); n != 2 {
		t.Errorf("wrapping row split into %d rects, want 2", n)
	}
}

func TestVRAMToCPUTransfer(t *testing.T) {
	d, r := newTestDecoder(t)
	r.vram = []uint16{1, 2, 3}
	feed(d, 0xC0000000, 0x00000000, 0x00010003)
	if d.Status()&(1<<27) == 0 {
		t.Error("ready-to-send bit clear during read")
	}
	words := d.Drain(nil)
	if len(words) != 2 || words[0] != 0x00020001 || words[1] != 0x00000003 {
		t.Errorf("Drain() = %#x", words)
	}
	if !d.Idle() {
		t.Error("decoder not idle after draining")
	}
}

func TestCopyVRAM(t *testing.T) {
	d, r := newTestDecoder(t)
	feed(d, 0x80000000, 0x00100020, 0x00300040, 0x00080010)
	e := r.events[0]
	if e.kind != "copy" || e.src != image.Pt(0x20, 0x10) || e.xfer != (Transfer{X: 0x40, Y: 0x30, W: 0x10, H: 8}) {
		t.Errorf("copy event = %+v", e)
	}
}

func TestGP1(t *testing.T) {
	d, r := newTestDecoder(t)
	d.WriteGP1(0x03000000)
	d.WriteGP1(0x05000000 | 64 | 16<<10)
	d.WriteGP1(0x08000001)
	disp := d.State().Display
	if !disp.Enabled || disp.StartX != 64 || disp.StartY != 16 || disp.Width() != 320 {
		t.Errorf("display = %+v", disp)
	}

	d.WriteGP0(0xE3000000 | 5 | 6<<10)
	d.WriteGP1(0x10000003)
	if got := d.ReadWord(); got != 5|6<<10 {
		t.Errorf("GP1(10h) area query = %#x", got)
	}
	d.WriteGP1(0x10000007)
	if got := d.ReadWord(); got != gpuVersion {
		t.Errorf("GP1(10h) version = %d", got)
	}

	feed(d, 0x28000000, 0) // half a quad
	d.WriteGP1(0x01000000)
	if !d.Idle() {
		t.Error("GP1(01h) did not reset the command buffer")
	}

	d.WriteGP1(0x00000000)
	if d.State().Display.Enabled || d.State().Area.Left != 0 {
		t.Error("GP1(00h) did not reset the registers")
	}
	last := r.events[len(r.events)-1]
	if last.change != drawstate.ChangeReset {
		t.Errorf("last event = %+v, want reset", last)
	}
}

func TestStatusReady(t *testing.T) {
	d, _ := newTestDecoder(t)
	st := d.Status()
	if st&(1<<26) == 0 || st&(1<<28) == 0 {
		t.Errorf("idle GPUSTAT = %#x, want ready bits", st)
	}
	d.WriteGP0(0x20000000)
	if d.Status()&(1<<26) != 0 {
		t.Error("ready-for-command set while collecting arguments")
	}
}
