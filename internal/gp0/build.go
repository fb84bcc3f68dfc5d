package gp0

import (
	"image"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
)

// polylineEnd matches the word that terminates a polyline.
func polylineEnd(w uint32) bool {
	return w&0xF000F000 == 0x50005000
}

// vertex decodes a signed 11-bit coordinate pair and applies the drawing
// offset.
func (d *Decoder) vertex(w uint32, c uint32) prim.Vertex {
	return prim.Vertex{
		X: drawstate.SignExtend11(w) + d.state.OffsetX,
		Y: drawstate.SignExtend11(w>>16) + d.state.OffsetY,
		R: uint8(c),
		G: uint8(c >> 8),
		B: uint8(c >> 16),
	}
}

func texcoord(v *prim.Vertex, w uint32) {
	v.U, v.V = uint8(w), uint8(w>>8)
}

func clut(w uint32) (x, y int) {
	return int((w>>16)&0x3F) * 16, int((w >> 22) & 0x1FF)
}

func textureMode(cmd uint32) prim.TextureMode {
	switch {
	case cmd&flagTextured == 0:
		return prim.Untextured
	case cmd&flagRaw != 0:
		return prim.Raw
	default:
		return prim.Modulated
	}
}

// emit resets the shared primitive, fills the common fields and hands it
// to the sink.
func (d *Decoder) emit(p prim.Primitive) {
	p.State = d.state
	d.prim = p
	d.sink.Draw(&d.prim)
}

func (d *Decoder) polygon() {
	n := 3
	if d.cmd&flagQuad != 0 {
		n = 4
	}
	textured := d.cmd&flagTextured != 0
	gouraud := d.cmd&flagGouraud != 0

	var verts [4]prim.Vertex
	var clutX, clutY int
	page := d.state.TexPage
	color := d.cmd
	i := 0
	for k := 0; k < n; k++ {
		if k > 0 && gouraud {
			color = d.args[i]
			i++
		}
		verts[k] = d.vertex(d.args[i], color)
		i++
		if !textured {
			continue
		}
		uv := d.args[i]
		i++
		texcoord(&verts[k], uv)
		switch k {
		case 0:
			clutX, clutY = clut(uv)
		case 1:
			// The polygon's page replaces the global one, except for the
			// rectangle flip bits.
			tp := drawstate.TexturePageFromWord(uv >> 16)
			tp.FlipX, tp.FlipY = page.FlipX, page.FlipY
			page = tp
			d.state.TexPage = tp
			d.sink.StateChanged(drawstate.ChangeDrawMode)
		}
	}

	base := prim.Primitive{
		Kind:      prim.Triangle,
		Gouraud:   gouraud,
		Texture:   textureMode(d.cmd),
		SemiTrans: d.cmd&flagSemi != 0,
		Page:      page,
		ClutX:     clutX,
		ClutY:     clutY,
	}
	first := base
	first.Vertices = [3]prim.Vertex{verts[0], verts[1], verts[2]}
	d.emit(first)
	if n == 4 {
		second := base
		second.Vertices = [3]prim.Vertex{verts[1], verts[2], verts[3]}
		d.emit(second)
	}
}

// firstSegment draws the first line of a line or polyline command.
func (d *Decoder) firstSegment() {
	v0, c1, v1 := d.args[0], d.cmd, d.args[1]
	if d.cmd&flagGouraud != 0 {
		c1, v1 = d.args[1], d.args[2]
	}
	d.segment(v0, d.cmd, v1, c1)
}

// segment emits one line and remembers its end for polylines.
func (d *Decoder) segment(v0, c0, v1, c1 uint32) {
	d.emit(prim.Primitive{
		Kind:      prim.Line,
		Vertices:  [3]prim.Vertex{d.vertex(v0, c0), d.vertex(v1, c1)},
		Gouraud:   d.cmd&flagGouraud != 0,
		SemiTrans: d.cmd&flagSemi != 0,
		Page:      d.state.TexPage,
	})
	d.lastV, d.lastC = v1, c1
}

// polyline consumes one word after the first segment of a polyline.
func (d *Decoder) polyline(w uint32) {
	if d.n == 0 && polylineEnd(w) {
		d.idle()
		return
	}
	d.args[d.n] = w
	d.n++
	if d.n < d.want {
		return
	}
	d.n = 0
	if d.cmd&flagGouraud != 0 {
		d.segment(d.lastV, d.lastC, d.args[1], d.args[0])
		return
	}
	d.segment(d.lastV, d.cmd, d.args[0], d.cmd)
}

func (d *Decoder) rectangle() {
	v := d.vertex(d.args[0], d.cmd)
	i := 1
	var clutX, clutY int
	if d.cmd&flagTextured != 0 {
		texcoord(&v, d.args[i])
		clutX, clutY = clut(d.args[i])
		i++
	}
	var w, h int
	switch (d.cmd >> 27) & 3 {
	case 0:
		w, h = int(d.args[i]&0x3FF), int((d.args[i]>>16)&0x1FF)
	case 1:
		w, h = 1, 1
	case 2:
		w, h = 8, 8
	case 3:
		w, h = 16, 16
	}
	d.emit(prim.Primitive{
		Kind:      prim.Rectangle,
		Vertices:  [3]prim.Vertex{v},
		W:         w,
		H:         h,
		Texture:   textureMode(d.cmd),
		SemiTrans: d.cmd&flagSemi != 0,
		Page:      d.state.TexPage,
		ClutX:     clutX,
		ClutY:     clutY,
	})
}

func (d *Decoder) fill() {
	pos, size := d.args[0], d.args[1]
	c := d.cmd
	d.emit(prim.Primitive{
		Kind: prim.Fill,
		Vertices: [3]prim.Vertex{{
			X: int(pos & 0x3F0),
			Y: int((pos >> 16) & 0x1FF),
			R: uint8(c), G: uint8(c >> 8), B: uint8(c >> 16),
		}},
		W:    int(((size & 0x3FF) + 0xF) &^ 0xF),
		H:    int((size >> 16) & 0x1FF),
		Page: d.state.TexPage,
	})
}

func (d *Decoder) copyVRAM() {
	src := image.Pt(int(d.args[0]&0x3FF), int((d.args[0]>>16)&0x1FF))
	dst := transferFromArgs(d.args[1], d.args[2])
	d.sink.CopyVRAM(src, dst)
}
