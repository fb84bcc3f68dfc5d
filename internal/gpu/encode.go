package gpu

import (
	"encoding/binary"
	"image"

	"github.com/gogpu/psxgpu/internal/accel"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/softraster"
	"github.com/gogpu/psxgpu/internal/vram"
)

// Shader opcodes and flags. Keep in sync with shaders/raster.wgsl.
const (
	opSeed uint32 = iota
	opTriangle
	opLine
	opRect
	opFill
)

const (
	flagGouraud uint32 = 1 << iota
	flagTextured
	flagRaw
	flagSemi
	flagSetMask
	flagCheckMask
	flagFlipX
	flagFlipY
	flagNative
	flagDither
	flagDitherScaled
)

const (
	// paramWords is the size of the Params uniform in 32-bit words.
	paramWords = 44
	// paramStride is the uniform offset alignment guaranteed by every
	// backend.
	paramStride = 256
	// workgroup is the compute workgroup edge.
	workgroup = 8

	none = ^uint32(0)
)

// Word offsets into Params.
const (
	pOp       = 0
	pScale    = 1
	pFlags    = 2
	pBlend    = 3
	pOrigin   = 4
	pSize     = 6
	pVertex   = 8 // three vec4: x, y, rgb, uv
	pClip     = 20
	pTex      = 24
	pTexRect  = 28
	pMaskRect = 32
	pAux      = 36
	pExtra    = 40
)

// job is one compute dispatch.
type job struct {
	params [paramWords]uint32
	size   image.Point
}

func (j *job) set(at int, v int) {
	j.params[at] = uint32(int32(v))
}

func (j *job) rect(at int, r image.Rectangle) {
	j.set(at, r.Min.X)
	j.set(at+1, r.Min.Y)
	j.set(at+2, r.Max.X)
	j.set(at+3, r.Max.Y)
}

// grid sets the scaled dispatch area.
func (j *job) grid(r image.Rectangle) {
	j.set(pOrigin, r.Min.X)
	j.set(pOrigin+1, r.Min.Y)
	j.set(pSize, r.Dx())
	j.set(pSize+1, r.Dy())
	j.size = r.Size()
}

func (j *job) vertex(i int, x, y int, v *prim.Vertex) {
	at := pVertex + 4*i
	j.set(at, x)
	j.set(at+1, y)
	j.params[at+2] = uint32(v.R) | uint32(v.G)<<8 | uint32(v.B)<<16
	j.params[at+3] = uint32(v.U) | uint32(v.V)<<8
}

// groups returns the workgroup counts of the dispatch.
func (j *job) groups() (x, y uint32) {
	return uint32((j.size.X + workgroup - 1) / workgroup), uint32((j.size.Y + workgroup - 1) / workgroup)
}

// batch translates the commands of one submission into dispatches and the
// auxiliary storage words they read.
type batch struct {
	scale int
	jobs  []job
	aux   []uint32
}

func newBatch(s int) *batch {
	return &batch{scale: s}
}

func (b *batch) pushPixels(px []vram.Pixel) uint32 {
	off := uint32(len(b.aux))
	for _, p := range px {
		b.aux = append(b.aux, uint32(p))
	}
	return off
}

func (b *batch) pushBools(v []bool) uint32 {
	if v == nil {
		return none
	}
	off := uint32(len(b.aux))
	for _, x := range v {
		var w uint32
		if x {
			w = 1
		}
		b.aux = append(b.aux, w)
	}
	return off
}

func (b *batch) scaled(r image.Rectangle) image.Rectangle {
	return image.Rectangle{Min: r.Min.Mul(b.scale), Max: r.Max.Mul(b.scale)}
}

// base returns a job carrying everything the shading stage needs.
func (b *batch) base(op uint32, cmd *accel.Cmd) job {
	var j job
	p := &cmd.Prim
	j.params[pOp] = op
	j.params[pScale] = uint32(b.scale)
	j.params[pBlend] = uint32(p.Blend())
	j.rect(pClip, cmd.Rect)
	j.params[pAux] = none
	j.params[pAux+1] = none
	j.params[pAux+2] = none
	j.params[pAux+3] = none

	var f uint32
	if p.Gouraud {
		f |= flagGouraud
	}
	if p.SemiTrans {
		f |= flagSemi
	}
	if p.State.SetMask {
		f |= flagSetMask
	}
	if p.State.CheckMask && cmd.Mask != nil {
		f |= flagCheckMask
		j.rect(pMaskRect, cmd.Mask.Rect)
		j.params[pAux+3] = b.pushBools(cmd.Mask.Bits)
	}
	if t := cmd.Texture; p.Textured() && t != nil {
		f |= flagTextured
		if p.Texture == prim.Raw {
			f |= flagRaw
		}
		if p.Kind == prim.Rectangle {
			if p.Page.FlipX {
				f |= flagFlipX
			}
			if p.Page.FlipY {
				f |= flagFlipY
			}
		}
		win := p.State.Window
		j.set(pTex, t.PageX)
		j.set(pTex+1, t.PageY)
		j.set(pTex+2, int(t.Depth))
		j.params[pTex+3] = uint32(win.MaskX) | uint32(win.MaskY)<<5 | uint32(win.OffsetX)<<10 | uint32(win.OffsetY)<<15
		j.rect(pTexRect, t.Rect)
		j.params[pAux] = b.pushPixels(t.Page)
		if len(t.Clut) > 0 {
			j.params[pAux+1] = b.pushPixels(t.Clut)
			j.params[pExtra] = uint32(len(t.Clut))
		}
		j.params[pAux+2] = b.pushBools(t.Resident)
	}
	j.params[pFlags] = f | colorFlags(cmd)
	return j
}

func colorFlags(cmd *accel.Cmd) uint32 {
	m := cmd.Color
	if !m.Native {
		return 0
	}
	f := flagNative
	if m.Dither != accel.DitherOff && softraster.Dithered(&cmd.Prim) {
		f |= flagDither
		if m.Dither == accel.DitherScaled {
			f |= flagDitherScaled
		}
	}
	return f
}

// add appends the dispatches of cmd. Commands that touch nothing produce
// none.
func (b *batch) add(cmd *accel.Cmd) {
	switch cmd.Op {
	case accel.OpSeed:
		b.seed(cmd)
	case accel.OpFill:
		b.fill(cmd)
	case accel.OpTriangle:
		b.triangle(cmd)
	case accel.OpLine:
		b.line(cmd)
	case accel.OpRect:
		b.rectangle(cmd)
	}
}

func (b *batch) seed(cmd *accel.Cmd) {
	if cmd.Rect.Empty() {
		return
	}
	var j job
	j.params[pOp] = opSeed
	j.params[pScale] = uint32(b.scale)
	j.rect(pClip, cmd.Rect)
	j.grid(b.scaled(cmd.Rect))
	j.params[pAux] = b.pushPixels(cmd.Pixels)
	b.jobs = append(b.jobs, j)
}

func (b *batch) fill(cmd *accel.Cmd) {
	p := &cmd.Prim
	o := p.Vertices[0]
	v := accel.PackPixel(vram.RGB8(o.R, o.G, o.B))
	for _, r := range softraster.FillRects(p) {
		if r.Empty() {
			continue
		}
		var j job
		j.params[pOp] = opFill
		j.params[pScale] = uint32(b.scale)
		j.rect(pClip, r)
		j.grid(b.scaled(r))
		j.params[pVertex+2] = v
		b.jobs = append(b.jobs, j)
	}
}

func cross(a, c, d image.Point) int64 {
	return int64(c.X-a.X)*int64(d.Y-a.Y) - int64(c.Y-a.Y)*int64(d.X-a.X)
}

func (b *batch) triangle(cmd *accel.Cmd) {
	p := &cmd.Prim
	if !softraster.Drawable(p) {
		return
	}
	s := b.scale
	order := [3]int{0, 1, 2}
	var pts [3]image.Point
	for i, v := range p.Vertices {
		pts[i] = image.Pt(v.X*s, v.Y*s)
	}
	area := cross(pts[0], pts[1], pts[2])
	if area == 0 {
		return
	}
	if area < 0 {
		order[1], order[2] = 2, 1
		area = -area
	}
	box := image.Rect(
		min(pts[0].X, pts[1].X, pts[2].X), min(pts[0].Y, pts[1].Y, pts[2].Y),
		max(pts[0].X, pts[1].X, pts[2].X)+1, max(pts[0].Y, pts[1].Y, pts[2].Y)+1,
	).Intersect(b.scaled(cmd.Rect))
	if box.Empty() {
		return
	}

	j := b.base(opTriangle, cmd)
	j.grid(box)
	for i, k := range order {
		j.vertex(i, pts[k].X, pts[k].Y, &p.Vertices[k])
	}
	j.params[pExtra+1] = uint32(area)
	b.jobs = append(b.jobs, j)
}

func (b *batch) line(cmd *accel.Cmd) {
	p := &cmd.Prim
	if !softraster.Drawable(p) {
		return
	}
	a, c := &p.Vertices[0], &p.Vertices[1]
	off := uint32(len(b.aux))
	n := 0
	softraster.WalkLine(image.Pt(a.X, a.Y), image.Pt(c.X, c.Y), func(x, y, i, k int) {
		if !image.Pt(x, y).In(cmd.Rect) {
			return
		}
		col := uint32(a.R) | uint32(a.G)<<8 | uint32(a.B)<<16
		if p.Gouraud {
			col = uint32(softraster.Lerp(a.R, c.R, i, k)) |
				uint32(softraster.Lerp(a.G, c.G, i, k))<<8 |
				uint32(softraster.Lerp(a.B, c.B, i, k))<<16
		}
		b.aux = append(b.aux, uint32(x)|uint32(y)<<16, col)
		n++
	})
	if n == 0 {
		return
	}
	j := b.base(opLine, cmd)
	j.params[pAux] = off
	j.params[pExtra+2] = uint32(n)
	j.params[pSize] = uint32(n * b.scale)
	j.params[pSize+1] = uint32(b.scale)
	j.size = image.Pt(n*b.scale, b.scale)
	b.jobs = append(b.jobs, j)
}

func (b *batch) rectangle(cmd *accel.Cmd) {
	p := &cmd.Prim
	if !softraster.Drawable(p) || cmd.Rect.Empty() {
		return
	}
	o := &p.Vertices[0]
	j := b.base(opRect, cmd)
	j.grid(b.scaled(cmd.Rect))
	j.vertex(0, o.X, o.Y, o)
	b.jobs = append(b.jobs, j)
}

// uniforms returns the Params of every job at paramStride intervals.
func (b *batch) uniforms() []byte {
	out := make([]byte, len(b.jobs)*paramStride)
	for i := range b.jobs {
		dst := out[i*paramStride:]
		for k, w := range b.jobs[i].params {
			binary.LittleEndian.PutUint32(dst[4*k:], w)
		}
	}
	return out
}

// auxBytes returns the auxiliary words. Storage bindings must not be
// empty.
func (b *batch) auxBytes() []byte {
	n := max(len(b.aux), 1)
	out := make([]byte, 4*n)
	for i, w := range b.aux {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}
