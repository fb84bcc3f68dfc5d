package accel

import (
	"image"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/softraster"
	"github.com/gogpu/psxgpu/internal/vram"
)

// Pack builds a scaled-buffer pixel: 8-bit RGBA with red in the low byte.
func Pack(r, g, b, a uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// Unpack splits a scaled-buffer pixel into its channels.
func Unpack(c uint32) (r, g, b, a uint8) {
	return uint8(c), uint8(c >> 8), uint8(c >> 16), uint8(c >> 24)
}

// PackPixel expands a canonical pixel to the scaled-buffer format.
func PackPixel(p vram.Pixel) uint32 {
	return Pack(p.RGBA8())
}

// Canvas is a scaled colour buffer in memory together with the reference
// rasterizer that draws Cmds into it. SoftwareBackend runs one on a worker
// goroutine; GPU backends are tested against it.
//
// Canvas is NOT safe for concurrent use.
type Canvas struct {
	scale  int
	stride int
	pix    []uint32
}

// NewCanvas allocates a cleared canvas for scale factor s.
func NewCanvas(s int) *Canvas {
	return &Canvas{
		scale:  s,
		stride: vram.Width * s,
		pix:    make([]uint32, vram.Width*s*vram.Height*s),
	}
}

// Scale returns the scale factor.
func (c *Canvas) Scale() int { return c.scale }

// At returns the scaled pixel at (x, y) with wrapping.
func (c *Canvas) At(x, y int) uint32 {
	x = mod(x, c.stride)
	y = mod(y, vram.Height*c.scale)
	return c.pix[y*c.stride+x]
}

func (c *Canvas) set(x, y int, v uint32) {
	c.pix[y*c.stride+x] = v
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Samples returns one scaled pixel per canonical pixel of r (clamped), the
// top-left subpixel of each block, row-major.
func (c *Canvas) Samples(r image.Rectangle) []uint32 {
	r = vram.Clamp(r)
	out := make([]uint32, 0, r.Dx()*r.Dy())
	s := c.scale
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := c.pix[y*s*c.stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			out = append(out, row[x*s])
		}
	}
	return out
}

// Scaled returns the scaled pixels covering canonical region r (clamped)
// as an image with alpha forced opaque.
func (c *Canvas) Scaled(r image.Rectangle) *image.RGBA {
	r = vram.Clamp(r)
	s := c.scale
	img := image.NewRGBA(image.Rect(0, 0, r.Dx()*s, r.Dy()*s))
	for y := 0; y < r.Dy()*s; y++ {
		src := c.pix[(r.Min.Y*s+y)*c.stride+r.Min.X*s:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < r.Dx()*s; x++ {
			red, g, b, _ := Unpack(src[x])
			dst[x*4], dst[x*4+1], dst[x*4+2], dst[x*4+3] = red, g, b, 0xFF
		}
	}
	return img
}

// Execute runs one command.
func (c *Canvas) Execute(cmd *Cmd) {
	switch cmd.Op {
	case OpSeed:
		c.seed(cmd)
	case OpFill:
		c.fill(cmd)
	case OpTriangle:
		c.triangle(cmd)
	case OpLine:
		c.line(cmd)
	case OpRect:
		c.rectangle(cmd)
	}
}

func (c *Canvas) block(x, y int, v uint32) {
	s := c.scale
	for dy := 0; dy < s; dy++ {
		row := c.pix[(y*s+dy)*c.stride+x*s:]
		for dx := 0; dx < s; dx++ {
			row[dx] = v
		}
	}
}

func (c *Canvas) seed(cmd *Cmd) {
	r := cmd.Rect
	i := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c.block(x, y, PackPixel(cmd.Pixels[i]))
			i++
		}
	}
}

func (c *Canvas) fill(cmd *Cmd) {
	p := &cmd.Prim
	o := p.Vertices[0]
	v := PackPixel(vram.RGB8(o.R, o.G, o.B))
	for _, r := range softraster.FillRects(p) {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				c.block(x, y, v)
			}
		}
	}
}

func scaleRect(r image.Rectangle, s int) image.Rectangle {
	return image.Rectangle{Min: r.Min.Mul(s), Max: r.Max.Mul(s)}
}

func color(v *prim.Vertex) [3]uint8 {
	return [3]uint8{v.R, v.G, v.B}
}

func (c *Canvas) triangle(cmd *Cmd) {
	p := &cmd.Prim
	if !softraster.Drawable(p) {
		return
	}
	s := c.scale
	vs := &p.Vertices
	var pts [3]image.Point
	for i := range pts {
		pts[i] = image.Pt(vs[i].X*s, vs[i].Y*s)
	}
	flat := color(&vs[0])
	softraster.WalkTriangle(pts, scaleRect(cmd.Rect, s), func(x, y int, w *[3]int64, area int64) {
		col := flat
		if p.Gouraud {
			col = [3]uint8{
				softraster.InterpColor(w, area, vs[0].R, vs[1].R, vs[2].R),
				softraster.InterpColor(w, area, vs[0].G, vs[1].G, vs[2].G),
				softraster.InterpColor(w, area, vs[0].B, vs[1].B, vs[2].B),
			}
		}
		var tc texcoord
		if p.Textured() {
			u := softraster.InterpFixed(w, area, s, vs[0].U, vs[1].U, vs[2].U)
			v := softraster.InterpFixed(w, area, s, vs[0].V, vs[1].V, vs[2].V)
			tc = texcoord{u: uint8(u / s), v: uint8(v / s), su: u % s, sv: v % s}
		}
		c.shade(cmd, x, y, col, tc)
	})
}

func (c *Canvas) line(cmd *Cmd) {
	p := &cmd.Prim
	if !softraster.Drawable(p) {
		return
	}
	a, b := &p.Vertices[0], &p.Vertices[1]
	s := c.scale
	softraster.WalkLine(image.Pt(a.X, a.Y), image.Pt(b.X, b.Y), func(x, y, i, k int) {
		if !image.Pt(x, y).In(cmd.Rect) {
			return
		}
		col := color(a)
		if p.Gouraud {
			col = [3]uint8{
				softraster.Lerp(a.R, b.R, i, k),
				softraster.Lerp(a.G, b.G, i, k),
				softraster.Lerp(a.B, b.B, i, k),
			}
		}
		for dy := 0; dy < s; dy++ {
			for dx := 0; dx < s; dx++ {
				c.shade(cmd, x*s+dx, y*s+dy, col, texcoord{})
			}
		}
	})
}

func (c *Canvas) rectangle(cmd *Cmd) {
	p := &cmd.Prim
	if !softraster.Drawable(p) {
		return
	}
	s := c.scale
	o := &p.Vertices[0]
	col := color(o)
	r := scaleRect(cmd.Rect, s)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		ny, sv := y/s, y%s
		if p.Page.FlipY {
			sv = s - 1 - sv
		}
		v := softraster.RectTexel(o.V, ny-o.Y, p.Page.FlipY)
		for x := r.Min.X; x < r.Max.X; x++ {
			nx, su := x/s, x%s
			if p.Page.FlipX {
				su = s - 1 - su
			}
			u := softraster.RectTexel(o.U, nx-o.X, p.Page.FlipX)
			c.shade(cmd, x, y, col, texcoord{u: u, v: v, su: su, sv: sv})
		}
	}
}

// texcoord is a texel coordinate plus the subtexel offset inside the
// texel's scaled block.
type texcoord struct {
	u, v   uint8
	su, sv int
}

// Modulate8 multiplies an 8-bit texel channel by an 8-bit vertex colour
// channel; 0x80 is neutral.
func Modulate8(t, c uint8) uint8 {
	return uint8(min(int(t)*int(c)>>7, 255))
}

// shade computes one scaled pixel. Unless cmd asks for native colour it
// keeps 8-bit precision throughout and does not dither.
func (c *Canvas) shade(cmd *Cmd, x, y int, col [3]uint8, tc texcoord) {
	p := &cmd.Prim
	st := &p.State
	s := c.scale
	if st.CheckMask && cmd.Mask.At(x/s, y/s) {
		return
	}

	out := col
	stp := false
	if p.Textured() {
		t, ok := c.texel(cmd, st.Window, tc)
		if !ok {
			return
		}
		r, g, b, a := Unpack(t)
		stp = a != 0
		if p.Texture == prim.Raw {
			out = [3]uint8{r, g, b}
		} else {
			out = [3]uint8{Modulate8(r, col[0]), Modulate8(g, col[1]), Modulate8(b, col[2])}
		}
	}

	if cmd.Color.Native {
		out = c.native(cmd, x, y, out)
	}
	if p.SemiTrans && (!p.Textured() || stp) {
		br, bg, bb, _ := Unpack(c.pix[y*c.stride+x])
		mode := p.Blend()
		out = [3]uint8{
			softraster.Blend8(mode, br, out[0]),
			softraster.Blend8(mode, bg, out[1]),
			softraster.Blend8(mode, bb, out[2]),
		}
		if cmd.Color.Native {
			out = truncate(out)
		}
	}
	var a uint8
	if st.SetMask || stp {
		a = 0xFF
	}
	c.set(x, y, Pack(out[0], out[1], out[2], a))
}

// native rounds a drawn colour to 5 bits per channel, through the
// ordered dither when both the draw and the colour mode enable it.
func (c *Canvas) native(cmd *Cmd, x, y int, col [3]uint8) [3]uint8 {
	m := cmd.Color.Dither
	if m == DitherOff || !softraster.Dithered(&cmd.Prim) {
		return truncate(col)
	}
	if m == DitherNative {
		x, y = x/c.scale, y/c.scale
	}
	for i := range col {
		col[i] = vram.Expand5(softraster.Dither(col[i], x, y))
	}
	return col
}

func truncate(col [3]uint8) [3]uint8 {
	for i := range col {
		col[i] = vram.Expand5(vram.Truncate8(col[i]))
	}
	return col
}

// texel samples the texture. Transparency and the STP bit always come from
// the canonical texel; resident 15-bit texels take their colour from the
// scaled buffer at the matching subtexel.
func (c *Canvas) texel(cmd *Cmd, win drawstate.TextureWindow, tc texcoord) (uint32, bool) {
	t := cmd.Texture
	u, v := win.Apply(tc.u, tc.v)
	px := softraster.Texel(t, t.Depth, u, v)
	if px == 0 {
		return 0, false
	}
	if t.IsResident(u, v) {
		s := c.scale
		hi := c.At((t.PageX+int(u))*s+tc.su, (t.PageY+int(v))*s+tc.sv)
		r, g, b, _ := Unpack(hi)
		var a uint8
		if px.Masked() {
			a = 0xFF
		}
		return Pack(r, g, b, a), true
	}
	return PackPixel(px), true
}
