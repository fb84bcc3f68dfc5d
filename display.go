package psxgpu

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/vram"
)

// DisplayInfo describes the visible part of VRAM as programmed through
// GP1.
type DisplayInfo struct {
	// Origin is the top-left VRAM halfword of the display area.
	Origin image.Point
	// Width and Height are the display size in output pixels.
	Width, Height int
	// Depth24 reports 24-bit colour output.
	Depth24 bool
	// Interlaced reports interlaced output.
	Interlaced bool
	// PAL reports PAL timing, NTSC otherwise.
	PAL bool
	// Enabled reports whether the display output is on.
	Enabled bool
}

// Display returns the current display configuration.
func (g *GPU) Display() DisplayInfo {
	d := g.dec.State().Display
	return DisplayInfo{
		Origin:     image.Pt(d.StartX, d.StartY),
		Width:      d.Width(),
		Height:     d.Height(),
		Depth24:    d.Depth24,
		Interlaced: d.Interlaced,
		PAL:        d.Mode == drawstate.PAL,
		Enabled:    d.Enabled,
	}
}

// DisplayImage returns the visible picture. In 15-bit mode with the
// accelerated path running it is the high-resolution composite at the
// active scale; otherwise it is decoded from the canonical framebuffer.
// A display area crossing the right or bottom edge of VRAM wraps.
func (g *GPU) DisplayImage() image.Image {
	d := g.dec.State().Display
	r := d.Rect()
	pieces := vram.Split(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
	if d.Depth24 {
		for _, p := range pieces {
			g.eng.Reconcile(p)
		}
		return g.fb.RGBA24(d.StartX, d.StartY, d.Width(), d.Height())
	}
	switch len(pieces) {
	case 0:
		return image.NewRGBA(image.Rectangle{})
	case 1:
		return g.composite(pieces[0])
	}

	imgs := make([]*image.RGBA, len(pieces))
	for i, p := range pieces {
		imgs[i] = g.composite(p)
	}
	s := imgs[0].Bounds().Dx() / pieces[0].Dx()
	for i, p := range pieces {
		if imgs[i].Bounds().Dx() != p.Dx()*s {
			// The backend dropped out part way; fall back to canonical.
			s = 1
			for k, q := range pieces {
				imgs[k] = g.fb.RGBA(q)
			}
			break
		}
	}

	origin := image.Pt(r.Min.X&(vram.Width-1), r.Min.Y&(vram.Height-1))
	size := image.Pt(min(r.Dx(), vram.Width), min(r.Dy(), vram.Height))
	out := image.NewRGBA(image.Rectangle{Max: size.Mul(s)})
	for i, p := range pieces {
		at := image.Pt((p.Min.X-origin.X)&(vram.Width-1), (p.Min.Y-origin.Y)&(vram.Height-1)).Mul(s)
		draw.Draw(out, imgs[i].Bounds().Add(at), imgs[i], image.Point{}, draw.Src)
	}
	return out
}

// composite returns one in-bounds part of the display area.
func (g *GPU) composite(r image.Rectangle) *image.RGBA {
	img, err := g.eng.Composite(r)
	if err != nil {
		g.log.Warn("psxgpu: display composite failed", "err", err)
		return g.fb.RGBA(r)
	}
	return img
}

// VRAMImage returns all of VRAM, reconciled, in the 15-bit decode.
func (g *GPU) VRAMImage() *image.RGBA {
	all := image.Rect(0, 0, vram.Width, vram.Height)
	g.eng.Reconcile(all)
	return g.fb.RGBA(all)
}

// LoadImage uploads img into VRAM with its top-left corner at at, like a
// CPU→VRAM transfer without mask handling. Colours are rounded to five
// bits per channel and pixels with zero alpha store
// 0000h. Parts of img outside VRAM are dropped; the return value counts
// the pixels written.
func (g *GPU) LoadImage(at image.Point, img image.Image) int {
	b := img.Bounds()
	px := make([]uint16, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				px = append(px, 0)
				continue
			}
			px = append(px, uint16(vram.RGB5(vram.Quantize8(c.R), vram.Quantize8(c.G), vram.Quantize8(c.B))))
		}
	}
	return g.WriteRegion(image.Rectangle{Min: at, Max: at.Add(b.Size())}, px)
}
