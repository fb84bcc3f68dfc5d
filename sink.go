package psxgpu

import (
	"image"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/gp0"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/vram"
)

// sink receives decoder output on behalf of a GPU. Transfers go through the
// same reconcile and invalidate rules as ReadRegion and WriteRegion.
type sink struct {
	*GPU
}

var _ gp0.Sink = sink{}

// Draw implements gp0.Sink.
func (s sink) Draw(p *prim.Primitive) {
	s.eng.Draw(p)
}

// StateChanged implements gp0.Sink.
func (s sink) StateChanged(c drawstate.Change) {
	s.log.Debug("psxgpu: state changed", "change", c.String())
}

// maskedWrite stores v at (x, y) honouring the mask flags.
func (g *GPU) maskedWrite(x, y int, v vram.Pixel, st *drawstate.State) {
	if st.CheckMask && g.fb.At(x, y).Masked() {
		return
	}
	if st.SetMask {
		v |= vram.MaskBit
	}
	g.fb.Set(x, y, v)
}

// WriteVRAM implements gp0.Sink for CPU→VRAM transfers.
func (s sink) WriteVRAM(row gp0.Transfer, px []uint16) {
	st := s.dec.State()
	rects := row.Rects()
	if st.CheckMask {
		for _, r := range rects {
			s.eng.Reconcile(r)
		}
	}
	for i, v := range px {
		s.maskedWrite(row.X+i, row.Y, vram.Pixel(v), st)
	}
	for _, r := range rects {
		s.eng.Invalidate(r)
	}
}

// ReadVRAM implements gp0.Sink for VRAM→CPU transfers.
func (s sink) ReadVRAM(t gp0.Transfer) []uint16 {
	for _, r := range t.Rects() {
		s.eng.Reconcile(r)
	}
	px := s.fb.Snapshot(t.X, t.Y, t.W, t.H)
	out := make([]uint16, len(px))
	for i, p := range px {
		out[i] = uint16(p)
	}
	return out
}

// CopyVRAM implements gp0.Sink for VRAM→VRAM copies.
func (s sink) CopyVRAM(src image.Point, dst gp0.Transfer) {
	st := s.dec.State()
	s.eng.Hazard(vram.Split(src.X, src.Y, dst.W, dst.H)...)
	rects := dst.Rects()
	if st.CheckMask {
		for _, r := range rects {
			s.eng.Reconcile(r)
		}
	}
	px := s.fb.Snapshot(src.X, src.Y, dst.W, dst.H)
	for y := 0; y < dst.H; y++ {
		for x := 0; x < dst.W; x++ {
			s.maskedWrite(dst.X+x, dst.Y+y, px[y*dst.W+x], st)
		}
	}
	for _, r := range rects {
		s.eng.Invalidate(r)
	}
}
