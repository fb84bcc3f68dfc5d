// Package gp0 decodes the GPU command ports.
//
// The Decoder consumes GP0 (drawing and transfer) and GP1 (display control)
// words one at a time. Multi-word commands are collected by an explicit
// state machine; completed primitives, register mutations and VRAM
// transfers are emitted to a Sink in strict arrival order.
package gp0

import (
	"image"
	"log/slog"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/prim"
	"github.com/gogpu/psxgpu/internal/vram"
)

// Transfer describes a VRAM block addressed by a transfer command.
// Coordinates are in range; the block may wrap at the framebuffer edges.
type Transfer struct {
	X, Y, W, H int
}

// Rects returns the in-bounds pieces of the block.
func (t Transfer) Rects() []image.Rectangle {
	return vram.Split(t.X, t.Y, t.W, t.H)
}

// Sink receives everything the decoder emits.
//
// The primitive passed to Draw is reused by the decoder and must not be
// retained after Draw returns.
type Sink interface {
	Draw(p *prim.Primitive)
	StateChanged(c drawstate.Change)
	CopyVRAM(src image.Point, dst Transfer)
	// WriteVRAM stores one row of a CPU→VRAM transfer. The row may wrap.
	// px is reused after the call returns.
	WriteVRAM(row Transfer, px []uint16)
	// ReadVRAM returns the block of a VRAM→CPU transfer row-major.
	ReadVRAM(t Transfer) []uint16
}

// phase is the decoder state.
type phase uint8

const (
	phaseIdle phase = iota
	phaseArgs
	phasePolyline
	phaseReceiving
	phaseSending
)

// String returns the phase name.
func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "Idle"
	case phaseArgs:
		return "CollectingArgs"
	case phasePolyline:
		return "Polyline"
	case phaseReceiving:
		return "ReceivingPixels"
	case phaseSending:
		return "SendingPixels"
	default:
		return "Unknown"
	}
}

// GPU version reported by GP1(10h) index 7.
const gpuVersion = 2

// Decoder is the command-port state machine. It owns the live register
// set.
//
// Decoder is NOT safe for concurrent use.
type Decoder struct {
	sink  Sink
	log   *slog.Logger
	state drawstate.State

	phase  phase
	cmd    uint32
	args   [maxArgs]uint32
	n      int
	want   int
	prim   prim.Primitive
	lastV  uint32 // polyline: previous vertex word
	lastC  uint32 // polyline: previous colour word
	latch  uint32
	xfer   Transfer
	row    []uint16
	rowY   int
	out    []uint16
	outPos int
}

// New returns a decoder in its reset state emitting to sink. A nil logger
// discards output.
func New(sink Sink, log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Decoder{sink: sink, log: log, state: drawstate.Default()}
}

// State returns the live register set. Callers must not mutate it.
func (d *Decoder) State() *drawstate.State {
	return &d.state
}

// Restore replaces the register set and returns the decoder to idle.
func (d *Decoder) Restore(s drawstate.State) {
	d.state = s
	d.idle()
}

// Idle reports whether no command is in progress.
func (d *Decoder) Idle() bool {
	return d.phase == phaseIdle
}

// Phase returns the state machine phase name.
func (d *Decoder) Phase() string {
	return d.phase.String()
}

func (d *Decoder) idle() {
	d.phase = phaseIdle
	d.n, d.want = 0, 0
	d.row = d.row[:0]
	d.out, d.outPos = nil, 0
}

// WriteGP0 consumes one word on the drawing port.
func (d *Decoder) WriteGP0(w uint32) {
	switch d.phase {
	case phaseIdle:
		d.start(w)
	case phaseArgs:
		d.args[d.n] = w
		d.n++
		if d.n == d.want {
			d.execute()
		}
	case phasePolyline:
		d.polyline(w)
	case phaseReceiving:
		d.receive(uint16(w))
		if d.phase == phaseReceiving {
			d.receive(uint16(w >> 16))
		}
	case phaseSending:
		// Writes during a VRAM→CPU transfer are dropped by the hardware
		// FIFO; treat the transfer as aborted and start over.
		d.log.Debug("gp0: write during VRAM read, aborting transfer", "word", w)
		d.idle()
		d.start(w)
	}
}

// start handles a command word in the idle phase.
func (d *Decoder) start(w uint32) {
	op := byte(w >> 24)
	d.cmd = w
	d.n = 0
	d.want = ArgCount(op)

	switch op >> 5 {
	case groupMisc:
		switch op {
		case opNop, opClearCache:
		case opIRQ:
			d.state.IRQ = true
			d.sink.StateChanged(drawstate.ChangeIRQ)
		case opFill:
		default:
			d.log.Debug("gp0: reserved opcode", "op", op)
		}
	case groupSettings:
		d.settings(w)
	}

	if d.want == 0 {
		d.phase = phaseIdle
		return
	}
	d.phase = phaseArgs
}

// settings applies an E-group register write.
func (d *Decoder) settings(w uint32) {
	s := &d.state
	var c drawstate.Change
	switch w >> 24 {
	case 0xE1:
		s.SetDrawMode(w)
		c = drawstate.ChangeDrawMode
	case 0xE2:
		s.SetTextureWindow(w)
		c = drawstate.ChangeTextureWindow
	case 0xE3:
		s.SetAreaTopLeft(w)
		c = drawstate.ChangeDrawArea
	case 0xE4:
		s.SetAreaBottomRight(w)
		c = drawstate.ChangeDrawArea
	case 0xE5:
		s.SetOffset(w)
		c = drawstate.ChangeOffset
	case 0xE6:
		s.SetMaskBits(w)
		c = drawstate.ChangeMask
	default:
		d.log.Debug("gp0: reserved settings opcode", "op", byte(w>>24))
		return
	}
	d.sink.StateChanged(c)
}

// execute runs a command whose arguments are complete.
func (d *Decoder) execute() {
	d.phase = phaseIdle
	switch byte(d.cmd>>24) >> 5 {
	case groupMisc:
		if byte(d.cmd>>24) == opFill {
			d.fill()
		}
	case groupPolygon:
		d.polygon()
	case groupLine:
		d.firstSegment()
		if d.cmd&flagPoly != 0 {
			d.phase = phasePolyline
			d.n, d.want = 0, 1+b2i(d.cmd&flagGouraud != 0)
		}
	case groupRect:
		d.rectangle()
	case groupCopy:
		d.copyVRAM()
	case groupCPUToVRM:
		d.xfer = transferFromArgs(d.args[0], d.args[1])
		d.row = d.row[:0]
		d.rowY = 0
		d.phase = phaseReceiving
	case groupVRMToCPU:
		d.xfer = transferFromArgs(d.args[0], d.args[1])
		d.out = d.sink.ReadVRAM(d.xfer)
		d.outPos = 0
		d.phase = phaseSending
	}
}

func transferFromArgs(pos, size uint32) Transfer {
	return Transfer{
		X: int(pos & 0x3FF),
		Y: int((pos >> 16) & 0x1FF),
		W: int((size-1)&0x3FF) + 1,
		H: int(((size>>16)-1)&0x1FF) + 1,
	}
}

// receive stores one CPU→VRAM halfword.
func (d *Decoder) receive(h uint16) {
	d.row = append(d.row, h)
	if len(d.row) < d.xfer.W {
		return
	}
	d.sink.WriteVRAM(Transfer{X: d.xfer.X, Y: (d.xfer.Y + d.rowY) & (vram.Height - 1), W: d.xfer.W, H: 1}, d.row)
	d.row = d.row[:0]
	d.rowY++
	if d.rowY == d.xfer.H {
		d.phase = phaseIdle
	}
}

// ReadWord returns the next GPUREAD word: transfer data while a VRAM→CPU
// transfer is pending, otherwise the last GP1(10h) response.
func (d *Decoder) ReadWord() uint32 {
	if d.phase != phaseSending {
		return d.latch
	}
	var w uint32
	for shift := 0; shift < 32; shift += 16 {
		if d.outPos < len(d.out) {
			w |= uint32(d.out[d.outPos]) << shift
			d.outPos++
		}
	}
	if d.outPos >= len(d.out) {
		d.idle()
	}
	d.latch = w
	return w
}

// Drain appends every remaining VRAM→CPU word to dst, the way a DMA block
// read would.
func (d *Decoder) Drain(dst []uint32) []uint32 {
	for d.phase == phaseSending {
		dst = append(dst, d.ReadWord())
	}
	return dst
}

// Status returns GPUSTAT.
func (d *Decoder) Status() uint32 {
	st := d.state.StatusBits()
	ready := d.phase == phaseIdle
	sending := d.phase == phaseSending
	receiving := d.phase != phaseSending
	if ready {
		st |= 1 << 26
	}
	if sending {
		st |= 1 << 27
	}
	if receiving {
		st |= 1 << 28
	}
	switch d.state.Display.DMA {
	case drawstate.DMAFIFO:
		st |= 1 << 25
	case drawstate.DMACPUToGPU:
		st |= b2u(receiving) << 25
	case drawstate.DMAGPUToCPU:
		st |= b2u(sending) << 25
	}
	return st
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// WriteGP1 consumes one word on the display-control port.
func (d *Decoder) WriteGP1(w uint32) {
	disp := &d.state.Display
	switch op := w >> 24 & 0x3F; {
	case op == 0x00:
		d.state = drawstate.Default()
		d.latch = 0
		d.idle()
		d.sink.StateChanged(drawstate.ChangeReset)
		return
	case op == 0x01:
		d.idle()
		return
	case op == 0x02:
		d.state.IRQ = false
		d.sink.StateChanged(drawstate.ChangeIRQ)
		return
	case op == 0x03:
		disp.SetEnabled(w)
	case op == 0x04:
		disp.SetDMA(w)
	case op == 0x05:
		disp.SetStart(w)
	case op == 0x06:
		disp.SetHRange(w)
	case op == 0x07:
		disp.SetVRange(w)
	case op == 0x08:
		disp.SetMode(w)
	case op >= 0x10 && op <= 0x1F:
		d.info(w)
		return
	default:
		d.log.Debug("gp1: ignored command", "op", op)
		return
	}
	d.sink.StateChanged(drawstate.ChangeDisplay)
}

// info answers GP1(10h) by latching a register value for GPUREAD.
func (d *Decoder) info(w uint32) {
	s := &d.state
	switch w & 7 {
	case 2:
		win := s.Window
		d.latch = uint32(win.MaskX) | uint32(win.MaskY)<<5 | uint32(win.OffsetX)<<10 | uint32(win.OffsetY)<<15
	case 3:
		d.latch = uint32(s.Area.Left) | uint32(s.Area.Top)<<10
	case 4:
		d.latch = uint32(s.Area.Right) | uint32(s.Area.Bottom)<<10
	case 5:
		d.latch = uint32(s.OffsetX)&0x7FF | (uint32(s.OffsetY)&0x7FF)<<11
	case 7:
		d.latch = gpuVersion
	}
}
