package psxgpu

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gogpu/psxgpu/internal/drawstate"
	"github.com/gogpu/psxgpu/internal/vram"
)

// stateMagic starts every saved state.
var stateMagic = []byte("PSXG")

// MarshalBinary saves the register set and the reconciled framebuffer.
// It fails with ErrBusy while a command or transfer is in progress.
func (g *GPU) MarshalBinary() ([]byte, error) {
	if !g.dec.Idle() {
		return nil, fmt.Errorf("%w: decoder %s", ErrBusy, g.dec.Phase())
	}
	g.eng.Sync()
	g.eng.Reconcile(vram.Bounds)

	regs, err := g.dec.State().MarshalBinary()
	if err != nil {
		return nil, err
	}
	pix, err := g.fb.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(stateMagic)+len(regs)+len(pix))
	out = append(out, stateMagic...)
	out = append(out, regs...)
	return append(out, pix...), nil
}

// UnmarshalBinary restores a state saved by MarshalBinary. Accelerated
// content is discarded; the scaled buffer is rebuilt from the restored
// framebuffer as drawing continues.
func (g *GPU) UnmarshalBinary(data []byte) error {
	if !bytes.HasPrefix(data, stateMagic) {
		return fmt.Errorf("%w: missing header", ErrBadState)
	}
	data = data[len(stateMagic):]
	if len(data) < drawstate.EncodedSize+vram.Size {
		return fmt.Errorf("%w: %d bytes", ErrBadState, len(data))
	}

	var st drawstate.State
	if err := st.UnmarshalBinary(data[:drawstate.EncodedSize]); err != nil {
		return errors.Join(ErrBadState, err)
	}
	fb := vram.New()
	if err := fb.UnmarshalBinary(data[drawstate.EncodedSize:]); err != nil {
		return errors.Join(ErrBadState, err)
	}

	g.eng.Sync()
	copy(g.fb.Pix(), fb.Pix())
	g.dec.Restore(st)
	g.eng.Reset()
	return nil
}
