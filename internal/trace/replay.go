package trace

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Target receives replayed port traffic. *psxgpu.GPU implements it.
type Target interface {
	WriteGP0(uint32)
	WriteGP1(uint32)
	ReadWord() uint32
	Sync()
}

// Replayer plays a trace into a Target one frame at a time.
type Replayer struct {
	r      *Reader
	t      Target
	log    *slog.Logger
	frames int
	done   bool
}

// NewReplayer returns a Replayer reading r into t. log may be nil.
func NewReplayer(r *Reader, t Target, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Replayer{r: r, t: t, log: log}
}

// Frames returns the number of completed frames.
func (p *Replayer) Frames() int { return p.frames }

// Step replays records up to and including the next frame marker and
// syncs the target. Records left after the last marker form a final
// frame. It returns io.EOF once the trace is exhausted and no records
// were played.
func (p *Replayer) Step(ctx context.Context) error {
	if p.done {
		return io.EOF
	}
	played := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := p.r.Next()
		if errors.Is(err, io.EOF) {
			p.done = true
			if played == 0 {
				return io.EOF
			}
			p.endFrame()
			return nil
		}
		if err != nil {
			return err
		}
		played++
		switch rec.Kind {
		case GP0:
			for _, w := range rec.Words {
				p.t.WriteGP0(w)
			}
		case GP1:
			p.t.WriteGP1(rec.Words[0])
		case Read:
			for range rec.Count {
				p.t.ReadWord()
			}
		case Frame:
			p.endFrame()
			return nil
		}
	}
}

func (p *Replayer) endFrame() {
	p.t.Sync()
	p.frames++
	p.log.Debug("trace: frame", "frame", p.frames)
}

// Replay plays the whole trace into t, calling onFrame after every frame
// with the frame number starting at 1. It stops at the first error from
// the reader, the callback or ctx. onFrame may be nil.
func Replay(ctx context.Context, t Target, r *Reader, onFrame func(n int) error) error {
	p := NewReplayer(r, t, nil)
	for {
		err := p.Step(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if onFrame != nil {
			if err := onFrame(p.Frames()); err != nil {
				return err
			}
		}
	}
}
