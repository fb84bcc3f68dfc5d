// Command psxview replays a GPU port trace in a window, one trace frame
// per tick.
//
// Keys: A toggles the accelerated rasterizer, S cycles the scale,
// space pauses, N steps one frame while paused, H toggles the overlay
// and Escape quits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/draw"

	"github.com/gogpu/psxgpu"
	_ "github.com/gogpu/psxgpu/gpu"
	"github.com/gogpu/psxgpu/internal/trace"
)

var errQuit = errors.New("quit")

type viewer struct {
	g      *psxgpu.GPU
	file   *os.File
	player *trace.Replayer
	loop   bool
	ended  bool
	paused bool
	hud    bool

	frame *image.RGBA
	tex   *ebiten.Image
}

func (v *viewer) rewind() error {
	if _, err := v.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	v.player = trace.NewReplayer(trace.NewReader(v.file), v.g, psxgpu.Logger())
	v.ended = false
	return nil
}

func (v *viewer) step() error {
	err := v.player.Step(context.Background())
	if errors.Is(err, io.EOF) {
		if !v.loop {
			v.ended = true
			return nil
		}
		if err := v.rewind(); err != nil {
			return err
		}
		return nil
	}
	return err
}

func (v *viewer) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return errQuit
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyA) {
		if err := v.g.SetAccelerated(!v.g.Accelerated()); err != nil {
			log.Printf("accelerated: %v", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		next := v.g.Scale()%4 + 1
		if err := v.g.SetScale(next); err != nil {
			log.Printf("scale %d: %v", next, err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyH) {
		v.hud = !v.hud
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		v.paused = !v.paused
	}
	stepOnce := v.paused && inpututil.IsKeyJustPressed(ebiten.KeyN)
	if v.ended || (v.paused && !stepOnce) {
		return nil
	}
	if err := v.step(); err != nil {
		return err
	}
	v.present()
	return nil
}

// present copies the current display picture into the window texture.
func (v *viewer) present() {
	img := v.g.DisplayImage()
	b := img.Bounds()
	if v.frame == nil || v.frame.Rect.Size() != b.Size() {
		v.frame = image.NewRGBA(image.Rectangle{Max: b.Size()})
		if v.tex != nil {
			v.tex.Deallocate()
		}
		v.tex = ebiten.NewImage(b.Dx(), b.Dy())
	}
	draw.Draw(v.frame, v.frame.Rect, img, b.Min, draw.Src)
	v.tex.WritePixels(v.frame.Pix)
}

func (v *viewer) Draw(screen *ebiten.Image) {
	if v.tex == nil {
		return
	}
	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	tw, th := v.tex.Bounds().Dx(), v.tex.Bounds().Dy()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(sw)/float64(tw), float64(sh)/float64(th))
	screen.DrawImage(v.tex, op)
	if v.hud {
		st := v.g.Stats()
		mode := "software"
		if v.g.Accelerated() {
			mode = fmt.Sprintf("%s x%d", v.g.BackendName(), v.g.Scale())
		}
		ebitenutil.DebugPrint(screen, fmt.Sprintf("frame %d  %s\ndraws %d  reconciled %d  hazards %d",
			v.player.Frames(), mode, st.Draws, st.Reconciled, st.Hazards))
	}
}

func (v *viewer) Layout(outW, outH int) (int, int) { return outW, outH }

func main() {
	var (
		scale   = flag.Int("scale", 2, "accelerated resolution multiplier")
		accel   = flag.Bool("accel", true, "start with the accelerated rasterizer")
		zoom    = flag.Int("zoom", 2, "window size multiplier over 320x240")
		tps     = flag.Int("tps", 60, "trace frames per second")
		loop    = flag.Bool("loop", false, "restart the trace when it ends")
		verbose = flag.Bool("v", false, "log to stderr")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: psxview [flags] trace.txt")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *verbose {
		psxgpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	g, err := psxgpu.New(psxgpu.WithScale(*scale), psxgpu.WithAccelerated(*accel))
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	v := &viewer{g: g, file: f, loop: *loop, hud: true}
	if err := v.rewind(); err != nil {
		log.Fatal(err)
	}

	ebiten.SetWindowTitle("psxview - " + flag.Arg(0))
	ebiten.SetWindowSize(320**zoom, 240**zoom)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(*tps)
	if err := ebiten.RunGame(v); err != nil && !errors.Is(err, errQuit) {
		log.Fatal(err)
	}
}
