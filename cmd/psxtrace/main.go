// Command psxtrace replays a GPU port trace headless and saves the
// resulting picture.
//
// Usage:
//
//	psxtrace [flags] trace.txt
//
// The output format follows the -out extension (.png or .webp). A %d in
// the name writes one file per frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"
	_ "github.com/ftrvxmtrx/tga"
	"golang.org/x/image/draw"

	"github.com/gogpu/psxgpu"
	_ "github.com/gogpu/psxgpu/gpu"
	"github.com/gogpu/psxgpu/internal/trace"
)

// loads collects repeated -load flags.
type loads []upload

type upload struct {
	path string
	at   image.Point
}

func (l *loads) String() string { return fmt.Sprint(*l) }

func (l *loads) Set(v string) error {
	path, pos, ok := strings.Cut(v, "@")
	if !ok {
		return errors.New("want file@x,y")
	}
	xs, ys, ok := strings.Cut(pos, ",")
	if !ok {
		return errors.New("want file@x,y")
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return fmt.Errorf("bad position %q", pos)
	}
	*l = append(*l, upload{path: path, at: image.Pt(x, y)})
	return nil
}

func main() {
	var (
		scale   = flag.Int("scale", 1, "accelerated resolution multiplier")
		accel   = flag.Bool("accel", false, "enable the accelerated rasterizer")
		strict  = flag.Bool("strict", false, "strict fidelity on texture hazards")
		native  = flag.Bool("native", false, "draw accelerated colours at 15 bits instead of 24")
		dither  = flag.String("dither", "native", "dithering of -native draws: off, native or scaled")
		workers = flag.Int("workers", 0, "reconciliation workers (default: GOMAXPROCS)")
		out     = flag.String("out", "frame.png", "output file (.png or .webp, %d for every frame)")
		dumpAll = flag.Bool("vram", false, "save all of VRAM instead of the display area")
		size    = flag.String("size", "", "rescale output to WxH")
		verbose = flag.Bool("v", false, "log to stderr")
		uploads loads
	)
	flag.Var(&uploads, "load", "upload an image before replay, as file@x,y (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: psxtrace [flags] trace.txt")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *verbose {
		psxgpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var outSize image.Point
	if *size != "" {
		if _, err := fmt.Sscanf(*size, "%dx%d", &outSize.X, &outSize.Y); err != nil || outSize.X < 1 || outSize.Y < 1 {
			log.Fatalf("bad -size %q", *size)
		}
	}

	var ditherOpt psxgpu.Option
	switch *dither {
	case "off":
		ditherOpt = psxgpu.WithAcceleratedDither(false, false)
	case "native":
		ditherOpt = psxgpu.WithAcceleratedDither(true, false)
	case "scaled":
		ditherOpt = psxgpu.WithAcceleratedDither(true, true)
	default:
		log.Fatalf("bad -dither %q", *dither)
	}

	g, err := psxgpu.New(
		psxgpu.WithScale(*scale),
		psxgpu.WithAccelerated(*accel),
		psxgpu.WithStrictFidelity(*strict),
		psxgpu.WithWorkers(*workers),
		psxgpu.WithHighColor(!*native),
		ditherOpt,
	)
	if err != nil {
		log.Fatalf("psxtrace: %v", err)
	}
	defer g.Close()

	for _, u := range uploads {
		n, err := loadImage(g, u)
		if err != nil {
			log.Fatalf("psxtrace: %v", err)
		}
		log.Printf("loaded %s at %v (%d pixels)", u.path, u.at, n)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("psxtrace: %v", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	perFrame := strings.Contains(*out, "%d")
	snapshot := func() image.Image {
		var img image.Image
		if *dumpAll {
			img = g.VRAMImage()
		} else {
			img = g.DisplayImage()
		}
		if outSize != (image.Point{}) {
			img = resize(img, outSize)
		}
		return img
	}

	start := time.Now()
	frames := 0
	err = trace.Replay(ctx, g, trace.NewReader(f), func(n int) error {
		frames = n
		if !perFrame {
			return nil
		}
		return save(fmt.Sprintf(*out, n), snapshot())
	})
	if err != nil {
		log.Fatalf("psxtrace: %v", err)
	}
	if !perFrame {
		if err := save(*out, snapshot()); err != nil {
			log.Fatalf("psxtrace: %v", err)
		}
	}

	st := g.Stats()
	log.Printf("%d frames in %v", frames, time.Since(start).Round(time.Millisecond))
	if g.Accelerated() || g.AcceleratedErr() != nil {
		log.Printf("backend %s: reconciled %d pixels, %d waits, %d hazards", g.BackendName(), st.Reconciled, st.Waits, st.Hazards)
	}
	if err := g.AcceleratedErr(); err != nil {
		log.Printf("accelerated path disabled: %v", err)
	}
}

func loadImage(g *psxgpu.GPU, u upload) (int, error) {
	f, err := os.Open(u.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", u.path, err)
	}
	return g.LoadImage(u.at, img), nil
}

// resize scales img to size with nearest-neighbour sampling so that the
// pixel grid stays visible.
func resize(img image.Image, size image.Point) image.Image {
	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func save(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		err = nativewebp.Encode(f, img, nil)
	case ".png":
		err = png.Encode(f, img)
	default:
		err = fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
