package psxgpu

import "github.com/gogpu/psxgpu/internal/accel"

// Option configures a GPU during creation.
//
// Example:
//
//	// Software rendering only
//	g, _ := psxgpu.New()
//
//	// Accelerated rendering at 4× resolution
//	g, _ := psxgpu.New(psxgpu.WithAccelerated(true), psxgpu.WithScale(4))
type Option func(*options)

type options struct {
	scale       int
	accelerated bool
	backend     Backend
	strict      bool
	workers     int

	highColor     bool
	dither        bool
	highResDither bool
}

func defaultOptions() options {
	return options{
		scale:     1,
		highColor: true,
		dither:    true,
	}
}

func (o *options) colorMode() accel.ColorMode {
	if o.highColor {
		return accel.ColorMode{}
	}
	m := accel.ColorMode{Native: true}
	switch {
	case !o.dither:
	case o.highResDither:
		m.Dither = accel.DitherScaled
	default:
		m.Dither = accel.DitherNative
	}
	return m
}

// WithScale sets the resolution multiplier of the accelerated path.
// Scales below 1 make New fail with ErrInvalidScale; scales above the
// backend's limit with ErrScaleTooLarge.
func WithScale(s int) Option {
	return func(o *options) {
		o.scale = s
	}
}

// WithAccelerated enables the accelerated rasterizer.
func WithAccelerated(on bool) Option {
	return func(o *options) {
		o.accelerated = on
	}
}

// WithBackend sets the accelerated backend explicitly instead of the
// registered one. It implies WithAccelerated(true). The GPU takes
// ownership and closes b in Close.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
		o.accelerated = b != nil
	}
}

// WithStrictFidelity makes every texture read of accelerated content
// reconcile the whole framebuffer and drop all scaled content, trading
// resolution for exact self-read behaviour.
func WithStrictFidelity(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithWorkers sets the number of goroutines used for reconciliation.
// 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithHighColor selects the colour depth of accelerated draws: 8 bits per
// channel when on (the default), or the native 5 bits per channel.
func WithHighColor(on bool) Option {
	return func(o *options) {
		o.highColor = on
	}
}

// WithAcceleratedDither controls dithering of accelerated draws in native
// colour. When on, draws that enable dithering get the ordered dither,
// applied per scaled pixel if highRes is set and per canonical pixel
// otherwise. It is on at canonical resolution by default and has no
// effect in high colour.
func WithAcceleratedDither(on, highRes bool) Option {
	return func(o *options) {
		o.dither = on
		o.highResDither = highRes
	}
}
