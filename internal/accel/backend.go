// Package accel is the accelerated rasterizer: it turns primitives into
// self-contained commands for a backend that draws them into a scaled
// colour buffer.
//
// Every Submit returns a SyncHandle. The coherency engine keeps the
// coverage of a submission pending until its handle is known complete, and
// batches all the handles it needs into one Wait.
package accel

import (
	"errors"
	"image"
)

// Errors returned by backends.
var (
	// ErrBackendLost reports that the backend can no longer execute work,
	// for example after a device loss or memory exhaustion. Callers fall
	// back to software rendering.
	ErrBackendLost = errors.New("accel: backend lost")

	// ErrNotInitialized is returned when a backend is used before Init.
	ErrNotInitialized = errors.New("accel: backend not initialized")

	// ErrScale is returned by Init for a scale factor the backend cannot
	// allocate.
	ErrScale = errors.New("accel: unsupported scale")
)

// SyncHandle identifies one submission. Handles of a backend increase
// monotonically; the zero handle is always complete.
type SyncHandle uint64

// Backend executes accelerated commands against a (1024·s)×(512·s) RGBA8
// buffer.
//
// Commands execute in submission order. ReadSamples and ReadScaled observe
// every command submitted before the call.
type Backend interface {
	// Name returns the backend name (e.g., "software", "wgpu").
	Name() string

	// Init (re)allocates the scaled buffer for scale factor s and clears
	// it. Work in flight is finished first.
	Init(s int) error

	// MaxScale returns the largest scale factor Init accepts.
	MaxScale() int

	// Submit queues cmds for execution and returns their handle.
	Submit(cmds []Cmd) (SyncHandle, error)

	// Wait blocks until every handle has completed.
	Wait(handles ...SyncHandle) error

	// ReadSamples returns the top-left scaled pixel of every canonical
	// pixel in r, row-major, packed as by Pack.
	ReadSamples(r image.Rectangle) ([]uint32, error)

	// ReadScaled returns the scaled pixels covering canonical region r.
	ReadScaled(r image.Rectangle) (*image.RGBA, error)

	// Close releases backend resources.
	Close()
}
