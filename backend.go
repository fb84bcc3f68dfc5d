package psxgpu

import (
	"errors"
	"sync"

	"github.com/gogpu/psxgpu/internal/accel"
)

// Backend executes accelerated rendering into a scaled colour buffer. See
// the software reference in NewSoftwareBackend for the expected behaviour.
type Backend = accel.Backend

// Cmd is one unit of accelerated work handed to a Backend.
type Cmd = accel.Cmd

// SyncHandle identifies one Backend submission.
type SyncHandle = accel.SyncHandle

// ErrBackendLost is returned by backends that can no longer execute work.
var ErrBackendLost = accel.ErrBackendLost

// BackendFactory creates a backend for one GPU.
type BackendFactory func() (Backend, error)

// NewSoftwareBackend returns the CPU reference backend. It executes
// commands asynchronously on its own goroutine and accepts scales up to
// maxScale (a default of 8 if maxScale <= 0).
func NewSoftwareBackend(maxScale int) Backend {
	return accel.NewSoftwareBackend(maxScale, Logger())
}

var (
	backendMu sync.RWMutex
	factory   BackendFactory
)

// RegisterBackend registers the factory used by GPUs that enable
// accelerated rendering without an explicit WithBackend option.
// Subsequent calls replace the previous factory.
//
// Typical usage via blank import in backend packages:
//
//	func init() {
//	    psxgpu.RegisterBackend(func() (psxgpu.Backend, error) {
//	        return wgpubackend.New()
//	    })
//	}
func RegisterBackend(f BackendFactory) error {
	if f == nil {
		return errors.New("psxgpu: backend factory must not be nil")
	}
	backendMu.Lock()
	factory = f
	backendMu.Unlock()
	return nil
}

// registeredFactory returns the registered factory, or nil.
func registeredFactory() BackendFactory {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return factory
}

// newBackend creates a backend from the registered factory, falling back
// to the software backend when none is registered or the factory fails.
func newBackend() Backend {
	log := Logger()
	if f := registeredFactory(); f != nil {
		b, err := f()
		if err == nil {
			propagateLogger(b, log)
			log.Info("psxgpu: using registered backend", "backend", b.Name())
			return b
		}
		log.Warn("psxgpu: registered backend unavailable, using software", "err", err)
	}
	return NewSoftwareBackend(0)
}
