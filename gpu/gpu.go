//go:build !nogpu

// Package gpu registers the wgpu compute backend for accelerated
// rendering.
//
// Import it for its side effect:
//
//	import _ "github.com/gogpu/psxgpu/gpu"
//
// GPUs created with WithAccelerated(true) and no explicit backend then
// render their scaled buffer on the device. If no adapter can be opened
// the GPU logs a warning and falls back to the software backend.
package gpu

import (
	"errors"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/psxgpu"
	gpuimpl "github.com/gogpu/psxgpu/internal/gpu"
)

var (
	mu       sync.Mutex
	provider gpucontext.DeviceProvider
)

func init() {
	if err := psxgpu.RegisterBackend(newBackend); err != nil {
		psxgpu.Logger().Warn("wgpu backend not registered", "err", err)
	}
}

// newBackend opens a backend on the shared device when a provider is
// set, and on a device of its own otherwise.
func newBackend() (psxgpu.Backend, error) {
	mu.Lock()
	p := provider
	mu.Unlock()
	if p != nil {
		b, err := gpuimpl.NewFromProvider(p)
		if err == nil {
			return b, nil
		}
		psxgpu.Logger().Warn("shared device unusable, opening own", "err", err)
	}
	return gpuimpl.New()
}

// SetDeviceProvider makes backends created after this call render on the
// provider's device instead of opening their own. The provider must also
// expose HalDevice() and HalQueue() returning the wgpu HAL objects; a
// provider that does not is rejected. nil restores the default.
func SetDeviceProvider(p gpucontext.DeviceProvider) error {
	if p != nil {
		if _, ok := p.(interface {
			HalDevice() any
			HalQueue() any
		}); !ok {
			return errors.New("gpu: provider does not expose HAL device and queue")
		}
	}
	mu.Lock()
	provider = p
	mu.Unlock()
	return nil
}
