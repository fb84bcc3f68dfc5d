//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/psxgpu/internal/accel"
	"github.com/gogpu/psxgpu/internal/vram"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// MaxScale is the largest scale factor. At 8 the scaled buffer is 128 MiB,
// the default storage binding limit.
const MaxScale = 8

// fenceTimeout bounds every wait on the device.
const fenceTimeout = 5 * time.Second

// clearChunk is the size of the zero block used to clear the scaled buffer.
const clearChunk = 1 << 20

// submission holds the transient resources of one Submit until its fence
// value is reached.
type submission struct {
	value   uint64
	cmdBuf  hal.CommandBuffer
	buffers []hal.Buffer
	groups  []hal.BindGroup
}

// Backend draws accelerated commands with wgpu/hal compute shaders into a
// storage buffer holding the scaled colour buffer. Submissions are
// ordered on one queue and tracked by a single fence whose values are the
// returned handles.
type Backend struct {
	mu  sync.Mutex
	log *slog.Logger

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool // device owned by the caller
	adapter  string

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	scale  int
	pixels hal.Buffer
	size   uint64

	fence     hal.Fence
	submitted uint64
	completed uint64
	inflight  []submission
	err       error
}

var _ accel.Backend = (*Backend)(nil)

// New opens the first discrete or integrated GPU and prepares the raster
// pipeline.
func New() (*Backend, error) {
	b := &Backend{log: discardLogger()}
	if err := b.open(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// NewWithDevice uses a device owned by the caller. Close does not destroy
// it.
func NewWithDevice(device hal.Device, queue hal.Queue) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, errors.New("gpu: nil device or queue")
	}
	b := &Backend{log: discardLogger(), device: device, queue: queue, external: true, adapter: "shared"}
	if err := b.createPipelines(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// NewFromProvider uses the device of an external provider. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue.
func NewFromProvider(provider any) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}
	return NewWithDevice(device, queue)
}

func (b *Backend) open() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("gpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("gpu: create instance: %w", err)
	}
	b.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("gpu: no adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("gpu: open device: %w", err)
	}
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.adapter = selected.Info.Name
	return b.createPipelines()
}

func (b *Backend) createPipelines() error {
	code, err := compileRaster()
	if err != nil {
		return fmt.Errorf("gpu: %w", err)
	}
	b.shader, err = b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "psx_raster",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return fmt.Errorf("gpu: create shader module: %w", err)
	}

	b.bindLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "psx_raster_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}

	b.pipeLayout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "psx_raster_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{b.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}

	b.pipeline, err = b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "psx_raster_pipeline", Layout: b.pipeLayout,
		Compute: hal.ComputeState{Module: b.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("gpu: create compute pipeline: %w", err)
	}

	b.fence, err = b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	return nil
}

// Name implements accel.Backend.
func (b *Backend) Name() string { return "wgpu" }

// Adapter returns the name of the device in use.
func (b *Backend) Adapter() string { return b.adapter }

// MaxScale implements accel.Backend.
func (b *Backend) MaxScale() int { return MaxScale }

// Init implements accel.Backend.
func (b *Backend) Init(s int) error {
	if s < 1 || s > MaxScale {
		return fmt.Errorf("%w: %d (max %d)", accel.ErrScale, s, MaxScale)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if err := b.waitLocked(b.submitted); err != nil {
		return err
	}
	if b.pixels != nil {
		b.device.DestroyBuffer(b.pixels)
		b.pixels = nil
	}

	size := uint64(vram.Width*s) * uint64(vram.Height*s) * 4
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "psx_scaled", Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return b.lose(fmt.Errorf("create scaled buffer: %w", err))
	}
	zero := make([]byte, clearChunk)
	for off := uint64(0); off < size; off += clearChunk {
		b.queue.WriteBuffer(buf, off, zero[:min(clearChunk, size-off)])
	}
	b.pixels, b.size, b.scale = buf, size, s
	b.log.Info("gpu: scaled buffer allocated", "adapter", b.adapter, "scale", s, "bytes", size)
	return nil
}

func (b *Backend) usableLocked() error {
	switch {
	case b.err != nil:
		return b.err
	case b.device == nil:
		return accel.ErrBackendLost
	}
	return nil
}

// lose records a fatal device error. Every later call fails with it.
func (b *Backend) lose(err error) error {
	b.err = fmt.Errorf("%w: %w", accel.ErrBackendLost, err)
	b.log.Warn("gpu: backend lost", "err", err)
	return b.err
}

// Submit implements accel.Backend. All commands of one call are encoded
// into a single command buffer, one compute pass per dispatch.
func (b *Backend) Submit(cmds []accel.Cmd) (accel.SyncHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return 0, err
	}
	if b.pixels == nil {
		return 0, accel.ErrNotInitialized
	}

	bt := newBatch(b.scale)
	for i := range cmds {
		bt.add(&cmds[i])
	}
	if len(bt.jobs) == 0 {
		return accel.SyncHandle(b.submitted), nil
	}

	sub, err := b.encode(bt)
	if err != nil {
		b.release(sub)
		return 0, b.lose(err)
	}
	sub.value = b.submitted + 1
	if err := b.queue.Submit([]hal.CommandBuffer{sub.cmdBuf}, b.fence, sub.value); err != nil {
		b.release(sub)
		return 0, b.lose(fmt.Errorf("submit: %w", err))
	}
	b.submitted = sub.value
	b.inflight = append(b.inflight, sub)
	b.log.Debug("gpu: submitted", "handle", sub.value, "commands", len(cmds), "dispatches", len(bt.jobs))
	return accel.SyncHandle(sub.value), nil
}

func (b *Backend) encode(bt *batch) (submission, error) {
	var sub submission
	params := bt.uniforms()
	auxData := bt.auxBytes()

	ub, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "psx_params", Size: uint64(len(params)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return sub, fmt.Errorf("create params buffer: %w", err)
	}
	sub.buffers = append(sub.buffers, ub)
	ab, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "psx_aux", Size: uint64(len(auxData)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return sub, fmt.Errorf("create aux buffer: %w", err)
	}
	sub.buffers = append(sub.buffers, ab)
	b.queue.WriteBuffer(ub, 0, params)
	b.queue.WriteBuffer(ab, 0, auxData)

	for i := range bt.jobs {
		bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label: "psx_raster_bind", Layout: b.bindLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: uint64(i * paramStride), Size: paramWords * 4}},
				{Binding: 1, Resource: gputypes.BufferBinding{Buffer: ab.NativeHandle(), Offset: 0, Size: uint64(len(auxData))}},
				{Binding: 2, Resource: gputypes.BufferBinding{Buffer: b.pixels.NativeHandle(), Offset: 0, Size: b.size}},
			},
		})
		if err != nil {
			return sub, fmt.Errorf("create bind group %d: %w", i, err)
		}
		sub.groups = append(sub.groups, bg)
	}

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "psx_raster_encoder"})
	if err != nil {
		return sub, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("psx_raster"); err != nil {
		return sub, fmt.Errorf("begin encoding: %w", err)
	}
	// One pass per dispatch: the implicit barrier between passes orders
	// overlapping commands.
	for i := range bt.jobs {
		gx, gy := bt.jobs[i].groups()
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "psx_raster_pass"})
		pass.SetPipeline(b.pipeline)
		pass.SetBindGroup(0, sub.groups[i], nil)
		pass.Dispatch(gx, gy, 1)
		pass.End()
	}
	sub.cmdBuf, err = encoder.EndEncoding()
	if err != nil {
		return sub, fmt.Errorf("end encoding: %w", err)
	}
	return sub, nil
}

func (b *Backend) release(sub submission) {
	for _, bg := range sub.groups {
		if bg != nil {
			b.device.DestroyBindGroup(bg)
		}
	}
	for _, buf := range sub.buffers {
		if buf != nil {
			b.device.DestroyBuffer(buf)
		}
	}
	if sub.cmdBuf != nil {
		b.device.FreeCommandBuffer(sub.cmdBuf)
	}
}

// waitLocked blocks until fence value v is reached and frees the
// resources of every submission up to it.
func (b *Backend) waitLocked(v uint64) error {
	v = min(v, b.submitted)
	if v <= b.completed {
		return nil
	}
	ok, err := b.device.Wait(b.fence, v, fenceTimeout)
	if err != nil || !ok {
		return b.lose(fmt.Errorf("wait for fence %d: ok=%v err=%v", v, ok, err))
	}
	b.completed = v
	n := 0
	for _, sub := range b.inflight {
		if sub.value > v {
			break
		}
		b.release(sub)
		n++
	}
	b.inflight = b.inflight[n:]
	return nil
}

// Wait implements accel.Backend.
func (b *Backend) Wait(handles ...accel.SyncHandle) error {
	var target uint64
	for _, h := range handles {
		target = max(target, uint64(h))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if target <= b.completed {
		return nil
	}
	if err := b.usableLocked(); err != nil {
		return err
	}
	return b.waitLocked(target)
}

// readRows copies rows of the scaled buffer into host memory. Each region
// is a byte range of the buffer; the result is their concatenation. The
// copy is queued behind every prior submission.
func (b *Backend) readRows(regions []hal.BufferCopy) ([]byte, error) {
	var total uint64
	for i := range regions {
		regions[i].DstOffset = total
		total += regions[i].Size
	}
	if total == 0 {
		return nil, nil
	}

	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "psx_staging", Size: total,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, b.lose(fmt.Errorf("create staging buffer: %w", err))
	}
	defer b.device.DestroyBuffer(staging)

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "psx_readback_encoder"})
	if err != nil {
		return nil, b.lose(fmt.Errorf("create command encoder: %w", err))
	}
	if err := encoder.BeginEncoding("psx_readback"); err != nil {
		return nil, b.lose(fmt.Errorf("begin encoding: %w", err))
	}
	encoder.CopyBufferToBuffer(b.pixels, staging, regions)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, b.lose(fmt.Errorf("end encoding: %w", err))
	}

	value := b.submitted + 1
	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, b.fence, value); err != nil {
		b.device.FreeCommandBuffer(cmdBuf)
		return nil, b.lose(fmt.Errorf("submit readback: %w", err))
	}
	b.submitted = value
	b.inflight = append(b.inflight, submission{value: value, cmdBuf: cmdBuf})
	if err := b.waitLocked(value); err != nil {
		return nil, err
	}

	data := make([]byte, total)
	if err := b.queue.ReadBuffer(staging, 0, data); err != nil {
		return nil, b.lose(fmt.Errorf("readback: %w", err))
	}
	return data, nil
}

func (b *Backend) readyLocked() error {
	if err := b.usableLocked(); err != nil {
		return err
	}
	if b.pixels == nil {
		return accel.ErrNotInitialized
	}
	return nil
}

// ReadSamples implements accel.Backend.
func (b *Backend) ReadSamples(r image.Rectangle) ([]uint32, error) {
	r = vram.Clamp(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return nil, err
	}
	s := uint64(b.scale)
	stride := uint64(vram.Width) * s
	span := uint64(r.Dx()) * s
	regions := make([]hal.BufferCopy, 0, r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		regions = append(regions, hal.BufferCopy{
			SrcOffset: (uint64(y)*s*stride + uint64(r.Min.X)*s) * 4,
			Size:      span * 4,
		})
	}
	data, err := b.readRows(regions)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, r.Dx()*r.Dy())
	for row := 0; row < r.Dy(); row++ {
		line := data[uint64(row)*span*4:]
		for x := 0; x < r.Dx(); x++ {
			out = append(out, binary.LittleEndian.Uint32(line[uint64(x)*s*4:]))
		}
	}
	return out, nil
}

// ReadScaled implements accel.Backend.
func (b *Backend) ReadScaled(r image.Rectangle) (*image.RGBA, error) {
	r = vram.Clamp(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return nil, err
	}
	s := b.scale
	stride := uint64(vram.Width * s)
	w, h := r.Dx()*s, r.Dy()*s
	regions := make([]hal.BufferCopy, 0, h)
	for y := r.Min.Y * s; y < r.Max.Y*s; y++ {
		regions = append(regions, hal.BufferCopy{
			SrcOffset: (uint64(y)*stride + uint64(r.Min.X*s)) * 4,
			Size:      uint64(w) * 4,
		})
	}
	data, err := b.readRows(regions)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := data[y*w*4 : (y+1)*w*4]
		dst := img.Pix[y*img.Stride:]
		copy(dst, src)
		for x := 0; x < w; x++ {
			dst[x*4+3] = 0xFF
		}
	}
	return img, nil
}

// Close implements accel.Backend. Work in flight is waited for; an owned
// device is destroyed.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device != nil {
		b.destroyLocked()
	}
	if !b.external && b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
}

func (b *Backend) destroyLocked() {
	if b.err == nil {
		_ = b.waitLocked(b.submitted)
	}
	for _, sub := range b.inflight {
		b.release(sub)
	}
	b.inflight = nil
	if b.pixels != nil {
		b.device.DestroyBuffer(b.pixels)
		b.pixels = nil
	}
	if b.fence != nil {
		b.device.DestroyFence(b.fence)
		b.fence = nil
	}
	if b.pipeline != nil {
		b.device.DestroyComputePipeline(b.pipeline)
	}
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
	}
	if b.bindLayout != nil {
		b.device.DestroyBindGroupLayout(b.bindLayout)
	}
	if b.shader != nil {
		b.device.DestroyShaderModule(b.shader)
	}
	if !b.external {
		b.device.Destroy()
	}
	b.device = nil
	b.queue = nil
}
