// Package gpu implements the accelerated rasterizer's device backend on
// top of the gogpu/wgpu HAL.
//
// The scaled framebuffer lives in one storage buffer of packed RGBA words,
// (1024·s)×(512·s) entries at scale s. Every submitted batch is encoded
// into a single command buffer holding one compute dispatch per command:
//
//	batch (host)              device
//	------------              ------
//	params[i] ─┐
//	aux words ─┼─► bind group i ─► raster.wgsl main ─► pixels
//	           │
//	fence value N ◄── queue.Submit
//
// Fence values double as the sync handles returned by Submit, so waiting
// on a handle is a single fence wait. Readbacks copy the requested rows
// into a staging buffer under the next fence value.
//
// Tests that need a real adapter are skipped under -short; the rest run
// against the noop HAL.
package gpu
