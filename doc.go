// Package psxgpu emulates the 2D graphics processor of a PS1-class
// console.
//
// # Overview
//
// A GPU consumes words on the GP0 (drawing and transfers) and GP1 (display
// control) ports, keeps the 1024×512 16-bit video memory, and rasterizes
// triangles, lines, rectangles and fills with the hardware's fixed-point
// rules.
//
// # Hybrid rendering
//
// Every primitive is drawn by a pixel-exact software rasterizer into the
// canonical framebuffer. With accelerated rendering enabled the same
// primitive is also drawn by a Backend into a colour buffer scaled by an
// integer factor. A render atlas records which canonical pixels must take
// the accelerated result; reads through ReadRegion, GPUREAD transfers,
// texture sampling and save states reconcile those pixels first, so the
// emulated program always observes one consistent framebuffer.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/psxgpu"
//	    _ "github.com/gogpu/psxgpu/gpu" // optional wgpu backend
//	)
//
//	g, err := psxgpu.New(psxgpu.WithAccelerated(true), psxgpu.WithScale(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Close()
//
//	g.WriteGP0(0x02FF0000) // fill with blue
//	g.WriteGP0(0x00000000) // at (0, 0)
//	g.WriteGP0(0x00F00140) // 320×240
//	frame := g.DisplayImage()
//
// Without a registered backend the software reference backend is used.
// A backend error switches the GPU back to software rendering; see
// AcceleratedErr.
package psxgpu
