package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed shaders/raster.wgsl
var rasterShaderSource string

// compileRaster translates the raster shader to SPIR-V words.
func compileRaster() ([]uint32, error) {
	spirv, err := naga.Compile(rasterShaderSource)
	if err != nil {
		return nil, fmt.Errorf("compile raster shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("compile raster shader: %d bytes is not a word multiple", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[4*i:])
	}
	return words, nil
}
