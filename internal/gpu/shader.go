package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed shaders/trace.wgsl
var traceShaderSource string

// TraceEntryPoint is the trace kernel's compute entry point.
const TraceEntryPoint = "main"

// TraceShaderSource returns the WGSL source of the trace kernel.
func TraceShaderSource() string { return traceShaderSource }

// CompileTraceShader compiles the embedded trace kernel to SPIR-V.
func CompileTraceShader() ([]uint32, error) {
	return CompileShaderToSPIRV(traceShaderSource)
}

// CompileShaderToSPIRV compiles WGSL source to SPIR-V words.
func CompileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("gpu: SPIR-V length %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}
