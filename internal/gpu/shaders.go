package gpu

import (
	"embed"
	"fmt"
)

//go:embed shaders/*
var shaderFS embed.FS

// ShaderSource is one stage of a program.
type ShaderSource struct {
	Kind   StageKind
	Source string
}

const (
	PhotoProgramName     = "photo"
	HistogramProgramName = "histogram"

	// HistogramLocalSize is the compute workgroup edge in histogram.comp.
	HistogramLocalSize = 16

	UniformBins = "uBins"
)

// Binding points used by histogram.comp.
const (
	HistogramImageUnit     = 0
	HistogramBufferBinding = 1
)

func mustShader(name string) string {
	b, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		panic(fmt.Sprintf("embedded shader %s missing: %v", name, err))
	}
	return string(b)
}

// PhotoProgram returns the tone mapping program stages.
func PhotoProgram() []ShaderSource {
	return []ShaderSource{
		{Kind: StageVertex, Source: mustShader("photo.vert")},
		{Kind: StageFragment, Source: mustShader("photo.frag")},
	}
}

// HistogramProgram returns the compute histogram program stage.
func HistogramProgram() []ShaderSource {
	return []ShaderSource{
		{Kind: StageCompute, Source: mustShader("histogram.comp")},
	}
}

// HistogramGroups returns the dispatch size covering a width x height image.
func HistogramGroups(width, height int) (int, int) {
	gx := (width + HistogramLocalSize - 1) / HistogramLocalSize
	gy := (height + HistogramLocalSize - 1) / HistogramLocalSize
	return gx, gy
}

// Quad geometry: position.xy, texcoord.uv per vertex.
var (
	QuadVertices = []float32{
		-1, -1, 0, 0,
		1, -1, 1, 0,
		1, 1, 1, 1,
		-1, 1, 0, 1,
	}
	QuadIndices = []uint32{0, 1, 2, 2, 3, 0}
)
