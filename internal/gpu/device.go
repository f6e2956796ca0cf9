// Package gpu defines the small slice of a graphics API the tone pipeline
// needs, so the same pipeline drives OpenGL or the software reference.
package gpu

import (
	"errors"
	"fmt"
	"image"
)

var (
	ErrIncompleteRenderTarget = errors.New("render target incomplete")
	ErrUnknownHandle          = errors.New("unknown gpu handle")
	ErrUnsupportedFormat      = errors.New("unsupported texture format")
	ErrMissingBarrier         = errors.New("storage buffer read before memory barrier")
)

// StageKind names the step of program construction that failed.
type StageKind int

const (
	StageVertex StageKind = iota
	StageFragment
	StageCompute
	StageLink
)

func (s StageKind) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	case StageLink:
		return "link"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// CompileError carries the driver's info log for one stage.
type CompileError struct {
	Program string
	Stage   StageKind
	Log     string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s program: %s stage failed: %s", e.Program, e.Stage, e.Log)
}

// Handles are opaque and never zero when valid.
type (
	Texture      uint32
	RenderTarget uint32
	Program      uint32
	Buffer       uint32
	Mesh         uint32
)

// TextureDesc describes interleaved source pixels. Sixteen bit samples are
// little-endian.
type TextureDesc struct {
	Width          int
	Height         int
	Channels       int
	BitsPerChannel int
}

func (d TextureDesc) Validate(pixels []byte) error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrUnsupportedFormat, d.Width, d.Height)
	}
	if d.BitsPerChannel != 8 && d.BitsPerChannel != 16 {
		return fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, d.BitsPerChannel)
	}
	if d.Channels != 1 && d.Channels != 3 && d.Channels != 4 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, d.Channels)
	}
	if need := d.Width * d.Height * d.Channels * d.BitsPerChannel / 8; len(pixels) < need {
		return fmt.Errorf("%w: %d bytes, need %d", ErrUnsupportedFormat, len(pixels), need)
	}
	return nil
}

func (d TextureDesc) Bytes() int64 {
	return int64(d.Width) * int64(d.Height) * int64(d.Channels) * int64(d.BitsPerChannel/8)
}

// Render targets hold RGBA16 color plus a packed 24/8 depth-stencil buffer.
const (
	ColorBytesPerPixel        = 8
	DepthStencilBytesPerPixel = 4
)

// Device is driven from a single goroutine. Implementations may fan work
// out internally but every call completes before it returns.
type Device interface {
	Name() string

	CreateTexture(desc TextureDesc, pixels []byte) (Texture, error)
	DeleteTexture(t Texture) error

	CreateRenderTarget(width, height int) (RenderTarget, error)
	ResizeRenderTarget(rt RenderTarget, width, height int) error
	// RenderTargetStatus returns ErrIncompleteRenderTarget when the
	// target cannot be drawn into.
	RenderTargetStatus(rt RenderTarget) error
	RenderTargetTexture(rt RenderTarget) (Texture, error)
	DeleteRenderTarget(rt RenderTarget) error
	// BindRenderTarget directs drawing to rt and sets the viewport to its
	// size. Zero restores the default target.
	BindRenderTarget(rt RenderTarget) error
	ClearColorDepth() error

	CreateProgram(name string, stages ...ShaderSource) (Program, error)
	UseProgram(p Program) error
	SetUniformFloat(p Program, name string, v float32) error
	SetUniformInt(p Program, name string, v int32) error
	DeleteProgram(p Program) error

	CreateQuad() (Mesh, error)
	// DrawQuad samples tex on unit 0 and draws the quad's six indices.
	DrawQuad(m Mesh, tex Texture) error
	DeleteMesh(m Mesh) error

	CreateStorageBuffer(words int) (Buffer, error)
	ClearStorageBuffer(b Buffer) error
	ReadStorageBuffer(b Buffer, dst []uint32) error
	DeleteStorageBuffer(b Buffer) error

	BindImageTexture(unit int, tex Texture) error
	BindStorageBuffer(binding int, b Buffer) error
	Dispatch(p Program, groupsX, groupsY, groupsZ int) error
	MemoryBarrier() error

	// ReadTexture copies a texture back in top-row-first order.
	ReadTexture(tex Texture) (*image.NRGBA64, error)

	Close() error
}
