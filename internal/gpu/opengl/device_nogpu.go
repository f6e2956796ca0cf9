//go:build nogpu

package opengl

import (
	"errors"

	"photocrispy/internal/gpu"
)

var ErrNoOpenGL = errors.New("built with nogpu, OpenGL backend unavailable")

// Device is never constructed in nogpu builds.
type Device struct {
	gpu.Device
}

func New() (*Device, error) {
	return nil, ErrNoOpenGL
}
