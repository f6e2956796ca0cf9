//go:build !nogpu

package opengl

import (
	"testing"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/stretchr/testify/assert"
)

func TestReadbackBarrierCoversHostReads(t *testing.T) {
	assert.NotZero(t, readbackBarrier&gl.SHADER_STORAGE_BARRIER_BIT)
	assert.NotZero(t, readbackBarrier&gl.BUFFER_UPDATE_BARRIER_BIT, "glGetBufferSubData needs the buffer update bit")
}
