package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocrispy/internal/tone"
)

func TestPhotoShaderDeclaresEveryToneUniform(t *testing.T) {
	stages := PhotoProgram()
	require.Len(t, stages, 2)
	assert.Equal(t, StageVertex, stages[0].Kind)
	assert.Equal(t, StageFragment, stages[1].Kind)

	frag := stages[1].Source
	for _, u := range tone.Defaults().Uniforms() {
		assert.True(t, strings.Contains(frag, "uniform float "+u.Name+";"), u.Name)
	}
	assert.Contains(t, frag, "uniform int "+tone.UniformChannels+";")
	assert.Contains(t, frag, "uniform sampler2D "+tone.UniformTexture+";")
}

func TestHistogramShaderMatchesDispatchConstants(t *testing.T) {
	stages := HistogramProgram()
	require.Len(t, stages, 1)
	src := stages[0].Source

	assert.Equal(t, StageCompute, stages[0].Kind)
	assert.Contains(t, src, "local_size_x = 16, local_size_y = 16")
	assert.Contains(t, src, "binding = 1")
	assert.Contains(t, src, "uniform int "+UniformBins+";")
}

func TestHistogramGroups(t *testing.T) {
	gx, gy := HistogramGroups(33, 16)
	assert.Equal(t, 3, gx)
	assert.Equal(t, 1, gy)
}

func TestStageKindAndCompileError(t *testing.T) {
	assert.Equal(t, "compute", StageCompute.String())
	assert.Equal(t, "link", StageLink.String())
	assert.Equal(t, "stage(9)", StageKind(9).String())

	var err error = &CompileError{Program: "photo", Stage: StageFragment, Log: "0:12: syntax error"}
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StageFragment, ce.Stage)
	assert.Equal(t, "photo program: fragment stage failed: 0:12: syntax error", err.Error())
}

func TestTextureDescValidate(t *testing.T) {
	desc := TextureDesc{Width: 2, Height: 2, Channels: 3, BitsPerChannel: 16}
	assert.NoError(t, desc.Validate(make([]byte, 24)))
	assert.Equal(t, int64(24), desc.Bytes())
	assert.ErrorIs(t, desc.Validate(make([]byte, 23)), ErrUnsupportedFormat)

	desc.BitsPerChannel = 12
	assert.ErrorIs(t, desc.Validate(make([]byte, 100)), ErrUnsupportedFormat)
}
