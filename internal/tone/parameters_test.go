package tone

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettersClamp(t *testing.T) {
	p := Defaults()

	p.SetExposure(9)
	assert.Equal(t, float32(4), p.Exposure())
	p.SetExposure(-9)
	assert.Equal(t, float32(-4), p.Exposure())

	p.SetContrast(5)
	assert.Equal(t, float32(1), p.Contrast())
	p.SetHighlights(3)
	assert.Equal(t, float32(2), p.Highlights())
	p.SetShadows(-3)
	assert.Equal(t, float32(-1), p.Shadows())
	p.SetSaturation(-1.5)
	assert.Equal(t, float32(-1), p.Saturation())

	p.SetShadowLow(-0.2)
	assert.Equal(t, float32(0), p.ShadowLow())
	p.SetShadowHigh(1.5)
	assert.Equal(t, float32(1), p.ShadowHigh())
	p.SetHighlightLow(0.3)
	assert.Equal(t, float32(0.3), p.HighlightLow())
	p.SetHighlightHigh(2)
	assert.Equal(t, float32(1), p.HighlightHigh())
}

func TestNaNFallsBackToDefault(t *testing.T) {
	p := Defaults()
	p.SetContrast(0.5)
	p.SetContrast(float32(math.NaN()))
	assert.Equal(t, ContrastRange.Default, p.Contrast())
}

func TestDefaultsAreNeutral(t *testing.T) {
	p := Defaults()
	assert.True(t, p.IsNeutral())
	p.SetSaturation(0.1)
	assert.False(t, p.IsNeutral())
}

func TestCrossedFalloffsAreKept(t *testing.T) {
	p := Defaults()
	p.SetShadowLow(0.8)
	p.SetShadowHigh(0.2)
	assert.Equal(t, float32(0.8), p.ShadowLow())
	assert.Equal(t, float32(0.2), p.ShadowHigh())
}

func TestUniformsRoundTrip(t *testing.T) {
	p := Defaults()
	p.SetExposure(1.5)
	p.SetHighlightHigh(0.7)

	values := map[string]float32{"uUnrelated": 3}
	for _, u := range p.Uniforms() {
		values[u.Name] = u.Value
	}
	assert.Len(t, p.Uniforms(), 9)
	assert.Equal(t, p, FromUniforms(values))
}
