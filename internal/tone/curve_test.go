package tone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeutralCurveIsIdentity(t *testing.T) {
	p := Defaults()
	for _, c := range [][3]float32{{0, 0, 0}, {1, 1, 1}, {0.25, 0.5, 0.75}, {0.9, 0.1, 0.4}} {
		r, g, b := Apply(p, c[0], c[1], c[2])
		assert.InDelta(t, c[0], r, 1e-6)
		assert.InDelta(t, c[1], g, 1e-6)
		assert.InDelta(t, c[2], b, 1e-6)
	}
}

func TestExposureIsInStops(t *testing.T) {
	p := Defaults()
	p.SetExposure(1)
	r, g, b := Apply(p, 0.25, 0.1, 0.6)
	assert.InDelta(t, 0.5, r, 1e-6)
	assert.InDelta(t, 0.2, g, 1e-6)
	assert.InDelta(t, 1.0, b, 1e-6, "clamped")
}

func TestFullDesaturationGivesGray(t *testing.T) {
	p := Defaults()
	p.SetSaturation(-1)
	r, g, b := Apply(p, 1, 0, 0)
	assert.InDelta(t, 0.299, r, 1e-6)
	assert.Equal(t, r, g)
	assert.Equal(t, r, b)
}

func TestContrastPivotsAtMidGray(t *testing.T) {
	p := Defaults()
	p.SetContrast(1)
	r, _, _ := Apply(p, 0.5, 0.5, 0.5)
	assert.InDelta(t, 0.5, r, 1e-6)
	r, _, _ = Apply(p, 0.6, 0.6, 0.6)
	assert.InDelta(t, 0.7, r, 1e-6)
}

func TestShadowsLiftOnlyDarkPixels(t *testing.T) {
	p := Defaults()
	p.SetShadows(1)

	dark, _, _ := Apply(p, 0.02, 0.02, 0.02)
	assert.Greater(t, dark, float32(0.02))

	bright, _, _ := Apply(p, 0.8, 0.8, 0.8)
	assert.InDelta(t, 0.8, bright, 1e-6)
}

func TestHighlightsAffectOnlyBrightPixels(t *testing.T) {
	p := Defaults()
	p.SetHighlights(-1)

	bright, _, _ := Apply(p, 0.98, 0.98, 0.98)
	assert.Less(t, bright, float32(0.98))

	dark, _, _ := Apply(p, 0.2, 0.2, 0.2)
	assert.InDelta(t, 0.2, dark, 1e-6)
}

func TestRamp(t *testing.T) {
	assert.Equal(t, float32(0), Ramp(0.2, 0.8, 0.1))
	assert.Equal(t, float32(1), Ramp(0.2, 0.8, 0.9))
	assert.InDelta(t, 0.5, Ramp(0.2, 0.8, 0.5), 1e-6)

	// equal bounds step at low
	assert.Equal(t, float32(0), Ramp(0.5, 0.5, 0.49))
	assert.Equal(t, float32(1), Ramp(0.5, 0.5, 0.5))

	// crossed bounds fall instead of rise
	assert.Equal(t, float32(1), Ramp(0.8, 0.2, 0.1))
	assert.Equal(t, float32(0), Ramp(0.8, 0.2, 0.9))
}
