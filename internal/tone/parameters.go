// Package tone holds the user-adjustable tone parameters and a CPU
// reference of the curve the photo shader applies.
package tone

import "math"

// Range bounds one parameter.
type Range struct {
	Min     float32
	Max     float32
	Default float32
}

// Clamp limits v to the range. NaN maps to the default.
func (r Range) Clamp(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return r.Default
	}
	return min(max(v, r.Min), r.Max)
}

// Every amount is neutral at zero. Exposure is in stops, so the shader
// multiplies by 2^exposure.
var (
	ExposureRange      = Range{Min: -4, Max: 4, Default: 0}
	ContrastRange      = Range{Min: -1, Max: 1, Default: 0}
	HighlightsRange    = Range{Min: -1, Max: 2, Default: 0}
	ShadowsRange       = Range{Min: -1, Max: 2, Default: 0}
	SaturationRange    = Range{Min: -1, Max: 1, Default: 0}
	ShadowLowRange     = Range{Min: 0, Max: 1, Default: 0.05}
	ShadowHighRange    = Range{Min: 0, Max: 1, Default: 0.45}
	HighlightLowRange  = Range{Min: 0, Max: 1, Default: 0.55}
	HighlightHighRange = Range{Min: 0, Max: 1, Default: 0.95}
)

// Parameters is owned by the pipeline and edited by the UI between frames.
// The falloff pairs are not required to be ordered; see Ramp.
type Parameters struct {
	exposure      float32
	contrast      float32
	highlights    float32
	shadows       float32
	saturation    float32
	shadowLow     float32
	shadowHigh    float32
	highlightLow  float32
	highlightHigh float32
}

func Defaults() Parameters {
	return Parameters{
		exposure:      ExposureRange.Default,
		contrast:      ContrastRange.Default,
		highlights:    HighlightsRange.Default,
		shadows:       ShadowsRange.Default,
		saturation:    SaturationRange.Default,
		shadowLow:     ShadowLowRange.Default,
		shadowHigh:    ShadowHighRange.Default,
		highlightLow:  HighlightLowRange.Default,
		highlightHigh: HighlightHighRange.Default,
	}
}

func (p Parameters) Exposure() float32      { return p.exposure }
func (p Parameters) Contrast() float32      { return p.contrast }
func (p Parameters) Highlights() float32    { return p.highlights }
func (p Parameters) Shadows() float32       { return p.shadows }
func (p Parameters) Saturation() float32    { return p.saturation }
func (p Parameters) ShadowLow() float32     { return p.shadowLow }
func (p Parameters) ShadowHigh() float32    { return p.shadowHigh }
func (p Parameters) HighlightLow() float32  { return p.highlightLow }
func (p Parameters) HighlightHigh() float32 { return p.highlightHigh }

func (p *Parameters) SetExposure(v float32)      { p.exposure = ExposureRange.Clamp(v) }
func (p *Parameters) SetContrast(v float32)      { p.contrast = ContrastRange.Clamp(v) }
func (p *Parameters) SetHighlights(v float32)    { p.highlights = HighlightsRange.Clamp(v) }
func (p *Parameters) SetShadows(v float32)       { p.shadows = ShadowsRange.Clamp(v) }
func (p *Parameters) SetSaturation(v float32)    { p.saturation = SaturationRange.Clamp(v) }
func (p *Parameters) SetShadowLow(v float32)     { p.shadowLow = ShadowLowRange.Clamp(v) }
func (p *Parameters) SetShadowHigh(v float32)    { p.shadowHigh = ShadowHighRange.Clamp(v) }
func (p *Parameters) SetHighlightLow(v float32)  { p.highlightLow = HighlightLowRange.Clamp(v) }
func (p *Parameters) SetHighlightHigh(v float32) { p.highlightHigh = HighlightHighRange.Clamp(v) }

// IsNeutral reports whether the curve leaves every pixel unchanged.
func (p Parameters) IsNeutral() bool {
	return p.exposure == 0 && p.contrast == 0 && p.highlights == 0 &&
		p.shadows == 0 && p.saturation == 0
}

// Uniform names shared with photo.frag.
const (
	UniformTexture       = "uTexture"
	UniformChannels      = "uChannels"
	UniformExposure      = "uExposure"
	UniformContrast      = "uContrast"
	UniformHighlights    = "uHighlightFactor"
	UniformShadows       = "uShadowFactor"
	UniformSaturation    = "uSaturation"
	UniformShadowLow     = "uShadowLowLum"
	UniformShadowHigh    = "uShadowHighLum"
	UniformHighlightLow  = "uHighlightLowLum"
	UniformHighlightHigh = "uHighlightHighLum"
)

type Uniform struct {
	Name  string
	Value float32
}

// Uniforms lists every field in upload order.
func (p Parameters) Uniforms() []Uniform {
	return []Uniform{
		{UniformExposure, p.exposure},
		{UniformContrast, p.contrast},
		{UniformHighlights, p.highlights},
		{UniformShadows, p.shadows},
		{UniformSaturation, p.saturation},
		{UniformShadowLow, p.shadowLow},
		{UniformShadowHigh, p.shadowHigh},
		{UniformHighlightLow, p.highlightLow},
		{UniformHighlightHigh, p.highlightHigh},
	}
}

// FromUniforms rebuilds Parameters from uploaded values, clamping each.
// Unknown names are ignored.
func FromUniforms(values map[string]float32) Parameters {
	p := Defaults()
	setters := map[string]func(float32){
		UniformExposure:      p.SetExposure,
		UniformContrast:      p.SetContrast,
		UniformHighlights:    p.SetHighlights,
		UniformShadows:       p.SetShadows,
		UniformSaturation:    p.SetSaturation,
		UniformShadowLow:     p.SetShadowLow,
		UniformShadowHigh:    p.SetShadowHigh,
		UniformHighlightLow:  p.SetHighlightLow,
		UniformHighlightHigh: p.SetHighlightHigh,
	}
	for name, v := range values {
		if set, ok := setters[name]; ok {
			set(v)
		}
	}
	return p
}
