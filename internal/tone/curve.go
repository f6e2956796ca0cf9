package tone

import "math"

// Luma returns BT.601 luma of a normalised RGB triple.
func Luma(r, g, b float32) float32 {
	return 0.299*r + 0.587*g + 0.114*b
}

// Ramp is a smoothstep from low to high. Equal bounds give a hard step at
// low. A crossed pair (low > high) is a valid curve that falls instead of
// rises, which the mask math handles without special cases.
func Ramp(low, high, x float32) float32 {
	if low == high {
		if x < low {
			return 0
		}
		return 1
	}
	t := clamp01((x - low) / (high - low))
	return t * t * (3 - 2*t)
}

// Apply runs the photo shader's curve on one normalised pixel. It is the
// reference the GPU program is tested against.
func Apply(p Parameters, r, g, b float32) (float32, float32, float32) {
	gain := float32(math.Exp2(float64(p.exposure)))
	r, g, b = r*gain, g*gain, b*gain

	l := Luma(r, g, b)
	shadowMask := 1 - Ramp(p.shadowLow, p.shadowHigh, l)
	highlightMask := Ramp(p.highlightLow, p.highlightHigh, l)

	lift := func(c float32) float32 {
		c += p.shadows * shadowMask * (1 - c) * 0.5
		c += p.highlights * highlightMask * c * 0.5
		return c
	}
	r, g, b = lift(r), lift(g), lift(b)

	k := 1 + p.contrast
	r = (r-0.5)*k + 0.5
	g = (g-0.5)*k + 0.5
	b = (b-0.5)*k + 0.5

	l2 := Luma(r, g, b)
	s := 1 + p.saturation
	r = l2 + (r-l2)*s
	g = l2 + (g-l2)*s
	b = l2 + (b-l2)*s

	return clamp01(r), clamp01(g), clamp01(b)
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
