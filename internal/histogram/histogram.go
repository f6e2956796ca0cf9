// Package histogram computes per-channel and luminance distributions of a
// decoded image, normalised for display.
package histogram

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"photocrispy/internal/raw"
)

var ErrUnsupportedBitDepth = errors.New("unsupported bit depth")

// BT.601 luma weights.
const (
	WeightR = 0.299
	WeightG = 0.587
	WeightB = 0.114
)

// Channel blocks, in the order used by GPU readback.
const (
	Red = iota
	Green
	Blue
	Luminance
	NumChannels
)

// Data holds normalised bins. An empty Data (all slices nil) means there
// was nothing to measure.
type Data struct {
	Red       []float32
	Green     []float32
	Blue      []float32
	Luminance []float32

	Bins int
	// MaxCount is the shared divisor used for normalisation.
	MaxCount uint32
}

func (d Data) Empty() bool {
	return d.Bins == 0
}

// Counts holds raw bin counts before normalisation.
type Counts struct {
	Red       []uint32
	Green     []uint32
	Blue      []uint32
	Luminance []uint32
}

func BinCount(bitsPerChannel int) (int, error) {
	switch bitsPerChannel {
	case 8, 16:
		return 1 << bitsPerChannel, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitsPerChannel)
	}
}

// LuminanceBin returns the luminance bin for one pixel. Halves round away
// from zero.
func LuminanceBin(r, g, b uint16, bins int) int {
	l := int(math.Round(WeightR*float64(r) + WeightG*float64(g) + WeightB*float64(b)))
	if l >= bins {
		l = bins - 1
	}
	return l
}

// ComputeCounts bins every pixel of img. It fails when the image did not
// decode, has no pixels, has an unsupported depth or a short buffer.
func ComputeCounts(img raw.DecodedImage) (Counts, error) {
	if !img.Success {
		return Counts{}, errors.New("image did not decode")
	}
	if len(img.Pixels) == 0 || img.Width <= 0 || img.Height <= 0 {
		return Counts{}, errors.New("image has no pixels")
	}
	bins, err := BinCount(img.BitsPerChannel)
	if err != nil {
		return Counts{}, err
	}
	if err := img.Validate(); err != nil {
		return Counts{}, err
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > img.Height {
		workers = img.Height
	}
	rowsPer := (img.Height + workers - 1) / workers

	partials := make([]Counts, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		y0 := w * rowsPer
		y1 := min(y0+rowsPer, img.Height)
		if y0 >= y1 {
			continue
		}
		g.Go(func() error {
			partials[w] = countRows(img, bins, y0, y1)
			return nil
		})
	}
	_ = g.Wait()

	total := newCounts(bins)
	for _, p := range partials {
		if p.Red == nil {
			continue
		}
		for i := 0; i < bins; i++ {
			total.Red[i] += p.Red[i]
			total.Green[i] += p.Green[i]
			total.Blue[i] += p.Blue[i]
			total.Luminance[i] += p.Luminance[i]
		}
	}
	return total, nil
}

func newCounts(bins int) Counts {
	return Counts{
		Red:       make([]uint32, bins),
		Green:     make([]uint32, bins),
		Blue:      make([]uint32, bins),
		Luminance: make([]uint32, bins),
	}
}

func countRows(img raw.DecodedImage, bins, y0, y1 int) Counts {
	c := newCounts(bins)
	gray := img.Channels < 3
	for y := y0; y < y1; y++ {
		for x := 0; x < img.Width; x++ {
			r := img.Sample(x, y, 0)
			g, b := r, r
			if !gray {
				g = img.Sample(x, y, 1)
				b = img.Sample(x, y, 2)
			}
			c.Red[r]++
			c.Green[g]++
			c.Blue[b]++
			c.Luminance[LuminanceBin(r, g, b, bins)]++
		}
	}
	return c
}

// Compute returns normalised histogram data for img, or an empty Data when
// img cannot be measured.
func Compute(img raw.DecodedImage) Data {
	counts, err := ComputeCounts(img)
	if err != nil {
		return Data{}
	}
	return Normalize(counts)
}

// Normalize divides every bin by the largest bin across all four channels.
// When that maximum is zero the counts are returned unscaled.
func Normalize(c Counts) Data {
	bins := len(c.Red)
	if bins == 0 {
		return Data{}
	}

	var maxCount uint32
	for _, ch := range [][]uint32{c.Red, c.Green, c.Blue, c.Luminance} {
		for _, v := range ch {
			if v > maxCount {
				maxCount = v
			}
		}
	}

	convert := func(src []uint32) []float32 {
		out := make([]float32, len(src))
		for i, v := range src {
			if maxCount == 0 {
				out[i] = float32(v)
			} else {
				out[i] = float32(float64(v) / float64(maxCount))
			}
		}
		return out
	}

	return Data{
		Red:       convert(c.Red),
		Green:     convert(c.Green),
		Blue:      convert(c.Blue),
		Luminance: convert(c.Luminance),
		Bins:      bins,
		MaxCount:  maxCount,
	}
}

// SplitReadback interprets a GPU readback of four consecutive equal blocks
// (R, G, B, L).
func SplitReadback(buf []uint32, bins int) (Counts, error) {
	if bins <= 0 || len(buf) < NumChannels*bins {
		return Counts{}, fmt.Errorf("readback holds %d values, need %d", len(buf), NumChannels*bins)
	}
	return Counts{
		Red:       buf[Red*bins : (Red+1)*bins],
		Green:     buf[Green*bins : (Green+1)*bins],
		Blue:      buf[Blue*bins : (Blue+1)*bins],
		Luminance: buf[Luminance*bins : (Luminance+1)*bins],
	}, nil
}

// FromReadback normalises a GPU readback into the same shape Compute
// returns.
func FromReadback(buf []uint32, bins int) Data {
	c, err := SplitReadback(buf, bins)
	if err != nil {
		return Data{}
	}
	return Normalize(c)
}
