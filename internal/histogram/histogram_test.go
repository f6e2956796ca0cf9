package histogram

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocrispy/internal/raw"
)

func solid8(w, h int, r, g, b byte) raw.DecodedImage {
	px := make([]byte, 0, w*h*3)
	for i := 0; i < w*h; i++ {
		px = append(px, r, g, b)
	}
	return raw.DecodedImage{Width: w, Height: h, Channels: 3, BitsPerChannel: 8, Pixels: px, Success: true}
}

func TestAllRedImage(t *testing.T) {
	d := Compute(solid8(8, 8, 255, 0, 0))
	require.False(t, d.Empty())

	assert.Equal(t, 256, d.Bins)
	assert.Len(t, d.Red, 256)
	assert.Equal(t, uint32(64), d.MaxCount)

	assert.Equal(t, float32(1), d.Red[255])
	assert.Equal(t, float32(1), d.Green[0])
	assert.Equal(t, float32(1), d.Blue[0])
	assert.Equal(t, float32(1), d.Luminance[76])
	assert.Equal(t, float32(0), d.Luminance[0])
}

func TestEightBitCountsSumToPixelCount(t *testing.T) {
	w, h := 37, 19
	img := raw.DecodedImage{Width: w, Height: h, Channels: 3, BitsPerChannel: 8, Success: true, Pixels: make([]byte, w*h*3)}
	for i := range img.Pixels {
		img.Pixels[i] = byte(i * 31)
	}

	c, err := ComputeCounts(img)
	require.NoError(t, err)
	for name, ch := range map[string][]uint32{"r": c.Red, "g": c.Green, "b": c.Blue, "l": c.Luminance} {
		var sum uint32
		for _, v := range ch {
			sum += v
		}
		assert.Equal(t, uint32(w*h), sum, name)
	}

	d := Normalize(c)
	var peak float32
	for _, ch := range [][]float32{d.Red, d.Green, d.Blue, d.Luminance} {
		for _, v := range ch {
			peak = max(peak, v)
		}
	}
	assert.Equal(t, float32(1), peak)
}

func TestSixteenBitLittleEndianAndGrayReplication(t *testing.T) {
	// one gray pixel at 0x0102 and one at 0xffff
	img := raw.DecodedImage{
		Width: 2, Height: 1, Channels: 1, BitsPerChannel: 16,
		Pixels: []byte{0x02, 0x01, 0xff, 0xff}, Success: true,
	}
	c, err := ComputeCounts(img)
	require.NoError(t, err)

	assert.Len(t, c.Red, 65536)
	assert.Equal(t, uint32(1), c.Red[0x0102])
	assert.Equal(t, uint32(1), c.Green[0x0102])
	assert.Equal(t, uint32(1), c.Blue[0xffff])
	// weights sum to 1, so gray luminance equals the sample
	assert.Equal(t, uint32(1), c.Luminance[0x0102])
	assert.Equal(t, uint32(1), c.Luminance[0xffff])
}

func TestLuminanceRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 76, LuminanceBin(255, 0, 0, 256))
	assert.Equal(t, 150, LuminanceBin(0, 255, 0, 256))
	assert.Equal(t, 29, LuminanceBin(0, 0, 255, 256))
	assert.Equal(t, 255, LuminanceBin(255, 255, 255, 256))
	want := int(math.Round(0.299*10 + 0.587*20 + 0.114*30))
	assert.Equal(t, want, LuminanceBin(10, 20, 30, 256))
}

func TestPreconditionFailuresYieldEmptyData(t *testing.T) {
	good := solid8(2, 2, 1, 2, 3)

	notDecoded := good
	notDecoded.Success = false

	noPixels := good
	noPixels.Pixels = nil

	zeroHeight := good
	zeroHeight.Height = 0

	short := good
	short.Pixels = good.Pixels[:5]

	depth12 := good
	depth12.BitsPerChannel = 12

	for name, img := range map[string]raw.DecodedImage{
		"not decoded": notDecoded,
		"no pixels":   noPixels,
		"zero height": zeroHeight,
		"short":       short,
		"12-bit":      depth12,
	} {
		t.Run(name, func(t *testing.T) {
			d := Compute(img)
			assert.True(t, d.Empty())
			assert.Nil(t, d.Red)
			assert.Nil(t, d.Luminance)
		})
	}

	_, err := ComputeCounts(depth12)
	assert.True(t, errors.Is(err, ErrUnsupportedBitDepth))
	_, err = ComputeCounts(short)
	assert.True(t, errors.Is(err, raw.ErrDataSizeMismatch))
}

func TestNormalizeLeavesZeroCountsAlone(t *testing.T) {
	d := Normalize(Counts{
		Red: make([]uint32, 4), Green: make([]uint32, 4),
		Blue: make([]uint32, 4), Luminance: make([]uint32, 4),
	})
	assert.False(t, d.Empty())
	assert.Equal(t, uint32(0), d.MaxCount)
	assert.Equal(t, []float32{0, 0, 0, 0}, d.Red)
}

func TestFromReadbackMatchesCPULayout(t *testing.T) {
	bins := 256
	buf := make([]uint32, NumChannels*bins)
	buf[Red*bins+255] = 64
	buf[Green*bins+0] = 64
	buf[Blue*bins+0] = 64
	buf[Luminance*bins+76] = 64

	gpu := FromReadback(buf, bins)
	cpu := Compute(solid8(8, 8, 255, 0, 0))
	assert.Equal(t, cpu, gpu)

	assert.True(t, FromReadback(buf[:10], bins).Empty())
}

func TestBinCount(t *testing.T) {
	n, err := BinCount(8)
	require.NoError(t, err)
	assert.Equal(t, 256, n)
	n, err = BinCount(16)
	require.NoError(t, err)
	assert.Equal(t, 65536, n)
	_, err = BinCount(32)
	assert.ErrorIs(t, err, ErrUnsupportedBitDepth)
}
