package raw

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRawFile(t *testing.T) {
	assert.True(t, IsRawFile("/x/IMG_0001.DNG"))
	assert.True(t, IsRawFile("a.arw"))
	assert.True(t, IsRawFile("scan.tiff"))
	assert.False(t, IsRawFile("notes.txt"))
	assert.False(t, IsRawFile("dng"))

	exts := Extensions()
	assert.Contains(t, exts, ".nef")
	assert.IsIncreasing(t, exts)
}

func TestImagingDecoderReadsEightBitPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "red.png")
	require.NoError(t, imaging.Save(imaging.New(4, 3, color.NRGBA{R: 255, A: 255}), path))

	img, err := ImagingDecoder{}.Decode(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Equal(t, 8, img.BitsPerChannel)
	assert.Equal(t, uint16(255), img.Sample(3, 2, 0))
	assert.Equal(t, path, img.Path)
}

func TestImagingDecoderReadsSixteenBitPNG(t *testing.T) {
	src := image.NewNRGBA64(image.Rect(0, 0, 2, 2))
	src.SetNRGBA64(1, 1, color.NRGBA64{R: 1000, G: 2000, B: 3000, A: 0xffff})

	path := filepath.Join(t.TempDir(), "deep.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := ImagingDecoder{}.Decode(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 16, img.BitsPerChannel)
	assert.Equal(t, uint16(3000), img.Sample(1, 1, 2))
}

func TestImagingDecoderFailures(t *testing.T) {
	_, err := ImagingDecoder{}.Decode(context.Background(), filepath.Join(t.TempDir(), "missing.dng"))
	assert.True(t, errors.Is(err, ErrDecodeFailed))

	garbage := filepath.Join(t.TempDir(), "garbage.dng")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o600))
	_, err = ImagingDecoder{}.Decode(context.Background(), garbage)
	assert.True(t, errors.Is(err, ErrDecodeFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ImagingDecoder{}.Decode(ctx, garbage)
	assert.ErrorIs(t, err, context.Canceled)
}
