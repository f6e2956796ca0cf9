package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocrispy/internal/config"
)

func quietConfig() config.Config {
	cfg := config.Default()
	cfg.DebugTiming = false
	return cfg
}

func writeInput(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 20), G: 90, B: uint8(y * 30), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func sum(v []uint32) uint64 {
	var s uint64
	for _, c := range v {
		s += uint64(c)
	}
	return s
}

func TestInfoPrintsDimensions(t *testing.T) {
	in := writeInput(t, 7, 5)
	var out bytes.Buffer
	require.NoError(t, runInfo(quietConfig(), []string{"-in", in, "-decoder", "imaging"}, &out))

	var info imageInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, 7, info.Width)
	assert.Equal(t, 5, info.Height)
	assert.Equal(t, in, info.Path)
}

func TestHistogramCountsEveryPixel(t *testing.T) {
	in := writeInput(t, 6, 4)
	var out bytes.Buffer
	require.NoError(t, runHistogram(quietConfig(), []string{"-in", in, "-decoder", "imaging"}, &out))

	var report histogramReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "cpu", report.Source)
	assert.Len(t, report.Red, report.Bins)
	assert.Equal(t, uint64(24), sum(report.Luminance))
	assert.Equal(t, uint64(24), sum(report.Green))
}

func TestRenderWritesImageAndDeviceHistogram(t *testing.T) {
	in := writeInput(t, 8, 6)
	outPath := filepath.Join(t.TempDir(), "out.png")
	var out bytes.Buffer

	err := runRender(quietConfig(), []string{
		"-in", in, "-out", outPath, "-hist-out", "-",
		"-decoder", "imaging", "-backend", "software", "-deep=false",
		"-exposure", "0.5", "-saturation", "-1",
	}, &out)
	require.NoError(t, err)

	img, err := imaging.Open(outPath)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())

	// Full desaturation leaves every pixel grey.
	r, g, b, _ := img.At(3, 2).RGBA()
	assert.InDelta(t, r, g, 512)
	assert.InDelta(t, g, b, 512)

	var report histogramReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "device", report.Source)
	assert.Equal(t, uint64(48), sum(report.Luminance))
}

func TestRenderRejectsBadArguments(t *testing.T) {
	in := writeInput(t, 2, 2)
	cfg := quietConfig()
	var out bytes.Buffer

	assert.Error(t, runRender(cfg, []string{"-in", in}, &out))
	assert.Error(t, runRender(cfg, []string{"-in", in, "-out", "x.bmp2"}, &out))
	assert.Error(t, runRender(cfg, []string{"-in", in, "-out", filepath.Join(t.TempDir(), "x.png"), "-backend", "vulkan"}, &out))
	assert.Error(t, runInfo(cfg, []string{"-in", in, "-decoder", "dcraw"}, &out))
}

func TestDecodeFailureIsReported(t *testing.T) {
	var out bytes.Buffer
	err := runInfo(quietConfig(), []string{"-in", filepath.Join(t.TempDir(), "missing.nef"), "-decoder", "imaging"}, &out)
	assert.ErrorContains(t, err, "missing.nef")
	assert.Zero(t, out.Len())
}

func TestAutoChainStartsWithLibRaw(t *testing.T) {
	chain, err := decoders("auto")
	require.NoError(t, err)
	names := make([]string, len(chain))
	for i, d := range chain {
		names[i] = d.Name()
	}
	assert.Equal(t, []string{"libraw", "opencv", "imaging"}, names)

	only, err := decoders("LibRaw")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "libraw", only[0].Name())
}
