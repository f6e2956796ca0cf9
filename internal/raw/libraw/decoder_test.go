//go:build !nolibraw

package libraw

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocrispy/internal/debug/logger"
	"photocrispy/internal/raw"
)

const (
	tiffByte      = 1
	tiffASCII     = 2
	tiffShort     = 3
	tiffLong      = 4
	tiffRational  = 5
	tiffSRational = 10
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shorts(v ...uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[2*i:], x)
	}
	return b
}

func longs(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], x)
	}
	return b
}

func rationals(v ...int32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(x))
	}
	return b
}

func entry(tag, typ uint16, data []byte) ifdEntry {
	size := map[uint16]int{tiffByte: 1, tiffASCII: 1, tiffShort: 2, tiffLong: 4, tiffRational: 8, tiffSRational: 8}[typ]
	return ifdEntry{tag: tag, typ: typ, count: uint32(len(data) / size), data: data}
}

func ascii(s string) []byte { return append([]byte(s), 0) }

// writeDNG stores an uncompressed 16-bit RGGB mosaic with the minimum set
// of DNG tags LibRaw needs to develop it.
func writeDNG(t *testing.T, w, h int) string {
	t.Helper()

	strip := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			binary.LittleEndian.PutUint16(strip[(y*w+x)*2:], uint16(512+x*40+y*30))
		}
	}

	entries := []ifdEntry{
		entry(254, tiffLong, longs(0)),
		entry(256, tiffLong, longs(uint32(w))),
		entry(257, tiffLong, longs(uint32(h))),
		entry(258, tiffShort, shorts(16)),
		entry(259, tiffShort, shorts(1)),
		entry(262, tiffShort, shorts(32803)),
		entry(271, tiffASCII, ascii("PhotoCrispy")),
		entry(272, tiffASCII, ascii("Fixture One")),
		entry(273, tiffLong, longs(0)),
		entry(274, tiffShort, shorts(1)),
		entry(277, tiffShort, shorts(1)),
		entry(278, tiffLong, longs(uint32(h))),
		entry(279, tiffLong, longs(uint32(len(strip)))),
		entry(284, tiffShort, shorts(1)),
		entry(33421, tiffShort, shorts(2, 2)),
		entry(33422, tiffByte, []byte{0, 1, 1, 2}),
		entry(50706, tiffByte, []byte{1, 4, 0, 0}),
		entry(50707, tiffByte, []byte{1, 1, 0, 0}),
		entry(50708, tiffASCII, ascii("PhotoCrispy Fixture One")),
		entry(50714, tiffShort, shorts(0)),
		entry(50717, tiffShort, shorts(4095)),
		entry(50721, tiffSRational, rationals(
			1, 1, 0, 1, 0, 1,
			0, 1, 1, 1, 0, 1,
			0, 1, 0, 1, 1, 1,
		)),
		entry(50728, tiffRational, rationals(1, 1, 1, 1, 1, 1)),
		entry(50778, tiffShort, shorts(21)),
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdSize := 2 + 12*len(entries) + 4
	offset := 8 + ifdSize
	offsets := make([]int, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			offsets[i] = offset
			offset += len(e.data) + len(e.data)%2
		}
	}
	stripOffset := offset
	for i := range entries {
		if entries[i].tag == 273 {
			entries[i].data = longs(uint32(stripOffset))
		}
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(shorts(42))
	buf.Write(longs(8))
	buf.Write(shorts(uint16(len(entries))))
	for i, e := range entries {
		buf.Write(shorts(e.tag, e.typ))
		buf.Write(longs(e.count))
		if len(e.data) > 4 {
			buf.Write(longs(uint32(offsets[i])))
			continue
		}
		inline := make([]byte, 4)
		copy(inline, e.data)
		buf.Write(inline)
	}
	buf.Write(longs(0))
	for _, e := range entries {
		if len(e.data) > 4 {
			buf.Write(e.data)
			if len(e.data)%2 == 1 {
				buf.WriteByte(0)
			}
		}
	}
	require.Equal(t, stripOffset, buf.Len())
	buf.Write(strip)

	path := filepath.Join(t.TempDir(), "fixture.dng")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestDecodeDevelopsDNG(t *testing.T) {
	path := writeDNG(t, 32, 32)

	img, err := Decoder{}.Decode(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, img.Validate())

	assert.True(t, img.Success)
	assert.Equal(t, 32, img.Width)
	assert.Equal(t, 32, img.Height)
	assert.Equal(t, 3, img.Channels)
	assert.Equal(t, 16, img.BitsPerChannel)
	assert.Len(t, img.Pixels, 32*32*3*2)
	assert.NotEmpty(t, img.CameraMake)
	assert.Contains(t, img.CameraModel, "Fixture")

	var lit bool
	for _, b := range img.Pixels {
		if b != 0 {
			lit = true
			break
		}
	}
	assert.True(t, lit, "developed image is not black")
}

func TestDecodeHalfSize(t *testing.T) {
	img, err := Decoder{HalfSize: true}.Decode(context.Background(), writeDNG(t, 32, 32))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Width)
	assert.Equal(t, 16, img.Height)
}

func TestServiceOpensRawThroughLibRaw(t *testing.T) {
	path := writeDNG(t, 32, 32)
	require.True(t, raw.IsRawFile(path))

	svc := raw.NewService(logger.NoOpLogger{}, Decoder{}, raw.ImagingDecoder{})
	img := svc.Decode(context.Background(), path)
	require.True(t, img.Success, "%v", img.Err)
	assert.Equal(t, 16, img.BitsPerChannel)
	assert.Contains(t, img.CameraModel, "Fixture")
}

func TestDecodeRejectsNonRawFiles(t *testing.T) {
	png := filepath.Join(t.TempDir(), "plain.png")
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.Set(1, 1, color.NRGBA{R: 255, A: 255})
	require.NoError(t, imaging.Save(src, png))

	_, err := Decoder{}.Decode(context.Background(), png)
	assert.ErrorIs(t, err, raw.ErrDecodeFailed)

	_, err = Decoder{}.Decode(context.Background(), filepath.Join(t.TempDir(), "missing.nef"))
	assert.ErrorIs(t, err, raw.ErrDecodeFailed)
}

func TestDecodeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decoder{}.Decode(ctx, writeDNG(t, 32, 32))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThumbnailWithoutPreviewFails(t *testing.T) {
	_, err := Thumbnail(writeDNG(t, 32, 32))
	assert.ErrorIs(t, err, raw.ErrDecodeFailed)
}
