package raw

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"photocrispy/internal/debug/logger"
)

type stubDecoder struct {
	name  string
	img   DecodedImage
	err   error
	calls int
}

func (s *stubDecoder) Name() string { return s.name }

func (s *stubDecoder) Decode(ctx context.Context, path string) (DecodedImage, error) {
	s.calls++
	return s.img, s.err
}

func TestServiceFallsThroughToNextDecoder(t *testing.T) {
	first := &stubDecoder{name: "first", err: fmt.Errorf("%w: nope", ErrDecodeFailed)}
	second := &stubDecoder{name: "second", img: DecodedImage{
		Width: 1, Height: 1, Channels: 3, BitsPerChannel: 8, Pixels: []byte{1, 2, 3},
	}}
	svc := NewService(logger.NoOpLogger{}, first, second)

	img := svc.Decode(context.Background(), "/nowhere/a.dng")
	assert.True(t, img.Success)
	assert.Equal(t, "/nowhere/a.dng", img.Path)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, []string{"first", "second"}, svc.Decoders())
}

func TestServiceRejectsShortBuffers(t *testing.T) {
	short := &stubDecoder{name: "short", img: DecodedImage{
		Width: 4, Height: 4, Channels: 3, BitsPerChannel: 8, Pixels: make([]byte, 10), Success: true,
	}}
	svc := NewService(logger.NoOpLogger{}, short)

	img := svc.Decode(context.Background(), "a.dng")
	assert.False(t, img.Success)
	assert.True(t, errors.Is(img.Err, ErrDataSizeMismatch))
	assert.True(t, errors.Is(img.Err, ErrDecodeFailed))
}

func TestServiceReportsDecodeFailure(t *testing.T) {
	svc := NewService(logger.NoOpLogger{}, &stubDecoder{name: "x", err: errors.New("boom")})

	img := svc.Decode(context.Background(), "a.dng")
	assert.False(t, img.Success)
	assert.True(t, errors.Is(img.Err, ErrDecodeFailed))
	assert.Empty(t, img.Pixels)
}

func TestServiceKeepsDecoderMetadata(t *testing.T) {
	dec := &stubDecoder{name: "raw", img: DecodedImage{
		Width: 1, Height: 1, Channels: 3, BitsPerChannel: 8, Pixels: []byte{1, 2, 3},
		CameraMake: "Nikon", CameraModel: "Z 6", LensModel: "NIKKOR Z 24-70mm f/4 S",
	}}
	img := NewService(logger.NoOpLogger{}, dec).Decode(context.Background(), "/nowhere/a.nef")

	assert.True(t, img.Success)
	assert.Equal(t, "Nikon", img.CameraMake)
	assert.Equal(t, "Z 6", img.CameraModel)
	assert.Equal(t, "NIKKOR Z 24-70mm f/4 S", img.LensModel)
}

func TestFirstNonEmptyPrefersDecoderValue(t *testing.T) {
	assert.Equal(t, "Canon", firstNonEmpty("Canon", "Canon Inc."))
	assert.Equal(t, "Canon Inc.", firstNonEmpty("", "Canon Inc."))
	assert.Empty(t, firstNonEmpty("", ""))
}
