//go:build nolibraw

package libraw

import (
	"context"
	"errors"
	"fmt"
	"image"

	"photocrispy/internal/raw"
)

var ErrNoLibRaw = errors.New("built with nolibraw, camera RAW decoding unavailable")

type Decoder struct {
	HalfSize bool
}

func (Decoder) Name() string { return "libraw" }

func (Decoder) Decode(ctx context.Context, path string) (raw.DecodedImage, error) {
	return raw.DecodedImage{}, fmt.Errorf("%w: %w", raw.ErrDecodeFailed, ErrNoLibRaw)
}

func Thumbnail(path string) (image.Image, error) {
	return nil, fmt.Errorf("%w: %w", raw.ErrDecodeFailed, ErrNoLibRaw)
}
