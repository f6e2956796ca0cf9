// Package opencv bridges OpenCV's codecs into the raw package. It is kept
// apart so the core decode chain builds without cgo.
package opencv

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"photocrispy/internal/raw"
)

// Decoder reads through cv::imread, which handles 16-bit TIFF and, on
// builds with the right codecs, DNG previews.
type Decoder struct{}

func (Decoder) Name() string { return "opencv" }

func (Decoder) Decode(ctx context.Context, path string) (raw.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return raw.DecodedImage{}, err
	}

	mat := gocv.IMRead(path, gocv.IMReadAnyDepth|gocv.IMReadAnyColor)
	defer mat.Close()
	if mat.Empty() {
		return raw.DecodedImage{}, fmt.Errorf("%w: opencv could not read %s", raw.ErrDecodeFailed, path)
	}

	bits, err := depthBits(mat.Type())
	if err != nil {
		return raw.DecodedImage{}, err
	}

	channels := mat.Channels()
	rgb := gocv.NewMat()
	defer rgb.Close()

	switch channels {
	case 1:
		mat.CopyTo(&rgb)
	case 3:
		gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)
	case 4:
		// same conversion code as BGRA to RGB: swap and drop alpha
		gocv.CvtColor(mat, &rgb, gocv.ColorRGBAToBGR)
		channels = 3
	default:
		return raw.DecodedImage{}, fmt.Errorf("%w: %d channels", raw.ErrDecodeFailed, channels)
	}

	// ToBytes returns host byte order, which is little-endian on every
	// platform the viewer ships for.
	pixels, err := matBytes(rgb)
	if err != nil {
		return raw.DecodedImage{}, err
	}

	return raw.DecodedImage{
		Width:          rgb.Cols(),
		Height:         rgb.Rows(),
		Channels:       channels,
		BitsPerChannel: bits,
		Pixels:         pixels,
		Path:           path,
		Success:        true,
	}, nil
}

func depthBits(t gocv.MatType) (int, error) {
	switch t {
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
		return 8, nil
	case gocv.MatTypeCV16UC1, gocv.MatTypeCV16UC3, gocv.MatTypeCV16UC4:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: unsupported mat type %d", raw.ErrDecodeFailed, int(t))
	}
}

func matBytes(m gocv.Mat) ([]byte, error) {
	if !m.IsContinuous() {
		c := m.Clone()
		defer c.Close()
		return append([]byte(nil), c.ToBytes()...), nil
	}
	return append([]byte(nil), m.ToBytes()...), nil
}
