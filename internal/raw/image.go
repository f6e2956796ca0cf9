// Package raw turns image files into fully decoded pixel buffers.
package raw

import (
	"errors"
	"fmt"
)

var (
	ErrDecodeFailed     = errors.New("decode failed")
	ErrDataSizeMismatch = errors.New("pixel buffer smaller than image dimensions")
)

// DecodedImage is produced once per load and handed from owner to owner
// without copying. Pixels are interleaved, row major, with 16-bit samples
// stored little-endian.
type DecodedImage struct {
	Width          int
	Height         int
	Channels       int
	BitsPerChannel int
	Pixels         []byte

	CameraMake  string
	CameraModel string
	LensModel   string

	Success bool

	Path string
	// Err carries the failure cause for logging. Callers decide on Success.
	Err error
}

func (d DecodedImage) BytesPerSample() int {
	return d.BitsPerChannel / 8
}

// Stride is the number of bytes per pixel.
func (d DecodedImage) Stride() int {
	return d.Channels * d.BytesPerSample()
}

func (d DecodedImage) RequiredBytes() int {
	return d.Width * d.Height * d.Stride()
}

func (d DecodedImage) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", d.Width, d.Height)
	}
	if d.Channels != 1 && d.Channels != 3 && d.Channels != 4 {
		return fmt.Errorf("unsupported channel count %d", d.Channels)
	}
	if need := d.RequiredBytes(); len(d.Pixels) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrDataSizeMismatch, len(d.Pixels), need)
	}
	return nil
}

// Sample returns channel c of pixel (x, y) as read from the buffer, without
// bounds checks beyond the slice's own.
func (d DecodedImage) Sample(x, y, c int) uint16 {
	off := (y*d.Width+x)*d.Stride() + c*d.BytesPerSample()
	if d.BitsPerChannel == 16 {
		return uint16(d.Pixels[off]) | uint16(d.Pixels[off+1])<<8
	}
	return uint16(d.Pixels[off])
}
