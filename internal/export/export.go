// Package export writes rendered images to disk or to an arbitrary writer,
// choosing the encoder from the file name.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"photocrispy/internal/debug"
	"photocrispy/internal/debug/timing"
)

const (
	component = "ImageSaver"
	opExport  = "export"

	JPEGQuality = 95
)

var ErrDeepFormat = errors.New("16-bit output needs a png or tiff file name")

// DeepWriter stores a 16-bit image at path. The OpenCV writer in
// raw/opencv satisfies it.
type DeepWriter func(path string, img *image.NRGBA64) error

type Option func(*Saver)

func WithTiming(t *timing.Tracker) Option {
	return func(s *Saver) { s.timing = t }
}

func WithDeepWriter(w DeepWriter) Option {
	return func(s *Saver) { s.deep = w }
}

type Saver struct {
	logger debug.Logger
	timing *timing.Tracker
	deep   DeepWriter
}

func NewSaver(logger debug.Logger, opts ...Option) *Saver {
	s := &Saver{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FormatFor picks an encoder from the name's extension. Names without one
// get PNG.
func FormatFor(name string) (imaging.Format, error) {
	if !strings.Contains(name, ".") {
		return imaging.PNG, nil
	}
	f, err := imaging.FormatFromFilename(name)
	if err != nil {
		return f, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// KeepsDepth reports whether name selects a format that holds 16 bits per
// channel.
func KeepsDepth(name string) bool {
	f, err := FormatFor(name)
	return err == nil && (f == imaging.PNG || f == imaging.TIFF)
}

// Encode writes img to w in the format implied by name.
func (s *Saver) Encode(w io.Writer, img image.Image, name string) error {
	format, err := FormatFor(name)
	if err != nil {
		s.logger.Error(component, err, map[string]interface{}{"name": name})
		return err
	}

	done := s.start()
	defer done()

	if err := imaging.Encode(w, img, format, imaging.JPEGQuality(JPEGQuality)); err != nil {
		s.logger.Error(component, err, map[string]interface{}{"format": format.String()})
		return fmt.Errorf("encode %s: %w", format, err)
	}

	b := img.Bounds()
	s.logger.Info(component, "image saved", map[string]interface{}{
		"format": format.String(),
		"width":  b.Dx(),
		"height": b.Dy(),
	})
	return nil
}

// SaveFile writes img to path. With deep set the full 16 bits are kept,
// which only PNG and TIFF can hold; otherwise the image is reduced to 8 bits.
func (s *Saver) SaveFile(path string, img *image.NRGBA64, deep bool) error {
	format, err := FormatFor(path)
	if err != nil {
		s.logger.Error(component, err, map[string]interface{}{"path": path})
		return err
	}

	done := s.start()
	defer done()

	fields := map[string]interface{}{
		"path":   path,
		"format": format.String(),
		"deep":   deep,
	}

	if deep {
		if format != imaging.PNG && format != imaging.TIFF {
			return fmt.Errorf("%s: %w", path, ErrDeepFormat)
		}
		if s.deep != nil {
			err = s.deep(path, img)
		} else {
			err = imaging.Save(img, path)
		}
	} else {
		err = imaging.Save(imaging.Clone(img), path, imaging.JPEGQuality(JPEGQuality))
	}
	if err != nil {
		s.logger.Error(component, err, fields)
		return fmt.Errorf("save %s: %w", path, err)
	}

	s.logger.Info(component, "image saved", fields)
	return nil
}

func (s *Saver) start() func() {
	if s.timing == nil {
		return func() {}
	}
	ctx := s.timing.StartTiming(context.Background(), opExport)
	return func() { s.timing.EndTiming(ctx) }
}
