package raw

import (
	"context"
	"errors"
	"fmt"

	"photocrispy/internal/debug"
)

// Service runs a chain of decoders; the first one that produces a valid
// buffer wins.
type Service struct {
	decoders []Decoder
	logger   debug.Logger
}

func NewService(logger debug.Logger, decoders ...Decoder) *Service {
	if len(decoders) == 0 {
		decoders = []Decoder{ImagingDecoder{}}
	}
	return &Service{decoders: decoders, logger: logger}
}

func (s *Service) Decoders() []string {
	names := make([]string, len(s.decoders))
	for i, d := range s.decoders {
		names[i] = d.Name()
	}
	return names
}

// Decode never returns an error. Failures come back with Success false and
// Err describing the last decoder's complaint.
func (s *Service) Decode(ctx context.Context, path string) DecodedImage {
	var errs []error

	for _, dec := range s.decoders {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		img, err := dec.Decode(ctx, path)
		if err == nil {
			err = img.Validate()
		}
		if err != nil {
			s.logger.Debug("RawDecodeService", "decoder rejected file", map[string]interface{}{
				"decoder": dec.Name(),
				"path":    path,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", dec.Name(), err))
			continue
		}

		img.Path = path
		img.Success = true
		img.Err = nil

		// Decoders that read maker notes know more than plain EXIF.
		if md, err := ReadMetadata(path); err == nil {
			img.CameraMake = firstNonEmpty(img.CameraMake, md.CameraMake)
			img.CameraModel = firstNonEmpty(img.CameraModel, md.CameraModel)
			img.LensModel = firstNonEmpty(img.LensModel, md.LensModel)
		}

		s.logger.Info("RawDecodeService", "decoded image", map[string]interface{}{
			"decoder":  dec.Name(),
			"path":     path,
			"width":    img.Width,
			"height":   img.Height,
			"channels": img.Channels,
			"bits":     img.BitsPerChannel,
			"make":     img.CameraMake,
			"model":    img.CameraModel,
		})
		return img
	}

	err := errors.Join(errs...)
	if !errors.Is(err, ErrDecodeFailed) {
		err = fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	s.logger.Warning("RawDecodeService", "no decoder accepted file", map[string]interface{}{
		"path":  path,
		"error": err.Error(),
	})
	return DecodedImage{Path: path, Success: false, Err: err}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
