package raw

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decoder turns one file into pixels. Implementations wrap failures with
// ErrDecodeFailed.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, path string) (DecodedImage, error)
}

var rawExtensions = map[string]bool{
	".dng":  true,
	".arw":  true,
	".nef":  true,
	".cr2":  true,
	".cr3":  true,
	".raf":  true,
	".orf":  true,
	".rw2":  true,
	".pef":  true,
	".srw":  true,
	".tif":  true,
	".tiff": true,
}

// IsRawFile reports whether path has an extension the viewer lists.
func IsRawFile(path string) bool {
	return rawExtensions[strings.ToLower(filepath.Ext(path))]
}

// Extensions lists the listed extensions, lower case with the dot, sorted.
func Extensions() []string {
	out := make([]string, 0, len(rawExtensions))
	for ext := range rawExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// ImagingDecoder reads anything the Go image registry understands, which
// covers linear DNG and TIFF exports plus PNG and WebP previews.
type ImagingDecoder struct{}

func (ImagingDecoder) Name() string { return "imaging" }

func (ImagingDecoder) Decode(ctx context.Context, path string) (DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return DecodedImage{}, err
	}

	// Rotated JPEG previews come back as 8-bit NRGBA; everything else keeps
	// the decoder's own color model.
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return DecodedImage{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	out := FromImage(img)
	out.Path = path
	return out, nil
}
