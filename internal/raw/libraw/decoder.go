//go:build !nolibraw

// Package libraw decodes camera RAW files through LibRaw: open, unpack,
// demosaic and convert to 16-bit RGB. Build with -tags nolibraw to leave
// it out on machines without the library.
package libraw

/*
#cgo pkg-config: libraw_r
#include <stdlib.h>
#include <libraw/libraw.h>
*/
import "C"

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"unsafe"

	"github.com/disintegration/imaging"

	"photocrispy/internal/raw"
)

// Decoder runs the full LibRaw development with camera white balance and
// sRGB output. HalfSize skips demosaicing by halving both dimensions.
type Decoder struct {
	HalfSize bool
}

func (Decoder) Name() string { return "libraw" }

func (d Decoder) Decode(ctx context.Context, path string) (raw.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return raw.DecodedImage{}, err
	}

	lr, err := open(path)
	if err != nil {
		return raw.DecodedImage{}, err
	}
	defer C.libraw_close(lr)

	lr.params.output_bps = 16
	lr.params.use_camera_wb = 1
	if d.HalfSize {
		lr.params.half_size = 1
	}

	if rc := C.libraw_unpack(lr); rc != C.LIBRAW_SUCCESS {
		return raw.DecodedImage{}, failure("unpack", path, rc)
	}
	if err := ctx.Err(); err != nil {
		return raw.DecodedImage{}, err
	}
	if rc := C.libraw_dcraw_process(lr); rc != C.LIBRAW_SUCCESS {
		return raw.DecodedImage{}, failure("process", path, rc)
	}

	var rc C.int
	mem := C.libraw_dcraw_make_mem_image(lr, &rc)
	if mem == nil {
		return raw.DecodedImage{}, failure("make image", path, rc)
	}
	defer C.libraw_dcraw_clear_mem(mem)

	if mem._type != C.LIBRAW_IMAGE_BITMAP {
		return raw.DecodedImage{}, fmt.Errorf("%w: libraw returned a non-bitmap image for %s", raw.ErrDecodeFailed, path)
	}

	// Samples are in host byte order, little-endian on every supported
	// platform, which is the order DecodedImage expects.
	img := raw.DecodedImage{
		Width:          int(mem.width),
		Height:         int(mem.height),
		Channels:       int(mem.colors),
		BitsPerChannel: int(mem.bits),
		Pixels:         C.GoBytes(unsafe.Pointer(&mem.data[0]), C.int(mem.data_size)),
		Path:           path,
		Success:        true,
	}
	img.CameraMake, img.CameraModel, img.LensModel = metadata(lr)
	return img, nil
}

// Thumbnail returns the preview embedded in a RAW file, which is far
// cheaper than a full decode. Most cameras store a JPEG.
func Thumbnail(path string) (image.Image, error) {
	lr, err := open(path)
	if err != nil {
		return nil, err
	}
	defer C.libraw_close(lr)

	if rc := C.libraw_unpack_thumb(lr); rc != C.LIBRAW_SUCCESS {
		return nil, failure("unpack thumbnail", path, rc)
	}

	var rc C.int
	mem := C.libraw_dcraw_make_mem_thumb(lr, &rc)
	if mem == nil {
		return nil, failure("make thumbnail", path, rc)
	}
	defer C.libraw_dcraw_clear_mem(mem)

	data := C.GoBytes(unsafe.Pointer(&mem.data[0]), C.int(mem.data_size))
	switch mem._type {
	case C.LIBRAW_IMAGE_JPEG:
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("%w: thumbnail of %s: %v", raw.ErrDecodeFailed, path, err)
		}
		return img, nil
	case C.LIBRAW_IMAGE_BITMAP:
		bitmap := raw.DecodedImage{
			Width:          int(mem.width),
			Height:         int(mem.height),
			Channels:       int(mem.colors),
			BitsPerChannel: int(mem.bits),
			Pixels:         data,
		}
		if err := bitmap.Validate(); err != nil {
			return nil, err
		}
		return raw.ToNRGBA64(bitmap), nil
	default:
		return nil, fmt.Errorf("%w: unsupported thumbnail format in %s", raw.ErrDecodeFailed, path)
	}
}

func open(path string) (*C.libraw_data_t, error) {
	lr := C.libraw_init(0)
	if lr == nil {
		return nil, fmt.Errorf("%w: libraw_init failed", raw.ErrDecodeFailed)
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	if rc := C.libraw_open_file(lr, cpath); rc != C.LIBRAW_SUCCESS {
		C.libraw_close(lr)
		return nil, failure("open", path, rc)
	}
	return lr, nil
}

func metadata(lr *C.libraw_data_t) (maker, model, lens string) {
	maker = C.GoString(&lr.idata.normalized_make[0])
	if maker == "" {
		maker = C.GoString(&lr.idata.make[0])
	}
	model = C.GoString(&lr.idata.normalized_model[0])
	if model == "" {
		model = C.GoString(&lr.idata.model[0])
	}
	lens = C.GoString(&lr.lens.Lens[0])
	return maker, model, lens
}

func failure(stage, path string, rc C.int) error {
	return fmt.Errorf("%w: libraw %s %s: %s", raw.ErrDecodeFailed, stage, path, C.GoString(C.libraw_strerror(rc)))
}
