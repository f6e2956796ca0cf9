package raw

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// FromImage copies a decoded Go image into the interleaved layout. Sixteen
// bit color models keep their depth, everything else becomes 8-bit RGB.
// Alpha is dropped.
func FromImage(img image.Image) DecodedImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		out := DecodedImage{Width: w, Height: h, Channels: 1, BitsPerChannel: 8, Pixels: make([]byte, w*h)}
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			copy(out.Pixels[y*w:], row)
		}
		out.Success = true
		return out

	case *image.Gray16:
		out := DecodedImage{Width: w, Height: h, Channels: 1, BitsPerChannel: 16, Pixels: make([]byte, w*h*2)}
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < w; x++ {
				// Gray16 is big-endian
				out.Pixels[(y*w+x)*2] = row[x*2+1]
				out.Pixels[(y*w+x)*2+1] = row[x*2]
			}
		}
		out.Success = true
		return out

	case *image.NRGBA64:
		out := DecodedImage{Width: w, Height: h, Channels: 3, BitsPerChannel: 16, Pixels: make([]byte, w*h*6)}
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < w; x++ {
				o := (y*w + x) * 6
				i := x * 8
				for c := 0; c < 3; c++ {
					out.Pixels[o+c*2] = row[i+c*2+1]
					out.Pixels[o+c*2+1] = row[i+c*2]
				}
			}
		}
		out.Success = true
		return out

	case *image.RGBA64:
		return from16(img, w, h)
	}

	if isDeep(img.ColorModel()) {
		return from16(img, w, h)
	}

	nrgba := imaging.Clone(img)
	out := DecodedImage{Width: w, Height: h, Channels: 3, BitsPerChannel: 8, Pixels: make([]byte, w*h*3)}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < w; x++ {
			copy(out.Pixels[(y*w+x)*3:], row[x*4:x*4+3])
		}
	}
	out.Success = true
	return out
}

func isDeep(m color.Model) bool {
	return m == color.RGBA64Model || m == color.NRGBA64Model || m == color.Gray16Model
}

func from16(img image.Image, w, h int) DecodedImage {
	b := img.Bounds()
	out := DecodedImage{Width: w, Height: h, Channels: 3, BitsPerChannel: 16, Pixels: make([]byte, w*h*6)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			o := (y*w + x) * 6
			putLE(out.Pixels[o:], c.R)
			putLE(out.Pixels[o+2:], c.G)
			putLE(out.Pixels[o+4:], c.B)
		}
	}
	out.Success = true
	return out
}

func putLE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// ToNRGBA64 expands a decoded buffer into a 16-bit Go image, replicating
// gray sources and scaling 8-bit samples by 257.
func ToNRGBA64(d DecodedImage) *image.NRGBA64 {
	out := image.NewNRGBA64(image.Rect(0, 0, d.Width, d.Height))
	if d.Validate() != nil {
		return out
	}
	scale := uint16(1)
	if d.BitsPerChannel == 8 {
		scale = 257
	}
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			r := d.Sample(x, y, 0) * scale
			g, bl := r, r
			if d.Channels >= 3 {
				g = d.Sample(x, y, 1) * scale
				bl = d.Sample(x, y, 2) * scale
			}
			out.SetNRGBA64(x, y, color.NRGBA64{R: r, G: g, B: bl, A: 0xffff})
		}
	}
	return out
}
