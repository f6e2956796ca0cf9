package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Write16 stores a 16-bit image through cv::imwrite, which keeps the full
// depth for PNG and TIFF targets.
func Write16(path string, img *image.NRGBA64) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	buf := make([]byte, w*h*6)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 6
			i := x * 8
			// NRGBA64 is big-endian RGB, the mat wants little-endian BGR
			for c := 0; c < 3; c++ {
				dst := o + (2-c)*2
				buf[dst] = row[i+c*2+1]
				buf[dst+1] = row[i+c*2]
			}
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV16UC3, buf)
	if err != nil {
		return fmt.Errorf("build mat: %w", err)
	}
	defer mat.Close()

	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("opencv could not write %s", path)
	}
	return nil
}
