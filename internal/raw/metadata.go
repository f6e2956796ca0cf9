package raw

import (
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

type Metadata struct {
	CameraMake  string
	CameraModel string
	LensModel   string
}

// ReadMetadata pulls camera identification from the file's EXIF block.
// Missing tags and unparseable files yield empty strings.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Metadata{}, err
	}

	return Metadata{
		CameraMake:  exifString(x, exif.Make),
		CameraModel: exifString(x, exif.Model),
		LensModel:   exifString(x, exif.LensModel),
	}, nil
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
