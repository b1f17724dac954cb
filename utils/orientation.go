package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// exifOrientation returns the EXIF orientation tag (1..8), or 1 if absent.
func exifOrientation(r io.Reader) int {
	exifData, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := exifData.Get(exif.Orientation)
	if err != nil || tag == nil {
		return 1
	}
	val, err := tag.Int(0)
	if err != nil || val < 1 || val > 8 {
		return 1
	}
	return val
}

// applyOrientation rotates/flips img so it displays upright.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// DecodeOriented decodes a JPEG or PNG photo and applies its EXIF orientation.
func DecodeOriented(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	orientation := exifOrientation(bytes.NewReader(data))
	if orientation != 1 {
		log.Printf("utils: applying EXIF orientation %d to %s image", orientation, format)
	}
	return applyOrientation(img, orientation), nil
}
