package imaging

import (
	"image"
	"strconv"

	exif "github.com/dsoprea/go-exif/v3"
)

// Orientation reads the EXIF orientation tag (1-8) from raw image bytes.
// Returns 1 (normal) when the image has no EXIF data or no orientation tag.
func Orientation(data []byte) int {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return 1
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return 1
	}

	for _, entry := range entries {
		if entry.TagName != "Orientation" {
			continue
		}
		if o, err := strconv.Atoi(entry.Formatted); err == nil && o >= 1 && o <= 8 {
			return o
		}
		return 1
	}
	return 1
}

// ApplyOrientation rotates/mirrors img according to the EXIF orientation
// found in data, so text reads upright regardless of how the photo was shot.
func ApplyOrientation(img image.Image, data []byte) image.Image {
	return applyOrientation(img, Orientation(data))
}

func applyOrientation(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	switch orientation {
	case 5, 6, 7, 8:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	default:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch orientation {
			case 2: // mirror horizontal
				dst.Set(w-1-x, y, c)
			case 3: // rotate 180
				dst.Set(w-1-x, h-1-y, c)
			case 4: // mirror vertical
				dst.Set(x, h-1-y, c)
			case 5: // mirror horizontal + rotate 270 CW
				dst.Set(y, x, c)
			case 6: // rotate 90 CW
				dst.Set(h-1-y, x, c)
			case 7: // mirror horizontal + rotate 90 CW
				dst.Set(h-1-y, w-1-x, c)
			case 8: // rotate 270 CW
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}
