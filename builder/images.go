package builder

import (
	"fmt"
	"image"

	"github.com/fileskadis/fileskadis/ir/semantic"
)

// FromImage converts a decoded image into an RGB image XObject. Alpha, when
// present anywhere in the image, becomes a grayscale soft mask.
func FromImage(img image.Image) (*semantic.XObject, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a == 0 {
				rgb = append(rgb, 0, 0, 0)
			} else {
				// Un-premultiply to recover the stored color.
				rgb = append(rgb,
					byte((r*0xFFFF/a)>>8),
					byte((g*0xFFFF/a)>>8),
					byte((b*0xFFFF/a)>>8),
				)
			}
			alpha = append(alpha, byte(a>>8))
			if a>>8 != 0xFF {
				hasAlpha = true
			}
		}
	}

	xo := &semantic.XObject{
		Subtype:          "Image",
		Width:            w,
		Height:           h,
		BitsPerComponent: 8,
		ColorSpace:       "DeviceRGB",
		Data:             rgb,
	}
	if hasAlpha {
		xo.SMask = &semantic.XObject{
			Subtype:          "Image",
			Width:            w,
			Height:           h,
			BitsPerComponent: 8,
			ColorSpace:       "DeviceGray",
			Data:             alpha,
		}
	}
	return xo, nil
}
