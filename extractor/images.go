package extractor

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"sort"

	_ "image/jpeg"

	"github.com/fileskadis/fileskadis/ir/semantic"
)

// ImageAsset is one image XObject found on a page, with enough context to
// decode it.
type ImageAsset struct {
	Page    int
	Name    string
	XObject *semantic.XObject
}

// Images lists every image XObject referenced by page resources, in page
// order.
func (e *Extractor) Images() []ImageAsset {
	var assets []ImageAsset
	for _, page := range e.doc.Pages {
		if page.Resources == nil {
			continue
		}
		names := make([]string, 0, len(page.Resources.XObjects))
		for name := range page.Resources.XObjects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			xo := page.Resources.XObjects[name]
			if xo == nil || xo.Subtype != "Image" {
				continue
			}
			assets = append(assets, ImageAsset{Page: page.Index, Name: name, XObject: xo})
		}
	}
	return assets
}

// ToImage decodes the asset to a Go image. JPEG payloads decode through the
// standard codec; raw payloads are interpreted per their color space. Soft
// masks become the alpha channel.
func (a ImageAsset) ToImage() (image.Image, error) {
	img, err := decodeXObject(a.XObject)
	if err != nil {
		return nil, err
	}
	if a.XObject.SMask == nil {
		return img, nil
	}
	mask, err := decodeXObject(a.XObject.SMask)
	if err != nil {
		return nil, fmt.Errorf("soft mask: %w", err)
	}
	return applyMask(img, mask), nil
}

// ToPNG encodes the decoded asset as PNG.
func (a ImageAsset) ToPNG(w io.Writer) error {
	img, err := a.ToImage()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func decodeXObject(xo *semantic.XObject) (image.Image, error) {
	for _, f := range xo.Filters {
		switch f {
		case "DCTDecode":
			img, _, err := image.Decode(bytes.NewReader(xo.Data))
			if err != nil {
				return nil, fmt.Errorf("jpeg decode: %w", err)
			}
			return img, nil
		default:
			return nil, fmt.Errorf("image filter %s not supported", f)
		}
	}
	if xo.Width <= 0 || xo.Height <= 0 {
		return nil, fmt.Errorf("image has no dimensions")
	}
	switch {
	case xo.ColorSpace == "DeviceRGB" && xo.BitsPerComponent == 8:
		return rawRGB(xo)
	case xo.ColorSpace == "DeviceGray" && xo.BitsPerComponent == 8:
		return rawGray(xo)
	case xo.ColorSpace == "DeviceGray" && xo.BitsPerComponent == 1:
		return rawBilevel(xo)
	}
	return nil, fmt.Errorf("color space %s at %d bits not supported", xo.ColorSpace, xo.BitsPerComponent)
}

func rawRGB(xo *semantic.XObject) (image.Image, error) {
	if len(xo.Data) < xo.Width*xo.Height*3 {
		return nil, fmt.Errorf("rgb image truncated: %d bytes for %dx%d", len(xo.Data), xo.Width, xo.Height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, xo.Width, xo.Height))
	for y := 0; y < xo.Height; y++ {
		for x := 0; x < xo.Width; x++ {
			src := (y*xo.Width + x) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst] = xo.Data[src]
			img.Pix[dst+1] = xo.Data[src+1]
			img.Pix[dst+2] = xo.Data[src+2]
			img.Pix[dst+3] = 255
		}
	}
	return img, nil
}

func rawGray(xo *semantic.XObject) (image.Image, error) {
	if len(xo.Data) < xo.Width*xo.Height {
		return nil, fmt.Errorf("gray image truncated: %d bytes for %dx%d", len(xo.Data), xo.Width, xo.Height)
	}
	img := image.NewGray(image.Rect(0, 0, xo.Width, xo.Height))
	for y := 0; y < xo.Height; y++ {
		copy(img.Pix[y*img.Stride:], xo.Data[y*xo.Width:(y+1)*xo.Width])
	}
	return img, nil
}

func rawBilevel(xo *semantic.XObject) (image.Image, error) {
	rowBytes := (xo.Width + 7) / 8
	if len(xo.Data) < rowBytes*xo.Height {
		return nil, fmt.Errorf("bilevel image truncated")
	}
	img := image.NewGray(image.Rect(0, 0, xo.Width, xo.Height))
	for y := 0; y < xo.Height; y++ {
		row := xo.Data[y*rowBytes:]
		for x := 0; x < xo.Width; x++ {
			if row[x/8]&(0x80>>uint(x%8)) != 0 {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img, nil
}

func applyMask(img, mask image.Image) image.Image {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	mb := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			// Masks may be a different size; sample proportionally.
			mx := mb.Min.X + (x-b.Min.X)*mb.Dx()/max(b.Dx(), 1)
			my := mb.Min.Y + (y-b.Min.Y)*mb.Dy()/max(b.Dy(), 1)
			a, _, _, _ := mask.At(mx, my).RGBA()
			dst := out.PixOffset(x, y)
			out.Pix[dst] = uint8(r >> 8)
			out.Pix[dst+1] = uint8(g >> 8)
			out.Pix[dst+2] = uint8(bl >> 8)
			out.Pix[dst+3] = uint8(a >> 8)
		}
	}
	return out
}

