package masker

import (
	"bytes"
	"fmt"
	"image"
	"math"

	_ "image/jpeg"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/coords"
	"github.com/fileskadis/fileskadis/ir/semantic"
)

// pixelRect is an area of an image in pixel coordinates, origin top-left,
// exclusive upper bounds.
type pixelRect struct {
	X0, Y0, X1, Y1 int
}

func (p pixelRect) empty() bool { return p.X1 <= p.X0 || p.Y1 <= p.Y0 }

// pixelPlan accumulates the image areas a redaction pass must destroy. One
// image placed several times collects the union of all covered areas, so
// every placement ends up redacted.
type pixelPlan struct {
	targets []*pixelTarget
	byXO    map[*semantic.XObject]*pixelTarget
}

type pixelTarget struct {
	xo    *semantic.XObject
	rects []pixelRect
}

func newPixelPlan() *pixelPlan {
	return &pixelPlan{byXO: make(map[*semantic.XObject]*pixelTarget)}
}

func (p *pixelPlan) add(xo *semantic.XObject, r pixelRect) {
	if r.empty() {
		return
	}
	t := p.byXO[xo]
	if t == nil {
		t = &pixelTarget{xo: xo}
		p.byXO[xo] = t
		p.targets = append(p.targets, t)
	}
	t.rects = append(t.rects, r)
}

// planPixelEdits finds every editable image placement that intersects a
// region and records which pixels must go.
func (m *Masker) planPixelEdits(page *semantic.Page, rects []semantic.Rectangle) (*pixelPlan, error) {
	plan := newPixelPlan()
	if page.Resources == nil {
		return plan, nil
	}
	prog, err := contentstream.PageProgram(page)
	if err != nil {
		return nil, fmt.Errorf("masker: %w", err)
	}
	tracer := contentstream.NewTracer(page.Resources)
	for _, b := range tracer.Trace(prog.Ops, page.MediaBox) {
		if b.Kind != contentstream.KindImage {
			continue
		}
		xo := page.Resources.XObjects[b.XObject]
		if xo == nil || !editable(xo) {
			continue
		}
		for _, rect := range rects {
			covered := b.Box.Intersect(rect)
			if covered.IsEmpty() {
				continue
			}
			pr, err := mapToPixels(xo, b.CTM, covered)
			if err != nil {
				continue
			}
			plan.add(xo, pr)
		}
	}
	return plan, nil
}

// editable reports whether the image's pixels can be rewritten. Raw 8-bit
// gray and RGB payloads edit in place; JPEG payloads decode first. Anything
// else is handled by deleting the placement instead.
func editable(xo *semantic.XObject) bool {
	if len(xo.Filters) == 1 && xo.Filters[0] == "DCTDecode" {
		return true
	}
	if len(xo.Filters) != 0 {
		return false
	}
	if xo.BitsPerComponent != 8 {
		return false
	}
	return xo.ColorSpace == "DeviceRGB" || xo.ColorSpace == "DeviceGray"
}

// mapToPixels converts a device-space rectangle into image pixel
// coordinates via the inverse of the placement matrix. Image space runs
// top-down; unit space runs bottom-up.
func mapToPixels(xo *semantic.XObject, ctm coords.Matrix, rect semantic.Rectangle) (pixelRect, error) {
	inv, err := ctm.Inverse()
	if err != nil {
		return pixelRect{}, err
	}
	corners := []coords.Point{
		{X: rect.LLX, Y: rect.LLY},
		{X: rect.URX, Y: rect.LLY},
		{X: rect.URX, Y: rect.URY},
		{X: rect.LLX, Y: rect.URY},
	}
	uMin, vMin := math.Inf(1), math.Inf(1)
	uMax, vMax := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		p := inv.Transform(c)
		uMin = math.Min(uMin, p.X)
		uMax = math.Max(uMax, p.X)
		vMin = math.Min(vMin, p.Y)
		vMax = math.Max(vMax, p.Y)
	}
	w, h := float64(xo.Width), float64(xo.Height)
	pr := pixelRect{
		X0: clampInt(int(math.Floor(uMin*w)), 0, xo.Width),
		X1: clampInt(int(math.Ceil(uMax*w)), 0, xo.Width),
		Y0: clampInt(int(math.Floor((1-vMax)*h)), 0, xo.Height),
		Y1: clampInt(int(math.Ceil((1-vMin)*h)), 0, xo.Height),
	}
	return pr, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// apply destroys the planned pixel areas. Solid mode overwrites them with
// the fill level; blur mode builds one coverage mask per image and blurs it
// in a single pass, so overlapping regions never compound.
func (p *pixelPlan) apply(mode Mode, fill Fill, blurRadius int) error {
	for _, t := range p.targets {
		if len(t.rects) == 0 {
			continue
		}
		if err := normalizePixels(t.xo); err != nil {
			return err
		}
		channels := 1
		if t.xo.ColorSpace == "DeviceRGB" {
			channels = 3
		}
		switch mode {
		case ModeSolid:
			level := byte(0)
			if fill == FillWhite {
				level = 255
			}
			fillRects(t.xo, t.rects, channels, level)
			if t.xo.SMask != nil {
				opaqueRects(t.xo.SMask, t.rects)
			}
		case ModeBlur:
			mask := coverageMask(t.xo.Width, t.xo.Height, t.rects)
			blurMasked(t.xo.Data, t.xo.Width, t.xo.Height, channels, blurRadius, mask)
			if t.xo.SMask != nil && len(t.xo.SMask.Filters) == 0 && t.xo.SMask.BitsPerComponent == 8 {
				blurMasked(t.xo.SMask.Data, t.xo.SMask.Width, t.xo.SMask.Height, 1,
					blurRadius, coverageMask(t.xo.SMask.Width, t.xo.SMask.Height, t.rects))
			}
		}
		t.xo.Replaced = true
		if t.xo.SMask != nil {
			t.xo.SMask.Replaced = true
		}
	}
	return nil
}

// normalizePixels brings the image to raw 8-bit samples, decoding JPEG
// payloads to DeviceRGB.
func normalizePixels(xo *semantic.XObject) error {
	if len(xo.Filters) == 0 {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(xo.Data))
	if err != nil {
		return fmt.Errorf("masker: decode image %s: %w", xo.Name, err)
	}
	b := img.Bounds()
	data := make([]byte, b.Dx()*b.Dy()*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			data[i] = byte(r >> 8)
			data[i+1] = byte(g >> 8)
			data[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	xo.Width = b.Dx()
	xo.Height = b.Dy()
	xo.BitsPerComponent = 8
	xo.ColorSpace = "DeviceRGB"
	xo.Filters = nil
	xo.Data = data
	return nil
}

func fillRects(xo *semantic.XObject, rects []pixelRect, channels int, level byte) {
	for _, r := range rects {
		for y := r.Y0; y < r.Y1; y++ {
			row := y * xo.Width * channels
			for x := r.X0 * channels; x < r.X1*channels; x++ {
				xo.Data[row+x] = level
			}
		}
	}
}

// opaqueRects forces full alpha where pixels were filled, so the fill is
// visible even where the image was transparent.
func opaqueRects(mask *semantic.XObject, rects []pixelRect) {
	if len(mask.Filters) != 0 || mask.BitsPerComponent != 8 {
		return
	}
	for _, r := range rects {
		for y := r.Y0; y < r.Y1 && y < mask.Height; y++ {
			row := y * mask.Width
			for x := r.X0; x < r.X1 && x < mask.Width; x++ {
				mask.Data[row+x] = 255
			}
		}
	}
}

func coverageMask(w, h int, rects []pixelRect) []bool {
	mask := make([]bool, w*h)
	for _, r := range rects {
		for y := r.Y0; y < r.Y1 && y < h; y++ {
			row := y * w
			for x := r.X0; x < r.X1 && x < w; x++ {
				mask[row+x] = true
			}
		}
	}
	return mask
}

// blurMasked applies a separable Gaussian blur, writing only pixels inside
// the mask. Samples are read from a copy of the original data, so the blur
// acts exactly once regardless of how many regions cover a pixel.
func blurMasked(data []byte, w, h, channels, radius int, mask []bool) {
	if radius < 1 || len(data) < w*h*channels {
		return
	}
	kernel := gaussianKernel(radius)
	src := append([]byte(nil), data...)
	tmp := append([]byte(nil), data...)

	// Horizontal pass writes every pixel of tmp; the mask gates only the
	// final vertical pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < channels; c++ {
				var sum, weight float64
				for k := -radius; k <= radius; k++ {
					xx := x + k
					if xx < 0 || xx >= w {
						continue
					}
					wgt := kernel[k+radius]
					sum += wgt * float64(src[(y*w+xx)*channels+c])
					weight += wgt
				}
				tmp[(y*w+x)*channels+c] = byte(sum/weight + 0.5)
			}
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			for c := 0; c < channels; c++ {
				var sum, weight float64
				for k := -radius; k <= radius; k++ {
					yy := y + k
					if yy < 0 || yy >= h {
						continue
					}
					wgt := kernel[k+radius]
					sum += wgt * float64(tmp[(yy*w+x)*channels+c])
					weight += wgt
				}
				data[(y*w+x)*channels+c] = byte(sum/weight + 0.5)
			}
		}
	}
}

func gaussianKernel(radius int) []float64 {
	sigma := float64(radius) / 3
	if sigma < 0.5 {
		sigma = 0.5
	}
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	return kernel
}
