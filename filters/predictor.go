package filters

import "fmt"

// applyPredictor undoes the row predictor declared in DecodeParms. Predictor
// 1 is the identity, 2 is TIFF horizontal differencing, and values >= 10 are
// the PNG filter set with a per-row filter tag byte.
func applyPredictor(data []byte, p Parms) ([]byte, error) {
	switch {
	case p.Predictor <= 1:
		return data, nil
	case p.Predictor == 2:
		return tiffPredictor(data, p)
	case p.Predictor >= 10 && p.Predictor <= 15:
		return pngPredictor(data, p)
	}
	return nil, fmt.Errorf("unsupported predictor %d", p.Predictor)
}

func bytesPerPixel(p Parms) int {
	bpp := p.Colors * p.BitsPerComponent / 8
	if bpp < 1 {
		bpp = 1
	}
	return bpp
}

func rowLength(p Parms) int {
	return (p.Columns*p.Colors*p.BitsPerComponent + 7) / 8
}

func tiffPredictor(data []byte, p Parms) ([]byte, error) {
	if p.BitsPerComponent != 8 {
		return nil, fmt.Errorf("TIFF predictor requires 8 bits per component, got %d", p.BitsPerComponent)
	}
	rowLen := rowLength(p)
	bpp := bytesPerPixel(p)
	for row := 0; row+rowLen <= len(data); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			data[row+i] += data[row+i-bpp]
		}
	}
	return data, nil
}

func pngPredictor(data []byte, p Parms) ([]byte, error) {
	rowLen := rowLength(p)
	bpp := bytesPerPixel(p)
	stride := rowLen + 1
	if rowLen <= 0 || len(data)%stride != 0 {
		return nil, fmt.Errorf("PNG predictor: data length %d does not fit rows of %d", len(data), stride)
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		tag := data[r*stride]
		copy(cur, data[r*stride+1:(r+1)*stride])
		switch tag {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("PNG predictor: unknown filter tag %d in row %d", tag, r)
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
