// Package filters implements the stream codecs used by PDF bodies: Flate,
// LZW, ASCIIHex, ASCII85 and RunLength, with PNG/TIFF predictor support.
// Image-native codecs (DCT, JPX, CCITT, JBIG2) are passed through undecoded;
// consumers that need pixels decode those with image packages.
package filters

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/ascii85"
	"fmt"
	"io"

	tifflzw "golang.org/x/image/tiff/lzw"
)

// Parms carries the subset of DecodeParms the codecs consume.
type Parms struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
	EarlyChange      int
}

// DefaultParms reflects the format's defaults for absent entries.
func DefaultParms() Parms {
	return Parms{Predictor: 1, Colors: 1, BitsPerComponent: 8, Columns: 1, EarlyChange: 1}
}

// Decoder decodes one filter stage.
type Decoder interface {
	Name() string
	Decode(data []byte, parms Parms) ([]byte, error)
}

// Limits bounds decoder output to contain decompression bombs. Zero values
// mean unlimited.
type Limits struct {
	MaxDecodedBytes int64
}

// Pipeline applies a filter chain in order, stopping at the first stage it
// has no decoder for.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	m := make(map[string]Decoder, len(decoders))
	for _, d := range decoders {
		m[d.Name()] = d
	}
	return &Pipeline{decoders: m, limits: limits}
}

// Default returns a pipeline with every codec this package implements.
func Default() *Pipeline {
	return NewPipeline([]Decoder{
		Flate{}, LZW{}, ASCIIHex{}, ASCII85{}, RunLength{},
	}, Limits{MaxDecodedBytes: 1 << 30})
}

// Decode runs data through the named filters. It returns the decoded bytes
// and the names of any trailing filters left unapplied. parms may be shorter
// than names; missing entries take defaults.
func (p *Pipeline) Decode(data []byte, names []string, parms []Parms) ([]byte, []string, error) {
	for i, name := range names {
		dec, ok := p.decoders[name]
		if !ok {
			return data, names[i:], nil
		}
		pr := DefaultParms()
		if i < len(parms) {
			pr = normalize(parms[i])
		}
		out, err := dec.Decode(data, pr)
		if err != nil {
			return nil, nil, fmt.Errorf("filters: %s: %w", name, err)
		}
		if p.limits.MaxDecodedBytes > 0 && int64(len(out)) > p.limits.MaxDecodedBytes {
			return nil, nil, fmt.Errorf("filters: %s output exceeds %d byte limit", name, p.limits.MaxDecodedBytes)
		}
		data = out
	}
	return data, nil, nil
}

// Supports reports whether every named filter has a decoder.
func (p *Pipeline) Supports(names []string) bool {
	for _, n := range names {
		if _, ok := p.decoders[n]; !ok {
			return false
		}
	}
	return true
}

func normalize(p Parms) Parms {
	d := DefaultParms()
	if p.Predictor == 0 {
		p.Predictor = d.Predictor
	}
	if p.Colors == 0 {
		p.Colors = d.Colors
	}
	if p.BitsPerComponent == 0 {
		p.BitsPerComponent = d.BitsPerComponent
	}
	if p.Columns == 0 {
		p.Columns = d.Columns
	}
	// EarlyChange is left as provided: zero is a meaningful value and the
	// parms converter fills in the default of one when the entry is absent.
	return p
}

// Flate implements FlateDecode (zlib-wrapped deflate).
type Flate struct{}

func (Flate) Name() string { return "FlateDecode" }

func (Flate) Decode(data []byte, parms Parms) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	// Truncated deflate tails are tolerated; writers in the wild emit them.
	return applyPredictor(out, parms)
}

// LZW implements LZWDecode. The format defaults to early code-length change,
// which matches the TIFF flavor of LZW rather than the GIF one.
type LZW struct{}

func (LZW) Name() string { return "LZWDecode" }

func (l LZW) Decode(data []byte, parms Parms) ([]byte, error) {
	var r io.ReadCloser
	if parms.EarlyChange == 0 {
		r = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	} else {
		r = tifflzw.NewReader(bytes.NewReader(data), tifflzw.MSB, 8)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return applyPredictor(out, parms)
}

// ASCIIHex implements ASCIIHexDecode.
type ASCIIHex struct{}

func (ASCIIHex) Name() string { return "ASCIIHexDecode" }

func (ASCIIHex) Decode(data []byte, _ Parms) ([]byte, error) {
	var out []byte
	var nibble byte
	have := false
	for _, c := range data {
		if c == '>' {
			break
		}
		switch {
		case c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' ':
			continue
		case c >= '0' && c <= '9':
			c -= '0'
		case c >= 'a' && c <= 'f':
			c -= 'a' - 10
		case c >= 'A' && c <= 'F':
			c -= 'A' - 10
		default:
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
		if have {
			out = append(out, nibble<<4|c)
			have = false
		} else {
			nibble = c
			have = true
		}
	}
	if have {
		out = append(out, nibble<<4)
	}
	return out, nil
}

// ASCII85 implements ASCII85Decode.
type ASCII85 struct{}

func (ASCII85) Name() string { return "ASCII85Decode" }

func (ASCII85) Decode(data []byte, _ Parms) ([]byte, error) {
	if i := bytes.Index(data, []byte("~>")); i >= 0 {
		data = data[:i]
	}
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("<~"))
	out, err := io.ReadAll(ascii85.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunLength implements RunLengthDecode.
type RunLength struct{}

func (RunLength) Name() string { return "RunLengthDecode" }

func (RunLength) Decode(data []byte, _ Parms) ([]byte, error) {
	var out []byte
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			if i+n+1 > len(data) {
				return nil, fmt.Errorf("truncated literal run at byte %d", i)
			}
			out = append(out, data[i:i+n+1]...)
			i += n + 1
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("truncated repeat run at byte %d", i)
			}
			for j := 0; j < 257-n; j++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	return out, nil
}
