package extractor

import (
	"sort"

	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/scanner"
	"golang.org/x/text/encoding/unicode"
)

// fontDecoder maps string-operand bytes to Unicode for one font. With a
// ToUnicode CMap the mapping is exact; without one the bytes are read as
// Latin-1, which covers the standard fonts well enough for search and
// verification.
type fontDecoder struct {
	cmap     map[string]string
	codeLens []int
}

func newFontDecoder(font *semantic.Font) *fontDecoder {
	fd := &fontDecoder{}
	if font != nil && len(font.ToUnicode) > 0 {
		fd.cmap, fd.codeLens = parseToUnicode(font.ToUnicode)
	}
	return fd
}

func (fd *fontDecoder) decode(raw []byte) string {
	if len(fd.cmap) == 0 {
		return latin1(raw)
	}
	var out []byte
	for i := 0; i < len(raw); {
		matched := false
		for _, n := range fd.codeLens {
			if i+n > len(raw) {
				continue
			}
			if dst, ok := fd.cmap[string(raw[i:i+n])]; ok {
				out = append(out, dst...)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			// Unmapped code: fall back to the byte itself so simple
			// WinAnsi-style fonts with partial CMaps stay readable.
			out = append(out, string(rune(raw[i]))...)
			i++
		}
	}
	return string(out)
}

// parseToUnicode reads the bfchar and bfrange sections of a ToUnicode CMap.
// Keys are source code bytes, values are decoded UTF-8. codeLens lists the
// distinct source code widths, widest first.
func parseToUnicode(data []byte) (map[string]string, []int) {
	cmap := make(map[string]string)
	s := scanner.New(data)
	for {
		tok, err := s.Next()
		if err != nil || tok.Type == scanner.TokenEOF {
			break
		}
		if tok.Type != scanner.TokenKeyword {
			continue
		}
		switch tok.Keyword {
		case "beginbfchar":
			parseBFChar(s, cmap)
		case "beginbfrange":
			parseBFRange(s, cmap)
		}
	}
	seen := make(map[int]bool)
	var lens []int
	for k := range cmap {
		if !seen[len(k)] {
			seen[len(k)] = true
			lens = append(lens, len(k))
		}
	}
	// Longest code first so multi-byte fonts are not split into single
	// bytes.
	sort.Sort(sort.Reverse(sort.IntSlice(lens)))
	return cmap, lens
}

func parseBFChar(s *scanner.Scanner, cmap map[string]string) {
	for {
		src, err := s.Next()
		if err != nil || src.Type == scanner.TokenEOF {
			return
		}
		if src.Type == scanner.TokenKeyword {
			return // endbfchar
		}
		dst, err := s.Next()
		if err != nil || src.Type != scanner.TokenString || dst.Type != scanner.TokenString {
			return
		}
		cmap[string(src.Bytes)] = decodeUTF16BE(dst.Bytes)
	}
}

func parseBFRange(s *scanner.Scanner, cmap map[string]string) {
	for {
		lo, err := s.Next()
		if err != nil || lo.Type == scanner.TokenEOF || lo.Type == scanner.TokenKeyword {
			return
		}
		hi, err := s.Next()
		if err != nil || lo.Type != scanner.TokenString || hi.Type != scanner.TokenString {
			return
		}
		dst, err := s.Next()
		if err != nil {
			return
		}
		loCode := codeValue(lo.Bytes)
		hiCode := codeValue(hi.Bytes)
		if hiCode < loCode || hiCode-loCode > 65535 {
			return
		}
		switch dst.Type {
		case scanner.TokenString:
			base := append([]byte(nil), dst.Bytes...)
			for c := loCode; c <= hiCode; c++ {
				cmap[codeBytes(c, len(lo.Bytes))] = decodeUTF16BE(base)
				base = incrementCode(base)
			}
		case scanner.TokenArrayOpen:
			for c := loCode; ; c++ {
				item, err := s.Next()
				if err != nil || item.Type == scanner.TokenArrayClose || item.Type == scanner.TokenEOF {
					break
				}
				if item.Type == scanner.TokenString && c <= hiCode {
					cmap[codeBytes(c, len(lo.Bytes))] = decodeUTF16BE(item.Bytes)
				}
			}
		default:
			return
		}
	}
}

func decodeUTF16BE(raw []byte) string {
	if len(raw)%2 != 0 {
		return latin1(raw)
	}
	dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return latin1(raw)
	}
	return string(out)
}

func codeValue(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

func codeBytes(v, width int) string {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return string(out)
}

// incrementCode bumps the last code unit of a UTF-16BE destination string,
// matching how bfrange destinations advance.
func incrementCode(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}
