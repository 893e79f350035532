// Package scanner tokenizes COS syntax: the object syntax shared by PDF
// bodies, cross-reference trailers, and content streams.
package scanner

import (
	"bytes"
	"fmt"
)

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenName
	TokenString
	TokenArrayOpen
	TokenArrayClose
	TokenDictOpen
	TokenDictClose
	TokenKeyword
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNumber:
		return "number"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenArrayOpen:
		return "["
	case TokenArrayClose:
		return "]"
	case TokenDictOpen:
		return "<<"
	case TokenDictClose:
		return ">>"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

// Token is a single lexical unit. Numbers carry both the float value and, for
// integers, the exact int64; names and strings carry decoded bytes.
type Token struct {
	Type    TokenType
	Keyword string
	Bytes   []byte
	Num     float64
	Int     int64
	IsInt   bool
	Offset  int64
}

// Scanner walks a fully loaded buffer. Documents are held in memory for the
// whole of an operation, so the scanner indexes directly instead of windowing
// a reader.
type Scanner struct {
	buf    []byte
	pos    int
	peeked *Token
}

func New(buf []byte) *Scanner { return &Scanner{buf: buf} }

// Pos reports the offset the next token will be read from.
func (s *Scanner) Pos() int64 {
	if s.peeked != nil {
		return s.peeked.Offset
	}
	return int64(s.pos)
}

// SeekTo repositions the scanner, discarding any peeked token.
func (s *Scanner) SeekTo(off int64) {
	s.peeked = nil
	if off < 0 {
		off = 0
	}
	if off > int64(len(s.buf)) {
		off = int64(len(s.buf))
	}
	s.pos = int(off)
}

// Len reports the total buffer size.
func (s *Scanner) Len() int64 { return int64(len(s.buf)) }

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() (Token, error) {
	if s.peeked == nil {
		tok, err := s.Next()
		if err != nil {
			return tok, err
		}
		s.peeked = &tok
	}
	return *s.peeked, nil
}

// Next consumes and returns the next token.
func (s *Scanner) Next() (Token, error) {
	if s.peeked != nil {
		tok := *s.peeked
		s.peeked = nil
		return tok, nil
	}
	s.skipSpaceAndComments()
	start := int64(s.pos)
	if s.pos >= len(s.buf) {
		return Token{Type: TokenEOF, Offset: start}, nil
	}
	c := s.buf[s.pos]
	switch {
	case c == '[':
		s.pos++
		return Token{Type: TokenArrayOpen, Offset: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayClose, Offset: start}, nil
	case c == '<':
		if s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '<' {
			s.pos += 2
			return Token{Type: TokenDictOpen, Offset: start}, nil
		}
		return s.scanHexString(start)
	case c == '>':
		if s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '>' {
			s.pos += 2
			return Token{Type: TokenDictClose, Offset: start}, nil
		}
		return Token{}, fmt.Errorf("scanner: stray '>' at offset %d", start)
	case c == '(':
		return s.scanLiteralString(start)
	case c == ')':
		return Token{}, fmt.Errorf("scanner: stray ')' at offset %d", start)
	case c == '/':
		return s.scanName(start)
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.scanNumber(start)
	case c == '{' || c == '}':
		// PostScript function braces; surfaced as keywords.
		s.pos++
		return Token{Type: TokenKeyword, Keyword: string(c), Offset: start}, nil
	default:
		return s.scanKeyword(start)
	}
}

// ReadN returns n raw bytes from the current position, consuming them. Used
// for stream payloads whose extent is known from a /Length entry.
func (s *Scanner) ReadN(n int) ([]byte, error) {
	s.peeked = nil
	if n < 0 || s.pos+n > len(s.buf) {
		return nil, fmt.Errorf("scanner: %d bytes requested at offset %d, only %d available", n, s.pos, len(s.buf)-s.pos)
	}
	out := s.buf[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// SkipStreamEOL consumes the single end-of-line marker that separates the
// "stream" keyword from stream data.
func (s *Scanner) SkipStreamEOL() {
	s.peeked = nil
	if s.pos < len(s.buf) && s.buf[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < len(s.buf) && s.buf[s.pos] == '\n' {
		s.pos++
	}
}

// Find locates pattern at or after the current position and returns its
// offset, or -1.
func (s *Scanner) Find(pattern []byte) int64 {
	i := bytes.Index(s.buf[s.pos:], pattern)
	if i < 0 {
		return -1
	}
	return int64(s.pos + i)
}

// ReadLine consumes bytes up to and including the next EOL, returning the
// line without its terminator. Cross-reference tables are line oriented.
func (s *Scanner) ReadLine() []byte {
	s.peeked = nil
	start := s.pos
	for s.pos < len(s.buf) && s.buf[s.pos] != '\r' && s.buf[s.pos] != '\n' {
		s.pos++
	}
	line := s.buf[start:s.pos]
	if s.pos < len(s.buf) && s.buf[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < len(s.buf) && s.buf[s.pos] == '\n' {
		s.pos++
	}
	return line
}

func isWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *Scanner) skipSpaceAndComments() {
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.buf) && s.buf[s.pos] != '\n' && s.buf[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) scanNumber(start int64) (Token, error) {
	begin := s.pos
	if s.buf[s.pos] == '+' || s.buf[s.pos] == '-' {
		s.pos++
	}
	digits, dot := 0, false
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		if c >= '0' && c <= '9' {
			digits++
			s.pos++
			continue
		}
		if c == '.' && !dot {
			dot = true
			s.pos++
			continue
		}
		break
	}
	lit := s.buf[begin:s.pos]
	if digits == 0 {
		return Token{}, fmt.Errorf("scanner: malformed number %q at offset %d", lit, start)
	}
	tok := Token{Type: TokenNumber, Offset: start}
	neg := lit[0] == '-'
	var intPart, frac int64
	fracScale := 1.0
	seenDot := false
	for _, c := range lit {
		switch {
		case c == '+' || c == '-':
		case c == '.':
			seenDot = true
		case seenDot:
			frac = frac*10 + int64(c-'0')
			fracScale *= 10
		default:
			intPart = intPart*10 + int64(c-'0')
		}
	}
	tok.Num = float64(intPart) + float64(frac)/fracScale
	if neg {
		tok.Num = -tok.Num
	}
	if !dot {
		tok.IsInt = true
		tok.Int = intPart
		if neg {
			tok.Int = -tok.Int
		}
	}
	return tok, nil
}

func (s *Scanner) scanName(start int64) (Token, error) {
	s.pos++ // consume '/'
	var out []byte
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < len(s.buf) {
			hi, okHi := hexVal(s.buf[s.pos+1])
			lo, okLo := hexVal(s.buf[s.pos+2])
			if okHi && okLo {
				out = append(out, hi<<4|lo)
				s.pos += 3
				continue
			}
		}
		out = append(out, c)
		s.pos++
	}
	return Token{Type: TokenName, Bytes: out, Offset: start}, nil
}

func (s *Scanner) scanKeyword(start int64) (Token, error) {
	begin := s.pos
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == begin {
		return Token{}, fmt.Errorf("scanner: unexpected byte 0x%02x at offset %d", s.buf[begin], start)
	}
	return Token{Type: TokenKeyword, Keyword: string(s.buf[begin:s.pos]), Offset: start}, nil
}

func (s *Scanner) scanLiteralString(start int64) (Token, error) {
	s.pos++ // consume '('
	var out []byte
	depth := 1
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: out, Offset: start}, nil
			}
			out = append(out, c)
		case '\\':
			if s.pos >= len(s.buf) {
				return Token{}, fmt.Errorf("scanner: unterminated string at offset %d", start)
			}
			e := s.buf[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// line continuation; swallow an optional LF
				if s.pos < len(s.buf) && s.buf[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.buf); i++ {
						d := s.buf[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v<<3 | int(d-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					// unknown escape: the backslash is dropped
					out = append(out, e)
				}
			}
		case '\r':
			// EOLs inside literals normalize to LF
			if s.pos < len(s.buf) && s.buf[s.pos] == '\n' {
				s.pos++
			}
			out = append(out, '\n')
		default:
			out = append(out, c)
		}
	}
	return Token{}, fmt.Errorf("scanner: unterminated string at offset %d", start)
}

func (s *Scanner) scanHexString(start int64) (Token, error) {
	s.pos++ // consume '<'
	var out []byte
	var nibble byte
	haveNibble := false
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		s.pos++
		if c == '>' {
			if haveNibble {
				out = append(out, nibble<<4)
			}
			return Token{Type: TokenString, Bytes: out, Offset: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return Token{}, fmt.Errorf("scanner: invalid hex digit %q at offset %d", c, s.pos-1)
		}
		if haveNibble {
			out = append(out, nibble<<4|v)
			haveNibble = false
		} else {
			nibble = v
			haveNibble = true
		}
	}
	return Token{}, fmt.Errorf("scanner: unterminated hex string at offset %d", start)
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
