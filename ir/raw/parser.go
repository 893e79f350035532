package raw

import (
	"bytes"
	"fmt"

	"github.com/fileskadis/fileskadis/scanner"
)

// ParseObject reads one object starting at the scanner's position. Stream
// extents are taken from a direct /Length when it checks out against the
// following endstream keyword, otherwise recovered by scanning for the
// keyword itself.
func ParseObject(s *scanner.Scanner) (Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return parseFromToken(s, tok)
}

// ParseIndirect reads a "N G obj ... endobj" body at offset and returns its
// reference and payload.
func ParseIndirect(s *scanner.Scanner, offset int64) (Ref, Object, error) {
	s.SeekTo(offset)
	num, err := s.Next()
	if err != nil {
		return Ref{}, nil, err
	}
	gen, err := s.Next()
	if err != nil {
		return Ref{}, nil, err
	}
	if !num.IsInt || !gen.IsInt {
		return Ref{}, nil, fmt.Errorf("raw: no object header at offset %d", offset)
	}
	kw, err := s.Next()
	if err != nil {
		return Ref{}, nil, err
	}
	if kw.Type != scanner.TokenKeyword || kw.Keyword != "obj" {
		return Ref{}, nil, fmt.Errorf("raw: expected obj keyword at offset %d", offset)
	}
	obj, err := ParseObject(s)
	if err != nil {
		return Ref{}, nil, err
	}
	// endobj is optional in damaged files; consume it when present.
	if tok, err := s.Peek(); err == nil && tok.Type == scanner.TokenKeyword && tok.Keyword == "endobj" {
		s.Next()
	}
	return Ref{Num: int(num.Int), Gen: int(gen.Int)}, obj, nil
}

func parseFromToken(s *scanner.Scanner, tok scanner.Token) (Object, error) {
	switch tok.Type {
	case scanner.TokenNumber:
		if !tok.IsInt {
			return Real(tok.Num), nil
		}
		return parseIntegerOrRef(s, tok)
	case scanner.TokenName:
		return Name(tok.Bytes), nil
	case scanner.TokenString:
		return String(tok.Bytes), nil
	case scanner.TokenArrayOpen:
		return parseArray(s)
	case scanner.TokenDictOpen:
		return parseDictOrStream(s)
	case scanner.TokenKeyword:
		switch tok.Keyword {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		}
		return nil, fmt.Errorf("raw: unexpected keyword %q at offset %d", tok.Keyword, tok.Offset)
	case scanner.TokenEOF:
		return nil, fmt.Errorf("raw: unexpected end of input at offset %d", tok.Offset)
	}
	return nil, fmt.Errorf("raw: unexpected token %v at offset %d", tok.Type, tok.Offset)
}

// parseIntegerOrRef disambiguates "N" from "N G R" with bounded lookahead,
// rewinding the scanner when the reference pattern does not complete.
func parseIntegerOrRef(s *scanner.Scanner, num scanner.Token) (Object, error) {
	second, err := s.Peek()
	if err != nil || second.Type != scanner.TokenNumber || !second.IsInt || second.Int < 0 {
		return Integer(num.Int), nil
	}
	s.Next()
	third, err := s.Peek()
	if err == nil && third.Type == scanner.TokenKeyword && third.Keyword == "R" {
		s.Next()
		return Ref{Num: int(num.Int), Gen: int(second.Int)}, nil
	}
	s.SeekTo(second.Offset)
	return Integer(num.Int), nil
}

func parseArray(s *scanner.Scanner) (Object, error) {
	arr := Array{}
	for {
		tok, err := s.Peek()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenArrayClose {
			s.Next()
			return arr, nil
		}
		if tok.Type == scanner.TokenEOF {
			return nil, fmt.Errorf("raw: unterminated array at offset %d", tok.Offset)
		}
		obj, err := ParseObject(s)
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

func parseDictOrStream(s *scanner.Scanner) (Object, error) {
	dict := Dict{}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenDictClose {
			break
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("raw: dict key must be a name, got %v at offset %d", tok.Type, tok.Offset)
		}
		val, err := ParseObject(s)
		if err != nil {
			return nil, err
		}
		dict[Name(tok.Bytes)] = val
	}
	next, err := s.Peek()
	if err != nil || next.Type != scanner.TokenKeyword || next.Keyword != "stream" {
		return dict, nil
	}
	s.Next()
	return parseStream(s, dict)
}

func parseStream(s *scanner.Scanner, dict Dict) (Object, error) {
	s.SkipStreamEOL()
	dataStart := s.Pos()

	if length, ok := dict["Length"].(Integer); ok && length >= 0 {
		if data, err := s.ReadN(int(length)); err == nil {
			if tok, err := s.Peek(); err == nil && tok.Type == scanner.TokenKeyword && tok.Keyword == "endstream" {
				s.Next()
				return &Stream{Dict: dict, Raw: data}, nil
			}
		}
	}

	// Length missing, indirect, or wrong: recover by locating endstream.
	s.SeekTo(dataStart)
	end := s.Find([]byte("endstream"))
	if end < 0 {
		return nil, fmt.Errorf("raw: unterminated stream at offset %d", dataStart)
	}
	data, err := s.ReadN(int(end - dataStart))
	if err != nil {
		return nil, err
	}
	data = trimStreamEOL(data)
	if tok, err := s.Next(); err != nil || tok.Keyword != "endstream" {
		return nil, fmt.Errorf("raw: expected endstream at offset %d", end)
	}
	return &Stream{Dict: dict, Raw: data}, nil
}

func trimStreamEOL(data []byte) []byte {
	if bytes.HasSuffix(data, []byte("\r\n")) {
		return data[:len(data)-2]
	}
	if len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		return data[:len(data)-1]
	}
	return data
}
