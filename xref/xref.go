// Package xref locates indirect objects: it resolves classic cross-reference
// tables, follows incremental-update chains, and falls back to a full-file
// repair scan when the tables are missing or damaged.
package xref

import (
	"fmt"

	"github.com/fileskadis/fileskadis/ir/raw"
	"github.com/fileskadis/fileskadis/scanner"
)

// Table maps each in-use object to its byte offset, together with the merged
// trailer of the update chain.
type Table struct {
	Offsets map[raw.Ref]int64
	Trailer raw.Dict
}

const tailWindow = 2048

// Parse reads the cross-reference chain anchored at the trailing startxref.
func Parse(buf []byte) (*Table, error) {
	start, err := findStartXref(buf)
	if err != nil {
		return nil, err
	}
	table := &Table{Offsets: make(map[raw.Ref]int64), Trailer: raw.Dict{}}
	seen := make(map[int64]bool)
	for {
		if start < 0 || start >= int64(len(buf)) {
			return nil, fmt.Errorf("xref: table offset %d out of range", start)
		}
		if seen[start] {
			return nil, fmt.Errorf("xref: update chain loops at offset %d", start)
		}
		seen[start] = true
		trailer, err := parseSection(buf, start, table)
		if err != nil {
			return nil, err
		}
		// Newest trailer in the chain wins; older entries only fill gaps.
		for k, v := range trailer {
			if _, ok := table.Trailer[k]; !ok {
				table.Trailer[k] = v
			}
		}
		prev, ok := trailer["Prev"].(raw.Integer)
		if !ok {
			break
		}
		start = int64(prev)
	}
	if _, ok := table.Trailer["Root"]; !ok {
		return nil, fmt.Errorf("xref: trailer has no document root")
	}
	return table, nil
}

func findStartXref(buf []byte) (int64, error) {
	from := 0
	if len(buf) > tailWindow {
		from = len(buf) - tailWindow
	}
	s := scanner.New(buf)
	s.SeekTo(int64(from))
	last := int64(-1)
	for {
		off := s.Find([]byte("startxref"))
		if off < 0 {
			break
		}
		last = off
		s.SeekTo(off + int64(len("startxref")))
	}
	if last < 0 {
		return 0, fmt.Errorf("xref: startxref not found")
	}
	s.SeekTo(last + int64(len("startxref")))
	tok, err := s.Next()
	if err != nil || !tok.IsInt {
		return 0, fmt.Errorf("xref: malformed startxref offset")
	}
	return tok.Int, nil
}

// parseSection reads one xref table plus its trailer, adding offsets for
// objects not already present (newer updates shadow older ones).
func parseSection(buf []byte, offset int64, table *Table) (raw.Dict, error) {
	s := scanner.New(buf)
	s.SeekTo(offset)
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenKeyword || tok.Keyword != "xref" {
		return nil, fmt.Errorf("xref: no table at offset %d (cross-reference streams need repair mode)", offset)
	}
	for {
		tok, err := s.Peek()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Keyword == "trailer" {
			s.Next()
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("xref: malformed subsection header at offset %d", tok.Offset)
		}
		s.Next()
		first := tok.Int
		countTok, err := s.Next()
		if err != nil || !countTok.IsInt {
			return nil, fmt.Errorf("xref: malformed subsection count at offset %d", tok.Offset)
		}
		for i := int64(0); i < countTok.Int; i++ {
			offTok, err := s.Next()
			if err != nil || !offTok.IsInt {
				return nil, fmt.Errorf("xref: malformed entry offset in subsection %d", first)
			}
			genTok, err := s.Next()
			if err != nil || !genTok.IsInt {
				return nil, fmt.Errorf("xref: malformed entry generation in subsection %d", first)
			}
			kindTok, err := s.Next()
			if err != nil || kindTok.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("xref: malformed entry type in subsection %d", first)
			}
			if kindTok.Keyword != "n" {
				continue
			}
			ref := raw.Ref{Num: int(first + i), Gen: int(genTok.Int)}
			if _, ok := table.Offsets[ref]; !ok {
				table.Offsets[ref] = offTok.Int
			}
		}
	}
	obj, err := raw.ParseObject(s)
	if err != nil {
		return nil, fmt.Errorf("xref: trailer at offset %d: %w", offset, err)
	}
	trailer, ok := obj.(raw.Dict)
	if !ok {
		return nil, fmt.Errorf("xref: trailer at offset %d is not a dictionary", offset)
	}
	return trailer, nil
}
