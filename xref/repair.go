package xref

import (
	"bytes"
	"fmt"

	"github.com/fileskadis/fileskadis/ir/raw"
	"github.com/fileskadis/fileskadis/scanner"
)

// Repair rebuilds a table by scanning the whole file for object headers.
// It is the fallback for damaged tables and for files using cross-reference
// streams, which this resolver does not read directly. The returned trailer
// holds whatever trailer dictionary appears last in the file; it may lack a
// Root entry, which the parser then recovers by inspecting the objects.
func Repair(buf []byte) (*Table, error) {
	table := &Table{Offsets: make(map[raw.Ref]int64)}
	pos := 0
	for {
		i := bytes.Index(buf[pos:], []byte("obj"))
		if i < 0 {
			break
		}
		at := pos + i
		pos = at + 3
		// "obj" must be a standalone keyword.
		if at+3 < len(buf) && !isBoundary(buf[at+3]) {
			continue
		}
		if ref, start, ok := headerBefore(buf, at); ok {
			// Later definitions shadow earlier ones: incremental updates
			// append replacements at higher offsets.
			table.Offsets[ref] = start
		}
	}
	if len(table.Offsets) == 0 {
		return nil, fmt.Errorf("xref: repair found no objects")
	}
	table.Trailer = lastTrailer(buf)
	return table, nil
}

func isBoundary(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ', '<', '[', '(', '/', '%':
		return true
	}
	return false
}

// headerBefore backtracks from the "obj" keyword over "<num> <gen> ".
func headerBefore(buf []byte, objAt int) (raw.Ref, int64, bool) {
	i := objAt - 1
	skip := func() bool {
		any := false
		for i >= 0 && (buf[i] == ' ' || buf[i] == '\t' || buf[i] == '\r' || buf[i] == '\n') {
			i--
			any = true
		}
		return any
	}
	digits := func() (int, bool) {
		end := i
		for i >= 0 && buf[i] >= '0' && buf[i] <= '9' {
			i--
		}
		if i == end {
			return 0, false
		}
		n := 0
		for _, c := range buf[i+1 : end+1] {
			n = n*10 + int(c-'0')
			if n > 1<<30 {
				return 0, false
			}
		}
		return n, true
	}
	if !skip() {
		return raw.Ref{}, 0, false
	}
	gen, ok := digits()
	if !ok {
		return raw.Ref{}, 0, false
	}
	if !skip() {
		return raw.Ref{}, 0, false
	}
	num, ok := digits()
	if !ok {
		return raw.Ref{}, 0, false
	}
	if i >= 0 && !isHeaderBoundary(buf[i]) {
		return raw.Ref{}, 0, false
	}
	return raw.Ref{Num: num, Gen: gen}, int64(i + 1), true
}

func isHeaderBoundary(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ', '>', ']', ')':
		return true
	}
	return false
}

func lastTrailer(buf []byte) raw.Dict {
	pos, last := 0, -1
	for {
		i := bytes.Index(buf[pos:], []byte("trailer"))
		if i < 0 {
			break
		}
		last = pos + i
		pos = last + len("trailer")
	}
	if last < 0 {
		return nil
	}
	s := scanner.New(buf)
	s.SeekTo(int64(last + len("trailer")))
	obj, err := raw.ParseObject(s)
	if err != nil {
		return nil
	}
	if dict, ok := obj.(raw.Dict); ok {
		return dict
	}
	return nil
}
