// Package parser loads a PDF file into its raw object graph. It resolves the
// cross-reference chain, falls back to a repair scan on damaged files, and
// expands compressed object streams.
package parser

import (
	"context"
	"fmt"

	"github.com/fileskadis/fileskadis/filters"
	"github.com/fileskadis/fileskadis/ir/raw"
	"github.com/fileskadis/fileskadis/observability"
	"github.com/fileskadis/fileskadis/scanner"
	"github.com/fileskadis/fileskadis/xref"
)

type DocumentParser struct {
	logger  observability.Logger
	filters *filters.Pipeline
}

func New(logger observability.Logger) *DocumentParser {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &DocumentParser{logger: logger, filters: filters.Default()}
}

// Parse loads every reachable indirect object. Objects that fail to parse
// are skipped; readers are expected to salvage what they can.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("parser: empty input")
	}
	doc := &raw.Document{
		Version: parseVersion(data),
		Objects: make(map[raw.Ref]raw.Object),
	}

	table, err := xref.Parse(data)
	if err != nil {
		p.logger.Warn("cross-reference parse failed, repairing", observability.Error("err", err))
		table, err = xref.Repair(data)
		if err != nil {
			return nil, fmt.Errorf("parser: %w", err)
		}
	}

	n := 0
	for ref, offset := range table.Offsets {
		if n++; n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		s := scanner.New(data)
		parsedRef, obj, err := raw.ParseIndirect(s, offset)
		if err != nil {
			p.logger.Warn("skipping unreadable object",
				observability.Int("num", ref.Num), observability.Error("err", err))
			continue
		}
		doc.Objects[parsedRef] = obj
	}

	doc.Trailer = table.Trailer
	if doc.Trailer == nil {
		doc.Trailer = raw.Dict{}
	}

	if err := p.expandObjectStreams(ctx, doc); err != nil {
		return nil, err
	}

	if _, ok := doc.Trailer["Root"]; !ok {
		ref, ok := findCatalog(doc)
		if !ok {
			return nil, fmt.Errorf("parser: document has no catalog")
		}
		p.logger.Warn("trailer missing root, recovered catalog",
			observability.Int("num", ref.Num))
		doc.Trailer["Root"] = ref
	}

	p.logger.Debug("parsed document",
		observability.String("version", doc.Version),
		observability.Int("objects", len(doc.Objects)))
	return doc, nil
}

func parseVersion(data []byte) string {
	// Header: %PDF-M.m within the first kilobyte.
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	for i := 0; i+8 <= limit; i++ {
		if string(data[i:i+5]) == "%PDF-" {
			return string(data[i+5 : i+8])
		}
	}
	return "1.7"
}

// expandObjectStreams unpacks /Type /ObjStm containers so that documents
// using cross-reference streams still yield their compressed objects after a
// repair scan.
func (p *DocumentParser) expandObjectStreams(ctx context.Context, doc *raw.Document) error {
	type container struct {
		ref raw.Ref
		st  *raw.Stream
	}
	var found []container
	for ref, obj := range doc.Objects {
		if st, ok := obj.(*raw.Stream); ok {
			if typ, _ := doc.GetName(st.Dict, "Type"); typ == "ObjStm" {
				found = append(found, container{ref, st})
			}
		}
	}
	for _, c := range found {
		ref, st := c.ref, c.st
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.expandObjectStream(doc, st); err != nil {
			p.logger.Warn("skipping unreadable object stream",
				observability.Int("num", ref.Num), observability.Error("err", err))
		}
	}
	return nil
}

func (p *DocumentParser) expandObjectStream(doc *raw.Document, st *raw.Stream) error {
	count, ok := doc.GetInt(st.Dict, "N")
	if !ok || count <= 0 {
		return fmt.Errorf("object stream without N")
	}
	first, ok := doc.GetInt(st.Dict, "First")
	if !ok {
		return fmt.Errorf("object stream without First")
	}
	decoded, remaining, err := p.filters.Decode(st.Raw, doc.FilterNames(st.Dict), parmsFor(doc, st.Dict))
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return fmt.Errorf("unsupported filters %v", remaining)
	}
	header := scanner.New(decoded)
	type slot struct {
		num int
		off int64
	}
	slots := make([]slot, 0, count)
	for i := int64(0); i < count; i++ {
		numTok, err := header.Next()
		if err != nil || !numTok.IsInt {
			return fmt.Errorf("malformed object stream header")
		}
		offTok, err := header.Next()
		if err != nil || !offTok.IsInt {
			return fmt.Errorf("malformed object stream header")
		}
		slots = append(slots, slot{num: int(numTok.Int), off: offTok.Int})
	}
	for _, sl := range slots {
		ref := raw.Ref{Num: sl.num, Gen: 0}
		if _, exists := doc.Objects[ref]; exists {
			// An uncompressed definition found by the scan wins; it is the
			// newer revision in incrementally updated files.
			continue
		}
		body := scanner.New(decoded)
		body.SeekTo(first + sl.off)
		obj, err := raw.ParseObject(body)
		if err != nil {
			p.logger.Warn("skipping unreadable compressed object",
				observability.Int("num", sl.num), observability.Error("err", err))
			continue
		}
		doc.Objects[ref] = obj
	}
	return nil
}

// parmsFor converts DecodeParms entries for each filter stage.
func parmsFor(doc *raw.Document, dict raw.Dict) []filters.Parms {
	names := doc.FilterNames(dict)
	if names == nil {
		return nil
	}
	out := make([]filters.Parms, len(names))
	for i := range names {
		out[i] = ParmsFromDict(doc, doc.DecodeParms(dict, i))
	}
	return out
}

// ParmsFromDict reads the codec parameters a decode stage consumes.
func ParmsFromDict(doc *raw.Document, parms raw.Dict) filters.Parms {
	p := filters.DefaultParms()
	if parms == nil {
		return p
	}
	if v, ok := doc.GetInt(parms, "Predictor"); ok {
		p.Predictor = int(v)
	}
	if v, ok := doc.GetInt(parms, "Colors"); ok {
		p.Colors = int(v)
	}
	if v, ok := doc.GetInt(parms, "BitsPerComponent"); ok {
		p.BitsPerComponent = int(v)
	}
	if v, ok := doc.GetInt(parms, "Columns"); ok {
		p.Columns = int(v)
	}
	if v, ok := doc.GetInt(parms, "EarlyChange"); ok {
		p.EarlyChange = int(v)
	}
	return p
}

func findCatalog(doc *raw.Document) (raw.Ref, bool) {
	for ref, obj := range doc.Objects {
		if dict, ok := obj.(raw.Dict); ok {
			if typ, _ := doc.GetName(dict, "Type"); typ == "Catalog" {
				return ref, true
			}
		}
	}
	return raw.Ref{}, false
}
