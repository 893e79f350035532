package writer

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"sort"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/filters"
	"github.com/fileskadis/fileskadis/ir/raw"
	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/observability"
)

// originRef identifies an object in a specific source graph; merged outputs
// can draw pages from several source documents at once.
type originRef struct {
	origin *raw.Document
	ref    raw.Ref
}

type serializer struct {
	cfg    Config
	logger observability.Logger

	objects      map[int]raw.Object
	next         int
	memos        map[*raw.Document]map[raw.Ref]int
	replacements map[originRef]*semantic.XObject
}

func newSerializer(cfg Config, logger observability.Logger) *serializer {
	return &serializer{
		cfg:          cfg,
		logger:       logger,
		objects:      make(map[int]raw.Object),
		next:         1,
		memos:        make(map[*raw.Document]map[raw.Ref]int),
		replacements: make(map[originRef]*semantic.XObject),
	}
}

func (s *serializer) alloc() int {
	n := s.next
	s.next++
	return n
}

func (s *serializer) run(ctx context.Context, doc *semantic.Document) ([]byte, error) {
	if doc == nil || len(doc.Pages) == 0 {
		return nil, fmt.Errorf("writer: document has no pages")
	}
	s.collectReplacements(doc)

	catalogNum := s.alloc()
	pagesNum := s.alloc()

	kids := raw.Array{}
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageNum, err := s.addPage(page, pagesNum)
		if err != nil {
			return nil, err
		}
		kids = append(kids, raw.Ref{Num: pageNum})
	}

	s.objects[catalogNum] = raw.Dict{
		"Type":  raw.Name("Catalog"),
		"Pages": raw.Ref{Num: pagesNum},
	}
	s.objects[pagesNum] = raw.Dict{
		"Type":  raw.Name("Pages"),
		"Kids":  kids,
		"Count": raw.Integer(len(kids)),
	}

	return s.emit(catalogNum)
}

// collectReplacements records every redaction-rewritten image so graph
// copying swaps them in wherever their original reference appears.
func (s *serializer) collectReplacements(doc *semantic.Document) {
	for _, page := range doc.Pages {
		if page.Origin == nil || page.Resources == nil {
			continue
		}
		for _, xo := range page.Resources.XObjects {
			if xo.Replaced && xo.Ref != (raw.Ref{}) {
				s.replacements[originRef{page.Origin, xo.Ref}] = xo
			}
		}
	}
}

func (s *serializer) addPage(page *semantic.Page, parentNum int) (int, error) {
	pageNum := s.alloc()

	contents := raw.Array{}
	for _, cs := range page.Contents {
		data := cs.Raw
		if cs.Dirty || cs.Raw == nil {
			data = contentstream.Serialize(cs.Operations)
		}
		stNum, err := s.addStream(data, raw.Dict{})
		if err != nil {
			return 0, err
		}
		contents = append(contents, raw.Ref{Num: stNum})
	}

	resources, err := s.pageResources(page)
	if err != nil {
		return 0, err
	}

	dict := raw.Dict{
		"Type":     raw.Name("Page"),
		"Parent":   raw.Ref{Num: parentNum},
		"MediaBox": rectArray(page.MediaBox),
	}
	if page.Rotate != 0 {
		dict["Rotate"] = raw.Integer(page.Rotate)
	}
	if len(contents) == 1 {
		dict["Contents"] = contents[0]
	} else if len(contents) > 1 {
		dict["Contents"] = contents
	}
	if resources != nil {
		dict["Resources"] = resources
	}
	s.objects[pageNum] = dict
	return pageNum, nil
}

// pageResources copies a parsed page's resource dictionary through, or
// builds one from scratch for assembled pages.
func (s *serializer) pageResources(page *semantic.Page) (raw.Object, error) {
	if page.Origin != nil && page.RawResources != nil {
		return s.copyObject(page.Origin, page.RawResources), nil
	}
	if page.Resources == nil {
		return nil, nil
	}
	res := raw.Dict{}
	if len(page.Resources.XObjects) > 0 {
		xobjs := raw.Dict{}
		for _, name := range sortedKeys(page.Resources.XObjects) {
			num, err := s.addImage(page.Resources.XObjects[name])
			if err != nil {
				return nil, err
			}
			xobjs[raw.Name(name)] = raw.Ref{Num: num}
		}
		res["XObject"] = xobjs
	}
	if len(page.Resources.Fonts) > 0 {
		fonts := raw.Dict{}
		for _, name := range sortedKeys(page.Resources.Fonts) {
			font := page.Resources.Fonts[name]
			fontNum := s.alloc()
			s.objects[fontNum] = raw.Dict{
				"Type":     raw.Name("Font"),
				"Subtype":  raw.Name(font.Subtype),
				"BaseFont": raw.Name(font.BaseFont),
				"Encoding": raw.Name("WinAnsiEncoding"),
			}
			fonts[raw.Name(name)] = raw.Ref{Num: fontNum}
		}
		res["Font"] = fonts
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res, nil
}

// copyObject deep-copies an object graph from a source document, assigning
// fresh numbers to every reference target. Traversal visits dictionary keys
// in sorted order so numbering is deterministic.
func (s *serializer) copyObject(origin *raw.Document, obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.Ref:
		memo := s.memos[origin]
		if memo == nil {
			memo = make(map[raw.Ref]int)
			s.memos[origin] = memo
		}
		if n, ok := memo[v]; ok {
			return raw.Ref{Num: n}
		}
		if xo, ok := s.replacements[originRef{origin, v}]; ok {
			n := s.alloc()
			memo[v] = n
			if err := s.putImage(n, xo); err != nil {
				s.logger.Warn("dropping unwritable image", observability.Error("err", err))
				s.objects[n] = raw.Null{}
			}
			return raw.Ref{Num: n}
		}
		target, ok := origin.Objects[v]
		if !ok {
			return raw.Null{}
		}
		n := s.alloc()
		memo[v] = n
		s.objects[n] = s.copyObject(origin, target)
		return raw.Ref{Num: n}
	case raw.Dict:
		out := raw.Dict{}
		for _, key := range sortedNames(v) {
			out[key] = s.copyObject(origin, v[key])
		}
		return out
	case raw.Array:
		out := make(raw.Array, len(v))
		for i, item := range v {
			out[i] = s.copyObject(origin, item)
		}
		return out
	case *raw.Stream:
		dict := raw.Dict{}
		for _, key := range sortedNames(v.Dict) {
			if key == "Length" {
				continue
			}
			dict[key] = s.copyObject(origin, v.Dict[key])
		}
		dict["Length"] = raw.Integer(len(v.Raw))
		return &raw.Stream{Dict: dict, Raw: v.Raw}
	default:
		return v
	}
}

// addImage allocates and serializes a semantic image XObject.
func (s *serializer) addImage(xo *semantic.XObject) (int, error) {
	n := s.alloc()
	if err := s.putImage(n, xo); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *serializer) putImage(num int, xo *semantic.XObject) error {
	dict := raw.Dict{
		"Type":             raw.Name("XObject"),
		"Subtype":          raw.Name("Image"),
		"Width":            raw.Integer(xo.Width),
		"Height":           raw.Integer(xo.Height),
		"BitsPerComponent": raw.Integer(xo.BitsPerComponent),
		"ColorSpace":       raw.Name(xo.ColorSpace),
	}
	if len(xo.Filters) > 0 {
		return fmt.Errorf("writer: image %s still carries filters %v", xo.Name, xo.Filters)
	}
	if xo.SMask != nil {
		smNum, err := s.addImage(xo.SMask)
		if err != nil {
			return err
		}
		dict["SMask"] = raw.Ref{Num: smNum}
	}
	data := xo.Data
	if s.cfg.Compression > 0 {
		compressed, err := filters.FlateEncode(data, s.cfg.Compression)
		if err != nil {
			return err
		}
		data = compressed
		dict["Filter"] = raw.Name("FlateDecode")
	}
	dict["Length"] = raw.Integer(len(data))
	s.objects[num] = &raw.Stream{Dict: dict, Raw: data}
	return nil
}

// addStream allocates a stream object, compressing per config.
func (s *serializer) addStream(data []byte, dict raw.Dict) (int, error) {
	n := s.alloc()
	if s.cfg.Compression > 0 {
		compressed, err := filters.FlateEncode(data, s.cfg.Compression)
		if err != nil {
			return 0, err
		}
		data = compressed
		dict["Filter"] = raw.Name("FlateDecode")
	}
	dict["Length"] = raw.Integer(len(data))
	s.objects[n] = &raw.Stream{Dict: dict, Raw: data}
	return n, nil
}

// emit lays out the final file: header, bodies in numeric order, table,
// trailer with a content-derived identifier.
func (s *serializer) emit(catalogNum int) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", s.cfg.Version)
	buf.WriteString("%\xe2\xe3\xcf\xd3\n")

	count := s.next - 1
	offsets := make([]int64, count+1)
	for num := 1; num <= count; num++ {
		obj, ok := s.objects[num]
		if !ok {
			obj = raw.Null{}
		}
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n", num)
		writeObject(&buf, obj)
		buf.WriteString("\nendobj\n")
	}

	id := md5.Sum(buf.Bytes())

	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", count+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= count; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	trailer := raw.Dict{
		"Size": raw.Integer(count + 1),
		"Root": raw.Ref{Num: catalogNum},
		"ID":   raw.Array{raw.String(id[:]), raw.String(id[:])},
	}
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	s.logger.Debug("serialized document",
		observability.Int("objects", count),
		observability.Int64("bytes", int64(buf.Len())))
	return buf.Bytes(), nil
}

// writeObject renders one object body. Strings use hex form, which is
// binary-safe and reproducible.
func writeObject(buf *bytes.Buffer, obj raw.Object) {
	switch v := obj.(type) {
	case raw.Null, nil:
		buf.WriteString("null")
	case raw.Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.Integer:
		fmt.Fprintf(buf, "%d", int64(v))
	case raw.Real:
		buf.WriteString(contentstream.FormatNumber(float64(v)))
	case raw.Name:
		buf.WriteByte('/')
		writeName(buf, string(v))
	case raw.String:
		buf.WriteByte('<')
		for _, c := range v {
			fmt.Fprintf(buf, "%02X", c)
		}
		buf.WriteByte('>')
	case raw.Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case raw.Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case raw.Dict:
		writeDict(buf, v)
	case *raw.Stream:
		writeDict(buf, v.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Raw)
		buf.WriteString("\nendstream")
	}
}

func writeDict(buf *bytes.Buffer, dict raw.Dict) {
	buf.WriteString("<<")
	for _, key := range sortedNames(dict) {
		buf.WriteString(" /")
		writeName(buf, string(key))
		buf.WriteByte(' ')
		writeObject(buf, dict[key])
	}
	buf.WriteString(" >>")
}

func writeName(buf *bytes.Buffer, name string) {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || c == '#' || c == '/' || c == '(' || c == ')' ||
			c == '<' || c == '>' || c == '[' || c == ']' || c == '{' || c == '}' || c == '%' {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

func rectArray(r semantic.Rectangle) raw.Array {
	return raw.Array{
		raw.Real(r.LLX), raw.Real(r.LLY), raw.Real(r.URX), raw.Real(r.URY),
	}
}

func sortedNames(dict raw.Dict) []raw.Name {
	keys := make([]raw.Name, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
