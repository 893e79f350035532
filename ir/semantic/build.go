package semantic

import (
	"context"
	"fmt"

	"github.com/fileskadis/fileskadis/ir/decoded"
	"github.com/fileskadis/fileskadis/ir/raw"
	"github.com/fileskadis/fileskadis/observability"
)

// Letter-sized default when no MediaBox is declared anywhere in the tree.
var defaultMediaBox = Rectangle{URX: 612, URY: 792}

const maxTreeDepth = 64

// Build interprets the decoded object graph as a page list. Page tree
// attributes (MediaBox, Rotate, Resources) inherit down the tree per the
// file format.
func Build(ctx context.Context, dec *decoded.Document, logger observability.Logger) (*Document, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	rawDoc := dec.Raw
	root := rawDoc.GetDict(rawDoc.Trailer, "Root")
	if root == nil {
		return nil, fmt.Errorf("semantic: catalog is not a dictionary")
	}
	pages := rawDoc.GetDict(root, "Pages")
	if pages == nil {
		return nil, fmt.Errorf("semantic: catalog has no page tree")
	}

	doc := &Document{Version: rawDoc.Version}
	b := &treeWalker{dec: dec, raw: rawDoc, logger: logger, visited: make(map[raw.Ref]bool)}
	if err := b.walk(ctx, doc, pages, inherited{}, 0); err != nil {
		return nil, err
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("semantic: document has no pages")
	}
	logger.Debug("built semantic document", observability.Int("pages", len(doc.Pages)))
	return doc, nil
}

type inherited struct {
	mediaBox  *Rectangle
	rotate    *int
	resources raw.Dict
}

type treeWalker struct {
	dec     *decoded.Document
	raw     *raw.Document
	logger  observability.Logger
	visited map[raw.Ref]bool
}

func (w *treeWalker) walk(ctx context.Context, doc *Document, node raw.Dict, inh inherited, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > maxTreeDepth {
		return fmt.Errorf("semantic: page tree deeper than %d levels", maxTreeDepth)
	}

	if box, ok := RectFromArray(w.raw, w.raw.GetArray(node, "MediaBox")); ok {
		inh.mediaBox = &box
	}
	if r, ok := w.raw.GetInt(node, "Rotate"); ok {
		rot := normalizeRotation(int(r))
		inh.rotate = &rot
	}
	if res := w.raw.GetDict(node, "Resources"); res != nil {
		inh.resources = res
	}

	typ, _ := w.raw.GetName(node, "Type")
	if typ == "Page" {
		page, err := w.buildPage(node, inh, len(doc.Pages))
		if err != nil {
			return err
		}
		doc.Pages = append(doc.Pages, page)
		return nil
	}

	for _, kid := range w.raw.GetArray(node, "Kids") {
		if ref, ok := kid.(raw.Ref); ok {
			if w.visited[ref] {
				continue
			}
			w.visited[ref] = true
		}
		kidDict, ok := w.raw.Resolve(kid).(raw.Dict)
		if !ok {
			w.logger.Warn("skipping malformed page tree node")
			continue
		}
		if err := w.walk(ctx, doc, kidDict, inh, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *treeWalker) buildPage(node raw.Dict, inh inherited, index int) (*Page, error) {
	page := &Page{
		Index:        index,
		MediaBox:     defaultMediaBox,
		Origin:       w.raw,
		RawResources: inh.resources,
	}
	if inh.mediaBox != nil {
		page.MediaBox = inh.mediaBox.Normalize()
	}
	if inh.rotate != nil {
		page.Rotate = *inh.rotate
	}
	contents, err := w.buildContents(node, index)
	if err != nil {
		return nil, err
	}
	page.Contents = contents
	page.Resources = w.buildResources(inh.resources)
	return page, nil
}

// buildContents collects the page's decoded content streams. A stream the
// filter pipeline could not fully decode fails the build: silently dropping
// it would emit a visually emptied page while reporting success.
func (w *treeWalker) buildContents(node raw.Dict, pageIndex int) ([]*ContentStream, error) {
	var streams []*ContentStream
	for _, item := range w.raw.GetArray(node, "Contents") {
		ref, ok := item.(raw.Ref)
		if !ok {
			continue
		}
		sd := w.dec.Stream(ref)
		if sd == nil {
			w.logger.Warn("page content stream missing", observability.Int("num", ref.Num))
			continue
		}
		if len(sd.Remaining) > 0 {
			return nil, fmt.Errorf("semantic: page %d content stream %d uses unsupported filters %v",
				pageIndex, ref.Num, sd.Remaining)
		}
		streams = append(streams, &ContentStream{Raw: sd.Data})
	}
	return streams, nil
}

func (w *treeWalker) buildResources(res raw.Dict) *Resources {
	out := &Resources{
		XObjects: make(map[string]*XObject),
		Fonts:    make(map[string]*Font),
	}
	if res == nil {
		return out
	}
	for name, obj := range w.raw.GetDict(res, "XObject") {
		xo := w.buildXObject(string(name), obj)
		if xo != nil {
			out.XObjects[string(name)] = xo
		}
	}
	for name, obj := range w.raw.GetDict(res, "Font") {
		ref, _ := obj.(raw.Ref)
		fontDict, ok := w.raw.Resolve(obj).(raw.Dict)
		if !ok {
			continue
		}
		font := &Font{Name: string(name), Ref: ref}
		font.Subtype, _ = w.raw.GetName(fontDict, "Subtype")
		font.BaseFont, _ = w.raw.GetName(fontDict, "BaseFont")
		if tu, ok := fontDict["ToUnicode"].(raw.Ref); ok {
			if sd := w.dec.Stream(tu); sd != nil && len(sd.Remaining) == 0 {
				font.ToUnicode = sd.Data
			}
		}
		out.Fonts[string(name)] = font
	}
	return out
}

func (w *treeWalker) buildXObject(name string, obj raw.Object) *XObject {
	ref, _ := obj.(raw.Ref)
	st, ok := w.raw.Resolve(obj).(*raw.Stream)
	if !ok {
		return nil
	}
	xo := &XObject{Name: name, Ref: ref, Dict: st.Dict}
	xo.Subtype, _ = w.raw.GetName(st.Dict, "Subtype")
	if v, ok := w.raw.GetInt(st.Dict, "Width"); ok {
		xo.Width = int(v)
	}
	if v, ok := w.raw.GetInt(st.Dict, "Height"); ok {
		xo.Height = int(v)
	}
	if v, ok := w.raw.GetInt(st.Dict, "BitsPerComponent"); ok {
		xo.BitsPerComponent = int(v)
	}
	xo.ColorSpace = w.colorSpaceName(st.Dict)
	if sd := w.dec.Stream(ref); sd != nil {
		xo.Data = sd.Data
		xo.Filters = sd.Remaining
	} else {
		xo.Data = st.Raw
		xo.Filters = w.raw.FilterNames(st.Dict)
	}
	if smObj, ok := st.Dict["SMask"]; ok {
		if _, isNull := w.raw.Resolve(smObj).(raw.Null); !isNull {
			xo.SMask = w.buildXObject("", smObj)
		}
	}
	return xo
}

func (w *treeWalker) colorSpaceName(dict raw.Dict) string {
	switch v := w.raw.Get(dict, "ColorSpace").(type) {
	case raw.Name:
		return string(v)
	case raw.Array:
		if len(v) > 0 {
			if n, ok := w.raw.Resolve(v[0]).(raw.Name); ok {
				return string(n)
			}
		}
	}
	return ""
}

// RectFromArray reads a [llx lly urx ury] array.
func RectFromArray(doc *raw.Document, arr raw.Array) (Rectangle, bool) {
	if len(arr) != 4 {
		return Rectangle{}, false
	}
	var v [4]float64
	for i, obj := range arr {
		n, ok := raw.AsNumber(doc.Resolve(obj))
		if !ok {
			return Rectangle{}, false
		}
		v[i] = n
	}
	return Rectangle{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}.Normalize(), true
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	// Rotation is constrained to quarter turns.
	return r - r%90
}
