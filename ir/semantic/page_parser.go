package semantic

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/ir/raw"
)

// ErrNoPages is returned when the catalog has no usable page tree.
var ErrNoPages = errors.New("document has no page tree")

// maxTreeDepth bounds page tree recursion for malformed or hostile files.
const maxTreeDepth = 64

var letter = coords.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}

type inheritedPageProps struct {
	MediaBox  *coords.Rect
	CropBox   *coords.Rect
	Rotate    *int
	Resources *raw.DictObj
}

// BuildDocument flattens the page tree of doc into pages with inheritance resolved.
func BuildDocument(doc *raw.Document) (*Document, error) {
	if doc == nil || doc.Trailer == nil {
		return nil, ErrNoPages
	}
	catalog := doc.Dict(doc.Trailer.Lookup("Root"))
	if catalog == nil {
		return nil, ErrNoPages
	}
	out := &Document{Raw: doc, Info: parseInfo(doc)}
	root := catalog.Lookup("Pages")
	if doc.Dict(root) == nil {
		return nil, ErrNoPages
	}
	w := &treeWalker{doc: doc, visited: make(map[raw.ObjectRef]bool)}
	w.walk(root, raw.ObjectRef{}, inheritedPageProps{}, 0)
	for i, p := range w.pages {
		p.Index = i
	}
	out.Pages = w.pages
	return out, nil
}

type treeWalker struct {
	doc     *raw.Document
	visited map[raw.ObjectRef]bool
	pages   []*Page
}

func (w *treeWalker) walk(obj raw.Object, ref raw.ObjectRef, inherited inheritedPageProps, depth int) {
	if depth > maxTreeDepth {
		return
	}
	if r, ok := obj.(raw.RefObj); ok {
		if w.visited[r.R] {
			return
		}
		w.visited[r.R] = true
		ref = r.R
	}
	dict := w.doc.Dict(obj)
	if dict == nil {
		return
	}

	next := inherited
	if mb, ok := w.rect(dict.Lookup("MediaBox")); ok {
		next.MediaBox = &mb
	}
	if cb, ok := w.rect(dict.Lookup("CropBox")); ok {
		next.CropBox = &cb
	}
	if rot, ok := w.doc.Float(dict.Lookup("Rotate")); ok {
		r := normalizeRotation(rot)
		next.Rotate = &r
	}
	if res := w.doc.Dict(dict.Lookup("Resources")); res != nil {
		next.Resources = res
	}

	typ, _ := w.doc.Name(dict.Lookup("Type"))
	kids := w.doc.Array(dict.Lookup("Kids"))
	if typ == "Page" || (typ != "Pages" && kids == nil) {
		w.pages = append(w.pages, w.page(dict, ref, next))
		return
	}
	if kids == nil {
		return
	}
	for _, kid := range kids.Items {
		w.walk(kid, raw.ObjectRef{}, next, depth+1)
	}
}

func (w *treeWalker) page(dict *raw.DictObj, ref raw.ObjectRef, props inheritedPageProps) *Page {
	p := &Page{Ref: ref, Dict: dict, MediaBox: letter, UserUnit: 1}
	if props.MediaBox != nil && !props.MediaBox.IsEmpty() {
		p.MediaBox = *props.MediaBox
	}
	p.CropBox = p.MediaBox
	if props.CropBox != nil && !props.CropBox.IsEmpty() {
		p.CropBox = *props.CropBox
	}
	if props.Rotate != nil {
		p.Rotate = *props.Rotate
	}
	p.Resources = props.Resources
	if p.Resources == nil {
		p.Resources = raw.Dict()
	}
	if uu, ok := w.doc.Float(dict.Lookup("UserUnit")); ok && uu > 0 {
		p.UserUnit = uu
	}
	switch c := w.doc.Resolve(dict.Lookup("Contents")).(type) {
	case *raw.StreamObj:
		p.Contents = append(p.Contents, c)
	case *raw.ArrayObj:
		for _, item := range c.Items {
			if s := w.doc.Stream(item); s != nil {
				p.Contents = append(p.Contents, s)
			}
		}
	}
	return p
}

func (w *treeWalker) rect(obj raw.Object) (coords.Rect, bool) {
	if obj == nil {
		return coords.Rect{}, false
	}
	vals, ok := w.doc.Floats(obj)
	if !ok {
		return coords.Rect{}, false
	}
	return coords.RectFromArray(vals)
}

func parseInfo(doc *raw.Document) DocumentInfo {
	info := doc.Dict(doc.Trailer.Lookup("Info"))
	if info == nil {
		return DocumentInfo{}
	}
	return DocumentInfo{
		Title:    TextString(doc.Resolve(info.Lookup("Title"))),
		Author:   TextString(doc.Resolve(info.Lookup("Author"))),
		Producer: TextString(doc.Resolve(info.Lookup("Producer"))),
		Creator:  TextString(doc.Resolve(info.Lookup("Creator"))),
	}
}

// TextString decodes a PDF text string: UTF-16BE with a byte order mark, otherwise PDFDocEncoding,
// approximated here by Latin-1.
func TextString(obj raw.Object) string {
	s, ok := obj.(raw.String)
	if !ok {
		return ""
	}
	b := s.Value()
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// String renders a short description, used in logs.
func (p *Page) String() string {
	return fmt.Sprintf("page %d (%gx%g rot %d)", p.Index, p.Width(), p.Height(), p.Rotate)
}
