package fonts

import (
	"context"
	"sync"

	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/ir/raw"
)

// Fallback vertical metrics for fonts with neither a descriptor nor Core14 data.
const (
	defaultAscent  = 800
	defaultDescent = -200
)

// Glyph is one decoded character code of a shown string.
type Glyph struct {
	Code  uint32
	Text  string
	Width float64 // horizontal advance in 1/1000 of text space
	Space bool    // single-byte code 32, which receives word spacing
}

// Font is the read-side view of a PDF font dictionary: enough to turn shown
// strings into text and advances.
type Font struct {
	BaseFont string
	Subtype  string

	composite    bool
	encoding     *CMap
	toUnicode    *CMap
	simpleEnc    [256]rune
	glyphNames   map[byte]string
	widths       map[uint32]float64
	defaultWidth float64
	scale        float64
	ascent       float64
	descent      float64
}

// Ascent returns the ascent in 1/1000 of text space.
func (f *Font) Ascent() float64 { return f.ascent * f.scale }

// Descent returns the (negative) descent in 1/1000 of text space.
func (f *Font) Descent() float64 { return f.descent * f.scale }

// Decode splits a shown string into glyphs.
func (f *Font) Decode(b []byte) []Glyph {
	var out []Glyph
	for i := 0; i < len(b); {
		var code uint32
		n := 1
		if f.composite {
			code, n = f.encoding.Next(b[i:], 2)
		} else {
			code = uint32(b[i])
		}
		if n == 0 {
			break
		}
		g := Glyph{Code: code, Space: n == 1 && code == 32}
		key := code
		if f.composite {
			key = f.encoding.CID(code)
		}
		if w, ok := f.widths[key]; ok {
			g.Width = w * f.scale
		} else {
			g.Width = f.defaultWidth * f.scale
		}
		if s, ok := f.toUnicode.Unicode(code); ok {
			g.Text = s
		} else if !f.composite {
			if r := f.simpleEnc[code&0xFF]; r != 0 {
				g.Text = string(r)
			}
		}
		out = append(out, g)
		i += n
	}
	return out
}

// defaultFont stands in for a missing or unreadable font resource.
func defaultFont() *Font {
	f := &Font{
		BaseFont:  "Helvetica",
		Subtype:   "Type1",
		simpleEnc: baseEncoding("WinAnsiEncoding"),
		widths:    make(map[uint32]float64),
		scale:     1,
		ascent:    standardMetrics["Helvetica"].Ascent,
		descent:   standardMetrics["Helvetica"].Descent,
	}
	for i, w := range helveticaWidths {
		f.widths[uint32(i)] = float64(w)
	}
	return f
}

// LoadFont builds a Font from a font dictionary. Broken entries degrade to defaults
// rather than failing, so text can still be positioned.
func LoadFont(ctx context.Context, doc *raw.Document, pipeline *filters.Pipeline, dict *raw.DictObj) *Font {
	if dict == nil {
		return defaultFont()
	}
	if pipeline == nil {
		pipeline = filters.NewDefaultPipeline(filters.DefaultLimits())
	}
	f := &Font{widths: make(map[uint32]float64), scale: 1}
	f.Subtype, _ = doc.Name(dict.Lookup("Subtype"))
	f.BaseFont, _ = doc.Name(dict.Lookup("BaseFont"))

	if stm := doc.Stream(dict.Lookup("ToUnicode")); stm != nil {
		if data, err := pipeline.DecodeStream(ctx, doc, stm); err == nil {
			f.toUnicode = ParseCMap(data)
		}
	}

	descriptor := doc.Dict(dict.Lookup("FontDescriptor"))
	if f.Subtype == "Type0" {
		f.composite = true
		f.loadComposite(ctx, doc, pipeline, dict)
		if desc := doc.Array(dict.Lookup("DescendantFonts")); desc != nil && desc.Len() > 0 {
			if first, ok := desc.Get(0); ok {
				descriptor = doc.Dict(doc.Dict(first).Lookup("FontDescriptor"))
			}
		}
	} else {
		f.loadSimple(doc, dict, descriptor)
	}

	if f.Subtype == "Type3" {
		if m, ok := doc.Floats(dict.Lookup("FontMatrix")); ok && len(m) == 6 && m[0] != 0 {
			f.scale = m[0] * 1000
		} else {
			f.scale = 1
		}
	}

	f.ascent, f.descent = defaultAscent, defaultDescent
	if f.Subtype == "Type3" {
		// Type3 glyph space is font-specific; the descriptor values would be rescaled wrongly.
		f.ascent, f.descent = defaultAscent/f.scale, defaultDescent/f.scale
		return f
	}
	if m, ok := StandardMetrics(f.BaseFont); ok {
		f.ascent, f.descent = m.Ascent, m.Descent
	}
	if descriptor != nil {
		if a, ok := doc.Float(descriptor.Lookup("Ascent")); ok && a != 0 {
			f.ascent = a
		}
		if d, ok := doc.Float(descriptor.Lookup("Descent")); ok && d != 0 {
			if d > 0 {
				d = -d
			}
			f.descent = d
		}
	}
	return f
}

func (f *Font) loadSimple(doc *raw.Document, dict, descriptor *raw.DictObj) {
	f.simpleEnc = baseEncoding("StandardEncoding")
	if _, ok := standardAliases[f.BaseFont]; ok || IsStandard14(f.BaseFont) {
		f.simpleEnc = baseEncoding("WinAnsiEncoding")
	}
	switch enc := doc.Resolve(dict.Lookup("Encoding")).(type) {
	case raw.NameObj:
		f.simpleEnc = baseEncoding(enc.Val)
	case *raw.DictObj:
		if base, ok := doc.Name(enc.Lookup("BaseEncoding")); ok {
			f.simpleEnc = baseEncoding(base)
		}
		f.applyDifferences(doc, doc.Array(enc.Lookup("Differences")))
	}

	if descriptor != nil {
		if mw, ok := doc.Float(descriptor.Lookup("MissingWidth")); ok {
			f.defaultWidth = mw
		}
	}
	widths, hasWidths := doc.Floats(dict.Lookup("Widths"))
	if hasWidths {
		first, _ := doc.Float(dict.Lookup("FirstChar"))
		for i, w := range widths {
			f.widths[uint32(int(first)+i)] = w
		}
		return
	}
	std, ok := StandardWidths(f.BaseFont)
	if !ok {
		if f.defaultWidth == 0 {
			f.defaultWidth = 500
		}
		return
	}
	for i, w := range std {
		f.widths[uint32(i)] = float64(w)
	}
}

func (f *Font) applyDifferences(doc *raw.Document, diffs *raw.ArrayObj) {
	if diffs == nil {
		return
	}
	code := 0
	for _, item := range diffs.Items {
		switch v := doc.Resolve(item).(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code < 0 || code > 255 {
				continue
			}
			if r, ok := GlyphRune(v.Val); ok {
				f.simpleEnc[code] = r
			} else {
				f.simpleEnc[code] = 0
			}
			code++
		}
	}
}

func (f *Font) loadComposite(ctx context.Context, doc *raw.Document, pipeline *filters.Pipeline, dict *raw.DictObj) {
	switch enc := doc.Resolve(dict.Lookup("Encoding")).(type) {
	case *raw.StreamObj:
		if data, err := pipeline.DecodeStream(ctx, doc, enc); err == nil {
			f.encoding = ParseCMap(data)
		}
	}
	// Identity-H/V and other predefined CMaps are treated as two-byte identity mappings.

	f.defaultWidth = 1000
	desc := doc.Array(dict.Lookup("DescendantFonts"))
	if desc == nil || desc.Len() == 0 {
		return
	}
	first, _ := desc.Get(0)
	cid := doc.Dict(first)
	if cid == nil {
		return
	}
	if dw, ok := doc.Float(cid.Lookup("DW")); ok {
		f.defaultWidth = dw
	}
	w := doc.Array(cid.Lookup("W"))
	if w == nil {
		return
	}
	items := w.Items
	for i := 0; i < len(items); {
		start, ok := doc.Float(items[i])
		if !ok || i+1 >= len(items) {
			return
		}
		if arr := doc.Array(items[i+1]); arr != nil {
			for j, item := range arr.Items {
				if v, ok := doc.Float(item); ok {
					f.widths[uint32(int(start)+j)] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		end, ok1 := doc.Float(items[i+1])
		v, ok2 := doc.Float(items[i+2])
		if !ok1 || !ok2 || end < start || end-start > maxRangeSize {
			return
		}
		for c := int(start); c <= int(end); c++ {
			f.widths[uint32(c)] = v
		}
		i += 3
	}
}

// Cache memoizes fonts per font dictionary for one document.
type Cache struct {
	doc      *raw.Document
	pipeline *filters.Pipeline

	mu    sync.Mutex
	fonts map[*raw.DictObj]*Font
	def   *Font
}

// NewCache returns an empty font cache for doc.
func NewCache(doc *raw.Document, pipeline *filters.Pipeline) *Cache {
	if pipeline == nil {
		pipeline = filters.NewDefaultPipeline(filters.DefaultLimits())
	}
	return &Cache{doc: doc, pipeline: pipeline, fonts: make(map[*raw.DictObj]*Font)}
}

// Load returns the font for a font resource. It never returns nil.
func (c *Cache) Load(ctx context.Context, obj raw.Object) *Font {
	dict := c.doc.Dict(obj)
	c.mu.Lock()
	defer c.mu.Unlock()
	if dict == nil {
		if c.def == nil {
			c.def = defaultFont()
		}
		return c.def
	}
	if f, ok := c.fonts[dict]; ok {
		return f
	}
	f := LoadFont(ctx, c.doc, c.pipeline, dict)
	c.fonts[dict] = f
	return f
}
