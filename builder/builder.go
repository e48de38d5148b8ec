package builder

import (
	"fmt"

	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/fonts"
	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/ir/semantic"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	SetInfo(info semantic.DocumentInfo) PDFBuilder
	RegisterStandardFont(name, baseFont string) PDFBuilder
	RegisterTrueTypeFont(name string, data []byte) PDFBuilder
	MeasureText(font, text string, size float64) (float64, error)
	Build() (*Document, error)
}

// PageBuilder provides a fluent API for page construction. Drawing coordinates are
// PDF user space: origin at the bottom-left corner, y growing upward.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	// ShowPage draws the clip region of a source page into dst. Both rectangles are
	// display space (top-left origin, y down) of their respective pages. The region is
	// scaled uniformly to fit dst and centered in it.
	ShowPage(src *semantic.Page, srcDoc *raw.Document, clip, dst coords.Rect) PageBuilder
	Finish() PDFBuilder
}

// TextOptions configures text drawing.
type TextOptions struct {
	Font     string
	FontSize float64
	Color    Color
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	Fill        bool
	Stroke      bool
}

// Color represents an RGB color (alpha is ignored for now).
type Color struct {
	R, G, B float64
	A       float64
}

type builderImpl struct {
	pages       []*Page
	info        semantic.DocumentInfo
	fonts       map[string]*Font
	defaultFont string
	forms       map[*semantic.Page]*Form
	formNames   map[*Form]string
	err         error
}

type pageBuilderImpl struct {
	parent *builderImpl
	page   *Page
}

const (
	defaultFontResource = "F1"
	defaultBaseFont     = "Helvetica"
	defaultFontSize     = 12
)

// NewBuilder constructs a PDFBuilder. Helvetica is pre-registered as F1.
func NewBuilder() PDFBuilder {
	b := &builderImpl{
		fonts:     make(map[string]*Font),
		forms:     make(map[*semantic.Page]*Form),
		formNames: make(map[*Form]string),
	}
	b.RegisterStandardFont(defaultFontResource, defaultBaseFont)
	b.defaultFont = defaultFontResource
	return b
}

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &Page{
		Index:  len(b.pages),
		Width:  w,
		Height: h,
		Fonts:  make(map[string]*Font),
		Forms:  make(map[string]*Form),
	}
	b.pages = append(b.pages, p)
	return &pageBuilderImpl{parent: b, page: p}
}

func (b *builderImpl) SetInfo(info semantic.DocumentInfo) PDFBuilder {
	b.info = info
	return b
}

func (b *builderImpl) RegisterStandardFont(name, baseFont string) PDFBuilder {
	if !fonts.IsStandard14(baseFont) {
		b.fail(fmt.Errorf("font %s: %q is not a standard font", name, baseFont))
		return b
	}
	b.fonts[name] = &Font{BaseFont: baseFont}
	return b
}

func (b *builderImpl) RegisterTrueTypeFont(name string, data []byte) PDFBuilder {
	tt, err := fonts.LoadTrueType(name, data)
	if err != nil {
		b.fail(fmt.Errorf("font %s: %w", name, err))
		return b
	}
	b.fonts[name] = &Font{BaseFont: tt.Name, TrueType: tt, Used: make(map[int][]rune)}
	return b
}

func (b *builderImpl) MeasureText(name, text string, size float64) (float64, error) {
	font, _, err := b.fontForName(name)
	if err != nil {
		return 0, err
	}
	if font.TrueType != nil {
		return font.TrueType.TextWidth(text, size), nil
	}
	if err := checkWinAnsi(font, text); err != nil {
		return 0, err
	}
	return fonts.StandardTextWidth(font.BaseFont, text, size), nil
}

// checkWinAnsi rejects text a Standard-14 font cannot show.
func checkWinAnsi(font *Font, text string) error {
	if _, ok := fonts.WinAnsiEncode(text); !ok {
		return fmt.Errorf("text %q is not representable in WinAnsiEncoding for %s; embed a TrueType font", text, font.BaseFont)
	}
	return nil
}

func (b *builderImpl) Build() (*Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Document{Pages: b.pages, Info: b.info}, nil
}

func (b *builderImpl) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builderImpl) fontForName(name string) (*Font, string, error) {
	if name == "" {
		name = b.defaultFont
	}
	font, ok := b.fonts[name]
	if !ok {
		return nil, "", fmt.Errorf("font %q is not registered", name)
	}
	return font, name, nil
}

func (b *builderImpl) formFor(src *semantic.Page, doc *raw.Document) (*Form, string) {
	if f, ok := b.forms[src]; ok {
		return f, b.formNames[f]
	}
	f := &Form{Source: src, Doc: doc, BBox: src.Box()}
	name := fmt.Sprintf("Fm%d", len(b.forms))
	b.forms[src] = f
	b.formNames[f] = name
	return f, name
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	font, fontName, err := p.parent.fontForName(opts.Font)
	if err != nil {
		p.parent.fail(err)
		return p
	}
	if font.TrueType == nil {
		if err := checkWinAnsi(font, text); err != nil {
			p.parent.fail(err)
			return p
		}
	}
	p.page.Fonts[fontName] = font
	size := opts.FontSize
	if size <= 0 {
		size = defaultFontSize
	}

	ops := &p.page.Operations
	*ops = append(*ops, op("q"), op("BT"))
	*ops = append(*ops, semantic.Operation{
		Operator: "Tf",
		Operands: []semantic.Operand{semantic.NameOperand{Value: fontName}, semantic.NumberOperand{Value: size}},
	})
	*ops = append(*ops, op("Tm", 1, 0, 0, 1, x, y))
	if !isZeroColor(opts.Color) {
		*ops = append(*ops, op("rg", opts.Color.R, opts.Color.G, opts.Color.B))
	}
	*ops = append(*ops, showText(font, text))
	*ops = append(*ops, op("ET"), op("Q"))
	return p
}

// showText encodes text for font. TrueType text is shaped; differences between shaped
// advances and the font's widths become TJ adjustments.
func showText(font *Font, text string) semantic.Operation {
	if font.TrueType == nil {
		encoded, _ := fonts.WinAnsiEncode(text)
		return semantic.Operation{Operator: "Tj", Operands: []semantic.Operand{semantic.StringOperand{Value: encoded}}}
	}
	runes := []rune(text)
	glyphs := font.TrueType.Shape(text)
	var parts []semantic.Operand
	var run []byte
	for i, g := range glyphs {
		end := len(runes)
		if i+1 < len(glyphs) && glyphs[i+1].Cluster > g.Cluster {
			end = glyphs[i+1].Cluster
		}
		if _, seen := font.Used[g.ID]; !seen && g.Cluster < len(runes) {
			font.Used[g.ID] = append([]rune(nil), runes[g.Cluster:end]...)
		} else if !seen {
			font.Used[g.ID] = nil
		}
		run = append(run, byte(g.ID>>8), byte(g.ID))
		if adj := float64(font.TrueType.GlyphWidth(g.ID)) - g.XAdvance; adj > 0.5 || adj < -0.5 {
			parts = append(parts, semantic.StringOperand{Value: run, Hex: true}, semantic.NumberOperand{Value: adj})
			run = nil
		}
	}
	if len(run) > 0 || len(parts) == 0 {
		parts = append(parts, semantic.StringOperand{Value: run, Hex: true})
	}
	return semantic.Operation{Operator: "TJ", Operands: []semantic.Operand{semantic.ArrayOperand{Values: parts}}}
}

func (p *pageBuilderImpl) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	po := opts
	if !po.Stroke && !po.Fill {
		po.Stroke = true
	}
	ops := &p.page.Operations
	*ops = append(*ops, op("q"))
	if po.Fill {
		*ops = append(*ops, op("rg", po.FillColor.R, po.FillColor.G, po.FillColor.B))
	}
	if po.Stroke {
		*ops = append(*ops, op("RG", po.StrokeColor.R, po.StrokeColor.G, po.StrokeColor.B))
		if po.LineWidth > 0 {
			*ops = append(*ops, op("w", po.LineWidth))
		}
	}
	*ops = append(*ops, op("re", x, y, width, height))
	*ops = append(*ops, op(paintOperator(po.Fill, po.Stroke)))
	*ops = append(*ops, op("Q"))
	return p
}

func (p *pageBuilderImpl) ShowPage(src *semantic.Page, srcDoc *raw.Document, clip, dst coords.Rect) PageBuilder {
	if src == nil {
		p.parent.fail(fmt.Errorf("show page: source page is nil"))
		return p
	}
	clip = clip.Intersect(coords.Rect{X1: src.Width(), Y1: src.Height()})
	if clip.IsEmpty() || dst.IsEmpty() {
		return p
	}
	form, name := p.parent.formFor(src, srcDoc)
	p.page.Forms[name] = form

	scale := dst.Width() / clip.Width()
	if s := dst.Height() / clip.Height(); s < scale {
		scale = s
	}
	offX := dst.X0 + (dst.Width()-clip.Width()*scale)/2
	offY := dst.Y0 + (dst.Height()-clip.Height()*scale)/2
	// source user -> source display -> target display -> target user
	m := src.DisplayMatrix().
		Multiply(coords.Translate(-clip.X0, -clip.Y0)).
		Multiply(coords.Scale(scale, scale)).
		Multiply(coords.Translate(offX, offY)).
		Multiply(coords.Matrix{1, 0, 0, -1, 0, p.page.Height})

	// The clip is the placed region in target user space.
	x0, y0 := offX, p.page.Height-(offY+clip.Height()*scale)
	ops := &p.page.Operations
	*ops = append(*ops, op("q"))
	*ops = append(*ops, op("re", x0, y0, clip.Width()*scale, clip.Height()*scale))
	*ops = append(*ops, op("W"), op("n"))
	*ops = append(*ops, op("cm", m[0], m[1], m[2], m[3], m[4], m[5]))
	*ops = append(*ops, semantic.Operation{Operator: "Do", Operands: []semantic.Operand{semantic.NameOperand{Value: name}}})
	*ops = append(*ops, op("Q"))
	return p
}

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

func op(operator string, nums ...float64) semantic.Operation {
	o := semantic.Operation{Operator: operator}
	for _, n := range nums {
		o.Operands = append(o.Operands, semantic.NumberOperand{Value: n})
	}
	return o
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}

func isZeroColor(c Color) bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}
