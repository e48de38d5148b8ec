package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfband/contentstream"
	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/ir/semantic"
)

const (
	// gapFactor is the horizontal gap, in font sizes, that separates two words.
	gapFactor = 0.2
	// baselineFactor is the vertical drift, in font sizes, still treated as the same line.
	baselineFactor = 0.5
)

// Extractor exposes positioned text of the pages of a parsed document.
type Extractor struct {
	doc    *semantic.Document
	tracer *contentstream.Tracer
}

// New creates an extractor backed by the provided document.
func New(doc *semantic.Document, pipeline *filters.Pipeline) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	if doc.Raw == nil {
		return nil, errors.New("document missing raw representation")
	}
	return &Extractor{doc: doc, tracer: contentstream.NewTracer(doc.Raw, pipeline)}, nil
}

// Char is one rune with its box in display space.
type Char struct {
	Rune rune
	Box  coords.Rect
}

// Line is a run of characters sharing a baseline, in content order.
type Line struct {
	Chars    []Char
	Baseline float64
	Size     float64
}

// String returns the characters of the line.
func (l Line) String() string {
	var sb strings.Builder
	for _, c := range l.Chars {
		sb.WriteRune(c.Rune)
	}
	return sb.String()
}

// PageText is the positioned text of one page. Coordinates are display space:
// origin at the top-left of the visible page, y growing downward.
type PageText struct {
	Page   int
	Width  float64
	Height float64
	Lines  []Line
}

// Text returns the page text with one line per row.
func (p *PageText) Text() string {
	rows := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		rows[i] = l.String()
	}
	return strings.Join(rows, "\n")
}

// PageText traces the page at index and groups its glyphs into lines.
func (e *Extractor) PageText(ctx context.Context, index int) (*PageText, error) {
	if index < 0 || index >= len(e.doc.Pages) {
		return nil, fmt.Errorf("page %d out of range (%d pages)", index, len(e.doc.Pages))
	}
	page := e.doc.Pages[index]
	pt := &PageText{Page: index, Width: page.Width(), Height: page.Height()}
	b := &lineBuilder{}
	if err := e.tracer.TracePage(ctx, page, b.add); err != nil {
		return nil, fmt.Errorf("trace page %d: %w", index, err)
	}
	pt.Lines = b.finish()
	return pt, nil
}

type lineBuilder struct {
	lines   []Line
	current *Line
	last    coords.Rect
}

func (b *lineBuilder) add(g contentstream.Glyph) {
	runes := []rune(norm.NFKC.String(g.Text))
	if len(runes) == 0 {
		return
	}
	size := g.Size
	if size <= 0 {
		size = g.Box.Height()
	}
	if b.current == nil || math.Abs(g.Origin.Y-b.current.Baseline) > baselineFactor*math.Max(size, b.current.Size) {
		b.flush()
		b.current = &Line{Baseline: g.Origin.Y, Size: size}
	} else if gap := g.Box.X0 - b.last.X1; gap > gapFactor*size && !unicode.IsSpace(runes[0]) {
		if n := len(b.current.Chars); n > 0 && !unicode.IsSpace(b.current.Chars[n-1].Rune) {
			b.current.Chars = append(b.current.Chars, Char{
				Rune: ' ',
				Box:  coords.Rect{X0: b.last.X1, Y0: g.Box.Y0, X1: g.Box.X0, Y1: g.Box.Y1},
			})
		}
	}
	// Ligatures and other multi-rune glyphs share the glyph box evenly.
	step := g.Box.Width() / float64(len(runes))
	for i, r := range runes {
		box := g.Box
		box.X0 = g.Box.X0 + step*float64(i)
		box.X1 = box.X0 + step
		b.current.Chars = append(b.current.Chars, Char{Rune: r, Box: box})
	}
	b.last = g.Box
}

func (b *lineBuilder) flush() {
	if b.current != nil && len(b.current.Chars) > 0 {
		b.lines = append(b.lines, *b.current)
	}
	b.current = nil
}

func (b *lineBuilder) finish() []Line {
	b.flush()
	return b.lines
}
