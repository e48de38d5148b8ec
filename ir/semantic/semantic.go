package semantic

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/ir/raw"
)

// Document is the page-level view of a parsed PDF.
type Document struct {
	Raw   *raw.Document
	Pages []*Page
	Info  DocumentInfo
}

// DocumentInfo carries the commonly used /Info entries.
type DocumentInfo struct {
	Title    string
	Author   string
	Producer string
	Creator  string
}

// Page models a single PDF page with inherited attributes already applied.
type Page struct {
	Index     int
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	MediaBox  coords.Rect // PDF user space
	CropBox   coords.Rect // PDF user space, defaults to MediaBox
	Rotate    int         // degrees: 0/90/180/270
	Resources *raw.DictObj
	Contents  []*raw.StreamObj
	UserUnit  float64
}

// Box is the visible region of the page: the crop box clipped to the media box.
func (p *Page) Box() coords.Rect {
	box := p.CropBox.Intersect(p.MediaBox)
	if box.IsEmpty() {
		return p.MediaBox
	}
	return box
}

// Width is the displayed width of the page, after rotation.
func (p *Page) Width() float64 {
	if p.Rotate == 90 || p.Rotate == 270 {
		return p.Box().Height()
	}
	return p.Box().Width()
}

// Height is the displayed height of the page, after rotation.
func (p *Page) Height() float64 {
	if p.Rotate == 90 || p.Rotate == 270 {
		return p.Box().Width()
	}
	return p.Box().Height()
}

// DisplayMatrix maps PDF user space onto display space: origin at the top-left of the
// rotated visible box, Y growing downward, one unit per point.
func (p *Page) DisplayMatrix() coords.Matrix {
	b := p.Box()
	switch p.Rotate {
	case 90:
		return coords.Matrix{0, 1, 1, 0, -b.Y0, -b.X0}
	case 180:
		return coords.Matrix{-1, 0, 0, 1, b.X1, -b.Y0}
	case 270:
		return coords.Matrix{0, -1, -1, 0, b.Y1, b.X1}
	default:
		return coords.Matrix{1, 0, 0, -1, -b.X0, b.Y1}
	}
}

// Content returns the decoded content streams of the page joined by newlines.
func (p *Page) Content(ctx context.Context, pipeline *filters.Pipeline, doc *raw.Document) ([]byte, error) {
	var buf bytes.Buffer
	for i, stm := range p.Contents {
		data, err := pipeline.DecodeStream(ctx, doc, stm)
		if err != nil {
			return nil, fmt.Errorf("page %d content stream %d: %w", p.Index, i, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// normalizeRotation reduces any multiple of 90 to 0/90/180/270. Other values are treated as 0.
func normalizeRotation(deg float64) int {
	r := int(math.Round(deg))
	if r%90 != 0 {
		return 0
	}
	return ((r % 360) + 360) % 360
}

// ContentStream is a sequence of operations parsed from page or form content.
type ContentStream struct {
	Operations []Operation
	RawBytes   []byte
}

// Operation represents a PDF operator and operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Operand is a content stream operand.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

type StringOperand struct {
	Value []byte
	Hex   bool
}

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

type DictOperand struct{ Values map[string]Operand }

func (DictOperand) operand()     {}
func (DictOperand) Type() string { return "dict" }

type BoolOperand struct{ Value bool }

func (BoolOperand) operand()     {}
func (BoolOperand) Type() string { return "boolean" }

type NullOperand struct{}

func (NullOperand) operand()     {}
func (NullOperand) Type() string { return "null" }

// InlineImageOperand carries the dictionary and raw data of a BI ... ID ... EI sequence.
type InlineImageOperand struct {
	Image DictOperand
	Data  []byte
}

func (InlineImageOperand) operand()     {}
func (InlineImageOperand) Type() string { return "inline_image" }
