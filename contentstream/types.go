package contentstream

import (
	"github.com/wudi/pdfband/coords"
)

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// pathBounds accumulates the output-space bounding box of the current path.
type pathBounds struct {
	rect    coords.Rect
	started bool
}

func (p *pathBounds) add(pt coords.Point) {
	r := coords.Rect{X0: pt.X, Y0: pt.Y, X1: pt.X, Y1: pt.Y}
	if !p.started {
		p.rect, p.started = r, true
		return
	}
	p.rect = p.rect.Union(r)
}

func (p *pathBounds) reset() { *p = pathBounds{} }
