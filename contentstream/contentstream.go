package contentstream

import (
	"errors"

	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/fonts"
)

// GraphicsState is the subset of the PDF graphics state that affects where text lands
// and whether it is visible.
type GraphicsState struct {
	CTM     coords.Matrix
	Clip    coords.Rect // in the tracer's output space
	HasClip bool
	Text    TextState
	stack   []*GraphicsState
}

// NewGraphicsState returns a state with the given CTM, clipped to clip.
func NewGraphicsState(ctm coords.Matrix, clip coords.Rect) *GraphicsState {
	return &GraphicsState{CTM: ctm, Clip: clip, HasClip: true, Text: TextState{HorizScale: 1}}
}

func (gs *GraphicsState) Save() { clone := *gs; gs.stack = append(gs.stack, &clone) }
func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	*gs = *gs.stack[n-1]
	gs.stack = gs.stack[:n-1]
	return nil
}

// Depth is the number of saved states.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

// ClipTo narrows the clip to r (already in output space).
func (gs *GraphicsState) ClipTo(r coords.Rect) {
	if gs.HasClip {
		gs.Clip = gs.Clip.Intersect(r)
	} else {
		gs.Clip, gs.HasClip = r, true
	}
}

// Visible reports whether a point in output space survives the clip.
func (gs *GraphicsState) Visible(p coords.Point) bool {
	return !gs.HasClip || (!gs.Clip.IsEmpty() && gs.Clip.Contains(p))
}

// TextState holds the text parameters that belong to the graphics state (Tc, Tw, Tz, TL, Tf, Ts, Tr).
type TextState struct {
	Font        *fonts.Font
	FontSize    float64
	CharSpacing float64
	WordSpacing float64
	HorizScale  float64 // Tz / 100
	Leading     float64
	Rise        float64
	RenderMode  TextRenderMode
}
