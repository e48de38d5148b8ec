package contentstream

import (
	"context"
	"fmt"
	"math"

	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/fonts"
	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/ir/semantic"
	res "github.com/wudi/pdfband/resources"
)

// DefaultMaxFormDepth bounds Form XObject nesting.
const DefaultMaxFormDepth = 32

// Glyph is one shown character code, positioned in the tracer's output space.
type Glyph struct {
	Text   string
	Box    coords.Rect  // advance x [descent, ascent]
	Origin coords.Point // baseline start
	Size   float64      // font size after all transformations
	Space  bool
}

// Tracer executes content streams virtually and reports the glyphs that would be painted
// inside the current clip.
type Tracer struct {
	MaxFormDepth int

	doc      *raw.Document
	pipeline *filters.Pipeline
	fonts    *fonts.Cache
}

func NewTracer(doc *raw.Document, pipeline *filters.Pipeline) *Tracer {
	if pipeline == nil {
		pipeline = filters.NewDefaultPipeline(filters.DefaultLimits())
	}
	return &Tracer{
		MaxFormDepth: DefaultMaxFormDepth,
		doc:          doc,
		pipeline:     pipeline,
		fonts:        fonts.NewCache(doc, pipeline),
	}
}

// TracePage traces a page in display space (top-left origin, y down), clipped to the page box.
func (t *Tracer) TracePage(ctx context.Context, page *semantic.Page, emit func(Glyph)) error {
	content, err := page.Content(ctx, t.pipeline, t.doc)
	if err != nil {
		return err
	}
	dm := page.DisplayMatrix()
	clip := coords.Rect{X1: page.Width(), Y1: page.Height()}
	return t.Trace(ctx, content, page.Resources, NewGraphicsState(dm, clip), emit)
}

// Trace interprets content with the given resources starting from gs.
func (t *Tracer) Trace(ctx context.Context, content []byte, resources *raw.DictObj, gs *GraphicsState, emit func(Glyph)) error {
	ops, err := Parse(content)
	if err != nil && len(ops) == 0 {
		return fmt.Errorf("parse content: %w", err)
	}
	run := &execution{
		tracer: t,
		emit:   emit,
		active: make(map[*raw.StreamObj]bool),
	}
	return run.exec(ctx, ops, res.NewScope(t.doc, resources), gs, 0)
}

type execution struct {
	tracer *Tracer
	emit   func(Glyph)
	active map[*raw.StreamObj]bool
}

type textObject struct {
	tm, tlm coords.Matrix
}

func (e *execution) exec(ctx context.Context, ops []semantic.Operation, scope *res.Scope, gs *GraphicsState, depth int) error {
	text := textObject{tm: coords.Identity(), tlm: coords.Identity()}
	var path pathBounds
	pendingClip := false
	base := gs.Depth()

	for i, op := range ops {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		args := op.Operands
		switch op.Operator {
		case "q":
			gs.Save()
		case "Q":
			// Unbalanced Q inside a form must not pop the caller's state.
			if gs.Depth() > base {
				_ = gs.Restore()
			}
		case "cm":
			if m, ok := matrixOf(args); ok {
				gs.CTM = m.Multiply(gs.CTM)
			}

		case "BT":
			text = textObject{tm: coords.Identity(), tlm: coords.Identity()}
		case "ET":
		case "Tf":
			if len(args) == 2 {
				if name, ok := args[0].(semantic.NameOperand); ok {
					fontObj, _ := scope.Resolve(res.CategoryFont, name.Value)
					gs.Text.Font = e.tracer.fonts.Load(ctx, fontObj)
				}
				gs.Text.FontSize = number(args[1])
			}
		case "Tc":
			if len(args) == 1 {
				gs.Text.CharSpacing = number(args[0])
			}
		case "Tw":
			if len(args) == 1 {
				gs.Text.WordSpacing = number(args[0])
			}
		case "Tz":
			if len(args) == 1 {
				gs.Text.HorizScale = number(args[0]) / 100
			}
		case "TL":
			if len(args) == 1 {
				gs.Text.Leading = number(args[0])
			}
		case "Ts":
			if len(args) == 1 {
				gs.Text.Rise = number(args[0])
			}
		case "Tr":
			if len(args) == 1 {
				gs.Text.RenderMode = TextRenderMode(number(args[0]))
			}
		case "Td", "TD":
			if len(args) == 2 {
				tx, ty := number(args[0]), number(args[1])
				if op.Operator == "TD" {
					gs.Text.Leading = -ty
				}
				text.tlm = coords.Translate(tx, ty).Multiply(text.tlm)
				text.tm = text.tlm
			}
		case "Tm":
			if m, ok := matrixOf(args); ok {
				text.tlm, text.tm = m, m
			}
		case "T*":
			text.nextLine(gs)

		case "Tj":
			if len(args) == 1 {
				e.show(gs, &text, stringOf(args[0]))
			}
		case "'":
			if len(args) == 1 {
				text.nextLine(gs)
				e.show(gs, &text, stringOf(args[0]))
			}
		case "\"":
			if len(args) == 3 {
				gs.Text.WordSpacing = number(args[0])
				gs.Text.CharSpacing = number(args[1])
				text.nextLine(gs)
				e.show(gs, &text, stringOf(args[2]))
			}
		case "TJ":
			if len(args) == 1 {
				if arr, ok := args[0].(semantic.ArrayOperand); ok {
					for _, item := range arr.Values {
						switch v := item.(type) {
						case semantic.StringOperand:
							e.show(gs, &text, v.Value)
						case semantic.NumberOperand:
							tx := -v.Value / 1000 * gs.Text.FontSize * gs.Text.HorizScale
							text.tm = coords.Translate(tx, 0).Multiply(text.tm)
						}
					}
				}
			}

		case "m", "l":
			if len(args) == 2 {
				pt := coords.Point{X: number(args[0]), Y: number(args[1])}
				path.add(gs.CTM.Transform(pt))
			}
		case "c", "v", "y":
			for j := 0; j+1 < len(args); j += 2 {
				pt := coords.Point{X: number(args[j]), Y: number(args[j+1])}
				path.add(gs.CTM.Transform(pt))
			}
		case "re":
			if len(args) == 4 {
				x, y, w, h := number(args[0]), number(args[1]), number(args[2]), number(args[3])
				r := gs.CTM.TransformRect(coords.Rect{X0: x, Y0: y, X1: x + w, Y1: y + h}.Normalize())
				path.add(coords.Point{X: r.X0, Y: r.Y0})
				path.add(coords.Point{X: r.X1, Y: r.Y1})
			}
		case "h":
		case "W", "W*":
			pendingClip = true
		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "n":
			if pendingClip {
				if path.started {
					gs.ClipTo(path.rect)
				} else {
					gs.ClipTo(coords.Rect{})
				}
			}
			pendingClip = false
			path.reset()

		case "Do":
			if len(args) == 1 {
				if name, ok := args[0].(semantic.NameOperand); ok {
					if err := e.doXObject(ctx, name.Value, scope, gs, depth); err != nil {
						return err
					}
				}
			}
		}
	}
	for gs.Depth() > base {
		_ = gs.Restore()
	}
	return nil
}

func (t *textObject) nextLine(gs *GraphicsState) {
	t.tlm = coords.Translate(0, -gs.Text.Leading).Multiply(t.tlm)
	t.tm = t.tlm
}

// show positions each glyph of a string and advances the text matrix.
func (e *execution) show(gs *GraphicsState, text *textObject, data []byte) {
	ts := &gs.Text
	if ts.Font == nil {
		ts.Font = e.tracer.fonts.Load(context.Background(), nil)
	}
	ascent, descent := ts.Font.Ascent()/1000, ts.Font.Descent()/1000
	for _, g := range ts.Font.Decode(data) {
		trm := coords.Matrix{ts.FontSize * ts.HorizScale, 0, 0, ts.FontSize, 0, ts.Rise}.Multiply(text.tm).Multiply(gs.CTM)
		w := g.Width / 1000
		box := trm.TransformRect(coords.Rect{X0: 0, Y0: descent, X1: w, Y1: ascent})
		if g.Text != "" && gs.Visible(box.Center()) {
			e.emit(Glyph{
				Text:   g.Text,
				Box:    box,
				Origin: trm.Transform(coords.Point{}),
				Size:   math.Hypot(trm[2], trm[3]),
				Space:  g.Space,
			})
		}
		tx := w*ts.FontSize + ts.CharSpacing
		if g.Space {
			tx += ts.WordSpacing
		}
		text.tm = coords.Translate(tx*ts.HorizScale, 0).Multiply(text.tm)
	}
}

func (e *execution) doXObject(ctx context.Context, name string, scope *res.Scope, gs *GraphicsState, depth int) error {
	doc := e.tracer.doc
	obj, err := scope.Resolve(res.CategoryXObject, name)
	if err != nil {
		return nil
	}
	stm := doc.Stream(obj)
	if stm == nil {
		return nil
	}
	if subtype, _ := doc.Name(stm.Dict.Lookup("Subtype")); subtype != "Form" {
		return nil
	}
	if depth >= e.tracer.MaxFormDepth || e.active[stm] {
		return nil
	}
	data, err := e.tracer.pipeline.DecodeStream(ctx, doc, stm)
	if err != nil {
		// Undecodable forms paint nothing.
		return nil
	}
	ops, _ := Parse(data)

	gs.Save()
	defer func() { _ = gs.Restore() }()
	if vals, ok := doc.Floats(stm.Dict.Lookup("Matrix")); ok && len(vals) == 6 {
		m := coords.Matrix{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]}
		gs.CTM = m.Multiply(gs.CTM)
	}
	if vals, ok := doc.Floats(stm.Dict.Lookup("BBox")); ok {
		if bbox, ok := coords.RectFromArray(vals); ok {
			gs.ClipTo(gs.CTM.TransformRect(bbox))
		}
	}
	e.active[stm] = true
	defer delete(e.active, stm)
	return e.exec(ctx, ops, scope.Child(doc.Dict(stm.Dict.Lookup("Resources"))), gs, depth+1)
}

func number(op semantic.Operand) float64 {
	if n, ok := op.(semantic.NumberOperand); ok {
		return n.Value
	}
	return 0
}

func matrixOf(args []semantic.Operand) (coords.Matrix, bool) {
	if len(args) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := range m {
		m[i] = number(args[i])
	}
	return m, true
}

func stringOf(op semantic.Operand) []byte {
	if s, ok := op.(semantic.StringOperand); ok {
		return s.Value
	}
	return nil
}
