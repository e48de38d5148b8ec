package fonts

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	gofont "github.com/go-text/typesetting/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// TrueType is a parsed TrueType/OpenType font ready for embedding as a Type0
// Identity-H font with a FontFile2 stream. The full font is embedded.
type TrueType struct {
	Name        string
	Data        []byte
	Ascent      float64 // 1/1000 em
	Descent     float64
	CapHeight   float64
	ItalicAngle float64
	BBox        [4]float64

	widths       map[int]int
	defaultWidth int
	font         *sfnt.Font
	face         *gofont.Face
}

// LoadTrueType parses font data and extracts the metrics needed to embed and measure it.
func LoadTrueType(name string, data []byte) (*TrueType, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load shaping face: %w", err)
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	baseName := strings.TrimSpace(name)
	if ps, _ := font.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		baseName = ps
	}
	if baseName == "" {
		baseName = "CustomTT"
	}

	tt := &TrueType{
		Name:   baseName,
		Data:   data,
		widths: glyphWidths(font, buf, unitsPerEm, ppem),
		font:   font,
		face:   face,
	}
	tt.defaultWidth = tt.widths[0]
	if tt.defaultWidth == 0 {
		tt.defaultWidth = 1000
	}

	metrics, _ := font.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(buf, ppem, xfont.HintingNone)
	tt.Ascent = scaleFixed(metrics.Ascent, unitsPerEm)
	tt.Descent = -scaleFixed(metrics.Descent, unitsPerEm)
	tt.CapHeight = scaleFixed(metrics.CapHeight, unitsPerEm)
	if tt.CapHeight == 0 {
		tt.CapHeight = tt.Ascent
	}
	tt.BBox = [4]float64{
		scaleFixed(bounds.Min.X, unitsPerEm),
		-scaleFixed(bounds.Max.Y, unitsPerEm),
		scaleFixed(bounds.Max.X, unitsPerEm),
		-scaleFixed(bounds.Min.Y, unitsPerEm),
	}
	if post := font.PostTable(); post != nil {
		tt.ItalicAngle = post.ItalicAngle
	}
	return tt, nil
}

// GlyphWidth returns the advance of a glyph in 1/1000 em.
func (t *TrueType) GlyphWidth(gid int) int {
	if w, ok := t.widths[gid]; ok {
		return w
	}
	return t.defaultWidth
}

// DefaultWidth is the advance used for glyphs missing from the hmtx table.
func (t *TrueType) DefaultWidth() int { return t.defaultWidth }

// TextWidth measures shaped text at size points.
func (t *TrueType) TextWidth(text string, size float64) float64 {
	total := 0.0
	for _, g := range t.Shape(text) {
		total += g.XAdvance
	}
	return total * size / 1000
}

func glyphWidths(font *sfnt.Font, buf *sfnt.Buffer, unitsPerEm sfnt.Units, ppem fixed.Int26_6) map[int]int {
	glyphs := font.NumGlyphs()
	widths := make(map[int]int, glyphs)
	for i := 0; i < glyphs; i++ {
		adv, err := font.GlyphAdvance(buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		widths[i] = int(math.Round(scaleFixed(adv, unitsPerEm)))
	}
	return widths
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
