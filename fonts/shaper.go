package fonts

import (
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// ShapedGlyph is one output glyph of the shaper.
type ShapedGlyph struct {
	ID       int
	Cluster  int     // index of the first rune of the glyph's cluster
	XAdvance float64 // 1/1000 em
}

// Shape runs the HarfBuzz shaper over text. The font is shaped at 1000 units per em
// so advances come out in PDF glyph space.
func (t *TrueType) Shape(text string) []ShapedGlyph {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	script := DetectScript(runes)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      t.face,
		Size:      fixed.Int26_6(1000 * 64),
		Script:    script,
		Language:  language.DefaultLanguage(),
	}
	output := (&shaping.HarfbuzzShaper{}).Shape(input)

	glyphs := make([]ShapedGlyph, len(output.Glyphs))
	for i, g := range output.Glyphs {
		glyphs[i] = ShapedGlyph{ID: int(g.GlyphID), Cluster: g.ClusterIndex, XAdvance: float64(g.XAdvance) / 64}
	}
	return glyphs
}

func scriptDirection(script language.Script) di.Direction {
	if script == language.Arabic || script == language.Hebrew {
		return di.DirectionRTL
	}
	return di.DirectionLTR
}

// DetectScript returns the most frequent script in runes. Text made only of digits,
// spaces and punctuation is Latin.
func DetectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	best, bestCount := language.Latin, 0
	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if n := counts[script]; n > bestCount {
			best, bestCount = script, n
		}
	}
	return best
}

// scriptTables is checked in order; the first table containing a rune decides its script.
var scriptTables = []struct {
	table  *unicode.RangeTable
	script language.Script
}{
	{unicode.Latin, language.Latin},
	{unicode.Arabic, language.Arabic},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Cyrillic, language.Cyrillic},
	{unicode.Greek, language.Greek},
	{unicode.Thai, language.Thai},
	{unicode.Devanagari, language.Devanagari},
	{unicode.Bengali, language.Bengali},
	{unicode.Tamil, language.Tamil},
	{unicode.Han, language.Han},
	{unicode.Hiragana, language.Hiragana},
	{unicode.Katakana, language.Katakana},
	{unicode.Hangul, language.Hangul},
}

func scriptFromRune(r rune) language.Script {
	for _, st := range scriptTables {
		if unicode.Is(st.table, r) {
			return st.script
		}
	}
	return language.Unknown
}
