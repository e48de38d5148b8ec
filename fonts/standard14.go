package fonts

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Metrics holds vertical font metrics in 1/1000 em.
type Metrics struct {
	Ascent    float64
	Descent   float64
	CapHeight float64
}

// Values from the Adobe Core14 AFM files.
var standardMetrics = map[string]Metrics{
	"Helvetica":    {Ascent: 718, Descent: -207, CapHeight: 718},
	"Times":        {Ascent: 683, Descent: -217, CapHeight: 662},
	"Courier":      {Ascent: 629, Descent: -157, CapHeight: 562},
	"Symbol":       {Ascent: 1010, Descent: -293, CapHeight: 673},
	"ZapfDingbats": {Ascent: 820, Descent: -143, CapHeight: 820},
}

var standardAliases = map[string]string{
	"Arial":           "Helvetica",
	"ArialMT":         "Helvetica",
	"Helvetica":       "Helvetica",
	"TimesNewRoman":   "Times",
	"TimesNewRomanPS": "Times",
	"Times":           "Times",
	"CourierNew":      "Courier",
	"Courier":         "Courier",
	"Symbol":          "Symbol",
	"ZapfDingbats":    "ZapfDingbats",
}

// standardFamily maps a BaseFont such as "ABCDEF+Arial,Bold" to its Core14 family
// and reports whether the face is bold.
func standardFamily(baseFont string) (family string, bold bool, ok bool) {
	name := baseFont
	if i := strings.IndexByte(name, '+'); i == 6 {
		name = name[i+1:]
	}
	lower := strings.ToLower(name)
	bold = strings.Contains(lower, "bold") || strings.Contains(lower, "black") || strings.Contains(lower, "heavy")
	for _, sep := range []string{",", "-"} {
		if i := strings.Index(name, sep); i > 0 {
			name = name[:i]
		}
	}
	name = strings.ReplaceAll(name, " ", "")
	family, ok = standardAliases[name]
	return family, bold, ok
}

// IsStandard14 reports whether name is one of the 14 fonts every PDF reader provides.
func IsStandard14(name string) bool {
	switch name {
	case "Helvetica", "Helvetica-Bold", "Helvetica-Oblique", "Helvetica-BoldOblique",
		"Times-Roman", "Times-Bold", "Times-Italic", "Times-BoldItalic",
		"Courier", "Courier-Bold", "Courier-Oblique", "Courier-BoldOblique",
		"Symbol", "ZapfDingbats":
		return true
	}
	return false
}

// StandardMetrics returns Core14 metrics for baseFont, matching common aliases such as Arial.
func StandardMetrics(baseFont string) (Metrics, bool) {
	family, _, ok := standardFamily(baseFont)
	if !ok {
		return Metrics{}, false
	}
	return standardMetrics[family], true
}

// StandardWidths returns WinAnsi-indexed advance widths for a Core14 font. Times is
// approximated by Helvetica; Courier is monospaced.
func StandardWidths(baseFont string) (*[256]int, bool) {
	family, bold, ok := standardFamily(baseFont)
	if !ok {
		return nil, false
	}
	switch family {
	case "Courier":
		return &courierWidths, true
	case "Helvetica", "Times":
		if bold {
			return &helveticaBoldWidths, true
		}
		return &helveticaWidths, true
	}
	return nil, false
}

// WinAnsiEncode converts text to WinAnsiEncoding bytes. Runes outside the encoding become '?'
// and ok is false.
func WinAnsiEncode(text string) ([]byte, bool) {
	enc := charmap.Windows1252
	out := make([]byte, 0, len(text))
	ok := true
	for _, r := range text {
		b, found := enc.EncodeRune(r)
		if !found {
			b, ok = '?', false
		}
		out = append(out, b)
	}
	return out, ok
}

// StandardTextWidth measures text set in a Core14 font at size points.
func StandardTextWidth(baseFont, text string, size float64) float64 {
	widths, ok := StandardWidths(baseFont)
	if !ok {
		widths = &helveticaWidths
	}
	encoded, _ := WinAnsiEncode(text)
	total := 0
	for _, b := range encoded {
		total += widths[b]
	}
	return float64(total) * size / 1000
}

var courierWidths = func() [256]int {
	var w [256]int
	for i := range w {
		w[i] = 600
	}
	return w
}()

var helveticaWidths = [256]int{
	278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278,
	278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278,
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, 350,
	556, 350, 222, 556, 333, 1000, 556, 556, 333, 1000, 667, 333, 1000, 350, 611, 350,
	350, 222, 222, 333, 333, 350, 556, 1000, 333, 1000, 500, 333, 944, 350, 500, 667,
	278, 333, 556, 556, 556, 556, 260, 556, 333, 737, 370, 556, 584, 333, 737, 333,
	400, 584, 333, 333, 333, 556, 537, 278, 333, 333, 365, 556, 834, 834, 834, 611,
	667, 667, 667, 667, 667, 667, 1000, 722, 667, 667, 667, 667, 278, 278, 278, 278,
	722, 722, 778, 778, 778, 778, 778, 584, 778, 722, 722, 722, 722, 667, 667, 611,
	556, 556, 556, 556, 556, 556, 889, 500, 556, 556, 556, 556, 278, 278, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 584, 611, 556, 556, 556, 556, 500, 556, 500,
}

var helveticaBoldWidths = [256]int{
	278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278,
	278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278, 278,
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584, 350,
	556, 350, 278, 556, 500, 1000, 556, 556, 333, 1000, 667, 333, 1000, 350, 611, 350,
	350, 278, 278, 500, 500, 350, 556, 1000, 333, 1000, 556, 333, 944, 350, 500, 667,
	278, 333, 556, 556, 556, 556, 280, 556, 333, 737, 370, 556, 584, 333, 737, 333,
	400, 584, 333, 333, 333, 611, 556, 278, 333, 333, 365, 556, 834, 834, 834, 611,
	722, 722, 722, 722, 722, 722, 1000, 722, 667, 667, 667, 667, 278, 278, 278, 278,
	722, 722, 778, 778, 778, 778, 778, 584, 778, 722, 722, 722, 722, 667, 667, 611,
	556, 556, 556, 556, 556, 556, 889, 556, 556, 556, 556, 556, 278, 278, 278, 278,
	611, 611, 611, 611, 611, 611, 611, 584, 611, 611, 611, 611, 611, 556, 611, 556,
}
