package builder

import (
	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/fonts"
	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/ir/semantic"
)

// Document is an output document ready for the writer.
type Document struct {
	Pages []*Page
	Info  semantic.DocumentInfo
}

// Page is an output page. Operations are in PDF user space with the origin at the
// bottom-left of a [0 0 Width Height] media box.
type Page struct {
	Index      int
	Width      float64
	Height     float64
	Operations []semantic.Operation
	Fonts      map[string]*Font
	Forms      map[string]*Form
}

// Font is a font used by output pages. Pages share the same *Font for one registration.
type Font struct {
	BaseFont string
	TrueType *fonts.TrueType // nil for Standard-14 fonts
	// Used maps glyph IDs shown with a TrueType font to the text they represent.
	Used map[int][]rune
}

// Form is a source page transcluded as a Form XObject. The writer copies the page
// content and a deep copy of its resources.
type Form struct {
	Source *semantic.Page
	Doc    *raw.Document
	BBox   coords.Rect // source page box in source user space
}
