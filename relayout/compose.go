package relayout

import (
	"github.com/wudi/pdfband/builder"
	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/ir/semantic"
)

// EmittedPage is an output page together with the band it shows.
type EmittedPage struct {
	Band   Band
	Width  float64
	Height float64
	Page   builder.PageBuilder
}

// Compose creates one output page per band, in order, skipping bands no taller than
// layout.MinBandHeight. Each page shows the band region of src at its natural size.
func Compose(b builder.PDFBuilder, src *semantic.Page, srcDoc *raw.Document, bands []Band, layout Layout) []EmittedPage {
	width := src.Width()
	var out []EmittedPage
	for _, band := range bands {
		if band.Height() <= layout.MinBandHeight {
			continue
		}
		height := band.Height() + layout.HeaderHeight
		page := b.NewPage(width, height)
		page.ShowPage(src, srcDoc,
			coords.Rect{X0: 0, Y0: band.Start, X1: width, Y1: band.End},
			coords.Rect{X0: 0, Y0: layout.HeaderHeight, X1: width, Y1: height})
		out = append(out, EmittedPage{Band: band, Width: width, Height: height, Page: page})
	}
	return out
}
