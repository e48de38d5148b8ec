package relayout

import (
	"fmt"

	"github.com/wudi/pdfband/builder"
)

const (
	titleFont    = "BrandTitle"
	subtitleFont = "BrandSubtitle"
)

// Brand paints the header onto page: mask, banner, accent line, then the centered
// title and subtitle. Geometry in Branding is top-down; the builder draws bottom-up.
func Brand(b builder.PDFBuilder, page EmittedPage, br Branding) error {
	w, h := page.Width, page.Height
	fill := func(top, bottom float64, c RGB) {
		if bottom <= top {
			return
		}
		page.Page.DrawRectangle(0, h-bottom, w, bottom-top, builder.RectOptions{Fill: true, FillColor: c.color()})
	}
	fill(0, br.MaskHeight, br.MaskColor)
	fill(0, br.BannerHeight, br.BannerColor)
	fill(br.BannerHeight, br.BannerHeight+br.AccentHeight, br.AccentColor)

	for _, t := range []struct {
		resource string
		style    TextStyle
	}{{titleFont, br.Title}, {subtitleFont, br.Subtitle}} {
		if t.style.Text == "" {
			continue
		}
		registerFont(b, t.resource, t.style)
		width, err := b.MeasureText(t.resource, t.style.Text, t.style.Size)
		if err != nil {
			return fmt.Errorf("measure %q: %w", t.style.Text, err)
		}
		page.Page.DrawText(t.style.Text, (w-width)/2, h-t.style.Baseline, builder.TextOptions{
			Font:     t.resource,
			FontSize: t.style.Size,
			Color:    t.style.Color.color(),
		})
	}
	return nil
}

func registerFont(b builder.PDFBuilder, resource string, style TextStyle) {
	if len(style.FontData) > 0 {
		b.RegisterTrueTypeFont(resource, style.FontData)
		return
	}
	b.RegisterStandardFont(resource, style.Font)
}
