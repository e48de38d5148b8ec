package relayout

import (
	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/extractor"
)

// Searcher finds literal text on a page. *extractor.PageText implements it.
type Searcher interface {
	Search(query string, opts extractor.SearchOptions) []coords.Rect
}

// Marker is a keyword and every place it occurs on the page, in content order.
type Marker struct {
	Keyword string
	Matches []coords.Rect
}

// Section is the outcome of looking for one section marker.
type Section struct {
	Marker
	// Accepted is the first match inside the qualifying window, if any.
	Accepted *coords.Rect
	// SplitPoint is Accepted.Y0 minus the marker offset; valid when Accepted is set.
	SplitPoint float64
}

// Locator is the text search over one source page.
type Locator struct {
	page Searcher
	opts extractor.SearchOptions
}

func NewLocator(page Searcher, caseSensitive bool) *Locator {
	return &Locator{page: page, opts: extractor.SearchOptions{CaseSensitive: caseSensitive}}
}

// Locate returns every match of keyword, top-down boxes in content order.
func (l *Locator) Locate(keyword string) Marker {
	return Marker{Keyword: keyword, Matches: l.page.Search(keyword, l.opts)}
}

// FindEndBoundary returns the first end marker y0 minus offset, or pageHeight when the
// marker does not occur.
func FindEndBoundary(end Marker, offset, pageHeight float64) float64 {
	if len(end.Matches) == 0 {
		return pageHeight
	}
	return end.Matches[0].Y0 - offset
}

// LocateQualifying returns the first match whose top edge lies strictly between
// floor and ceiling. Later matches are never considered once one qualifies.
func LocateQualifying(m Marker, floor, ceiling float64) (coords.Rect, bool) {
	for _, r := range m.Matches {
		if r.Y0 > floor && r.Y0 < ceiling {
			return r, true
		}
	}
	return coords.Rect{}, false
}

// LocateSections looks up each section marker independently and derives at most one
// split point per keyword.
func (l *Locator) LocateSections(layout Layout, endBoundary float64) []Section {
	out := make([]Section, 0, len(layout.SectionMarkers))
	for _, kw := range layout.SectionMarkers {
		s := Section{Marker: l.Locate(kw)}
		if r, ok := LocateQualifying(s.Marker, layout.SummaryFloor, endBoundary); ok {
			s.Accepted = &r
			s.SplitPoint = r.Y0 - layout.MarkerOffset
		}
		out = append(out, s)
	}
	return out
}
