package extractor

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfband/coords"
)

// SearchOptions tunes literal text search.
type SearchOptions struct {
	// CaseSensitive disables Unicode case folding.
	CaseSensitive bool
}

// Search returns one box per occurrence of query, in content order. Runs of
// whitespace in both the page and the query compare equal to a single space.
// Matches never span lines.
func (p *PageText) Search(query string, opts SearchOptions) []coords.Rect {
	needle := normalizeQuery(query, opts)
	if len(needle) == 0 {
		return nil
	}
	var out []coords.Rect
	for _, line := range p.Lines {
		hay, owners := normalizeLine(line, opts)
		for i := 0; i+len(needle) <= len(hay); {
			if !runesEqual(hay[i:i+len(needle)], needle) {
				i++
				continue
			}
			first, last := owners[i], owners[i+len(needle)-1]
			box := line.Chars[first].Box
			for _, c := range line.Chars[first+1 : last+1] {
				box = box.Union(c.Box)
			}
			out = append(out, box)
			i += len(needle)
		}
	}
	return out
}

func fold(s string, opts SearchOptions) string {
	if opts.CaseSensitive {
		return s
	}
	return cases.Fold().String(s)
}

func normalizeQuery(query string, opts SearchOptions) []rune {
	fields := strings.Fields(norm.NFKC.String(query))
	return []rune(fold(strings.Join(fields, " "), opts))
}

// normalizeLine folds and collapses the line, returning the runes and, per rune,
// the index of the character it came from.
func normalizeLine(line Line, opts SearchOptions) ([]rune, []int) {
	var hay []rune
	var owners []int
	space := false
	for i, c := range line.Chars {
		if unicode.IsSpace(c.Rune) {
			if !space && len(hay) > 0 {
				hay = append(hay, ' ')
				owners = append(owners, i)
			}
			space = true
			continue
		}
		space = false
		for _, r := range fold(string(c.Rune), opts) {
			hay = append(hay, r)
			owners = append(owners, i)
		}
	}
	return hay, owners
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
