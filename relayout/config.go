package relayout

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfband/builder"
	"github.com/wudi/pdfband/fonts"
)

// RGB is a color with components in [0, 1].
type RGB [3]float64

func (c RGB) color() builder.Color { return builder.Color{R: c[0], G: c[1], B: c[2]} }

// TextStyle describes one line of branding text. Baseline is measured from the top of the page.
type TextStyle struct {
	Text     string  `yaml:"text"`
	Font     string  `yaml:"font"`      // Standard-14 base font
	FontFile string  `yaml:"font_file"` // optional TrueType file, read by the caller into FontData
	FontData []byte  `yaml:"-"`
	Size     float64 `yaml:"size"`
	Color    RGB     `yaml:"color"`
	Baseline float64 `yaml:"baseline"`
}

// Branding is the header drawn on the first emitted page. Heights are measured from the top.
type Branding struct {
	Enabled      bool      `yaml:"enabled"`
	MaskHeight   float64   `yaml:"mask_height"`
	MaskColor    RGB       `yaml:"mask_color"`
	BannerHeight float64   `yaml:"banner_height"`
	BannerColor  RGB       `yaml:"banner_color"`
	AccentHeight float64   `yaml:"accent_height"`
	AccentColor  RGB       `yaml:"accent_color"`
	Title        TextStyle `yaml:"title"`
	Subtitle     TextStyle `yaml:"subtitle"`
}

// Layout holds every threshold used to cut a report page into bands.
type Layout struct {
	EndMarker      string   `yaml:"end_marker"`
	SectionMarkers []string `yaml:"section_markers"`
	CaseSensitive  bool     `yaml:"case_sensitive"`

	// A section marker qualifies only when SummaryFloor < y0 < end boundary.
	SummaryFloor float64 `yaml:"summary_floor"`
	EndOffset    float64 `yaml:"end_offset"`
	MarkerOffset float64 `yaml:"marker_offset"`
	MinGap       float64 `yaml:"min_gap"`
	// Bands no taller than MinBandHeight are not emitted.
	MinBandHeight float64 `yaml:"min_band_height"`
	// HeaderHeight reserves empty space above the transcluded band on every page.
	HeaderHeight float64 `yaml:"header_height"`

	Branding Branding `yaml:"branding"`
}

// DefaultLayout returns the layout of the M&Y Fitness body composition report.
func DefaultLayout() Layout {
	return Layout{
		EndMarker: "TRANSFORM YOUR BODY",
		SectionMarkers: []string{
			"Body Composition",
			"Fat Analysis",
			"Metabolic Indicators",
			"Personalized Recommendations",
		},
		SummaryFloor:  600,
		EndOffset:     25,
		MarkerOffset:  20,
		MinGap:        50,
		MinBandHeight: 1,
		Branding: Branding{
			Enabled:      true,
			MaskHeight:   135,
			MaskColor:    RGB{1, 1, 1},
			BannerHeight: 90,
			BannerColor:  RGB{0.1, 0.1, 0.15},
			AccentHeight: 4,
			AccentColor:  RGB{1, 0.6, 0},
			Title: TextStyle{
				Text:     "M&Y Fitness Club",
				Font:     "Helvetica-Bold",
				Size:     28,
				Color:    RGB{1, 1, 1},
				Baseline: 45,
			},
			Subtitle: TextStyle{
				Text:     "PERSONAL INFORMATION SUMMARY",
				Font:     "Helvetica",
				Size:     12,
				Color:    RGB{0.9, 0.9, 0.9},
				Baseline: 70,
			},
		},
	}
}

// Validate reports values that cannot produce a sensible layout.
func (l Layout) Validate() error {
	var errs []error
	if l.MinGap < 0 {
		errs = append(errs, fmt.Errorf("min_gap must not be negative, got %v", l.MinGap))
	}
	if l.MinBandHeight < 0 {
		errs = append(errs, fmt.Errorf("min_band_height must not be negative, got %v", l.MinBandHeight))
	}
	if l.HeaderHeight < 0 {
		errs = append(errs, fmt.Errorf("header_height must not be negative, got %v", l.HeaderHeight))
	}
	for i, m := range l.SectionMarkers {
		if m == "" {
			errs = append(errs, fmt.Errorf("section_markers[%d] is empty", i))
		}
	}
	if l.Branding.Enabled {
		for _, ts := range []struct {
			name  string
			style TextStyle
		}{{"title", l.Branding.Title}, {"subtitle", l.Branding.Subtitle}} {
			if ts.style.Text != "" && ts.style.Size <= 0 {
				errs = append(errs, fmt.Errorf("branding.%s.size must be positive", ts.name))
			}
			if ts.style.FontFile == "" && len(ts.style.FontData) == 0 {
				if _, ok := fonts.WinAnsiEncode(ts.style.Text); !ok {
					errs = append(errs, fmt.Errorf("branding.%s.text %q needs font_file: %s cannot encode it", ts.name, ts.style.Text, ts.style.Font))
				}
			}
		}
	}
	return errors.Join(errs...)
}
