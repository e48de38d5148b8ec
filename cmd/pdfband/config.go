package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/wudi/pdfband/relayout"
)

// loadLayout reads a YAML layout over the defaults. Fields absent from the file keep
// their default values. Branding font files are loaded here so the core never touches
// the filesystem.
func loadLayout(path string) (relayout.Layout, error) {
	layout := relayout.DefaultLayout()
	if path == "" {
		return layout, nil
	}
	file, err := os.ReadFile(path)
	if err != nil {
		return layout, err
	}
	if err := yaml.Unmarshal(file, &layout); err != nil {
		return layout, fmt.Errorf("layout %s: %w", path, err)
	}
	for _, style := range []*relayout.TextStyle{&layout.Branding.Title, &layout.Branding.Subtitle} {
		if style.FontFile == "" {
			continue
		}
		data, err := os.ReadFile(style.FontFile)
		if err != nil {
			return layout, fmt.Errorf("layout %s: %w", path, err)
		}
		style.FontData = data
	}
	if err := layout.Validate(); err != nil {
		return layout, fmt.Errorf("layout %s: %w", path, err)
	}
	return layout, nil
}
