package fonts_test

import (
	"math"
	"testing"

	"github.com/go-text/typesetting/language"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/wudi/pdfband/fonts"
)

func TestDetectScript(t *testing.T) {
	cases := []struct {
		text string
		want language.Script
	}{
		{"PERSONAL INFORMATION SUMMARY", language.Latin},
		{"12 345", language.Latin},
		{"Фитнес клуб", language.Cyrillic},
		{"نادي اللياقة", language.Arabic},
		{"Club مرحبا بكم", language.Arabic},
		{"健身俱乐部", language.Han},
	}
	for _, tc := range cases {
		if got := fonts.DetectScript([]rune(tc.text)); got != tc.want {
			t.Fatalf("%q: got %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestShapedWidthScalesWithSize(t *testing.T) {
	tt, err := fonts.LoadTrueType("GoBold", gobold.TTF)
	if err != nil {
		t.Fatalf("load truetype: %v", err)
	}
	if tt.Shape("") != nil {
		t.Fatalf("empty text should shape to nothing")
	}
	small := tt.TextWidth("M&Y Fitness Club", 14)
	large := tt.TextWidth("M&Y Fitness Club", 28)
	if small <= 0 || math.Abs(large-2*small) > 1e-9 {
		t.Fatalf("width at 14pt %v, at 28pt %v", small, large)
	}
	var sum float64
	for _, g := range tt.Shape("M&Y") {
		sum += g.XAdvance
	}
	if w := tt.TextWidth("M&Y", 1000); math.Abs(w-sum) > 1e-9 {
		t.Fatalf("width at 1000pt %v, summed advances %v", w, sum)
	}
}
