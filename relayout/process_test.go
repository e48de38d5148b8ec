package relayout

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/wudi/pdfband/builder"
	"github.com/wudi/pdfband/extractor"
	"github.com/wudi/pdfband/fonts"
	"github.com/wudi/pdfband/ir/semantic"
	"github.com/wudi/pdfband/observability"
	"github.com/wudi/pdfband/parser"
	"github.com/wudi/pdfband/writer"
)

const fixtureSize = 12

type textAt struct {
	text string
	y0   float64 // top of the glyph boxes, measured from the top of the page
}

// reportPDF writes a one-page document with Helvetica lines placed so that their
// located boxes start exactly at the requested y0.
func reportPDF(t *testing.T, width, height float64, lines ...textAt) []byte {
	t.Helper()
	return multiPagePDF(t, width, height, lines)
}

// multiPagePDF writes one equally sized page per entry of pages.
func multiPagePDF(t *testing.T, width, height float64, pages ...[]textAt) []byte {
	t.Helper()
	b := builder.NewBuilder()
	for _, lines := range pages {
		page := b.NewPage(width, height)
		for _, l := range lines {
			baseline := l.y0 + 0.718*fixtureSize
			page.DrawText(l.text, 50, height-baseline, builder.TextOptions{FontSize: fixtureSize})
		}
		page.Finish()
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	var buf bytes.Buffer
	if err := (&writer.WriterBuilder{}).Build().Write(context.Background(), doc, &buf, writer.DefaultConfig()); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return buf.Bytes()
}

type outputDoc struct {
	doc *semantic.Document
	ext *extractor.Extractor
}

func openOutput(t *testing.T, data []byte) *outputDoc {
	t.Helper()
	p := parser.NewDocumentParser(parser.Config{})
	rawDoc, err := p.ParseBytes(context.Background(), data)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	doc, err := semantic.BuildDocument(rawDoc)
	if err != nil {
		t.Fatalf("output pages: %v", err)
	}
	ext, err := extractor.New(doc, p.Pipeline())
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return &outputDoc{doc: doc, ext: ext}
}

func (o *outputDoc) search(t *testing.T, page int, query string) int {
	t.Helper()
	pt, err := o.ext.PageText(context.Background(), page)
	if err != nil {
		t.Fatalf("page %d text: %v", page, err)
	}
	return len(pt.Search(query, extractor.SearchOptions{}))
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func assertBranding(t *testing.T, out *outputDoc) {
	t.Helper()
	l := DefaultLayout().Branding
	for i := range out.doc.Pages {
		want := 0
		if i == 0 {
			want = 1
		}
		if got := out.search(t, i, l.Title.Text); got != want {
			t.Fatalf("page %d: title found %d times, want %d", i, got, want)
		}
		if got := out.search(t, i, l.Subtitle.Text); got != want {
			t.Fatalf("page %d: subtitle found %d times, want %d", i, got, want)
		}
	}
}

func TestProcessSplitsAtSections(t *testing.T) {
	input := reportPDF(t, 600, 1000,
		textAt{"Body Composition", 300},
		textAt{"Body Composition", 650},
		textAt{"Fat Analysis", 750},
		textAt{"Metabolic Indicators", 850},
		textAt{"Body Composition", 880},
		textAt{"TRANSFORM YOUR BODY", 950},
	)
	res, err := New(DefaultLayout()).Process(context.Background(), input)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !bytes.HasPrefix(res.PDF, []byte("%PDF-")) || !bytes.HasSuffix(res.PDF, []byte("\n%%EOF\n")) {
		t.Fatalf("output is not framed by a header and %%%%EOF marker: %q", res.PDF[max(0, len(res.PDF)-32):])
	}
	wantPoints := []float64{0, 630, 730, 830, 925}
	if len(res.Analysis.SplitPoints) != len(wantPoints) {
		t.Fatalf("split points = %v, want %v", res.Analysis.SplitPoints, wantPoints)
	}
	for i, p := range wantPoints {
		if !near(res.Analysis.SplitPoints[i], p) {
			t.Fatalf("split points = %v, want %v", res.Analysis.SplitPoints, wantPoints)
		}
	}

	out := openOutput(t, res.PDF)
	wantHeights := []float64{630, 100, 100, 95}
	if len(out.doc.Pages) != len(wantHeights) || res.Pages != len(wantHeights) {
		t.Fatalf("got %d pages, want %d", len(out.doc.Pages), len(wantHeights))
	}
	for i, h := range wantHeights {
		p := out.doc.Pages[i]
		if !near(p.Height(), h) || p.Width() != 600 {
			t.Fatalf("page %d is %vx%v, want 600x%v", i, p.Width(), p.Height(), h)
		}
	}
	assertBranding(t, out)

	// Each section heading lands 20 units below the top of its own page.
	for i, kw := range []string{"Body Composition", "Fat Analysis", "Metabolic Indicators"} {
		pt, err := out.ext.PageText(context.Background(), i+1)
		if err != nil {
			t.Fatalf("page text: %v", err)
		}
		boxes := pt.Search(kw, extractor.SearchOptions{})
		if len(boxes) != 1 || !near(boxes[0].Y0, 20) {
			t.Fatalf("page %d: %q boxes %v, want one at y0=20", i+1, kw, boxes)
		}
	}
	if got := out.search(t, 1, "Fat Analysis"); got != 0 {
		t.Fatalf("text of the next band leaked onto page 2")
	}
	if got := out.search(t, 3, "TRANSFORM YOUR BODY"); got != 0 {
		t.Fatalf("content past the end boundary must be excluded")
	}
}

func TestProcessUsesFirstPageOnly(t *testing.T) {
	input := multiPagePDF(t, 600, 1000,
		[]textAt{{"Body Composition", 650}},
		[]textAt{{"SECOND PAGE ONLY", 100}, {"Fat Analysis", 400}, {"TRANSFORM YOUR BODY", 500}},
	)
	res, err := New(DefaultLayout()).Process(context.Background(), input)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Analysis.PageCount != 2 {
		t.Fatalf("page count = %d, want 2", res.Analysis.PageCount)
	}
	want := []float64{0, 630, 1000}
	if len(res.Analysis.SplitPoints) != len(want) {
		t.Fatalf("split points = %v, want %v", res.Analysis.SplitPoints, want)
	}
	for i, p := range want {
		if math.Abs(res.Analysis.SplitPoints[i]-p) > 0.05 {
			t.Fatalf("split points = %v, want %v", res.Analysis.SplitPoints, want)
		}
	}
	if !bytes.HasSuffix(res.PDF, []byte("%%EOF\n")) {
		t.Fatalf("output does not end with %%%%EOF")
	}

	out := openOutput(t, res.PDF)
	if len(out.doc.Pages) != 2 || res.Pages != 2 {
		t.Fatalf("got %d pages, want 2", len(out.doc.Pages))
	}
	for i := range out.doc.Pages {
		if got := out.search(t, i, "SECOND PAGE ONLY"); got != 0 {
			t.Fatalf("page %d shows text from the second input page", i)
		}
	}
	if got := out.search(t, 1, "Body Composition"); got != 1 {
		t.Fatalf("section heading found %d times on page 2, want 1", got)
	}
}

func TestProcessBrandingGeometry(t *testing.T) {
	input := reportPDF(t, 600, 800, textAt{"Summary", 300})
	res, err := New(DefaultLayout()).Process(context.Background(), input)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	out := openOutput(t, res.PDF)
	pt, err := out.ext.PageText(context.Background(), 0)
	if err != nil {
		t.Fatalf("page text: %v", err)
	}
	br := DefaultLayout().Branding
	boxes := pt.Search(br.Title.Text, extractor.SearchOptions{CaseSensitive: true})
	if len(boxes) != 1 {
		t.Fatalf("title boxes = %v", boxes)
	}
	width := fonts.StandardTextWidth("Helvetica-Bold", br.Title.Text, br.Title.Size)
	if !near(boxes[0].X0, (600-width)/2) || !near(boxes[0].Y0, 45-0.718*28) {
		t.Fatalf("title box %+v, want x0=%v y0=%v", boxes[0], (600-width)/2, 45-0.718*28)
	}
	sub := pt.Search(br.Subtitle.Text, extractor.SearchOptions{CaseSensitive: true})
	subWidth := fonts.StandardTextWidth("Helvetica", br.Subtitle.Text, br.Subtitle.Size)
	if len(sub) != 1 || !near(sub[0].X0, (600-subWidth)/2) || !near(sub[0].Y0, 70-0.718*12) {
		t.Fatalf("subtitle boxes = %v", sub)
	}
}

func TestProcessWithoutMarkers(t *testing.T) {
	input := reportPDF(t, 595, 842, textAt{"Nothing to see", 100})
	res, err := New(DefaultLayout()).Process(context.Background(), input)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if want := []float64{0, 842}; !equalPoints(res.Analysis.SplitPoints, want) {
		t.Fatalf("split points = %v, want %v", res.Analysis.SplitPoints, want)
	}
	out := openOutput(t, res.PDF)
	if len(out.doc.Pages) != 1 || !near(out.doc.Pages[0].Height(), 842) {
		t.Fatalf("expected one full-height page")
	}
	assertBranding(t, out)
}

func TestProcessEmptyDocument(t *testing.T) {
	var b strings.Builder
	b.WriteString("%PDF-1.7\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	b.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n%%EOF\n")

	var logs bytes.Buffer
	logger := observability.NewSlogLogger(newTestSlog(&logs))
	res, err := New(DefaultLayout(), WithLogger(logger)).Process(context.Background(), []byte(b.String()))
	if !errors.Is(err, ErrEmptyDocument) || res != nil {
		t.Fatalf("expected ErrEmptyDocument, got %v %v", res, err)
	}
	if !IsFailure(err) {
		t.Fatalf("empty document must count as failure")
	}
	if !strings.Contains(logs.String(), "empty document") {
		t.Fatalf("failure not logged: %q", logs.String())
	}
}

func TestProcessMalformedInput(t *testing.T) {
	_, err := New(DefaultLayout()).Process(context.Background(), []byte("definitely not a pdf"))
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Stage != StageParse {
		t.Fatalf("expected parse stage error, got %v", err)
	}
	if !IsFailure(err) || errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("malformed input is a processing failure, not an empty document")
	}
}

func TestProcessBrandsFirstEmittedPage(t *testing.T) {
	layout := DefaultLayout()
	layout.SummaryFloor = -1
	layout.MarkerOffset = 0
	layout.MinGap = 0
	input := reportPDF(t, 600, 400, textAt{"Body Composition", 0.5}, textAt{"Fat Analysis", 200})
	res, err := New(layout).Process(context.Background(), input)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if b := res.Analysis.Bands[0]; b.Height() > 1 {
		t.Fatalf("first band should be degenerate, got %+v", b)
	}
	out := openOutput(t, res.PDF)
	if len(out.doc.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(out.doc.Pages))
	}
	assertBranding(t, out)
}

func TestProcessBrandingDisabled(t *testing.T) {
	layout := DefaultLayout()
	layout.Branding.Enabled = false
	res, err := New(layout).Process(context.Background(), reportPDF(t, 300, 300, textAt{"x", 10}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	out := openOutput(t, res.PDF)
	if got := out.search(t, 0, layout.Branding.Title.Text); got != 0 {
		t.Fatalf("branding drawn while disabled")
	}
}

func TestProcessBadBrandingFont(t *testing.T) {
	layout := DefaultLayout()
	layout.Branding.Title.Font = "NoSuchFont"
	_, err := New(layout).Process(context.Background(), reportPDF(t, 300, 300))
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Stage != StageBrand {
		t.Fatalf("expected brand stage error, got %v", err)
	}
}

func TestProcessBrandingOutsideWinAnsi(t *testing.T) {
	layout := DefaultLayout()
	layout.Branding.Title.Text = "健身俱乐部"
	_, err := New(layout).Process(context.Background(), reportPDF(t, 300, 300))
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Stage != StageBrand {
		t.Fatalf("expected brand stage error, got %v", err)
	}
}

func TestLayoutValidate(t *testing.T) {
	if err := DefaultLayout().Validate(); err != nil {
		t.Fatalf("default layout invalid: %v", err)
	}
	l := DefaultLayout()
	l.MinGap = -1
	l.SectionMarkers = append(l.SectionMarkers, "")
	if err := l.Validate(); err == nil {
		t.Fatalf("expected validation errors")
	}

	l = DefaultLayout()
	l.Branding.Subtitle.Text = "Clube ✓"
	if err := l.Validate(); err == nil || !strings.Contains(err.Error(), "branding.subtitle.text") {
		t.Fatalf("expected subtitle encoding error, got %v", err)
	}
	l.Branding.Subtitle.FontFile = "fonts/NotoSans.ttf"
	if err := l.Validate(); err != nil {
		t.Fatalf("embedded font should accept any text: %v", err)
	}
}
