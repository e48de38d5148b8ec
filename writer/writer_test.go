package writer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/wudi/pdfband/builder"
	"github.com/wudi/pdfband/coords"
	"github.com/wudi/pdfband/extractor"
	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/ir/semantic"
	"github.com/wudi/pdfband/parser"
	"github.com/wudi/pdfband/writer"
)

func sourcePDF(width, height float64, content string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.7\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	fmt.Fprintf(&b, "3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>\nendobj\n", width, height)
	fmt.Fprintf(&b, "4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content)
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>\nendobj\n")
	b.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\n%%EOF\n")
	return []byte(b.String())
}

func parse(t *testing.T, data []byte) (*semantic.Document, *parser.DocumentParser) {
	t.Helper()
	p := parser.NewDocumentParser(parser.Config{})
	rawDoc, err := p.ParseBytes(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	doc, err := semantic.BuildDocument(rawDoc)
	if err != nil {
		t.Fatalf("build document: %v", err)
	}
	return doc, p
}

func write(t *testing.T, doc *builder.Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := (&writer.WriterBuilder{}).Build()
	if err := w.Write(context.Background(), doc, &buf, writer.DefaultConfig()); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func search(t *testing.T, data []byte, page int, query string) []coords.Rect {
	t.Helper()
	doc, p := parse(t, data)
	ext, err := extractor.New(doc, p.Pipeline())
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	pt, err := ext.PageText(context.Background(), page)
	if err != nil {
		t.Fatalf("page text: %v", err)
	}
	return pt.Search(query, extractor.SearchOptions{})
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func TestWriteRoundTripText(t *testing.T) {
	b := builder.NewBuilder()
	b.SetInfo(semantic.DocumentInfo{Title: "Körper"})
	b.NewPage(300, 200).DrawText("Hello Band", 20, 150, builder.TextOptions{FontSize: 12}).Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data := write(t, doc)
	if !bytes.HasPrefix(data, []byte("%PDF-1.7\n")) || !bytes.HasSuffix(data, []byte("%%EOF\n")) {
		t.Fatalf("missing header or trailer")
	}
	if !bytes.Contains(data, []byte("/Producer (pdfband)")) {
		t.Fatalf("producer not written")
	}

	parsed, _ := parse(t, data)
	if len(parsed.Pages) != 1 || parsed.Pages[0].Width() != 300 || parsed.Pages[0].Height() != 200 {
		t.Fatalf("unexpected pages: %+v", parsed.Pages)
	}
	boxes := search(t, data, 0, "hello band")
	if len(boxes) != 1 {
		t.Fatalf("expected one match, got %v", boxes)
	}
	if !near(boxes[0].X0, 20) || !near(boxes[0].Y0, 200-150-0.718*12) {
		t.Fatalf("unexpected box %+v", boxes[0])
	}
}

func TestWriteTranscludedPage(t *testing.T) {
	src, _ := parse(t, sourcePDF(600, 800, "BT /F1 12 Tf 50 700 Td (Fat Analysis) Tj ET\nBT /F1 12 Tf 50 100 Td (Footer) Tj ET"))
	b := builder.NewBuilder()
	b.NewPage(600, 100).
		ShowPage(src.Pages[0], src.Raw, coords.Rect{X0: 0, Y0: 50, X1: 600, Y1: 150}, coords.Rect{X0: 0, Y0: 0, X1: 600, Y1: 100}).
		Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data := write(t, doc)

	boxes := search(t, data, 0, "Fat Analysis")
	if len(boxes) != 1 {
		t.Fatalf("expected transcluded text, got %v", boxes)
	}
	if !near(boxes[0].X0, 50) || !near(boxes[0].Y0, 50-0.718*12) {
		t.Fatalf("unexpected box %+v", boxes[0])
	}
	if got := search(t, data, 0, "Footer"); len(got) != 0 {
		t.Fatalf("clipped text should not be visible: %v", got)
	}
}

func TestWriteTrueTypeFont(t *testing.T) {
	b := builder.NewBuilder().RegisterTrueTypeFont("Go", goregular.TTF)
	b.NewPage(300, 100).DrawText("Hello", 10, 50, builder.TextOptions{Font: "Go", FontSize: 20}).Finish()
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data := write(t, doc)
	boxes := search(t, data, 0, "Hello")
	if len(boxes) != 1 {
		t.Fatalf("expected text to survive through ToUnicode, got %v", boxes)
	}
	if !near(boxes[0].X0, 10) {
		t.Fatalf("unexpected box %+v", boxes[0])
	}
}

func TestWriteNoPages(t *testing.T) {
	w := (&writer.WriterBuilder{}).Build()
	err := w.Write(context.Background(), &builder.Document{}, &bytes.Buffer{}, writer.Config{})
	if !errors.Is(err, writer.ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}

type countingInterceptor struct{ before, after int }

func (c *countingInterceptor) BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error {
	c.before++
	return nil
}

func (c *countingInterceptor) AfterWrite(ctx context.Context, ref raw.ObjectRef, n int64) error {
	c.after++
	return nil
}

func TestInterceptorSeesEveryObject(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(100, 100).DrawText("x", 0, 0, builder.TextOptions{}).Finish()
	doc, _ := b.Build()
	ic := &countingInterceptor{}
	w := (&writer.WriterBuilder{}).WithInterceptor(ic).Build()
	if err := w.Write(context.Background(), doc, &bytes.Buffer{}, writer.Config{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// catalog, pages, font, content, page, info
	if ic.before != 6 || ic.after != 6 {
		t.Fatalf("interceptor saw %d/%d objects, want 6", ic.before, ic.after)
	}
}
