package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/md5"
	"crypto/rc4"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/recovery"
)

func TestDocumentParserParsesClassicXRef(t *testing.T) {
	data := buildClassicPDF()
	p := NewDocumentParser(Config{})

	doc, err := p.Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Trailer == nil {
		t.Fatalf("trailer not captured")
	}
	if got := doc.Version; got != "1.7" {
		t.Fatalf("expected version 1.7, got %q", got)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(doc.Objects))
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 1, Gen: 0}]; !ok {
		t.Fatalf("catalog missing")
	}
}

func TestDocumentParserLaterDefinitionWins(t *testing.T) {
	data := buildIncrementalPDF()
	p := NewDocumentParser(Config{})

	doc, err := p.Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 3, Gen: 0}]; !ok {
		t.Fatalf("incremental object missing")
	}
	obj2, ok := doc.Objects[raw.ObjectRef{Num: 2, Gen: 0}].(*raw.DictObj)
	if !ok {
		t.Fatalf("expected dict for object 2, got %T", doc.Objects[raw.ObjectRef{Num: 2, Gen: 0}])
	}
	if num, ok := obj2.Lookup("Count").(raw.NumberObj); !ok || num.Int() != 2 {
		t.Fatalf("expected Count 2 after update, got %#v", obj2.Lookup("Count"))
	}
	if doc.Trailer.Lookup("Prev") == nil {
		t.Fatalf("Prev not propagated on final trailer")
	}
}

func TestDocumentParserObjectStreams(t *testing.T) {
	data := buildObjectStreamPDF(t)
	doc, err := NewDocumentParser(Config{}).ParseBytes(context.Background(), data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	catalog := doc.Dict(doc.Trailer.Lookup("Root"))
	if catalog == nil {
		t.Fatalf("catalog not resolved through xref stream trailer")
	}
	pages := doc.Dict(catalog.Lookup("Pages"))
	if pages == nil {
		t.Fatalf("pages missing")
	}
	if n, _ := pages.Lookup("Count").(raw.NumberObj); n.Int() != 0 {
		t.Fatalf("unexpected page count %v", pages.Lookup("Count"))
	}
}

func TestDocumentParserStreamWithIndirectLength(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	buf.WriteString("3 0 obj\n<< /Length 4 0 R >>\nstream\nBT (endstream) Tj ET\nendstream\nendobj\n")
	buf.WriteString("4 0 obj\n20\nendobj\n")
	buf.WriteString("trailer\n<< /Root 1 0 R >>\n")

	doc, err := NewDocumentParser(Config{}).ParseBytes(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	stm, ok := doc.Objects[raw.ObjectRef{Num: 3}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("expected stream, got %T", doc.Objects[raw.ObjectRef{Num: 3}])
	}
	// The length object follows the stream, so the payload is cut at the first endstream marker.
	if !bytes.HasPrefix(stm.Data, []byte("BT (")) {
		t.Fatalf("unexpected stream data %q", stm.Data)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 4}]; !ok {
		t.Fatalf("object after a damaged stream must still be found")
	}
}

func TestDocumentParserRebuildsMissingRoot(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.3\n")
	buf.WriteString("7 0 obj\n<< /Type /Catalog /Pages 8 0 R >>\nendobj\n")
	buf.WriteString("8 0 obj\n<< /Type /Pages /Count 0 /Kids [] >>\nendobj\n")

	doc, err := NewDocumentParser(Config{}).ParseBytes(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ref, ok := doc.Trailer.Lookup("Root").(raw.RefObj)
	if !ok || ref.R.Num != 7 {
		t.Fatalf("expected Root 7 0 R, got %v", doc.Trailer.Lookup("Root"))
	}
}

func TestDocumentParserErrors(t *testing.T) {
	p := NewDocumentParser(Config{})
	if _, err := p.ParseBytes(context.Background(), []byte("hello world")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}

	enc := append(buildClassicPDF(), []byte("trailer\n<< /Encrypt 9 0 R >>\n")...)
	if _, err := p.ParseBytes(context.Background(), enc); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}

	noCatalog := []byte("%PDF-1.7\n1 0 obj\n<< /Foo /Bar >>\nendobj\n")
	if _, err := p.ParseBytes(context.Background(), noCatalog); !errors.Is(err, ErrNoCatalog) {
		t.Fatalf("expected ErrNoCatalog, got %v", err)
	}
}

func TestDocumentParserOpensOwnerPasswordOnly(t *testing.T) {
	data := buildEncryptedPDF(t)
	doc, err := NewDocumentParser(Config{}).ParseBytes(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	content, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("content stream missing: %T", doc.Objects[raw.ObjectRef{Num: 4}])
	}
	if string(content.Data) != "BT /F1 12 Tf (SECOND PAGE ONLY) Tj ET" {
		t.Fatalf("content decrypted to %q", content.Data)
	}
	label, _ := doc.Dict(doc.Objects[raw.ObjectRef{Num: 3}]).Lookup("Label").(raw.String)
	if label == nil || string(label.Value()) != "Fitness Report" {
		t.Fatalf("page label decrypted to %v", label)
	}
	if doc.Trailer.Lookup("Encrypt") != nil {
		t.Fatalf("decrypted document should not keep /Encrypt in its trailer")
	}

	// A document that needs a user password still fails.
	locked := bytes.Replace(data, []byte("/P -4"), []byte("/P -8"), 1)
	if _, err := NewDocumentParser(Config{}).ParseBytes(context.Background(), locked); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}

func TestDocumentParserHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDocumentParser(Config{}).ParseBytes(ctx, buildClassicPDF()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDocumentParserRecoveryStrategies(t *testing.T) {
	broken := []byte("%PDF-1.7\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n" +
		"trailer\n<< /Root 1 0 R >>\n")

	if _, err := NewDocumentParser(Config{Recovery: recovery.NewStrictStrategy()}).ParseBytes(context.Background(), broken); err == nil {
		t.Fatalf("expected error with StrictStrategy")
	}

	rec := recovery.NewLenientStrategy()
	doc, err := NewDocumentParser(Config{Recovery: rec}).ParseBytes(context.Background(), broken)
	if err != nil {
		t.Fatalf("expected success with LenientStrategy, got %v", err)
	}
	if doc.Dict(doc.Trailer.Lookup("Root")).Lookup("Pages") == nil {
		t.Fatalf("catalog should keep entries parsed before the damage")
	}
	if len(rec.Errors()) == 0 {
		t.Fatalf("expected the missing >> to be reported")
	}
}

func buildClassicPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	fmt.Fprintf(buf, "xref\n0 3\n")
	fmt.Fprintf(buf, "0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", off1, off2)
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	fmt.Fprintf(buf, "%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func buildIncrementalPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 1 >>\nendobj\n")

	xref1 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", off1, off2)
	fmt.Fprintf(buf, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref1)

	// Incremental update: replace object 2 and add object 3.
	off2b := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 2 >>\nendobj\n")

	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	xref2 := buf.Len()
	fmt.Fprintf(buf, "xref\n2 2\n%010d 00000 n \n%010d 00000 n \n", off2b, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\n", xref1)
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xref2)
	return buf.Bytes()
}

func buildObjectStreamPDF(t *testing.T) []byte {
	t.Helper()
	obj1 := "<< /Type /Catalog /Pages 2 0 R >>"
	obj2 := "<< /Type /Pages /Kids [] /Count 0 >>"
	header := fmt.Sprintf("1 0 2 %d ", len(obj1)+1)
	body := header + obj1 + " " + obj2

	var comp bytes.Buffer
	w := zlib.NewWriter(&comp)
	w.Write([]byte(body))
	w.Close()

	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	fmt.Fprintf(buf, "5 0 obj\n<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>\nstream\n", len(header), comp.Len())
	buf.Write(comp.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	buf.WriteString("6 0 obj\n<< /Type /XRef /Root 1 0 R /Size 7 /Length 0 >>\nstream\n\nendstream\nendobj\n")
	buf.WriteString("startxref\n0\n%%EOF\n")
	return buf.Bytes()
}

// buildEncryptedPDF writes a 40-bit RC4 (R2) document whose user password is empty.
func buildEncryptedPDF(t *testing.T) []byte {
	t.Helper()
	padding := []byte{
		0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
		0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
	}
	fileID := []byte("pdfband-file-id!")
	owner := bytes.Repeat([]byte{0x42}, 32)
	seed := append(append(append([]byte{}, padding...), owner...), 0xFC, 0xFF, 0xFF, 0xFF)
	sum := md5.Sum(append(seed, fileID...))
	key := sum[:5]
	seal := func(num int, plain string) []byte {
		objSum := md5.Sum(append(append([]byte{}, key...), byte(num), 0, 0, 0, 0))
		c, err := rc4.NewCipher(objSum[:10])
		if err != nil {
			t.Fatalf("rc4: %v", err)
		}
		out := make([]byte, len(plain))
		c.XORKeyStream(out, []byte(plain))
		return out
	}
	c, err := rc4.NewCipher(key)
	if err != nil {
		t.Fatalf("rc4: %v", err)
	}
	user := make([]byte, 32)
	c.XORKeyStream(user, padding)

	content := seal(4, "BT /F1 12 Tf (SECOND PAGE ONLY) Tj ET")
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Label <%X> >>\nendobj\n", seal(3, "Fitness Report"))
	fmt.Fprintf(buf, "4 0 obj\n<< /Length %d >>\nstream\n", len(content))
	buf.Write(content)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "5 0 obj\n<< /Filter /Standard /V 1 /R 2 /O <%X> /U <%X> /P -4 >>\nendobj\n", owner, user)
	fmt.Fprintf(buf, "trailer\n<< /Size 6 /Root 1 0 R /Encrypt 5 0 R /ID [<%X> <%X>] >>\n", fileID, fileID)
	buf.WriteString("startxref\n0\n%%EOF\n")
	return buf.Bytes()
}
