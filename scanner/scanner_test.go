package scanner

import (
	"errors"
	"io"
	"testing"

	"github.com/wudi/pdfband/recovery"
)

func newScanner(t *testing.T, data string, cfg Config) Scanner {
	t.Helper()
	return New([]byte(data), cfg)
}

func nextToken(t *testing.T, s Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := newScanner(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj", Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected first token number 1, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Name value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("expected Nums key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	for i := int64(1); i <= 3; i++ {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || !tok.IsInt || tok.Int != i {
			t.Fatalf("expected array number %d, got %+v", i, tok)
		}
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "]" {
		t.Fatalf("expected array close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Flag" {
		t.Fatalf("expected Flag key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true boolean, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Null" {
		t.Fatalf("expected Null key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != ">>" {
		t.Fatalf("expected dict close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "endobj" {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_Strings(t *testing.T) {
	s := newScanner(t, `(a\(b\)c\n\101) (nested (parens) ok) <48656C6C6F> <414>`, Config{})
	if tok := nextToken(t, s); tok.Type != TokenString || string(tok.Bytes) != "a(b)c\nA" {
		t.Fatalf("unexpected literal: %q", tok.Bytes)
	}
	if tok := nextToken(t, s); string(tok.Bytes) != "nested (parens) ok" {
		t.Fatalf("unexpected nested literal: %q", tok.Bytes)
	}
	tok := nextToken(t, s)
	if !tok.Hex || string(tok.Bytes) != "Hello" {
		t.Fatalf("unexpected hex string: %+v", tok)
	}
	if tok = nextToken(t, s); string(tok.Bytes) != "A@" {
		t.Fatalf("odd hex digit should pad with zero, got %q", tok.Bytes)
	}
}

func TestScanner_NameEscapes(t *testing.T) {
	s := newScanner(t, "/A#20B /Type", Config{})
	if tok := nextToken(t, s); tok.Str != "A B" {
		t.Fatalf("expected decoded name, got %q", tok.Str)
	}
	if tok := nextToken(t, s); tok.Str != "Type" {
		t.Fatalf("expected Type, got %q", tok.Str)
	}
}

func TestScanner_References(t *testing.T) {
	s := newScanner(t, "[12 0 R 5 3]", Config{})
	nextToken(t, s)
	tok := nextToken(t, s)
	if tok.Type != TokenRef || tok.Ref.Num != 12 || tok.Ref.Gen != 0 {
		t.Fatalf("expected ref 12 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 5 {
		t.Fatalf("expected 5, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 3 {
		t.Fatalf("expected 3, got %+v", tok)
	}
}

func TestScanner_ContentStreamOperatorsAreNotRefs(t *testing.T) {
	s := newScanner(t, "0 0 RG 1 0 0 rg", Config{ContentStream: true})
	var kinds []TokenType
	for {
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		kinds = append(kinds, tok.Type)
	}
	if len(kinds) != 7 || kinds[2] != TokenKeyword || kinds[6] != TokenKeyword {
		t.Fatalf("unexpected token sequence %v", kinds)
	}

	// Outside content streams a keyword starting with R must still not form a ref.
	s = newScanner(t, "1 0 RG", Config{})
	if tok := nextToken(t, s); tok.Type != TokenNumber {
		t.Fatalf("expected number, got %+v", tok)
	}
}

func TestScanner_Reals(t *testing.T) {
	s := newScanner(t, "-.5 3.25 +7 --2", Config{})
	want := []float64{-0.5, 3.25, 7, 2}
	for _, w := range want {
		tok := nextToken(t, s)
		if tok.Type != TokenNumber {
			t.Fatalf("expected number, got %+v", tok)
		}
		if tok.Number() != w {
			t.Fatalf("expected %v, got %v", w, tok.Number())
		}
	}
}

func TestScanner_StreamWithLength(t *testing.T) {
	data := "<< /Length 5 >>\nstream\nhello\nendstream"
	s := newScanner(t, data, Config{})
	for i := 0; i < 4; i++ {
		nextToken(t, s)
	}
	s.SetNextStreamLength(5)
	tok := nextToken(t, s)
	if tok.Type != TokenStream || string(tok.Bytes) != "hello" {
		t.Fatalf("unexpected stream token %+v", tok)
	}
}

func TestScanner_StreamBadLengthRecovers(t *testing.T) {
	data := "stream\nhello world\nendstream endobj"
	rec := recovery.NewLenientStrategy()
	s := newScanner(t, data, Config{Recovery: rec})
	s.SetNextStreamLength(3)
	tok := nextToken(t, s)
	if string(tok.Bytes) != "hello world" {
		t.Fatalf("expected marker search fallback, got %q", tok.Bytes)
	}
	if len(rec.Errors()) != 1 {
		t.Fatalf("expected one recovered error, got %d", len(rec.Errors()))
	}
	if tok = nextToken(t, s); tok.Str != "endobj" {
		t.Fatalf("expected endobj after stream, got %+v", tok)
	}

	s = newScanner(t, data, Config{Recovery: recovery.NewStrictStrategy()})
	s.SetNextStreamLength(3)
	if _, err := s.Next(); err == nil {
		t.Fatalf("strict strategy should fail on length mismatch")
	}
}

func TestScanner_InlineImage(t *testing.T) {
	s := newScanner(t, "BI /W 1 /H 1 ID \x00\xffEIx EI Q", Config{ContentStream: true})
	var img Token
	for {
		tok := nextToken(t, s)
		if tok.Type == TokenInlineImage {
			img = tok
			break
		}
	}
	if string(img.Bytes) != "\x00\xffEIx" {
		t.Fatalf("unexpected inline image payload %q", img.Bytes)
	}
	if tok := nextToken(t, s); tok.Str != "Q" {
		t.Fatalf("expected Q after image, got %+v", tok)
	}
}

func TestScanner_UnterminatedString(t *testing.T) {
	if _, err := newScanner(t, "(abc", Config{}).Next(); err == nil {
		t.Fatalf("expected error without recovery")
	}
	tok := nextToken(t, newScanner(t, "(abc", Config{Recovery: recovery.NewLenientStrategy()}))
	if string(tok.Bytes) != "abc" {
		t.Fatalf("lenient scan should keep partial string, got %q", tok.Bytes)
	}
}
