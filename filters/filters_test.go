package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfband/ir/raw"
)

func TestFlateDecode(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeZlib(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write([]byte("BT /F1 12 Tf (Hi) Tj ET"))
	w.Close()

	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "BT /F1 12 Tf (Hi) Tj ET" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeTruncated(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(bytes.Repeat([]byte("0123456789"), 100))
	w.Close()
	data := buf.Bytes()
	// Drop the checksum and the final block terminator.
	out, err := NewFlateDecoder().Decode(context.Background(), data[:len(data)-6], nil)
	if err != nil {
		t.Fatalf("truncated stream should decode partially, got %v", err)
	}
	if len(out) == 0 || !bytes.HasPrefix(bytes.Repeat([]byte("0123456789"), 100), out) {
		t.Fatalf("unexpected partial output length %d", len(out))
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	var comp bytes.Buffer
	w, _ := flate.NewWriter(&comp, flate.BestSpeed)
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	w.Write([]byte{1, 10, 12, 20})
	w.Close()

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), comp.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGUpPredictorAcrossRows(t *testing.T) {
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(2))
	out, err := applyPredictor([]byte{0, 1, 2, 2, 1, 1}, params)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 2, 2, 3}) {
		t.Fatalf("unexpected rows %v", out)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "EarlyChange"}, raw.NumberInt(0))
	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	dec := NewRunLengthDecoder()
	out, err := dec.Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	dec := NewASCII85Decoder()
	out, err := dec.Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	dec := NewASCIIHexDecoder()
	out, err := dec.Decode(context.Background(), []byte("68656c6c 6f20776f726c64>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	var comp bytes.Buffer
	w := zlib.NewWriter(&comp)
	w.Write([]byte("chained"))
	w.Close()
	hexed := []byte{}
	for _, b := range comp.Bytes() {
		hexed = append(hexed, "0123456789ABCDEF"[b>>4], "0123456789ABCDEF"[b&0xF])
	}
	hexed = append(hexed, '>')

	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"AHx", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("pipeline decode error: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDecodeStreamResolvesFilterRefs(t *testing.T) {
	var comp bytes.Buffer
	w := zlib.NewWriter(&comp)
	w.Write([]byte("q Q"))
	w.Close()

	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		{Num: 9}: raw.NameLiteral("FlateDecode"),
	}}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.Ref(9, 0))
	out, err := NewDefaultPipeline(DefaultLimits()).DecodeStream(context.Background(), doc, raw.NewStream(dict, comp.Bytes()))
	if err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	if string(out) != "q Q" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	fp := NewDefaultPipeline(Limits{})
	_, err := fp.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter in chain, got %v", err)
	}
}

func TestSizeLimit(t *testing.T) {
	var comp bytes.Buffer
	w := zlib.NewWriter(&comp)
	w.Write(bytes.Repeat([]byte{'x'}, 4096))
	w.Close()

	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 1024})
	_, err := p.Decode(context.Background(), comp.Bytes(), []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}
