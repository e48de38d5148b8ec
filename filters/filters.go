package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wudi/pdfband/ir/raw"
)

var (
	// ErrUnsupportedFilter is returned for filters this package does not decode.
	ErrUnsupportedFilter = errors.New("unsupported filter")
	// ErrSizeLimit is returned when decoded output would exceed Limits.MaxDecompressedSize.
	ErrSizeLimit = errors.New("decompressed size exceeds limit")
)

// UnsupportedError names the filter that could not be decoded.
type UnsupportedError struct {
	Filter string
}

func (e UnsupportedError) Error() string { return "unsupported filter: " + e.Filter }
func (e UnsupportedError) Unwrap() error { return ErrUnsupportedFilter }

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline registers every decoder this package implements.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
		NewCryptDecoder(),
	}, limits)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// DefaultLimits bounds a single decoded stream to 256 MiB.
func DefaultLimits() Limits {
	return Limits{MaxDecompressedSize: 256 << 20, MaxDecodeTime: 30 * time.Second}
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// abbreviations allowed in inline images (ISO 32000-1 Table 94).
var abbreviations = map[string]string{
	"Fl":  "FlateDecode",
	"LZW": "LZWDecode",
	"A85": "ASCII85Decode",
	"AHx": "ASCIIHexDecode",
	"RL":  "RunLengthDecode",
	"DCT": "DCTDecode",
	"CCF": "CCITTFaxDecode",
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if full, ok := abbreviations[name]; ok {
			name = full
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, UnsupportedError{Filter: name}
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(withLimit(ctx, p.limits.MaxDecompressedSize), data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrSizeLimit
		}
		data = out
	}
	return data, nil
}

// DecodeStream resolves the stream's Filter and DecodeParms entries against doc and decodes its data.
func (p *Pipeline) DecodeStream(ctx context.Context, doc *raw.Document, s *raw.StreamObj) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	names, params := ExtractFilters(doc, s.Dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	return p.Decode(ctx, s.Data, names, params)
}

type limitKey struct{}

func withLimit(ctx context.Context, n int64) context.Context {
	if n <= 0 {
		return ctx
	}
	return context.WithValue(ctx, limitKey{}, n)
}

func limitFrom(ctx context.Context) int64 {
	if n, ok := ctx.Value(limitKey{}).(int64); ok {
		return n
	}
	return 0
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

// Decode accepts zlib-wrapped data as written by conforming producers and raw deflate as a fallback.
// Truncated streams yield whatever was inflated before the damage.
func (flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var r io.ReadCloser
	if zr, err := zlib.NewReader(bytes.NewReader(in)); err == nil {
		r = zr
	} else {
		r = flate.NewReader(bytes.NewReader(in))
	}
	defer r.Close()

	out, err := readLimited(ctx, r)
	if err != nil {
		if errors.Is(err, ErrSizeLimit) || len(out) == 0 {
			return nil, err
		}
	}
	return applyPredictor(out, params)
}

func readLimited(ctx context.Context, r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	limit := limitFrom(ctx)
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	_, err := io.Copy(&out, r)
	if limit > 0 && int64(out.Len()) > limit {
		return nil, ErrSizeLimit
	}
	return out.Bytes(), err
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := 1
	if v, ok := intParam(params, "EarlyChange"); ok {
		early = v
	}
	out, err := lzwDecode(in, early, limitFrom(ctx))
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

func lzwDecode(in []byte, early int, limit int64) ([]byte, error) {
	const (
		clearCode = 256
		eodCode   = 257
	)
	var out bytes.Buffer
	table := make([][]byte, 4096)
	for i := 0; i < 256; i++ {
		table[i] = []byte{byte(i)}
	}
	next, width := 258, 9
	var prev []byte
	var bitbuf uint32
	var nbits int
	pos := 0
	for {
		for nbits < width {
			if pos >= len(in) {
				return out.Bytes(), nil
			}
			bitbuf = bitbuf<<8 | uint32(in[pos])
			pos++
			nbits += 8
		}
		code := int(bitbuf>>uint(nbits-width)) & (1<<width - 1)
		nbits -= width
		switch code {
		case clearCode:
			next, width, prev = 258, 9, nil
			continue
		case eodCode:
			return out.Bytes(), nil
		}
		var entry []byte
		switch {
		case code < next && table[code] != nil:
			entry = table[code]
		case code == next && prev != nil:
			entry = append(append([]byte(nil), prev...), prev[0])
		default:
			return nil, fmt.Errorf("invalid LZW code %d", code)
		}
		out.Write(entry)
		if limit > 0 && int64(out.Len()) > limit {
			return nil, ErrSizeLimit
		}
		if prev != nil && next < 4096 {
			table[next] = append(append([]byte(nil), prev...), entry[0])
			next++
		}
		prev = entry
		if next+early >= 1<<width && width < 12 {
			width++
		}
	}
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if isHexDigit(c) {
			digits = append(digits, c)
		}
	}
	// if odd length, pad with 0 per ISO 32000-1 7.4.2
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func NewRunLengthDecoder() Decoder    { return runLengthDecoder{} }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				end = len(in)
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return out.Bytes(), nil
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}

// cryptDecoder handles the Identity crypt filter; anything else needs decryption support.
type cryptDecoder struct{}

func (cryptDecoder) Name() string { return "Crypt" }
func NewCryptDecoder() Decoder    { return cryptDecoder{} }

func (cryptDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	if params != nil {
		if n, ok := params.Lookup("Name").(raw.NameObj); ok && n.Val != "Identity" {
			return nil, UnsupportedError{Filter: "Crypt/" + n.Val}
		}
	}
	return in, nil
}
