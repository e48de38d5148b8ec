package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/observability"
	"github.com/wudi/pdfband/recovery"
	"github.com/wudi/pdfband/scanner"
	"github.com/wudi/pdfband/security"
)

var (
	// ErrNotPDF is returned when the input carries no %PDF- header.
	ErrNotPDF = errors.New("not a PDF file")
	// ErrEncrypted is returned for encrypted documents that do not open with the empty user password.
	ErrEncrypted = errors.New("encrypted document cannot be opened")
	// ErrNoCatalog is returned when no document catalog can be located.
	ErrNoCatalog = errors.New("document catalog not found")
)

// Config controls PDF parsing.
type Config struct {
	// Recovery decides how malformed objects are handled. Nil means lenient.
	Recovery recovery.Strategy
	Limits   filters.Limits
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document by scanning the file for indirect object definitions.
// Cross-reference tables are not consulted: the last definition of an object number wins,
// which matches how incremental updates append replacement objects.
type DocumentParser struct {
	cfg      Config
	pipeline *filters.Pipeline
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	if cfg.Limits == (filters.Limits{}) {
		cfg.Limits = filters.DefaultLimits()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{cfg: cfg, pipeline: filters.NewDefaultPipeline(cfg.Limits)}
}

// Pipeline exposes the filter pipeline used for object streams so callers decode content consistently.
func (p *DocumentParser) Pipeline() *filters.Pipeline { return p.pipeline }

func (p *DocumentParser) Parse(ctx context.Context, r io.Reader) (*raw.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return p.ParseBytes(ctx, data)
}

type definition struct {
	ref raw.ObjectRef
	pos int64
	sub int // index inside an object stream
	obj raw.Object
}

func (p *DocumentParser) ParseBytes(ctx context.Context, data []byte) (*raw.Document, error) {
	header := bytes.Index(data[:min(len(data), 1024)], []byte("%PDF-"))
	if header < 0 {
		return nil, ErrNotPDF
	}
	doc := &raw.Document{
		Objects: make(map[raw.ObjectRef]raw.Object),
		Version: detectHeaderVersion(data[header:]),
	}

	defs, trailers, err := p.scan(ctx, data)
	if err != nil {
		return nil, err
	}
	trailer := mergeTrailers(trailers)
	if trailer == nil {
		trailer = xrefStreamTrailer(defs)
	}
	if trailer == nil {
		trailer = raw.Dict()
	}
	if trailer.Lookup("Encrypt") != nil {
		if err := p.decrypt(trailer, defs); err != nil {
			return nil, err
		}
	}
	defs = append(defs, p.expandObjectStreams(ctx, defs)...)
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].pos != defs[j].pos {
			return defs[i].pos < defs[j].pos
		}
		return defs[i].sub < defs[j].sub
	})
	latest := make(map[int]definition, len(defs))
	for _, d := range defs {
		latest[d.ref.Num] = d
	}
	for _, d := range latest {
		doc.Objects[d.ref] = d.obj
	}

	doc.Trailer = trailer
	delete(doc.Trailer.KV, "Encrypt")
	if err := ensureCatalog(doc); err != nil {
		return nil, err
	}
	if v, ok := doc.Name(doc.Dict(doc.Trailer.Lookup("Root")).Lookup("Version")); ok && v > doc.Version {
		doc.Version = v
	}

	p.cfg.Logger.Debug("parsed document",
		observability.String("version", doc.Version),
		observability.Int("objects", len(doc.Objects)),
		observability.Int("trailers", len(trailers)))
	return doc, nil
}

// decrypt opens the Standard security handler with the empty user password and
// decrypts every top-level definition in place. Object stream members are decrypted
// through their container. The encryption dictionary and cross-reference streams
// are stored in clear.
func (p *DocumentParser) decrypt(trailer *raw.DictObj, defs []definition) error {
	var encRef raw.ObjectRef
	encObj := trailer.Lookup("Encrypt")
	if ref, ok := encObj.(raw.RefObj); ok {
		encRef = ref.Ref()
		encObj = nil
		for _, d := range defs {
			if d.ref == encRef {
				encObj = d.obj
			}
		}
	}
	encDict, _ := encObj.(*raw.DictObj)
	var fileID []byte
	if ids, ok := trailer.Lookup("ID").(*raw.ArrayObj); ok && len(ids.Items) > 0 {
		if s, ok := ids.Items[0].(raw.String); ok {
			fileID = s.Value()
		}
	}
	handler, err := security.NewStandardHandler(encDict, fileID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncrypted, err)
	}
	for i, d := range defs {
		if encRef != (raw.ObjectRef{}) && d.ref == encRef {
			continue
		}
		if stm, ok := d.obj.(*raw.StreamObj); ok {
			if t, _ := stm.Dict.Lookup("Type").(raw.NameObj); t.Val == "XRef" {
				continue
			}
		}
		obj, err := handler.DecryptObject(d.ref, d.obj)
		if err != nil {
			if !tolerate(p.cfg.Recovery, fmt.Errorf("decrypt object: %w", err), d.ref.Num, d.ref.Gen) {
				return fmt.Errorf("decrypt object %s: %w", d.ref, err)
			}
			p.cfg.Logger.Warn("object decryption failed",
				observability.Int("object", d.ref.Num),
				observability.Error("error", err))
			continue
		}
		defs[i].obj = obj
	}
	p.cfg.Logger.Debug("decrypted document", observability.Int("objects", len(defs)))
	return nil
}

// scan walks every token of the file collecting "N G obj" definitions and trailer dictionaries.
func (p *DocumentParser) scan(ctx context.Context, data []byte) ([]definition, []*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{
		Recovery:        p.cfg.Recovery,
		MaxStreamLength: p.cfg.Limits.MaxDecompressedSize,
	})
	tr := newTokenReader(s)
	var defs []definition
	var trailers []*raw.DictObj
	known := make(map[int]raw.Object)

	for iter := 0; ; iter++ {
		if iter%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		tok, err := tr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if !tolerate(p.cfg.Recovery, err, 0, 0) {
				return nil, nil, err
			}
			continue
		}

		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			if obj, err := parseObject(tr, p.cfg.Recovery, 0, 0); err == nil {
				if d, ok := obj.(*raw.DictObj); ok {
					trailers = append(trailers, d)
				}
			}
			continue
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt || tok.Int < 0 {
			continue
		}

		genTok, err := tr.next()
		if err != nil {
			continue
		}
		if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
			tr.unread(genTok)
			continue
		}
		objTok, err := tr.next()
		if err != nil {
			continue
		}
		if objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
			tr.unread(objTok)
			tr.unread(genTok)
			continue
		}

		ref := raw.ObjectRef{Num: int(tok.Int), Gen: int(genTok.Int)}
		obj, err := p.parseIndirect(tr, known, ref)
		if err != nil {
			loc := recovery.Location{ByteOffset: tok.Pos, ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "Parser"}
			if p.cfg.Recovery.OnError(nil, fmt.Errorf("object %v: %w", ref, err), loc) == recovery.ActionFail {
				return nil, nil, fmt.Errorf("object %v: %w", ref, err)
			}
			// Resume right after the "obj" keyword so nested definitions are still found.
			if err := tr.seek(objTok.Pos + 3); err != nil {
				return nil, nil, err
			}
			continue
		}
		known[ref.Num] = obj
		defs = append(defs, definition{ref: ref, pos: tok.Pos, obj: obj})
	}
	return defs, trailers, nil
}

func (p *DocumentParser) parseIndirect(tr *tokenReader, known map[int]raw.Object, ref raw.ObjectRef) (raw.Object, error) {
	obj, err := parseObject(tr, p.cfg.Recovery, ref.Num, ref.Gen)
	if errors.Is(err, errUnexpectedEndobj) {
		// "N G obj endobj" defines a null object.
		obj, err = raw.NullObj{}, nil
	}
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		tr.setStreamLengthHint(streamLength(dict, known))
		tok, err := tr.next()
		tr.setStreamLengthHint(-1)
		if err == nil {
			if tok.Type == scanner.TokenStream {
				obj = raw.NewStream(dict, tok.Bytes)
			} else {
				tr.unread(tok)
			}
		}
	}
	tok, err := tr.next()
	if err == nil && !(tok.Type == scanner.TokenKeyword && tok.Str == "endobj") {
		// Missing endobj is common; let the main loop consider the token.
		tr.unread(tok)
	}
	return obj, nil
}

func streamLength(dict *raw.DictObj, known map[int]raw.Object) int64 {
	switch v := dict.Lookup("Length").(type) {
	case raw.NumberObj:
		return v.Int()
	case raw.RefObj:
		if n, ok := known[v.R.Num].(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return -1
}

// expandObjectStreams parses the members of every /Type /ObjStm stream (ISO 32000-1 7.5.7).
func (p *DocumentParser) expandObjectStreams(ctx context.Context, defs []definition) []definition {
	var out []definition
	for _, d := range defs {
		stm, ok := d.obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if t, _ := stm.Dict.Lookup("Type").(raw.NameObj); t.Val != "ObjStm" {
			continue
		}
		data, err := p.pipeline.DecodeStream(ctx, nil, stm)
		if err != nil {
			p.cfg.Logger.Warn("object stream decode failed",
				observability.Int("object", d.ref.Num),
				observability.Error("error", err))
			continue
		}
		n, _ := stm.Dict.Lookup("N").(raw.NumberObj)
		first, _ := stm.Dict.Lookup("First").(raw.NumberObj)
		members := parseObjectStream(data, int(n.Int()), first.Int())
		for i, m := range members {
			out = append(out, definition{ref: m.ref, pos: d.pos, sub: i + 1, obj: m.obj})
		}
	}
	return out
}

func parseObjectStream(data []byte, n int, first int64) []definition {
	s := scanner.New(data, scanner.Config{})
	type entry struct {
		num    int
		offset int64
	}
	entries := make([]entry, 0, n)
	for i := 0; i < n; i++ {
		numTok, err1 := s.Next()
		offTok, err2 := s.Next()
		if err1 != nil || err2 != nil || !numTok.IsInt || !offTok.IsInt {
			break
		}
		entries = append(entries, entry{num: int(numTok.Int), offset: offTok.Int})
	}
	var out []definition
	for _, e := range entries {
		if err := s.SeekTo(first + e.offset); err != nil {
			continue
		}
		obj, err := ParseObject(s)
		if err != nil {
			continue
		}
		out = append(out, definition{ref: raw.ObjectRef{Num: e.num}, obj: obj})
	}
	return out
}

// mergeTrailers folds trailers in file order so later updates override earlier keys.
func mergeTrailers(trailers []*raw.DictObj) *raw.DictObj {
	if len(trailers) == 0 {
		return nil
	}
	merged := raw.Dict()
	for _, t := range trailers {
		for k, v := range t.KV {
			merged.KV[k] = v
		}
	}
	return merged
}

func xrefStreamTrailer(defs []definition) *raw.DictObj {
	for i := len(defs) - 1; i >= 0; i-- {
		stm, ok := defs[i].obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if t, _ := stm.Dict.Lookup("Type").(raw.NameObj); t.Val == "XRef" {
			trailer := raw.Dict()
			for _, k := range []string{"Root", "Info", "ID", "Encrypt", "Size"} {
				if v := stm.Dict.Lookup(k); v != nil {
					trailer.KV[k] = v
				}
			}
			return trailer
		}
	}
	return nil
}

// ensureCatalog points the trailer's Root at a catalog, searching for one when the entry is missing or broken.
func ensureCatalog(doc *raw.Document) error {
	if isCatalog(doc, doc.Dict(doc.Trailer.Lookup("Root"))) {
		return nil
	}
	var best raw.ObjectRef
	found := false
	for ref, obj := range doc.Objects {
		d, ok := obj.(*raw.DictObj)
		if !ok || !isCatalog(doc, d) {
			continue
		}
		if !found || ref.Num > best.Num {
			best, found = ref, true
		}
	}
	if !found {
		return ErrNoCatalog
	}
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: best})
	return nil
}

func isCatalog(doc *raw.Document, d *raw.DictObj) bool {
	if d == nil {
		return false
	}
	if t, _ := doc.Name(d.Lookup("Type")); t == "Catalog" {
		return true
	}
	return doc.Dict(d.Lookup("Pages")) != nil
}

func detectHeaderVersion(data []byte) string {
	line := string(data[:min(len(data), 64)])
	for _, sep := range []string{"\r\n", "\n", "\r"} {
		if idx := strings.Index(line, sep); idx >= 0 {
			line = line[:idx]
			break
		}
	}
	if strings.HasPrefix(line, "%PDF-") && len(line) >= 8 {
		return strings.TrimSpace(line[5:8])
	}
	return ""
}
