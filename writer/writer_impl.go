package writer

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfband/builder"
	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/ir/raw"
)

// ErrNoPages is returned when asked to write a document without pages.
var ErrNoPages = errors.New("document has no pages")

type impl struct{ interceptors []Interceptor }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf.Write(serializePrimitive(obj))
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

// objectTable hands out object numbers in allocation order.
type objectTable struct {
	objects map[raw.ObjectRef]raw.Object
	next    int
}

func newObjectTable() *objectTable {
	return &objectTable{objects: make(map[raw.ObjectRef]raw.Object), next: 1}
}

func (t *objectTable) alloc() raw.ObjectRef {
	ref := raw.ObjectRef{Num: t.next}
	t.next++
	return ref
}

func (t *objectTable) add(obj raw.Object) raw.ObjectRef {
	ref := t.alloc()
	t.objects[ref] = obj
	return ref
}

// session carries the state of one Write call.
type session struct {
	ctx      context.Context
	cfg      Config
	pipeline *filters.Pipeline
	tbl      *objectTable
	fonts    map[*builder.Font]raw.ObjectRef
	forms    map[*builder.Form]raw.ObjectRef
	grafters map[*raw.Document]*grafter
}

func (w *impl) Write(ctx context.Context, doc *builder.Document, out io.Writer, cfg Config) error {
	if doc == nil || len(doc.Pages) == 0 {
		return ErrNoPages
	}
	pipeline := cfg.Pipeline
	if pipeline == nil {
		pipeline = filters.NewDefaultPipeline(filters.DefaultLimits())
	}
	s := &session{
		ctx:      ctx,
		cfg:      cfg,
		pipeline: pipeline,
		tbl:      newObjectTable(),
		fonts:    make(map[*builder.Font]raw.ObjectRef),
		forms:    make(map[*builder.Form]raw.ObjectRef),
		grafters: make(map[*raw.Document]*grafter),
	}
	catalogRef := s.tbl.alloc()
	pagesRef := s.tbl.alloc()

	kids := raw.NewArray()
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref, err := s.writePage(p, pagesRef)
		if err != nil {
			return fmt.Errorf("page %d: %w", p.Index, err)
		}
		kids.Append(raw.Ref(ref.Num, ref.Gen))
	}

	pagesDict := raw.Dict()
	pagesDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pagesDict.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(kids.Len())))
	pagesDict.Set(raw.NameLiteral("Kids"), kids)
	s.tbl.objects[pagesRef] = pagesDict

	catalogDict := raw.Dict()
	catalogDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalogDict.Set(raw.NameLiteral("Pages"), raw.Ref(pagesRef.Num, pagesRef.Gen))
	s.tbl.objects[catalogRef] = catalogDict

	infoRef := s.tbl.add(infoDict(doc))

	return w.serialize(ctx, s.tbl, catalogRef, infoRef, cfg, out)
}

func (s *session) writePage(p *builder.Page, parent raw.ObjectRef) (raw.ObjectRef, error) {
	res := raw.Dict()
	if len(p.Fonts) > 0 {
		fontRes := raw.Dict()
		for _, name := range sortedKeys(p.Fonts) {
			ref, err := s.fontRef(p.Fonts[name])
			if err != nil {
				return raw.ObjectRef{}, fmt.Errorf("font %s: %w", name, err)
			}
			fontRes.Set(raw.NameLiteral(name), raw.Ref(ref.Num, ref.Gen))
		}
		res.Set(raw.NameLiteral("Font"), fontRes)
	}
	if len(p.Forms) > 0 {
		xoRes := raw.Dict()
		for _, name := range sortedKeys(p.Forms) {
			ref, err := s.formRef(p.Forms[name])
			if err != nil {
				return raw.ObjectRef{}, fmt.Errorf("form %s: %w", name, err)
			}
			xoRes.Set(raw.NameLiteral(name), raw.Ref(ref.Num, ref.Gen))
		}
		res.Set(raw.NameLiteral("XObject"), xoRes)
	}

	content, err := s.stream(raw.Dict(), serializeContentStream(p.Operations))
	if err != nil {
		return raw.ObjectRef{}, err
	}
	contentRef := s.tbl.add(content)

	pageDict := raw.Dict()
	pageDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	pageDict.Set(raw.NameLiteral("Parent"), raw.Ref(parent.Num, parent.Gen))
	pageDict.Set(raw.NameLiteral("MediaBox"), raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), number(p.Width), number(p.Height)))
	pageDict.Set(raw.NameLiteral("Resources"), res)
	pageDict.Set(raw.NameLiteral("Contents"), raw.Ref(contentRef.Num, contentRef.Gen))
	return s.tbl.add(pageDict), nil
}

func (s *session) fontRef(f *builder.Font) (raw.ObjectRef, error) {
	if ref, ok := s.fonts[f]; ok {
		return ref, nil
	}
	var (
		ref raw.ObjectRef
		err error
	)
	if f.TrueType != nil {
		ref, err = s.writeTrueType(f)
	} else {
		ref = s.tbl.add(standardFontDict(f.BaseFont))
	}
	if err != nil {
		return raw.ObjectRef{}, err
	}
	s.fonts[f] = ref
	return ref, nil
}

func (s *session) formRef(f *builder.Form) (raw.ObjectRef, error) {
	if ref, ok := s.forms[f]; ok {
		return ref, nil
	}
	content, err := f.Source.Content(s.ctx, s.pipeline, f.Doc)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	g, ok := s.grafters[f.Doc]
	if !ok {
		g = newGrafter(f.Doc, s.tbl)
		s.grafters[f.Doc] = g
	}
	var res raw.Object = raw.Dict()
	if f.Source.Resources != nil {
		res = g.copy(f.Source.Resources)
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Form"))
	dict.Set(raw.NameLiteral("BBox"), raw.NewArray(number(f.BBox.X0), number(f.BBox.Y0), number(f.BBox.X1), number(f.BBox.Y1)))
	dict.Set(raw.NameLiteral("Resources"), res)
	stm, err := s.stream(dict, content)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	ref := s.tbl.add(stm)
	s.forms[f] = ref
	return ref, nil
}

// stream builds a stream object, compressing data when the config asks for it.
func (s *session) stream(dict *raw.DictObj, data []byte) (*raw.StreamObj, error) {
	if s.cfg.Compression == 0 {
		return raw.NewStream(dict, data), nil
	}
	encoded, err := flateEncode(data, s.cfg.Compression)
	if err != nil {
		return nil, err
	}
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	return raw.NewStream(dict, encoded), nil
}

func (s *session) writeTrueType(f *builder.Font) (raw.ObjectRef, error) {
	tt := f.TrueType
	fileDict := raw.Dict()
	fileDict.Set(raw.NameLiteral("Length1"), raw.NumberInt(int64(len(tt.Data))))
	file, err := s.stream(fileDict, tt.Data)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	fileRef := s.tbl.add(file)

	desc := raw.Dict()
	desc.Set(raw.NameLiteral("Type"), raw.NameLiteral("FontDescriptor"))
	desc.Set(raw.NameLiteral("FontName"), raw.NameLiteral(f.BaseFont))
	desc.Set(raw.NameLiteral("Flags"), raw.NumberInt(32))
	desc.Set(raw.NameLiteral("FontBBox"), raw.NewArray(number(tt.BBox[0]), number(tt.BBox[1]), number(tt.BBox[2]), number(tt.BBox[3])))
	desc.Set(raw.NameLiteral("ItalicAngle"), number(tt.ItalicAngle))
	desc.Set(raw.NameLiteral("Ascent"), number(tt.Ascent))
	desc.Set(raw.NameLiteral("Descent"), number(tt.Descent))
	desc.Set(raw.NameLiteral("CapHeight"), number(tt.CapHeight))
	desc.Set(raw.NameLiteral("StemV"), raw.NumberInt(80))
	desc.Set(raw.NameLiteral("FontFile2"), raw.Ref(fileRef.Num, fileRef.Gen))
	descRef := s.tbl.add(desc)

	widths := make(map[int]int, len(f.Used))
	for gid := range f.Used {
		widths[gid] = tt.GlyphWidth(gid)
	}
	sysInfo := raw.Dict()
	sysInfo.Set(raw.NameLiteral("Registry"), raw.Str([]byte("Adobe")))
	sysInfo.Set(raw.NameLiteral("Ordering"), raw.Str([]byte("Identity")))
	sysInfo.Set(raw.NameLiteral("Supplement"), raw.NumberInt(0))
	cid := raw.Dict()
	cid.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	cid.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("CIDFontType2"))
	cid.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral(f.BaseFont))
	cid.Set(raw.NameLiteral("CIDSystemInfo"), sysInfo)
	cid.Set(raw.NameLiteral("FontDescriptor"), raw.Ref(descRef.Num, descRef.Gen))
	cid.Set(raw.NameLiteral("DW"), raw.NumberInt(int64(tt.DefaultWidth())))
	cid.Set(raw.NameLiteral("W"), encodeCIDWidths(widths))
	cid.Set(raw.NameLiteral("CIDToGIDMap"), raw.NameLiteral("Identity"))
	cidRef := s.tbl.add(cid)

	font := raw.Dict()
	font.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	font.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type0"))
	font.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral(f.BaseFont))
	font.Set(raw.NameLiteral("Encoding"), raw.NameLiteral("Identity-H"))
	font.Set(raw.NameLiteral("DescendantFonts"), raw.NewArray(raw.Ref(cidRef.Num, cidRef.Gen)))
	if cmap := buildToUnicodeCMap(f.BaseFont, f.Used); cmap != nil {
		stm, err := s.stream(raw.Dict(), cmap)
		if err != nil {
			return raw.ObjectRef{}, err
		}
		ref := s.tbl.add(stm)
		font.Set(raw.NameLiteral("ToUnicode"), raw.Ref(ref.Num, ref.Gen))
	}
	return s.tbl.add(font), nil
}

func standardFontDict(baseFont string) *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	d.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	d.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral(baseFont))
	if baseFont != "Symbol" && baseFont != "ZapfDingbats" {
		d.Set(raw.NameLiteral("Encoding"), raw.NameLiteral("WinAnsiEncoding"))
	}
	return d
}

func (w *impl) serialize(ctx context.Context, tbl *objectTable, catalogRef, infoRef raw.ObjectRef, cfg Config, out io.Writer) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", pdfVersion(cfg))
	offsets := make(map[int]int64, len(tbl.objects))

	ordered := make([]raw.ObjectRef, 0, len(tbl.objects))
	for ref := range tbl.objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })
	for _, ref := range ordered {
		obj := tbl.objects[ref]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		offset := int64(buf.Len())
		serialized, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		buf.Write(serialized)
		offsets[ref.Num] = offset
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(serialized))); err != nil {
				return err
			}
		}
	}

	sum := md5.Sum(buf.Bytes())
	xrefOffset := buf.Len()
	size := tbl.next
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(catalogRef.Num, catalogRef.Gen))
	trailer.Set(raw.NameLiteral("Info"), raw.Ref(infoRef.Num, infoRef.Gen))
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(raw.HexStr(sum[:]), raw.HexStr(sum[:])))
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
