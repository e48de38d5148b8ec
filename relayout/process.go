package relayout

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfband/builder"
	"github.com/wudi/pdfband/extractor"
	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/ir/semantic"
	"github.com/wudi/pdfband/observability"
	"github.com/wudi/pdfband/parser"
	"github.com/wudi/pdfband/writer"
)

// Processor cuts the first page of a report into bands and writes them as a new
// document. A Processor holds no per-call state and is safe for concurrent use.
type Processor struct {
	layout Layout
	logger observability.Logger
	tracer observability.Tracer
	wcfg   writer.Config
	parser parser.Config
}

// Option configures a Processor.
type Option func(*Processor)

func WithLogger(l observability.Logger) Option { return func(p *Processor) { p.logger = l } }
func WithTracer(t observability.Tracer) Option { return func(p *Processor) { p.tracer = t } }
func WithWriterConfig(cfg writer.Config) Option {
	return func(p *Processor) { p.wcfg = cfg }
}
func WithParserConfig(cfg parser.Config) Option {
	return func(p *Processor) { p.parser = cfg }
}

// New returns a Processor using layout.
func New(layout Layout, opts ...Option) *Processor {
	p := &Processor{
		layout: layout,
		logger: observability.NopLogger{},
		tracer: observability.NopTracer(),
		wcfg:   writer.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Layout returns the layout the processor was built with.
func (p *Processor) Layout() Layout { return p.layout }

// Analysis describes how a source page is cut. It is computed before any output is built.
type Analysis struct {
	PageWidth   float64
	PageHeight  float64
	PageCount   int
	End         Marker
	EndBoundary float64
	Sections    []Section
	SplitPoints []float64
	Bands       []Band
}

// Emitted returns the bands that become output pages.
func (a *Analysis) Emitted(minHeight float64) []Band {
	var out []Band
	for _, b := range a.Bands {
		if b.Height() > minHeight {
			out = append(out, b)
		}
	}
	return out
}

// Result is a processed document.
type Result struct {
	PDF      []byte
	Analysis *Analysis
	Pages    int
}

// Process runs the whole pipeline on input. It returns ErrEmptyDocument, a
// *ProcessingError, or a result; panics are recovered and reported as StagePanic.
func (p *Processor) Process(ctx context.Context, input []byte) (res *Result, err error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanProcess)
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &ProcessingError{Stage: StagePanic, Err: fmt.Errorf("%v", r)}
		}
		if err != nil {
			p.logFailure(err)
			span.SetError(err)
		}
		span.Finish()
	}()

	src, err := p.open(ctx, input)
	if err != nil {
		return nil, err
	}
	analysis, err := p.analyze(ctx, src)
	if err != nil {
		return nil, err
	}

	_, composeSpan := p.tracer.StartSpan(ctx, observability.SpanCompose)
	b := builder.NewBuilder()
	b.SetInfo(semantic.DocumentInfo{Title: src.doc.Info.Title, Creator: src.doc.Info.Creator})
	pages := Compose(b, src.page, src.doc.Raw, analysis.Bands, p.layout)
	composeSpan.SetTag("pages", len(pages))
	composeSpan.Finish()
	if len(pages) == 0 {
		return nil, stageError(StageCompose, ErrNoBands)
	}
	// Branding follows the first emitted page, which need not be the first band.
	if p.layout.Branding.Enabled {
		if err := Brand(b, pages[0], p.layout.Branding); err != nil {
			return nil, stageError(StageBrand, err)
		}
	}
	doc, err := b.Build()
	if err != nil {
		return nil, stageError(StageCompose, err)
	}

	_, writeSpan := p.tracer.StartSpan(ctx, observability.SpanSerialize)
	defer writeSpan.Finish()
	cfg := p.wcfg
	cfg.Pipeline = src.pipeline
	var buf bytes.Buffer
	if err := (&writer.WriterBuilder{}).Build().Write(ctx, doc, &buf, cfg); err != nil {
		writeSpan.SetError(err)
		return nil, stageError(StageSerialize, err)
	}
	p.logger.Debug("relayout: processed",
		observability.Int("pages", len(pages)),
		observability.Int("bytes", buf.Len()),
		observability.Any("split_points", analysis.SplitPoints))
	return &Result{PDF: buf.Bytes(), Analysis: analysis, Pages: len(pages)}, nil
}

// Analyze parses input and computes markers, split points and bands without building
// any output.
func (p *Processor) Analyze(ctx context.Context, input []byte) (*Analysis, error) {
	src, err := p.open(ctx, input)
	if err != nil {
		return nil, err
	}
	return p.analyze(ctx, src)
}

type source struct {
	doc      *semantic.Document
	page     *semantic.Page
	pipeline *filters.Pipeline
}

func (p *Processor) open(ctx context.Context, input []byte) (*source, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanParse)
	defer span.Finish()
	dp := parser.NewDocumentParser(p.parser)
	rawDoc, err := dp.ParseBytes(ctx, input)
	if err != nil {
		return nil, stageError(StageParse, err)
	}
	doc, err := semantic.BuildDocument(rawDoc)
	if errors.Is(err, semantic.ErrNoPages) {
		return nil, ErrEmptyDocument
	}
	if err != nil {
		return nil, stageError(StageParse, err)
	}
	if len(doc.Pages) == 0 {
		return nil, ErrEmptyDocument
	}
	if len(doc.Pages) > 1 {
		p.logger.Debug("relayout: ignoring pages after the first", observability.Int("pages", len(doc.Pages)))
	}
	span.SetTag("pages", len(doc.Pages))
	return &source{doc: doc, page: doc.Pages[0], pipeline: dp.Pipeline()}, nil
}

func (p *Processor) analyze(ctx context.Context, src *source) (*Analysis, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanLocate)
	defer span.Finish()
	ext, err := extractor.New(src.doc, src.pipeline)
	if err != nil {
		return nil, stageError(StageLocate, err)
	}
	text, err := ext.PageText(ctx, 0)
	if err != nil {
		return nil, stageError(StageLocate, err)
	}
	a := Analyze(text, src.page.Width(), src.page.Height(), p.layout)
	a.PageCount = len(src.doc.Pages)
	span.SetTag("split_points", len(a.SplitPoints))
	return a, nil
}

// Analyze runs marker location and split point computation over a searchable page.
func Analyze(page Searcher, width, height float64, layout Layout) *Analysis {
	loc := NewLocator(page, layout.CaseSensitive)
	a := &Analysis{PageWidth: width, PageHeight: height}
	if layout.EndMarker != "" {
		a.End = loc.Locate(layout.EndMarker)
	}
	a.EndBoundary = FindEndBoundary(a.End, layout.EndOffset, height)
	a.Sections = loc.LocateSections(layout, a.EndBoundary)

	var candidates []float64
	for _, s := range a.Sections {
		if s.Accepted != nil {
			candidates = append(candidates, s.SplitPoint)
		}
	}
	a.SplitPoints = ComputeSplitPoints(candidates, a.EndBoundary, layout.MinGap)
	a.Bands = Bands(a.SplitPoints)
	return a
}

func (p *Processor) logFailure(err error) {
	stage := ""
	var pe *ProcessingError
	if errors.As(err, &pe) {
		stage = pe.Stage
	}
	if errors.Is(err, ErrEmptyDocument) {
		p.logger.Warn("relayout: empty document")
		return
	}
	p.logger.Error("relayout: processing failed", observability.String("stage", stage), observability.Error("error", err))
}
