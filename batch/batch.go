// Package batch runs the relayout core over many named inputs and packages the results
// as a single download.
package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfband/observability"
	"github.com/wudi/pdfband/relayout"
)

const (
	// OutputPrefix is prepended to the input name of every produced document.
	OutputPrefix = "Processed_"
	// ArchiveName is the download name used when several documents were produced.
	ArchiveName = "MY_Fitness_Reports.zip"

	ContentTypePDF = "application/pdf"
	ContentTypeZIP = "application/zip"
)

// ErrNoOutputs is returned by Package when nothing was produced.
var ErrNoOutputs = errors.New("no documents were produced")

// Processor is the core operation applied to each input.
type Processor interface {
	Process(ctx context.Context, input []byte) (*relayout.Result, error)
}

type Input struct {
	Name string
	Data []byte
}

type Output struct {
	Name  string
	PDF   []byte
	Pages int
}

// Failure names an input that produced no output and why.
type Failure struct {
	Name string
	Err  error
}

// Report lists outputs and failures in input order.
type Report struct {
	RunID    string
	Outputs  []Output
	Failures []Failure
}

// Runner processes inputs independently; one failing input never stops the others.
type Runner struct {
	Processor Processor
	// Workers bounds concurrent Process calls. Zero means GOMAXPROCS.
	Workers int
	Logger  observability.Logger
	Tracer  observability.Tracer
}

type outcome struct {
	res *relayout.Result
	err error
}

// Run processes every input and returns the collected report. Inputs not started
// before ctx is cancelled fail with the context error.
func (r *Runner) Run(ctx context.Context, inputs []Input) *Report {
	logger := r.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	tracer := r.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	report := &Report{RunID: uuid.NewString()}
	logger = logger.With(observability.String("run_id", report.RunID))
	ctx, span := tracer.StartSpan(ctx, observability.SpanBatch)
	defer span.Finish()

	results := make([]outcome, len(inputs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = outcome{err: err}
				return nil
			}
			res, err := r.Processor.Process(ctx, in.Data)
			results[i] = outcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, in := range inputs {
		o := results[i]
		if o.err == nil && o.res == nil {
			o.err = errors.New("processor returned no result")
		}
		if o.err != nil {
			report.Failures = append(report.Failures, Failure{Name: in.Name, Err: o.err})
			logger.Warn("batch: input failed", observability.String("input", in.Name), observability.Error("error", o.err))
			continue
		}
		report.Outputs = append(report.Outputs, Output{Name: OutputPrefix + in.Name, PDF: o.res.PDF, Pages: o.res.Pages})
		logger.Info("batch: input processed", observability.String("input", in.Name), observability.Int("pages", o.res.Pages))
	}
	span.SetTag("outputs", len(report.Outputs))
	span.SetTag("failures", len(report.Failures))
	return report
}

// Download is the artifact offered to the user.
type Download struct {
	Name        string
	ContentType string
	Data        []byte
}

// Package returns the single output as a PDF download, or all outputs bundled in a ZIP
// archive when there are several.
func Package(outputs []Output) (*Download, error) {
	switch len(outputs) {
	case 0:
		return nil, ErrNoOutputs
	case 1:
		return &Download{Name: outputs[0].Name, ContentType: ContentTypePDF, Data: outputs[0].PDF}, nil
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, o := range outputs {
		f, err := zw.Create(o.Name)
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", o.Name, err)
		}
		if _, err := f.Write(o.PDF); err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", o.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	return &Download{Name: ArchiveName, ContentType: ContentTypeZIP, Data: buf.Bytes()}, nil
}
