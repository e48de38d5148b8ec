package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alexflint/go-arg"

	"github.com/wudi/pdfband/batch"
	"github.com/wudi/pdfband/observability"
	"github.com/wudi/pdfband/relayout"
)

const (
	ProgramName = "pdfband"
	Version     = "v0.1.0"
)

type splitCmd struct {
	Files   []string `arg:"positional,required" help:"report PDFs to split"`
	Out     string   `arg:"--out,-o" default:"." help:"directory for the produced PDF or ZIP"`
	Workers int      `arg:"--workers,-w" help:"documents processed concurrently (default: number of CPUs)"`
}

type inspectCmd struct {
	File string `arg:"positional,required" help:"report PDF to analyze"`
}

type args struct {
	Split   *splitCmd   `arg:"subcommand:split" help:"cut reports into branded section pages"`
	Inspect *inspectCmd `arg:"subcommand:inspect" help:"print located markers, split points and bands"`
	Layout  string      `arg:"--layout,-l" help:"YAML file overriding the default layout"`
	Verbose bool        `arg:"--verbose,-v" help:"enable debug logging"`
}

func (args) Version() string { return fmt.Sprintf("%s %s", ProgramName, Version) }

func main() {
	var a args
	p, err := arg.NewParser(arg.Config{Program: ProgramName}, &a)
	if err != nil {
		log.Fatalf("there was an error in the definition of the Go struct: %v", err)
	}
	p.MustParse(os.Args[1:])
	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if a.Verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	layout, err := loadLayout(a.Layout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfband: %v\n", err)
		os.Exit(2)
	}
	proc := relayout.New(layout, relayout.WithLogger(logger), relayout.WithTracer(observability.LogTracer(logger)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch cmd := p.Subcommand().(type) {
	case *splitCmd:
		err = runSplit(ctx, proc, cmd, logger, os.Stderr)
	case *inspectCmd:
		err = runInspect(ctx, proc, cmd, os.Stdout)
	default:
		p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfband: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runSplit(ctx context.Context, proc *relayout.Processor, cmd *splitCmd, logger observability.Logger, stderr io.Writer) error {
	inputs := make([]batch.Input, 0, len(cmd.Files))
	for _, path := range cmd.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, batch.Input{Name: filepath.Base(path), Data: data})
	}
	runner := &batch.Runner{Processor: proc, Workers: cmd.Workers, Logger: logger}
	report := runner.Run(ctx, inputs)
	for _, f := range report.Failures {
		fmt.Fprintf(stderr, "failed: %s: %v\n", f.Name, f.Err)
	}
	dl, err := batch.Package(report.Outputs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cmd.Out, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(cmd.Out, dl.Name)
	if err := os.WriteFile(dest, dl.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "wrote %s (%d of %d documents)\n", dest, len(report.Outputs), len(inputs))
	return nil
}

type inspectBand struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Height  float64 `json:"height"`
	Emitted bool    `json:"emitted"`
}

type inspectSection struct {
	Keyword    string    `json:"keyword"`
	Matches    []float64 `json:"matches_y0"`
	Accepted   *float64  `json:"accepted_y0,omitempty"`
	SplitPoint *float64  `json:"split_point,omitempty"`
}

type inspectReport struct {
	File        string           `json:"file"`
	Pages       int              `json:"pages"`
	Width       float64          `json:"width"`
	Height      float64          `json:"height"`
	EndMatches  []float64        `json:"end_marker_y0"`
	EndBoundary float64          `json:"end_boundary"`
	Sections    []inspectSection `json:"sections"`
	SplitPoints []float64        `json:"split_points"`
	Bands       []inspectBand    `json:"bands"`
}

func runInspect(ctx context.Context, proc *relayout.Processor, cmd *inspectCmd, out io.Writer) error {
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return err
	}
	a, err := proc.Analyze(ctx, data)
	if err != nil {
		return err
	}
	rep := inspectReport{
		File:        filepath.Base(cmd.File),
		Pages:       a.PageCount,
		Width:       a.PageWidth,
		Height:      a.PageHeight,
		EndMatches:  tops(a.End),
		EndBoundary: a.EndBoundary,
		SplitPoints: a.SplitPoints,
	}
	for _, s := range a.Sections {
		is := inspectSection{Keyword: s.Keyword, Matches: tops(s.Marker)}
		if s.Accepted != nil {
			y0, sp := s.Accepted.Y0, s.SplitPoint
			is.Accepted, is.SplitPoint = &y0, &sp
		}
		rep.Sections = append(rep.Sections, is)
	}
	minHeight := proc.Layout().MinBandHeight
	for _, b := range a.Bands {
		rep.Bands = append(rep.Bands, inspectBand{Start: b.Start, End: b.End, Height: b.Height(), Emitted: b.Height() > minHeight})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func tops(m relayout.Marker) []float64 {
	out := make([]float64, 0, len(m.Matches))
	for _, r := range m.Matches {
		out = append(out, r.Y0)
	}
	return out
}
