package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	logger.With(String("input", "a.pdf")).Warn("processing failed",
		Int("pages", 2), Float64("end", 925.5), Error("error", errors.New("boom")))
	out := buf.String()
	for _, want := range []string{"level=WARN", "input=a.pdf", "pages=2", "end=925.5", "error=boom", `msg="processing failed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestLogTracer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	_, span := LogTracer(logger).StartSpan(context.Background(), SpanCompose)
	span.SetTag("bands", 4)
	span.SetError(errors.New("late"))
	span.Finish()
	out := buf.String()
	for _, want := range []string{"span=pdfband.compose", "bands=4", "error=late", "duration_ms="} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
