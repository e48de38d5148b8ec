package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfband/builder"
	"github.com/wudi/pdfband/filters"
	"github.com/wudi/pdfband/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

// Producer is written to the /Info dictionary when the document does not set one.
const Producer = "pdfband"

type Config struct {
	Version PDFVersion
	// Compression is the zlib level for content streams and fonts. Zero disables compression.
	Compression int
	// Pipeline decodes source page content for transcluded forms. Nil uses the default pipeline.
	Pipeline *filters.Pipeline
}

// DefaultConfig compresses with the default zlib level.
func DefaultConfig() Config {
	return Config{Version: PDF17, Compression: 6}
}

type Writer interface {
	Write(ctx context.Context, doc *builder.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes every indirect object as it is serialized.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }
