package relayout

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocument is returned when the input parses but has no pages.
	ErrEmptyDocument = errors.New("document has no pages")
	// ErrNoBands is returned when every band is too short to become a page.
	ErrNoBands = errors.New("no band tall enough to emit")
)

// Pipeline stages reported by ProcessingError.
const (
	StageParse     = "parse"
	StageLocate    = "locate"
	StageCompose   = "compose"
	StageBrand     = "brand"
	StageSerialize = "serialize"
	StagePanic     = "panic"
)

// ProcessingError is any failure other than an empty document, tagged with the stage
// that produced it.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string { return fmt.Sprintf("relayout %s: %v", e.Stage, e.Err) }
func (e *ProcessingError) Unwrap() error { return e.Err }

// IsFailure reports whether err is one of the two outcomes that produce no output.
func IsFailure(err error) bool {
	var pe *ProcessingError
	return errors.Is(err, ErrEmptyDocument) || errors.As(err, &pe)
}

func stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &ProcessingError{Stage: stage, Err: err}
}
