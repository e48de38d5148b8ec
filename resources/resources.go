package resources

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfband/ir/raw"
)

type Category string

const (
	CategoryFont    Category = "Font"
	CategoryXObject Category = "XObject"
)

// ErrNotFound is returned when no scope in the chain defines the resource.
var ErrNotFound = errors.New("resource not found")

// Scope is one resource dictionary and the scope it is nested in. A Form XObject
// without its own /Resources shares the scope of the content that paints it; a form
// with resources gets a child scope that falls back to its parent for missing names.
type Scope struct {
	doc    *raw.Document
	dict   *raw.DictObj
	parent *Scope
}

// NewScope returns the outermost scope, usually a page's resources.
func NewScope(doc *raw.Document, dict *raw.DictObj) *Scope {
	return &Scope{doc: doc, dict: dict}
}

// Child returns the scope for content carrying its own resource dictionary.
func (s *Scope) Child(dict *raw.DictObj) *Scope {
	if dict == nil {
		return s
	}
	return &Scope{doc: s.doc, dict: dict, parent: s}
}

// Resolve looks name up in category, innermost scope first, and returns the
// resolved object.
func (s *Scope) Resolve(category Category, name string) (raw.Object, error) {
	for scope := s; scope != nil; scope = scope.parent {
		sub := scope.doc.Dict(scope.dict.Lookup(string(category)))
		if obj := sub.Lookup(name); obj != nil {
			if _, null := scope.doc.Resolve(obj).(raw.NullObj); !null {
				return obj, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
}
