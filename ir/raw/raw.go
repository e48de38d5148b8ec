package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
	IsHex() bool
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Reference represents an indirect object reference.
type Reference interface {
	Object
	Ref() ObjectRef
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string // e.g., "1.7"
}

// maxResolveDepth bounds reference chains such as "1 0 R" -> "2 0 R" -> ...
const maxResolveDepth = 32

// Resolve follows indirect references until a direct object is reached.
// Dangling references resolve to NullObj, as required by ISO 32000-1 7.3.10.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		if d == nil {
			return NullObj{}
		}
		target, ok := d.Objects[ref.R]
		if !ok {
			target, ok = d.lookupAnyGen(ref.R.Num)
			if !ok {
				return NullObj{}
			}
		}
		obj = target
	}
	return NullObj{}
}

func (d *Document) lookupAnyGen(num int) (Object, bool) {
	for ref, obj := range d.Objects {
		if ref.Num == num {
			return obj, true
		}
	}
	return nil, false
}

// Dict resolves obj and returns it as a dictionary. Stream dictionaries are returned for streams.
func (d *Document) Dict(obj Object) *DictObj {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	}
	return nil
}

// Array resolves obj and returns it as an array.
func (d *Document) Array(obj Object) *ArrayObj {
	arr, _ := d.Resolve(obj).(*ArrayObj)
	return arr
}

// Stream resolves obj and returns it as a stream.
func (d *Document) Stream(obj Object) *StreamObj {
	s, _ := d.Resolve(obj).(*StreamObj)
	return s
}

// Float resolves obj and returns its numeric value.
func (d *Document) Float(obj Object) (float64, bool) {
	n, ok := d.Resolve(obj).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// Name resolves obj and returns the name value.
func (d *Document) Name(obj Object) (string, bool) {
	n, ok := d.Resolve(obj).(NameObj)
	if !ok {
		return "", false
	}
	return n.Val, true
}

// Floats resolves an array of numbers. Non-numeric entries make the whole result invalid.
func (d *Document) Floats(obj Object) ([]float64, bool) {
	arr := d.Array(obj)
	if arr == nil {
		return nil, false
	}
	out := make([]float64, 0, arr.Len())
	for _, item := range arr.Items {
		f, ok := d.Float(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}
