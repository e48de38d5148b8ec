package writer

import "github.com/wudi/pdfband/ir/raw"

// grafter copies objects reachable from a source document into the output table.
// Each source object is copied once; later references reuse the new number.
type grafter struct {
	src  *raw.Document
	tbl  *objectTable
	refs map[raw.ObjectRef]raw.ObjectRef
}

func newGrafter(src *raw.Document, tbl *objectTable) *grafter {
	return &grafter{src: src, tbl: tbl, refs: make(map[raw.ObjectRef]raw.ObjectRef)}
}

// copy returns a deep copy of obj with references renumbered. /Parent links are
// dropped so that copying a resource never pulls in the source page tree. References
// to missing objects become null.
func (g *grafter) copy(obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		if ref, ok := g.refs[v.R]; ok {
			return raw.Ref(ref.Num, ref.Gen)
		}
		target := g.src.Resolve(v)
		if _, missing := target.(raw.NullObj); missing {
			return raw.NullObj{}
		}
		ref := g.tbl.alloc()
		g.refs[v.R] = ref
		g.tbl.objects[ref] = g.copy(target)
		return raw.Ref(ref.Num, ref.Gen)
	case *raw.DictObj:
		d := raw.Dict()
		for k, item := range v.KV {
			if k == "Parent" {
				continue
			}
			d.KV[k] = g.copy(item)
		}
		return d
	case *raw.ArrayObj:
		arr := raw.NewArray()
		for _, item := range v.Items {
			arr.Append(g.copy(item))
		}
		return arr
	case *raw.StreamObj:
		var dict *raw.DictObj
		if v.Dict != nil {
			dict = g.copy(v.Dict).(*raw.DictObj)
		} else {
			dict = raw.Dict()
		}
		return raw.NewStream(dict, v.Data)
	default:
		return obj
	}
}
