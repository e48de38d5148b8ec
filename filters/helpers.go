package filters

import "github.com/wudi/pdfband/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// Indirect entries are resolved through doc, which may be nil for direct-only dictionaries.
func ExtractFilters(doc *raw.Document, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj
	if dict == nil {
		return names, params
	}

	switch f := doc.Resolve(dict.Lookup("Filter")).(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := doc.Resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return names, params
	}

	parms := dict.Lookup("DecodeParms")
	if parms == nil {
		parms = dict.Lookup("DP")
	}
	switch p := doc.Resolve(parms).(type) {
	case *raw.DictObj:
		params = append(params, p)
	case *raw.ArrayObj:
		for _, item := range p.Items {
			// null entries keep their slot so parameters stay aligned with filters
			d, _ := doc.Resolve(item).(*raw.DictObj)
			params = append(params, d)
		}
	}
	return names, params
}

func intParam(params *raw.DictObj, key string) (int, bool) {
	if params == nil {
		return 0, false
	}
	n, ok := params.Lookup(key).(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return int(n.Int()), true
}
