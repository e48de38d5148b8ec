package writer

import (
	"testing"

	"github.com/wudi/pdfband/ir/raw"
)

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		0:          "0",
		-0.0000001: "0",
		1.5:        "1.5",
		-2:         "-2",
		0.1 + 0.2:  "0.3",
		612:        "612",
	}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Fatalf("formatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestPdfNameLiteral(t *testing.T) {
	if got := pdfNameLiteral("Arial Bold#1"); got != "Arial#20Bold#231" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeCIDWidths(t *testing.T) {
	arr := encodeCIDWidths(map[int]int{3: 500, 4: 500, 5: 600, 9: 600})
	want := []int64{3, 4, 500, 5, 5, 600, 9, 9, 600}
	if arr.Len() != len(want) {
		t.Fatalf("len = %d, want %d", arr.Len(), len(want))
	}
	for i, w := range want {
		if n := arr.Items[i].(raw.NumberObj); n.Int() != w {
			t.Fatalf("item %d = %d, want %d", i, n.Int(), w)
		}
	}
}

func TestGrafterCopiesOnceAndDropsParent(t *testing.T) {
	font := raw.Dict()
	font.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	font.Set(raw.NameLiteral("Parent"), raw.Ref(1, 0))
	src := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{{Num: 7}: font}}
	res := raw.Dict()
	res.Set(raw.NameLiteral("A"), raw.Ref(7, 0))
	res.Set(raw.NameLiteral("B"), raw.Ref(7, 0))
	res.Set(raw.NameLiteral("C"), raw.Ref(99, 0))

	tbl := newObjectTable()
	out := newGrafter(src, tbl).copy(res).(*raw.DictObj)
	if len(tbl.objects) != 1 {
		t.Fatalf("expected one copied object, got %d", len(tbl.objects))
	}
	a, b := out.Lookup("A").(raw.RefObj), out.Lookup("B").(raw.RefObj)
	if a.R != b.R {
		t.Fatalf("shared reference copied twice: %v %v", a.R, b.R)
	}
	if _, ok := out.Lookup("C").(raw.NullObj); !ok {
		t.Fatalf("missing reference should become null")
	}
	if copied := tbl.objects[a.R].(*raw.DictObj); copied.Lookup("Parent") != nil {
		t.Fatalf("parent link should be dropped")
	}
}
