package suggest

import (
	"reflect"
	"strings"
	"testing"
)

func TestLookupPrefixDeterministic(t *testing.T) {
	want := []string{"personagem", "personagens", "personagem principal", "personagens secundários"}
	for i := 0; i < 3; i++ {
		d := DefaultDictionary()
		for j := 0; j < 3; j++ {
			if got := d.Lookup("personag"); !reflect.DeepEqual(got, want) {
				t.Fatalf("Lookup(personag) = %q, want %q", got, want)
			}
		}
	}
}

func TestLookupExactIgnoresCaseAndAccents(t *testing.T) {
	d := DefaultDictionary()
	got := d.Lookup("CAPITULO")
	if len(got) == 0 || got[0] != "capítulo" {
		t.Fatalf("Lookup(CAPITULO) = %q", got)
	}
}

func TestLookupSimilarity(t *testing.T) {
	d := NewDictionary([]Entry{
		{Term: "gato", Alternatives: []string{"gato", "gata"}},
		{Term: "cavalo", Alternatives: []string{"cavalo", "égua"}},
	})
	// "gado" shares g, a, o at equal positions with "gato": 3/4.
	if got := d.Lookup("gado"); !reflect.DeepEqual(got, []string{"gato", "gata"}) {
		t.Fatalf("Lookup(gado) = %q", got)
	}
}

func TestLookupSynthesizesAndMemoizes(t *testing.T) {
	d := NewDictionary([]Entry{{Term: "gato", Alternatives: []string{"gato"}}})
	before := d.Len()
	got := d.Lookup("xyz")
	want := []string{"xy", "xyzs", "Xyz", "xyzmente"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Lookup(xyz) = %q, want %q", got, want)
	}
	if d.Len() != before+1 {
		t.Fatalf("Len = %d, want %d", d.Len(), before+1)
	}
	// The memoized key is now matched exactly.
	if again := d.Lookup("XYZ"); !reflect.DeepEqual(again, want) {
		t.Fatalf("second Lookup = %q", again)
	}
	if d.Replaceable("xyz") {
		t.Error("learned terms must not be flagged")
	}
}

func TestLookupCapsAndDedupes(t *testing.T) {
	d := NewDictionary([]Entry{{Term: "casa", Alternatives: []string{"a", "b", "a", "", "c", "d", "e", "f"}}})
	got := d.Lookup("casa")
	if !reflect.DeepEqual(got, []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("Lookup = %q", got)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	d := DefaultDictionary()
	got := d.Lookup("enredo")
	got[0] = "changed"
	if d.Lookup("enredo")[0] != "enredo" {
		t.Fatal("Lookup result aliases the table")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Coração", "coracao"},
		{" ÁPICE ", "apice"},
		{"café", "cafe"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadEntriesMerge(t *testing.T) {
	src := `
- term: enredo
  alternatives: [trama, história]
- term: sussurro
  alternatives: [sussurro, murmúrio]
`
	entries, err := LoadEntries(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	d := DefaultDictionary()
	n := d.Len()
	d.Merge(entries)
	if d.Len() != n+1 {
		t.Fatalf("Len = %d, want %d", d.Len(), n+1)
	}
	if got := d.Lookup("enredo"); !reflect.DeepEqual(got, []string{"trama", "história"}) {
		t.Fatalf("replaced entry = %q", got)
	}
}

func TestLoadEntriesRejectsMissingTerm(t *testing.T) {
	if _, err := LoadEntries(strings.NewReader("- alternatives: [x]\n")); err == nil {
		t.Fatal("expected error")
	}
	entries, err := LoadEntries(strings.NewReader(""))
	if err != nil || entries != nil {
		t.Fatalf("empty input = %v, %v", entries, err)
	}
}

func TestReplaceableAndMarks(t *testing.T) {
	d := DefaultDictionary()
	if !d.Replaceable("nao") {
		t.Error("nao should be replaceable")
	}
	if d.Replaceable("não") {
		t.Error("não is already correct")
	}
	text := "Ela nao sabia, voce sabe."
	marks := Scan(d, text)
	if len(marks) != 2 {
		t.Fatalf("marks = %+v", marks)
	}
	if marks[0].Word != "nao" || text[marks[0].Start:marks[0].End] != "nao" {
		t.Errorf("first mark = %+v", marks[0])
	}
	if m, ok := MarkAt(marks, marks[1].End); !ok || m.Word != "voce" {
		t.Errorf("MarkAt end edge = %+v, %v", m, ok)
	}
	if _, ok := MarkAt(marks, 0); ok {
		t.Error("MarkAt(0) should miss")
	}
}
