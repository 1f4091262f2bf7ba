package suggest

import "testing"

func TestListCyclesModuloLength(t *testing.T) {
	var l List
	if _, ok := l.Current(); ok {
		t.Fatal("empty list has no current entry")
	}
	l.Next()
	l.Prev()
	if l.Index() != 0 {
		t.Fatalf("Index on empty list = %d", l.Index())
	}

	l.Set(fromStrings([]string{"a", "b", "c"}, SourceLocal))
	l.Prev()
	if s, _ := l.Current(); s.Text != "c" {
		t.Fatalf("Prev from top = %q, want c", s.Text)
	}
	l.Next()
	l.Next()
	if s, _ := l.Current(); s.Text != "b" || s.Rank != 1 {
		t.Fatalf("Current = %+v", s)
	}
	l.Set(fromStrings([]string{"x"}, SourceRemote))
	if s, _ := l.Current(); s.Text != "x" || s.Source != SourceRemote || l.Index() != 0 {
		t.Fatalf("after Set: %+v index %d", s, l.Index())
	}
}
