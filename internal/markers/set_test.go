package markers

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestSetMembershipIndependentOfFlag(t *testing.T) {
	s := NewSet("s")
	if s.Visible() {
		t.Fatal("new set should start hidden")
	}
	m := newMarker("l", "m", "M", orb.Point{})
	s.Add(m)
	s.Add(m)
	if s.Len() != 1 {
		t.Fatalf("len=%d, want 1", s.Len())
	}
	s.Show()
	s.Remove(m)
	s.Remove(m)
	if !s.Visible() || s.Len() != 0 {
		t.Fatalf("visible=%v len=%d", s.Visible(), s.Len())
	}
}

func TestSetClearRunsTeardownAfterEmptying(t *testing.T) {
	a := newMarker("l", "a", "A", orb.Point{})
	b := newMarker("l", "b", "B", orb.Point{})
	var s *Set
	var torn []string
	s = NewSet("tag").OnClear(func(m *Marker) {
		if s.Len() != 0 {
			t.Errorf("teardown for %s ran before the set was emptied", m.Key())
		}
		torn = append(torn, m.Key())
	})
	s.Add(a)
	s.Add(b)

	removed := s.Clear()
	if len(removed) != 2 || len(torn) != 2 {
		t.Fatalf("removed=%d torn=%d, want 2 and 2", len(removed), len(torn))
	}
	if s.Has(a) || s.Has(b) {
		t.Error("set still has members")
	}
}
