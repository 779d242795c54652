package markers

import "testing"

func TestSearch(t *testing.T) {
	mp, _, _ := newTestMap(t)
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"al", 0},
		{" al ", 0},
		{"ALP", 2},
		{"shrine", 2},
		{"tower", 2},
		{"a.p", 0},
		{"zzz", 0},
	}
	for _, tt := range tests {
		if got := mp.Search(tt.text).Count(); got != tt.want {
			t.Errorf("Search(%q)=%d results, want %d", tt.text, got, tt.want)
		}
	}
}

func TestSearchPatternIsLiteral(t *testing.T) {
	re := SearchPattern("(a+")
	if re == nil {
		t.Fatal("pattern with regexp metacharacters should compile")
	}
	if !re.MatchString("x(A+y") || re.MatchString("aaa") {
		t.Error("pattern not matched literally")
	}
}

func TestSearchSortsByName(t *testing.T) {
	mp, _, _ := newTestMap(t)
	res := mp.Search("shrine")
	got := res[mp.Layer("shrines")]
	if len(got) != 2 || got[0].Name() != "Alpha Shrine" || got[1].Name() != "Beta Shrine" {
		t.Fatalf("got %d results", len(got))
	}
}
