package markers

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type recordingNotifier struct {
	complete   []string
	incomplete []string
}

func (n *recordingNotifier) MarkComplete(key string)   { n.complete = append(n.complete, key) }
func (n *recordingNotifier) MarkIncomplete(key string) { n.incomplete = append(n.incomplete, key) }

func testDef() *MapDef {
	return &MapDef{
		ID:      "test",
		Name:    "Test",
		MaxZoom: 3,
		Bounds:  [2][2]float64{{0, 0}, {256, 256}},
		Tags:    []TagDef{{Name: "Rare"}},
		Categories: []CategoryDef{{
			Name: "Locations",
			Layers: []LayerDef{
				{ID: "shrines", Name: "Shrines", Markers: []MarkerDef{
					{ID: "a", Name: "Alpha Shrine", Coordinates: []float64{10, 10}},
					{ID: "b", Name: "Beta Shrine", Coordinates: []float64{200, 200}, Tags: []string{TagCompleted}},
				}},
				{ID: "towers", Name: "Towers", Info: InfoInline, MinZoom: 2, Markers: []MarkerDef{
					{ID: "t1", Name: "Great Tower", Coordinates: []float64{100, 150}, Description: "Tall", Tags: []string{"Rare"}},
					{ID: "a", Name: "Alpha Tower", Coordinates: []float64{30, 220}},
				}},
			},
		}},
	}
}

func newTestMap(t *testing.T) (*Map, *recorder, *recordingNotifier) {
	t.Helper()
	rec := newRecorder()
	n := &recordingNotifier{}
	mp, err := New(testDef(), Options{Renderer: rec, Notifier: n})
	if err != nil {
		t.Fatal(err)
	}
	return mp, rec, n
}

func TestMapCompletedTagScenario(t *testing.T) {
	mp, rec, _ := newTestMap(t)
	mp.LoadTile(0, 0, 0)

	if !rec.shown["shrines/a"] {
		t.Error("A should be visible in a loaded tile")
	}
	if rec.shown["shrines/b"] {
		t.Error("B should be hidden while Completed is off")
	}

	changed, ok := mp.SetTagVisible(TagCompleted, true)
	if !ok || changed != 1 {
		t.Fatalf("SetTagVisible changed=%d ok=%v, want 1 true", changed, ok)
	}
	if !rec.shown["shrines/b"] {
		t.Error("B should show once Completed is on")
	}
	if rec.shows["shrines/a"] != 1 || rec.hides["shrines/a"] != 0 {
		t.Errorf("A was touched: shows=%d hides=%d", rec.shows["shrines/a"], rec.hides["shrines/a"])
	}
}

func TestMapTileFanOut(t *testing.T) {
	mp, rec, _ := newTestMap(t)
	mp.LoadTile(1, 0, 0)
	if !rec.shown["shrines/a"] || rec.shown["towers/t1"] {
		t.Fatalf("shown=%v", rec.shown)
	}
	mp.LoadTile(1, 0, 1)
	if !rec.shown["towers/t1"] || !rec.shown["towers/a"] {
		t.Fatalf("shown=%v", rec.shown)
	}
	mp.UnloadTile(1, 0, 1)
	if rec.shown["towers/t1"] {
		t.Fatal("t1 still shown after unload")
	}
}

func TestMapCheckTile(t *testing.T) {
	mp, _, _ := newTestMap(t)
	if err := mp.CheckTile(3, 7, 7); err != nil {
		t.Fatalf("valid tile: %v", err)
	}
	for _, c := range [][3]int{{4, 0, 0}, {-1, 0, 0}, {1, 2, 0}, {2, 0, -1}} {
		if err := mp.CheckTile(c[0], c[1], c[2]); !errors.Is(err, ErrTileOutOfRange) {
			t.Errorf("CheckTile%v err=%v, want ErrTileOutOfRange", c, err)
		}
	}
	defer func() {
		if recover() == nil {
			t.Error("LoadTile beyond max zoom did not panic")
		}
	}()
	mp.LoadTile(4, 0, 0)
}

func TestMapLayerAndCategoryToggles(t *testing.T) {
	mp, rec, _ := newTestMap(t)
	mp.LoadTile(0, 0, 0)

	if _, ok := mp.SetLayerVisible("nope", false); ok {
		t.Error("unknown layer reported ok")
	}
	if _, ok := mp.SetTagVisible("nope", false); ok {
		t.Error("unknown tag reported ok")
	}

	mp.SetLayerVisible("towers", false)
	if rec.shown["towers/t1"] || !rec.shown["shrines/a"] {
		t.Fatalf("after hiding towers: shown=%v", rec.shown)
	}
	mp.SetCategoryVisible("Locations", false)
	if len(rec.shown) != 0 {
		t.Fatalf("after hiding category: shown=%v", rec.shown)
	}
	if mp.Category("Locations").Visible() {
		t.Error("category still visible")
	}
	mp.SetCategoryVisible("Locations", true)
	if !rec.shown["towers/t1"] || !rec.shown["shrines/a"] {
		t.Fatalf("after showing category: shown=%v", rec.shown)
	}
}

func TestMapMarkCompleteNotifies(t *testing.T) {
	mp, rec, n := newTestMap(t)
	mp.LoadTile(0, 0, 0)

	if !mp.MarkComplete("shrines/a") {
		t.Fatal("MarkComplete failed")
	}
	if mp.MarkComplete("shrines/a") {
		t.Error("second MarkComplete reported a change")
	}
	if rec.shown["shrines/a"] {
		t.Error("completed marker still shown")
	}
	if len(n.complete) != 1 || n.complete[0] != "shrines/a" {
		t.Errorf("complete=%v", n.complete)
	}
	if mp.MarkComplete("shrines/missing") {
		t.Error("unknown marker reported complete")
	}

	mp.MarkIncomplete("shrines/a")
	if !rec.shown["shrines/a"] || len(n.incomplete) != 1 {
		t.Errorf("shown=%v incomplete=%v", rec.shown, n.incomplete)
	}
}

func TestMapClearCompleted(t *testing.T) {
	mp, rec, n := newTestMap(t)
	mp.LoadTile(0, 0, 0)
	mp.MarkComplete("towers/t1")

	changed, ok := mp.ClearTag(TagCompleted)
	if !ok || changed != 2 {
		t.Fatalf("ClearTag changed=%d ok=%v, want 2 true", changed, ok)
	}
	sort.Strings(n.incomplete)
	if len(n.incomplete) != 2 || n.incomplete[0] != "shrines/b" || n.incomplete[1] != "towers/t1" {
		t.Errorf("incomplete=%v", n.incomplete)
	}
	if got := mp.Completed(); len(got) != 0 {
		t.Errorf("Completed()=%v, want none", got)
	}
	if mp.Find("shrines/b").Completed() || !rec.shown["shrines/b"] {
		t.Error("b should be untagged and shown")
	}
}

func TestMapApplyCompletedOnlyAdds(t *testing.T) {
	mp, _, n := newTestMap(t)
	got := mp.ApplyCompleted([]string{"shrines/a", "shrines/b", "ghost/x", "t1"})
	if got != 2 {
		t.Fatalf("ApplyCompleted=%d, want 2", got)
	}
	if len(n.complete)+len(n.incomplete) != 0 {
		t.Error("ApplyCompleted sent notifications")
	}
	want := []string{"shrines/a", "shrines/b", "towers/t1"}
	have := mp.Completed()
	if len(have) != len(want) {
		t.Fatalf("Completed()=%v, want %v", have, want)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("Completed()=%v, want %v", have, want)
		}
	}
	if !mp.Find("towers/t1").HasTag("Rare") {
		t.Error("ApplyCompleted removed an unrelated tag")
	}
}

func TestMapFindAndPermalink(t *testing.T) {
	mp, _, _ := newTestMap(t)
	if m := mp.Find("a"); m == nil || m.LayerID() != "shrines" {
		t.Fatalf("bare id should resolve in the first layer, got %v", m)
	}
	if m := mp.Find("towers/a"); m == nil || m.Name() != "Alpha Tower" {
		t.Fatalf("Find(towers/a)=%v", m)
	}
	if mp.Find("nope/a") != nil || mp.Find("") != nil {
		t.Error("lookup misses should be nil")
	}

	if mp.Permalink() != "" {
		t.Error("no marker should be active")
	}
	mp.SetActive("towers/t1")
	if mp.SetActive("towers/zzz") != nil {
		t.Error("unknown key activated")
	}
	if mp.Permalink() != "towers/t1" {
		t.Errorf("Permalink=%q", mp.Permalink())
	}
	mp.ClearActive()
	if mp.Active() != nil {
		t.Error("active not cleared")
	}
}

func TestMapSetZoomRestyles(t *testing.T) {
	mp, rec, _ := newTestMap(t)
	mp.LoadTile(0, 0, 0)
	if mp.Find("towers/t1").Presentation() != PresentLabel {
		t.Fatal("towers below min zoom should draw as labels")
	}
	restyled := mp.SetZoom(2)
	if len(restyled) != 2 || len(rec.restyled) != 2 {
		t.Fatalf("restyled=%d recorded=%d, want 2", len(restyled), len(rec.restyled))
	}
	if mp.Find("towers/t1").Presentation() != PresentIcon {
		t.Error("t1 should draw as icon at zoom 2")
	}
	if mp.SetZoom(3) != nil {
		t.Error("zoom within the same presentation restyled markers")
	}
}

func TestMapPopupPolicy(t *testing.T) {
	mp, _, _ := newTestMap(t)
	if p := mp.Find("shrines/a").Popup(); p.Source != InfoWiki || p.Link != "Alpha Shrine" {
		t.Errorf("wiki popup=%+v", p)
	}
	if p := mp.Find("towers/t1").Popup(); p.Source != InfoInline || p.Body != "Tall" {
		t.Errorf("inline popup=%+v", p)
	}
}

func TestMapSettingsSeedFlags(t *testing.T) {
	settings := memorySettings{
		LayerSettingKey("towers"):   false,
		TagSettingKey(TagCompleted): true,
	}
	mp, err := New(testDef(), Options{Settings: settings})
	if err != nil {
		t.Fatal(err)
	}
	if mp.Layer("towers").Visible() || !mp.Layer("shrines").Visible() {
		t.Error("layer flags not seeded from settings")
	}
	if !mp.Tag(TagCompleted).Visible() {
		t.Error("Completed flag not seeded from settings")
	}
	mp.SetTagVisible("Rare", false)
	if v, ok := settings[TagSettingKey("Rare")]; !ok || v {
		t.Error("tag toggle not persisted")
	}
}

func TestMapNearest(t *testing.T) {
	mp, _, _ := newTestMap(t)
	if mp.Nearest(orb.Point{12, 12}, 50) != nil {
		t.Fatal("hidden markers should not be hit")
	}
	mp.LoadTile(0, 0, 0)
	if m := mp.Nearest(orb.Point{12, 12}, 50); m == nil || m.Key() != "shrines/a" {
		t.Fatalf("Nearest=%v, want shrines/a", m)
	}
	if m := mp.Nearest(orb.Point{128, 128}, 5); m != nil {
		t.Fatalf("Nearest beyond max distance=%v", m.Key())
	}
}

func TestMapSearch(t *testing.T) {
	mp, _, _ := newTestMap(t)
	res := mp.Search("alpha")
	if res.Count() != 2 {
		t.Fatalf("Count=%d, want 2", res.Count())
	}
	flat := res.Flatten(mp.Layers())
	if flat[0].Key() != "shrines/a" || flat[1].Key() != "towers/a" {
		t.Errorf("order=%s,%s", flat[0].Key(), flat[1].Key())
	}
}

// Applying the same final configuration in any order converges to the same
// applied state, and the applied state always matches the rule. Unloaded
// tiles are loaded before the shuffle and never overlap the loaded ones.
func TestMapOrderIndependence(t *testing.T) {
	type op func(*Map)
	type tile struct{ z, x, y int }
	for seed := int64(1); seed <= 25; seed++ {
		r := rand.New(rand.NewSource(seed))
		picked := make(map[tile]bool)
		pick := func(z int) tile {
			n := 1 << z
			for {
				tl := tile{z, r.Intn(n), r.Intn(n)}
				if !picked[tl] {
					picked[tl] = true
					return tl
				}
			}
		}
		var ops []op
		var preload []tile
		for z := 1; z <= 3; z++ {
			for i := 0; i < 3; i++ {
				tl := pick(z)
				ops = append(ops, func(mp *Map) { mp.LoadTile(tl.z, tl.x, tl.y) })
			}
			tl := pick(z)
			preload = append(preload, tl)
			ops = append(ops, func(mp *Map) { mp.UnloadTile(tl.z, tl.x, tl.y) })
		}
		towers, rare, completed := r.Intn(2) == 0, r.Intn(2) == 0, r.Intn(2) == 0
		ops = append(ops,
			func(mp *Map) { mp.SetLayerVisible("towers", towers) },
			func(mp *Map) { mp.SetTagVisible("Rare", rare) },
			func(mp *Map) { mp.SetTagVisible(TagCompleted, completed) },
			func(mp *Map) { mp.ClearTag("Rare") },
			func(mp *Map) { mp.MarkComplete("towers/a") },
			func(mp *Map) { mp.MarkIncomplete("shrines/b") },
		)

		var results [][]string
		for run := 0; run < 3; run++ {
			rec := newRecorder()
			mp, err := New(testDef(), Options{Renderer: rec})
			if err != nil {
				t.Fatal(err)
			}
			for _, tl := range preload {
				mp.LoadTile(tl.z, tl.x, tl.y)
			}
			order := r.Perm(len(ops))
			for _, i := range order {
				ops[i](mp)
			}
			var keys []string
			for _, l := range mp.Layers() {
				for _, m := range l.Markers() {
					if m.Applied() != mp.Coordinator().Visible(m) {
						t.Fatalf("seed %d: %s applied=%v disagrees with rule", seed, m.Key(), m.Applied())
					}
					if m.Applied() != rec.shown[m.Key()] {
						t.Fatalf("seed %d: %s applied=%v renderer=%v", seed, m.Key(), m.Applied(), rec.shown[m.Key()])
					}
				}
			}
			for _, m := range mp.Visible() {
				keys = append(keys, m.Key())
			}
			results = append(results, keys)
		}
		for run := 1; run < len(results); run++ {
			if len(results[run]) != len(results[0]) {
				t.Fatalf("seed %d: run %d visible=%v, run 0 visible=%v", seed, run, results[run], results[0])
			}
			for i := range results[0] {
				if results[run][i] != results[0][i] {
					t.Fatalf("seed %d: run %d visible=%v, run 0 visible=%v", seed, run, results[run], results[0])
				}
			}
		}
	}
}

func TestMapDeclaredTagDefaults(t *testing.T) {
	hidden := false
	def := &MapDef{
		ID:      "tags",
		Name:    "Tags",
		MaxZoom: 1,
		Bounds:  [2][2]float64{{0, 0}, {256, 256}},
		Tags: []TagDef{
			{Name: "Boss"},
			{Name: "Secret", Visible: &hidden},
			{Name: TagCompleted},
		},
		Categories: []CategoryDef{{
			Name: "Enemies",
			Layers: []LayerDef{{ID: "bosses", Name: "Bosses", Markers: []MarkerDef{
				{ID: "a", Name: "Ancient Golem", Coordinates: []float64{10, 10}, Tags: []string{"Boss"}},
				{ID: "b", Name: "Buried Idol", Coordinates: []float64{20, 20}, Tags: []string{"Secret"}},
			}}},
		}},
	}
	mp, err := New(def, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !mp.Tag("Boss").Visible() || mp.Tag("Secret").Visible() || mp.Tag(TagCompleted).Visible() {
		t.Fatalf("Boss=%v Secret=%v Completed=%v, want true false false",
			mp.Tag("Boss").Visible(), mp.Tag("Secret").Visible(), mp.Tag(TagCompleted).Visible())
	}
	mp.LoadTile(0, 0, 0)
	if !mp.Find("bosses/a").Applied() {
		t.Error("marker tagged with a default-on tag should be shown")
	}
	if mp.Find("bosses/b").Applied() {
		t.Error("marker tagged with a hidden tag should stay hidden")
	}
}

func TestMapLoadedCells(t *testing.T) {
	mp, _, _ := newTestMap(t)
	mp.LoadTile(0, 0, 0)
	mp.LoadTile(1, 0, 0)
	mp.LoadTile(1, 1, 0) // no markers there
	got := mp.LoadedCells()
	want := []maptile.Tile{maptile.New(0, 0, 0), maptile.New(0, 0, 1)}
	if len(got) != len(want) {
		t.Fatalf("LoadedCells=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LoadedCells[%d]=%v, want %v", i, got[i], want[i])
		}
	}
	mp.UnloadTile(0, 0, 0)
	if got := mp.LoadedCells(); len(got) != 1 || got[0] != want[1] {
		t.Errorf("after unload LoadedCells=%v", got)
	}
}
