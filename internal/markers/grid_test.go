package markers

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestGridRegisterOneCellPerZoom(t *testing.T) {
	g := NewGrid("l", 4, 256)
	m := newMarker("l", "m", "M", orb.Point{100, 30})
	g.Register(m, m.point)

	ms := m.Membership()
	if len(ms) != 5 {
		t.Fatalf("membership len=%d, want 5", len(ms))
	}
	for z, tile := range ms {
		if int(tile.Z) != z {
			t.Errorf("membership[%d].Z=%d", z, tile.Z)
		}
		if c := g.Cell(tile); c == nil || !c.Has(m) {
			t.Errorf("cell %v does not hold the marker", tile)
		}
	}
	want := maptile.New(6, 1, 4)
	if ms[4] != want {
		t.Errorf("zoom 4 tile=%v, want %v", ms[4], want)
	}
	if g.Root().Len() != 1 {
		t.Errorf("root len=%d, want 1", g.Root().Len())
	}
}

func TestTileAtBoundaryGoesToLowerTile(t *testing.T) {
	for z := maptile.Zoom(1); z <= 6; z++ {
		edge := 256 / float64(uint32(1)<<z)
		got := TileAt(orb.Point{edge, 0}, z, 256)
		if got != maptile.New(0, 0, z) {
			t.Errorf("zoom %d: edge point in %v, want %d/0/0", z, got, z)
		}
	}
}

func TestTileAtClampsOutside(t *testing.T) {
	tests := []struct {
		p    orb.Point
		want maptile.Tile
	}{
		{orb.Point{-5, -5}, maptile.New(0, 0, 2)},
		{orb.Point{256, 256}, maptile.New(3, 3, 2)},
		{orb.Point{999, 0}, maptile.New(3, 0, 2)},
	}
	for _, tt := range tests {
		if got := TileAt(tt.p, 2, 256); got != tt.want {
			t.Errorf("TileAt(%v)=%v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestGridBoundaryDeterministic(t *testing.T) {
	p := orb.Point{64, 128}
	var first []maptile.Tile
	for i := 0; i < 1000; i++ {
		g := NewGrid("l", 6, 256)
		m := newMarker("l", "c", "C", p)
		g.Register(m, p)

		count := 0
		for z := 0; z <= 6; z++ {
			n := uint32(1) << z
			for x := uint32(0); x < n; x++ {
				for y := uint32(0); y < n; y++ {
					if c := g.Cell(maptile.New(x, y, maptile.Zoom(z))); c != nil && c.Has(m) {
						count++
					}
				}
			}
		}
		if count != 7 {
			t.Fatalf("run %d: marker in %d cells, want 7", i, count)
		}
		if first == nil {
			first = m.Membership()
			continue
		}
		for z, tile := range m.Membership() {
			if tile != first[z] {
				t.Fatalf("run %d: zoom %d tile %v, first run had %v", i, z, tile, first[z])
			}
		}
	}
}

func TestGridLoadUnload(t *testing.T) {
	g := NewGrid("l", 2, 256)
	m := newMarker("l", "m", "M", orb.Point{10, 10})
	g.Register(m, m.point)

	tile := maptile.New(0, 0, 2)
	if got := g.LoadTile(tile); len(got) != 1 {
		t.Fatalf("load affected %d, want 1", len(got))
	}
	if got := g.LoadTile(tile); got != nil {
		t.Errorf("second load affected %d, want none", len(got))
	}
	if !g.Loaded(m) {
		t.Error("marker not loaded")
	}
	if lt := g.LoadedTiles(); len(lt) != 1 || lt[0] != tile {
		t.Errorf("LoadedTiles=%v", lt)
	}
	if got := g.LoadTile(maptile.New(3, 3, 2)); got != nil {
		t.Errorf("empty tile affected %d markers", len(got))
	}
	g.UnloadTile(tile)
	if g.Loaded(m) {
		t.Error("marker still loaded after unload")
	}
}

func TestGridAnyZoomCounts(t *testing.T) {
	g := NewGrid("l", 3, 256)
	m := newMarker("l", "m", "M", orb.Point{10, 10})
	g.Register(m, m.point)

	g.LoadTile(maptile.New(0, 0, 1))
	if !g.Loaded(m) {
		t.Fatal("coarse tile should count")
	}
	g.LoadTile(maptile.New(0, 0, 3))
	g.UnloadTile(maptile.New(0, 0, 1))
	if !g.Loaded(m) {
		t.Fatal("fine tile should keep the marker loaded")
	}
}

func TestGridOutOfRangePanics(t *testing.T) {
	g := NewGrid("l", 2, 256)
	for _, tile := range []maptile.Tile{
		maptile.New(0, 0, 3),
		maptile.New(4, 0, 2),
		maptile.New(0, 2, 1),
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("LoadTile(%v) did not panic", tile)
				}
			}()
			g.LoadTile(tile)
		}()
	}
}

func TestGridFindByID(t *testing.T) {
	g := NewGrid("l", 1, 256)
	m := newMarker("l", "m", "M", orb.Point{10, 10})
	g.Register(m, m.point)
	if g.FindByID("m") != m {
		t.Error("FindByID missed")
	}
	if g.FindByID("nope") != nil {
		t.Error("FindByID found a missing id")
	}
}
