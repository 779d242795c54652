package markers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const yamlMap = `
name: Caves
bounds: [[-100, -100], [100, 100]]
yUp: true
tags:
  - name: Rare
    visible: true
categories:
  - name: Loot
    layers:
      - name: Treasure Chests
        info: inline
        markers:
          - id: c1
            name: Gold Chest
            coordinates: [0, 0, 12]
            description: Behind the waterfall
`

func TestDecodeFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caves.yaml")
	if err := os.WriteFile(path, []byte(yamlMap), 0644); err != nil {
		t.Fatal(err)
	}
	def, err := DecodeFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if def.ID != "caves" {
		t.Errorf("id=%q, want caves", def.ID)
	}
	if def.TileSize != DefaultTileSize || def.MaxZoom != DefaultMaxZoom {
		t.Errorf("defaults not applied: tileSize=%v maxZoom=%d", def.TileSize, def.MaxZoom)
	}
	l := def.Categories[0].Layers[0]
	if l.ID != "treasure_chests" {
		t.Errorf("layer id=%q, want treasure_chests", l.ID)
	}

	mp, err := New(def, Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := mp.Find("treasure_chests/c1")
	if m == nil {
		t.Fatal("marker not loaded")
	}
	if e, ok := m.Elevation(); !ok || e != 12 {
		t.Errorf("elevation=%v,%v", e, ok)
	}
	if p := m.Projected(); p[0] != 128 || p[1] != 128 {
		t.Errorf("projected=%v, want [128 128]", p)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"no bounds", `{"name":"x","categories":[]}`, "no area"},
		{"bad tile size", `{"name":"x","tileSize":100,"bounds":[[0,0],[1,1]]}`, "power of two"},
		{"missing marker id", `{"name":"x","bounds":[[0,0],[1,1]],"categories":[{"name":"C","layers":[{"name":"L","markers":[{"name":"m","coordinates":[0,0]}]}]}]}`, `category "C" layer "l" marker 0 has no id`},
		{"missing name", `{"name":"x","bounds":[[0,0],[1,1]],"categories":[{"name":"C","layers":[{"name":"L","markers":[{"id":"m1","coordinates":[0,0]}]}]}]}`, `marker "m1" has no name`},
		{"bad coordinates", `{"name":"x","bounds":[[0,0],[1,1]],"categories":[{"name":"C","layers":[{"name":"L","markers":[{"id":"m1","name":"M","coordinates":[0]}]}]}]}`, "needs 2 or 3 coordinates"},
		{"duplicate marker", `{"name":"x","bounds":[[0,0],[1,1]],"categories":[{"name":"C","layers":[{"name":"L","markers":[{"id":"m1","name":"M","coordinates":[0,0]},{"id":"m1","name":"N","coordinates":[0,0]}]}]}]}`, `marker "m1" is duplicated`},
		{"slash in marker id", `{"name":"x","bounds":[[0,0],[1,1]],"categories":[{"name":"C","layers":[{"name":"L","markers":[{"id":"x/y","name":"M","coordinates":[0,0]}]}]}]}`, `marker "x/y" has invalid id`},
		{"duplicate layer", `{"name":"x","bounds":[[0,0],[1,1]],"categories":[{"name":"C","layers":[{"name":"L"},{"name":"L"}]}]}`, "duplicates a layer"},
		{"unknown info", `{"name":"x","bounds":[[0,0],[1,1]],"categories":[{"name":"C","layers":[{"name":"L","info":"html"}]}]}`, "unknown info source"},
		{"malformed", `{"name":`, "invalid map data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), "json")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrInvalidData) {
				t.Errorf("err=%v does not wrap ErrInvalidData", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err=%q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestProjectionTileBound(t *testing.T) {
	p, err := NewProjection(testDef().Bound(), 256, false)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		tile maptile.Tile
		want orb.Bound
	}{
		{maptile.New(0, 0, 0), orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{256, 256}}},
		{maptile.New(1, 0, 1), orb.Bound{Min: orb.Point{128, 0}, Max: orb.Point{256, 128}}},
		{maptile.New(3, 2, 3), orb.Bound{Min: orb.Point{96, 64}, Max: orb.Point{128, 96}}},
	}
	for _, tt := range tests {
		if got := p.TileBound(tt.tile); got != tt.want {
			t.Errorf("TileBound(%v)=%v, want %v", tt.tile, got, tt.want)
		}
	}

	up, _ := NewProjection(testDef().Bound(), 256, true)
	if got := up.TileBound(maptile.New(0, 0, 1)); got.Min[1] != 128 || got.Max[1] != 256 {
		t.Errorf("y-up TileBound=%v, want y in [128,256]", got)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	if _, err := Decode([]byte("x"), "toml"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestProjectionYUp(t *testing.T) {
	p, err := NewProjection(testDef().Bound(), 256, true)
	if err != nil {
		t.Fatal(err)
	}
	px := p.Project([2]float64{64, 0})
	if px[0] != 64 || px[1] != 256 {
		t.Errorf("Project=%v, want [64 256]", px)
	}
	back := p.Unproject(px)
	if back[0] != 64 || back[1] != 0 {
		t.Errorf("Unproject=%v, want [64 0]", back)
	}
}
