package markers

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-wikimap/internal/pmtiles"
)

// MaxZoomLimit is the deepest zoom level a grid can index.
const MaxZoomLimit = 24

// Grid partitions one layer's markers into a tile bucket per zoom level.
// Cells are keyed by their PMTiles Hilbert tile ID; a cell's on flag mirrors
// whether the viewport currently has that tile loaded.
type Grid struct {
	layer    string
	maxZoom  maptile.Zoom
	tileSize float64
	cells    map[uint64]*cell
}

type cell struct {
	tile maptile.Tile
	*Set
}

func newCell(t maptile.Tile) *cell {
	return &cell{tile: t, Set: NewSet(tileName(t))}
}

// NewGrid returns an empty grid indexing zoom levels 0..maxZoom.
func NewGrid(layerID string, maxZoom int, tileSize float64) *Grid {
	if maxZoom < 0 || maxZoom > MaxZoomLimit {
		panic(fmt.Sprintf("markers: grid max zoom %d out of range [0,%d]", maxZoom, MaxZoomLimit))
	}
	if tileSize <= 0 {
		panic(fmt.Sprintf("markers: tile size %v must be positive", tileSize))
	}
	root := maptile.New(0, 0, 0)
	return &Grid{
		layer:    layerID,
		maxZoom:  maptile.Zoom(maxZoom),
		tileSize: tileSize,
		cells:    map[uint64]*cell{cellID(root): newCell(root)},
	}
}

// MaxZoom returns the deepest indexed zoom level.
func (g *Grid) MaxZoom() int {
	return int(g.maxZoom)
}

// TileSize returns the zoom-0 tile edge length in pixels.
func (g *Grid) TileSize() float64 {
	return g.tileSize
}

// Register inserts m into exactly one cell per zoom level, using its
// projected zoom-0 pixel position, and records the cells on the marker.
func (g *Grid) Register(m *Marker, projected orb.Point) {
	m.projected = projected
	m.membership = make([]maptile.Tile, 0, g.maxZoom+1)
	for z := maptile.Zoom(0); z <= g.maxZoom; z++ {
		t := TileAt(projected, z, g.tileSize)
		id := cellID(t)
		c, ok := g.cells[id]
		if !ok {
			c = newCell(t)
			g.cells[id] = c
		}
		c.Add(m)
		m.membership = append(m.membership, t)
	}
}

// TileAt returns the tile containing a zoom-0 pixel position at zoom z.
//
// Tiles cover half-open ranges (lo, hi]: a point exactly on an interior
// tile edge belongs to the lower-indexed tile. Scaling by 2^z/tileSize is
// exact for power-of-two tile sizes, so edge points bucket the same way on
// every call.
func TileAt(p orb.Point, z maptile.Zoom, tileSize float64) maptile.Tile {
	return maptile.New(tileIndex(p[0], z, tileSize), tileIndex(p[1], z, tileSize), z)
}

func tileIndex(v float64, z maptile.Zoom, tileSize float64) uint32 {
	n := uint32(1) << z
	s := v * float64(n) / tileSize
	t := math.Floor(s)
	if t == s && t > 0 {
		t--
	}
	switch {
	case math.IsNaN(t) || t < 0:
		return 0
	case t >= float64(n):
		return n - 1
	}
	return uint32(t)
}

// Cell returns the bucket for t, or nil when no marker falls in it.
func (g *Grid) Cell(t maptile.Tile) *Set {
	g.check(t)
	if c, ok := g.cells[cellID(t)]; ok {
		return c.Set
	}
	return nil
}

// Root returns the zoom-0 cell, which holds every marker of the layer.
func (g *Grid) Root() *Set {
	return g.cells[cellID(maptile.New(0, 0, 0))].Set
}

// LoadTile marks t loaded and returns the markers whose visibility may have
// changed. It panics if t is outside the grid.
func (g *Grid) LoadTile(t maptile.Tile) []*Marker {
	return g.setLoaded(t, true)
}

// UnloadTile marks t unloaded and returns the markers whose visibility may
// have changed. It panics if t is outside the grid.
func (g *Grid) UnloadTile(t maptile.Tile) []*Marker {
	return g.setLoaded(t, false)
}

func (g *Grid) setLoaded(t maptile.Tile, on bool) []*Marker {
	g.check(t)
	c, ok := g.cells[cellID(t)]
	if !ok || c.Visible() == on {
		return nil
	}
	c.SetVisible(on)
	return c.Members()
}

// Loaded reports whether any cell m is registered in, at any zoom, is
// loaded. Coarser tiles stay loaded supersets during zoom transitions, so
// every zoom level counts.
func (g *Grid) Loaded(m *Marker) bool {
	for _, t := range m.membership {
		if c, ok := g.cells[cellID(t)]; ok && c.Visible() {
			return true
		}
	}
	return false
}

// LoadedTiles returns the loaded cells ordered by zoom, then x, then y.
func (g *Grid) LoadedTiles() []maptile.Tile {
	var out []maptile.Tile
	for _, c := range g.cells {
		if c.Visible() {
			out = append(out, c.tile)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

// FindByID returns the layer's marker with the given ID, or nil.
func (g *Grid) FindByID(id string) *Marker {
	return g.Root().Get(MarkerKey(g.layer, id))
}

// FindByName returns every marker whose display name matches re.
func (g *Grid) FindByName(re *regexp.Regexp) []*Marker {
	var out []*Marker
	for _, m := range g.Root().Members() {
		if re.MatchString(m.name) {
			out = append(out, m)
		}
	}
	return out
}

// check panics on a tile outside the grid; callers asking for one have a bug.
func (g *Grid) check(t maptile.Tile) {
	if t.Z > g.maxZoom {
		panic(fmt.Sprintf("markers: zoom %d beyond grid max zoom %d", t.Z, g.maxZoom))
	}
	n := uint32(1) << t.Z
	if t.X >= n || t.Y >= n {
		panic(fmt.Sprintf("markers: tile %s out of range at zoom %d", tileName(t), t.Z))
	}
}

func cellID(t maptile.Tile) uint64 {
	return pmtiles.ZxyToID(uint8(t.Z), t.X, t.Y)
}

func tileName(t maptile.Tile) string {
	return fmt.Sprintf("tile %d/%d/%d", t.Z, t.X, t.Y)
}
