package markers

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/zyedidia/generic/mapset"

	"github.com/joeblew999/plat-wikimap/internal/metrics"
	"github.com/joeblew999/plat-wikimap/internal/pmtiles"
)

// ErrTileOutOfRange is returned by CheckTile for tiles outside the map.
var ErrTileOutOfRange = errors.New("tile out of range")

// Settings persists UI visibility flags between sessions.
type Settings interface {
	Visible(key string, def bool) bool
	SetVisible(key string, on bool)
}

// CompletionNotifier captures user completion changes for persistence.
type CompletionNotifier interface {
	MarkComplete(key string)
	MarkIncomplete(key string)
}

// LayerSettingKey is the Settings key of a layer filter.
func LayerSettingKey(layerID string) string { return "layer:" + layerID }

// TagSettingKey is the Settings key of a tag set.
func TagSettingKey(tag string) string { return "tag:" + tag }

type memorySettings map[string]bool

func (s memorySettings) Visible(key string, def bool) bool {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

func (s memorySettings) SetVisible(key string, on bool) { s[key] = on }

type nopNotifier struct{}

func (nopNotifier) MarkComplete(string)   {}
func (nopNotifier) MarkIncomplete(string) {}

// Options wires a Map to its collaborators. Nil fields get in-memory or
// no-op defaults.
type Options struct {
	Renderer Renderer
	Notifier CompletionNotifier
	Settings Settings
}

// Map is one game map: its categories, layers, tag sets and the coordinator
// that applies their combined visibility. A Map is not safe for concurrent
// use; callers serialise access.
type Map struct {
	id       string
	name     string
	proj     Projection
	maxZoom  int
	zoom     int
	coord    *Coordinator
	notifier CompletionNotifier
	settings Settings

	categories []*Category
	layers     []*Layer
	byID       map[string]*Layer
	tags       []*Set
	active     *Marker
}

// New builds a Map from a definition, loading every marker.
func New(def *MapDef, opts Options) (*Map, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	proj, err := NewProjection(def.Bound(), def.TileSize, def.YUp)
	if err != nil {
		return nil, err
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Settings == nil {
		opts.Settings = memorySettings{}
	}

	mp := &Map{
		id:       def.ID,
		name:     def.Name,
		proj:     proj,
		maxZoom:  def.MaxZoom,
		coord:    NewCoordinator(opts.Renderer),
		notifier: opts.Notifier,
		settings: opts.Settings,
		byID:     make(map[string]*Layer),
	}

	tags := def.Tags
	if !declares(tags, TagCompleted) {
		tags = append([]TagDef{{Name: TagCompleted}}, tags...)
	}
	for _, t := range tags {
		s := NewSet(t.Name).OnClear(mp.teardown(t.Name))
		s.SetVisible(mp.settings.Visible(TagSettingKey(t.Name), t.DefaultVisible()))
		mp.coord.RegisterTag(s)
		mp.tags = append(mp.tags, s)
	}

	for _, cd := range def.Categories {
		cat := &Category{name: cd.Name}
		catOn := cd.Visible == nil || *cd.Visible
		for _, ld := range cd.Layers {
			l := NewLayer(ld, cd.Name, proj, def.MaxZoom, mp.coord)
			on := catOn && (ld.Visible == nil || *ld.Visible)
			l.filter.SetVisible(mp.settings.Visible(LayerSettingKey(l.id), on))
			for _, md := range ld.Markers {
				if _, err := l.AddMarker(md); err != nil {
					return nil, fmt.Errorf("category %q: %w", cd.Name, err)
				}
			}
			cat.layers = append(cat.layers, l)
			mp.layers = append(mp.layers, l)
			mp.byID[l.id] = l
		}
		mp.categories = append(mp.categories, cat)
	}
	return mp, nil
}

func declares(tags []TagDef, name string) bool {
	for _, t := range tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (mp *Map) teardown(tag string) func(*Marker) {
	return func(m *Marker) {
		if m.removeTag(tag) && tag == TagCompleted {
			mp.notifier.MarkIncomplete(m.Key())
		}
	}
}

// ID returns the map ID.
func (mp *Map) ID() string { return mp.id }

// Name returns the display name.
func (mp *Map) Name() string { return mp.name }

// Projection returns the world to pixel projection.
func (mp *Map) Projection() Projection { return mp.proj }

// MaxZoom returns the deepest zoom level.
func (mp *Map) MaxZoom() int { return mp.maxZoom }

// Zoom returns the last zoom reported by the viewport.
func (mp *Map) Zoom() int { return mp.zoom }

// Coordinator returns the visibility coordinator.
func (mp *Map) Coordinator() *Coordinator { return mp.coord }

// Categories returns the categories in data order.
func (mp *Map) Categories() []*Category {
	out := make([]*Category, len(mp.categories))
	copy(out, mp.categories)
	return out
}

// Category returns the named category, or nil.
func (mp *Map) Category(name string) *Category {
	for _, c := range mp.categories {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Layers returns every layer in data order.
func (mp *Map) Layers() []*Layer {
	out := make([]*Layer, len(mp.layers))
	copy(out, mp.layers)
	return out
}

// Layer returns the layer with the given ID, or nil.
func (mp *Map) Layer(id string) *Layer { return mp.byID[id] }

// Tags returns the tag sets in declaration order.
func (mp *Map) Tags() []*Set {
	out := make([]*Set, len(mp.tags))
	copy(out, mp.tags)
	return out
}

// Tag returns the named tag set, or nil.
func (mp *Map) Tag(name string) *Set { return mp.coord.Tag(name) }

// CheckTile reports whether (z, x, y) addresses a tile of this map.
func (mp *Map) CheckTile(z, x, y int) error {
	if z < 0 || z > mp.maxZoom {
		return fmt.Errorf("%w: zoom %d not in [0,%d]", ErrTileOutOfRange, z, mp.maxZoom)
	}
	n := 1 << z
	if x < 0 || y < 0 || x >= n || y >= n {
		return fmt.Errorf("%w: tile %d/%d/%d not in [0,%d)", ErrTileOutOfRange, z, x, y, n)
	}
	return nil
}

func (mp *Map) mustTile(z, x, y int) maptile.Tile {
	if err := mp.CheckTile(z, x, y); err != nil {
		panic("markers: " + err.Error())
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
}

// LoadTile records that the viewport loaded tile (z, x, y) and recomputes
// the markers in it. It returns how many markers changed and panics on a
// tile outside the map.
func (mp *Map) LoadTile(z, x, y int) int {
	return mp.tileEvent(mp.mustTile(z, x, y), true)
}

// UnloadTile records that the viewport dropped tile (z, x, y).
func (mp *Map) UnloadTile(z, x, y int) int {
	return mp.tileEvent(mp.mustTile(z, x, y), false)
}

func (mp *Map) tileEvent(t maptile.Tile, loaded bool) int {
	kind := "unload"
	if loaded {
		kind = "load"
	}
	metrics.TileEventsTotal.WithLabelValues(kind).Inc()

	changed := 0
	for _, l := range mp.layers {
		if int(t.Z) > l.grid.MaxZoom() {
			continue
		}
		var affected []*Marker
		if loaded {
			affected = l.grid.LoadTile(t)
		} else {
			affected = l.grid.UnloadTile(t)
		}
		changed += mp.coord.RecomputeAll(affected)
	}
	return changed
}

// SetZoom propagates a zoom change to every layer. Shown markers whose
// presentation changed are passed to the renderer when it is a Restyler.
func (mp *Map) SetZoom(zoom int) []*Marker {
	mp.zoom = zoom
	var restyled []*Marker
	rs, _ := mp.coord.Renderer().(Restyler)
	for _, l := range mp.layers {
		for _, m := range l.UpdateZoom(zoom) {
			if !m.applied {
				continue
			}
			restyled = append(restyled, m)
			if rs != nil {
				rs.Restyle(m)
			}
		}
	}
	return restyled
}

// SetLayerVisible toggles a layer filter. ok is false for an unknown layer.
func (mp *Map) SetLayerVisible(id string, on bool) (changed int, ok bool) {
	l := mp.byID[id]
	if l == nil {
		return 0, false
	}
	mp.settings.SetVisible(LayerSettingKey(id), on)
	return l.SetVisible(on), true
}

// SetCategoryVisible toggles every layer of a category.
func (mp *Map) SetCategoryVisible(name string, on bool) (changed int, ok bool) {
	c := mp.Category(name)
	if c == nil {
		return 0, false
	}
	for _, l := range c.layers {
		mp.settings.SetVisible(LayerSettingKey(l.id), on)
	}
	return c.SetVisible(on), true
}

// SetTagVisible toggles a tag set and recomputes its members. ok is false
// for an unknown tag.
func (mp *Map) SetTagVisible(tag string, on bool) (changed int, ok bool) {
	s := mp.coord.Tag(tag)
	if s == nil {
		return 0, false
	}
	mp.settings.SetVisible(TagSettingKey(tag), on)
	if s.Visible() == on {
		return 0, true
	}
	s.SetVisible(on)
	return mp.coord.RecomputeAll(s.Members()), true
}

// ClearTag removes tag from every marker carrying it. Clearing
// TagCompleted notifies MarkIncomplete for each marker.
func (mp *Map) ClearTag(tag string) (changed int, ok bool) {
	s := mp.coord.Tag(tag)
	if s == nil {
		return 0, false
	}
	return mp.coord.RecomputeAll(s.Clear()), true
}

// AddTag tags the marker with key. It reports false when the marker is
// unknown or already tagged.
func (mp *Map) AddTag(key, tag string) bool {
	m := mp.Find(key)
	if m == nil || !mp.tag(m, tag) {
		return false
	}
	if tag == TagCompleted {
		mp.notifier.MarkComplete(m.Key())
	}
	mp.coord.Recompute(m)
	return true
}

// RemoveTag untags the marker with key.
func (mp *Map) RemoveTag(key, tag string) bool {
	m := mp.Find(key)
	if m == nil || !m.removeTag(tag) {
		return false
	}
	if s := mp.coord.Tag(tag); s != nil {
		s.Remove(m)
	}
	if tag == TagCompleted {
		mp.notifier.MarkIncomplete(m.Key())
	}
	mp.coord.Recompute(m)
	return true
}

func (mp *Map) tag(m *Marker, tag string) bool {
	if !m.addTag(tag) {
		return false
	}
	if s := mp.coord.Tag(tag); s != nil {
		s.Add(m)
	}
	return true
}

// MarkComplete tags a marker completed and notifies the CompletionNotifier.
func (mp *Map) MarkComplete(key string) bool { return mp.AddTag(key, TagCompleted) }

// MarkIncomplete removes the completed tag and notifies the
// CompletionNotifier.
func (mp *Map) MarkIncomplete(key string) bool { return mp.RemoveTag(key, TagCompleted) }

// ApplyCompleted tags externally known completed markers. It only adds
// tags, never removes any, and sends no notifications. Unknown keys are
// skipped. It returns how many markers gained the tag.
func (mp *Map) ApplyCompleted(keys []string) int {
	n := 0
	for _, key := range keys {
		m := mp.Find(key)
		if m == nil || !mp.tag(m, TagCompleted) {
			continue
		}
		mp.coord.Recompute(m)
		n++
	}
	return n
}

// Completed returns the keys of every completed marker, sorted.
func (mp *Map) Completed() []string {
	s := mp.coord.Tag(TagCompleted)
	keys := make([]string, 0, s.Len())
	for _, m := range s.Members() {
		keys = append(keys, m.Key())
	}
	sort.Strings(keys)
	return keys
}

// Find resolves a marker key "layer/marker". A bare marker ID matches the
// first layer holding it. Unknown keys return nil.
func (mp *Map) Find(key string) *Marker {
	layerID, id := SplitKey(key)
	if layerID != "" {
		if l := mp.byID[layerID]; l != nil {
			return l.Marker(id)
		}
		return nil
	}
	for _, l := range mp.layers {
		if m := l.Marker(id); m != nil {
			return m
		}
	}
	return nil
}

// SetActive makes the marker with key the active (permalinked) one. An
// unknown key leaves the active marker unchanged and returns nil.
func (mp *Map) SetActive(key string) *Marker {
	if m := mp.Find(key); m != nil {
		mp.active = m
		return m
	}
	return nil
}

// ClearActive drops the active marker.
func (mp *Map) ClearActive() { mp.active = nil }

// Active returns the active marker, or nil.
func (mp *Map) Active() *Marker { return mp.active }

// Permalink returns the active marker's key, or "" when none is active.
func (mp *Map) Permalink() string {
	if mp.active == nil {
		return ""
	}
	return mp.active.Key()
}

// Search matches text against marker names across every layer.
func (mp *Map) Search(text string) Results {
	return Search(text, mp.layers)
}

// Nearest returns the closest shown marker to a world point within maxDist.
func (mp *Map) Nearest(pt orb.Point, maxDist float64) *Marker {
	var best *Marker
	bestDist := math.Inf(1)
	for _, l := range mp.layers {
		m := l.Nearest(pt, maxDist)
		if m == nil {
			continue
		}
		if d := planar.Distance(pt, m.point); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best
}

// LoadedCells returns the loaded tiles that hold markers in any layer,
// ordered by tile ID.
func (mp *Map) LoadedCells() []maptile.Tile {
	ids := mapset.New[uint64]()
	for _, l := range mp.layers {
		for _, t := range l.grid.LoadedTiles() {
			ids.Put(cellID(t))
		}
	}
	sorted := make([]uint64, 0, ids.Size())
	ids.Each(func(id uint64) { sorted = append(sorted, id) })
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]maptile.Tile, len(sorted))
	for i, id := range sorted {
		z, x, y := pmtiles.IDToZxy(id)
		out[i] = maptile.New(x, y, maptile.Zoom(z))
	}
	return out
}

// Visible returns every shown marker in layer order.
func (mp *Map) Visible() []*Marker {
	var out []*Marker
	for _, l := range mp.layers {
		for _, m := range l.markers {
			if m.applied {
				out = append(out, m)
			}
		}
	}
	return out
}
