package markers

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/zyedidia/generic/mapset"
)

// TagCompleted marks user progress on a marker.
const TagCompleted = "Completed"

// Presentation is how a shown marker is drawn at the current zoom.
type Presentation int

const (
	PresentIcon Presentation = iota
	PresentLabel
)

func (p Presentation) String() string {
	if p == PresentLabel {
		return "label"
	}
	return "icon"
}

// Popup describes where a marker's popup content comes from.
type Popup struct {
	Title  string     `json:"title" doc:"Popup title"`
	Link   string     `json:"link,omitempty" doc:"Wiki page the content is loaded from"`
	Body   string     `json:"body,omitempty" doc:"Inline popup text"`
	Source InfoSource `json:"source" doc:"Content source policy" enum:"wiki,inline,none"`
}

// Marker is a single point or path of interest on a map.
//
// The owning layer is held by ID only; the Map resolves it.
type Marker struct {
	id          string
	layer       string
	name        string
	link        string
	description string
	point       orb.Point
	elevation   *float64
	path        orb.LineString

	projected  orb.Point
	membership []maptile.Tile
	tags       mapset.Set[string]

	applied      bool
	presentation Presentation
	popup        Popup
}

func newMarker(layerID string, id, name string, point orb.Point) *Marker {
	return &Marker{
		id:    id,
		layer: layerID,
		name:  name,
		point: point,
		tags:  mapset.New[string](),
	}
}

// ID returns the marker ID, unique within its layer.
func (m *Marker) ID() string { return m.id }

// LayerID returns the ID of the owning layer.
func (m *Marker) LayerID() string { return m.layer }

// Key returns the map-wide identity "layer/marker" used by permalinks and
// completion tracking.
func (m *Marker) Key() string { return MarkerKey(m.layer, m.id) }

// Name returns the display name.
func (m *Marker) Name() string { return m.name }

// Link returns the wiki link, if any.
func (m *Marker) Link() string { return m.link }

// Description returns the inline description, if any.
func (m *Marker) Description() string { return m.description }

// Point returns the marker coordinates in map units. It also makes Marker an
// orb.Pointer for the hit-testing quadtree.
func (m *Marker) Point() orb.Point { return m.point }

// Elevation returns the optional third coordinate.
func (m *Marker) Elevation() (float64, bool) {
	if m.elevation == nil {
		return 0, false
	}
	return *m.elevation, true
}

// Path returns the connecting line, or nil for a plain point.
func (m *Marker) Path() orb.LineString { return m.path }

// Projected returns the marker position in zoom-0 pixel space.
func (m *Marker) Projected() orb.Point { return m.projected }

// Membership returns the tile the marker is registered in at each zoom,
// indexed by zoom level.
func (m *Marker) Membership() []maptile.Tile {
	out := make([]maptile.Tile, len(m.membership))
	copy(out, m.membership)
	return out
}

// HasTag reports whether the marker currently carries tag.
func (m *Marker) HasTag(tag string) bool { return m.tags.Has(tag) }

// Tags returns the current tags, sorted.
func (m *Marker) Tags() []string {
	out := make([]string, 0, m.tags.Size())
	m.tags.Each(func(t string) {
		out = append(out, t)
	})
	sort.Strings(out)
	return out
}

// Completed reports whether the marker carries TagCompleted.
func (m *Marker) Completed() bool { return m.tags.Has(TagCompleted) }

// Applied reports whether the marker is currently shown.
func (m *Marker) Applied() bool { return m.applied }

// Presentation returns the zoom-driven drawing mode.
func (m *Marker) Presentation() Presentation { return m.presentation }

// Popup returns the popup descriptor.
func (m *Marker) Popup() Popup { return m.popup }

func (m *Marker) addTag(tag string) bool {
	if m.tags.Has(tag) {
		return false
	}
	m.tags.Put(tag)
	return true
}

func (m *Marker) removeTag(tag string) bool {
	if !m.tags.Has(tag) {
		return false
	}
	m.tags.Remove(tag)
	return true
}

func (m *Marker) show(r Renderer) {
	m.applied = true
	r.Show(m)
}

func (m *Marker) hide(r Renderer) {
	m.applied = false
	r.Hide(m)
}

// MarkerKey joins a layer and marker ID into a marker key.
func MarkerKey(layerID, markerID string) string {
	return layerID + "/" + markerID
}

// SplitKey splits a marker key. A key without a layer part returns an empty
// layer ID.
func SplitKey(key string) (layerID, markerID string) {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}
