package markers

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// Layer groups markers that share an icon and a popup content policy. It
// owns its markers' grid and its own filter set.
type Layer struct {
	id       string
	name     string
	link     string
	category string
	minZoom  int
	icon     Icon
	info     InfoSource

	proj   Projection
	grid   *Grid
	filter *Set
	coord  *Coordinator

	markers []*Marker
	tree    *quadtree.Quadtree
	zoom    int
}

// NewLayer creates an empty layer and registers its grid and filter set with
// c. The grid depth is the layer's max zoom capped at maxZoom.
func NewLayer(def LayerDef, category string, proj Projection, maxZoom int, c *Coordinator) *Layer {
	depth := maxZoom
	if def.MaxZoom > 0 && def.MaxZoom < depth {
		depth = def.MaxZoom
	}
	id := def.ID
	if id == "" {
		id = GenerateID(def.Name)
	}
	info := def.Info
	if info == "" {
		info = InfoWiki
	}
	l := &Layer{
		id:       id,
		name:     def.Name,
		link:     def.Link,
		category: category,
		minZoom:  def.MinZoom,
		info:     info,
		proj:     proj,
		grid:     NewGrid(id, depth, proj.TileSize),
		filter:   NewSet("layer " + id),
		coord:    c,
	}
	if def.Icon != nil {
		l.icon = *def.Icon
	}
	c.AddGrid(id, l.grid)
	c.RegisterFilter(id, l.filter)
	return l
}

// ID returns the layer ID.
func (l *Layer) ID() string { return l.id }

// Name returns the display name.
func (l *Layer) Name() string { return l.name }

// Link returns the layer's wiki page.
func (l *Layer) Link() string { return l.link }

// Category returns the owning category name.
func (l *Layer) Category() string { return l.category }

// Icon returns the shared icon.
func (l *Layer) Icon() Icon { return l.icon }

// Info returns the popup content policy.
func (l *Layer) Info() InfoSource { return l.info }

// MinZoom returns the zoom below which markers draw label-only.
func (l *Layer) MinZoom() int { return l.minZoom }

// Grid returns the layer's spatial grid.
func (l *Layer) Grid() *Grid { return l.grid }

// Filter returns the layer's filter set.
func (l *Layer) Filter() *Set { return l.filter }

// AddMarker builds a marker from raw data, registers it into the grid and
// into the tag sets of its initial tags, and returns it.
func (l *Layer) AddMarker(def MarkerDef) (*Marker, error) {
	if err := validateMarkers(fmt.Sprintf("layer %q", l.id), []MarkerDef{def}); err != nil {
		return nil, err
	}
	if l.grid.FindByID(def.ID) != nil {
		return nil, fmt.Errorf("%w: layer %q marker %q is duplicated", ErrInvalidData, l.id, def.ID)
	}

	m := newMarker(l.id, def.ID, def.Name, orb.Point{def.Coordinates[0], def.Coordinates[1]})
	if len(def.Coordinates) == 3 {
		e := def.Coordinates[2]
		m.elevation = &e
	}
	m.link = def.Link
	m.description = def.Description
	if len(def.Path) > 0 {
		m.path = make(orb.LineString, 0, len(def.Path))
		for _, p := range def.Path {
			m.path = append(m.path, orb.Point{p[0], p[1]})
		}
	}
	m.popup = l.popupFor(m)
	m.presentation = l.presentationAt(l.zoom)

	l.grid.Register(m, l.proj.Project(m.point))
	for _, tag := range def.Tags {
		m.addTag(tag)
		if s := l.coord.Tag(tag); s != nil {
			s.Add(m)
		}
	}
	l.markers = append(l.markers, m)
	l.tree = nil
	l.coord.Recompute(m)
	return m, nil
}

func (l *Layer) popupFor(m *Marker) Popup {
	p := Popup{Title: m.name, Source: l.info}
	switch l.info {
	case InfoWiki:
		p.Link = m.link
		if p.Link == "" {
			p.Link = m.name
		}
	case InfoInline:
		p.Body = m.description
	}
	return p
}

// Marker returns the marker with the given ID, or nil.
func (l *Layer) Marker(id string) *Marker {
	return l.grid.FindByID(id)
}

// Markers returns the markers in load order.
func (l *Layer) Markers() []*Marker {
	out := make([]*Marker, len(l.markers))
	copy(out, l.markers)
	return out
}

// Find returns markers whose display name matches re, sorted by name.
func (l *Layer) Find(re *regexp.Regexp) []*Marker {
	found := l.grid.FindByName(re)
	sort.Slice(found, func(i, j int) bool {
		if found[i].name != found[j].name {
			return found[i].name < found[j].name
		}
		return found[i].id < found[j].id
	})
	return found
}

// Show turns the layer filter on and recomputes its markers.
func (l *Layer) Show() int {
	return l.SetVisible(true)
}

// Hide turns the layer filter off and recomputes its markers.
func (l *Layer) Hide() int {
	return l.SetVisible(false)
}

// SetVisible sets the filter flag and returns how many markers changed.
func (l *Layer) SetVisible(on bool) int {
	if l.filter.Visible() == on {
		return 0
	}
	l.filter.SetVisible(on)
	return l.coord.RecomputeAll(l.markers)
}

// Visible reports the layer filter flag.
func (l *Layer) Visible() bool {
	return l.filter.Visible()
}

// UpdateZoom switches markers between icon and label presentation and
// returns the markers whose presentation changed.
func (l *Layer) UpdateZoom(zoom int) []*Marker {
	l.zoom = zoom
	want := l.presentationAt(zoom)
	var changed []*Marker
	for _, m := range l.markers {
		if m.presentation != want {
			m.presentation = want
			changed = append(changed, m)
		}
	}
	return changed
}

func (l *Layer) presentationAt(zoom int) Presentation {
	if l.minZoom > 0 && zoom < l.minZoom {
		return PresentLabel
	}
	return PresentIcon
}

// Nearest returns the closest shown marker to pt within maxDist map units,
// or nil.
func (l *Layer) Nearest(pt orb.Point, maxDist float64) *Marker {
	if len(l.markers) == 0 {
		return nil
	}
	if l.tree == nil {
		l.tree = l.buildTree()
	}
	shown := func(p orb.Pointer) bool {
		return p.(*Marker).applied
	}
	found := l.tree.KNearestMatching(nil, pt, 1, shown, maxDist)
	if len(found) == 0 {
		return nil
	}
	m := found[0].(*Marker)
	if planar.Distance(pt, m.point) > maxDist {
		return nil
	}
	return m
}

func (l *Layer) buildTree() *quadtree.Quadtree {
	pts := make(orb.MultiPoint, 0, len(l.markers))
	for _, m := range l.markers {
		pts = append(pts, m.point)
	}
	tree := quadtree.New(pts.Bound().Union(l.proj.Bound))
	for _, m := range l.markers {
		// Every point lies inside the union bound, so Add cannot fail.
		_ = tree.Add(m)
	}
	return tree
}
