package markers

import "github.com/joeblew999/plat-wikimap/internal/metrics"

// Renderer receives applied visibility changes. The coordinator only calls
// it when a marker's applied state actually flips.
type Renderer interface {
	Show(m *Marker)
	Hide(m *Marker)
}

// Restyler is an optional Renderer extension notified when a shown marker's
// presentation changes with zoom.
type Restyler interface {
	Restyle(m *Marker)
}

// NopRenderer discards every change.
type NopRenderer struct{}

func (NopRenderer) Show(*Marker) {}
func (NopRenderer) Hide(*Marker) {}

// Coordinator decides whether each marker is drawn. A marker is visible when
// any of its grid cells is loaded, its layer filter is on, and every tag it
// carries has its tag set on. Missing filter or tag sets count as on.
//
// The decision depends only on current set state, so triggers may arrive in
// any order and repeat freely.
type Coordinator struct {
	renderer Renderer
	grids    map[string]*Grid
	filters  map[string]*Set
	tags     map[string]*Set
}

// NewCoordinator returns a coordinator applying changes through r.
func NewCoordinator(r Renderer) *Coordinator {
	if r == nil {
		r = NopRenderer{}
	}
	return &Coordinator{
		renderer: r,
		grids:    make(map[string]*Grid),
		filters:  make(map[string]*Set),
		tags:     make(map[string]*Set),
	}
}

// AddGrid registers the grid holding a layer's markers.
func (c *Coordinator) AddGrid(layerID string, g *Grid) {
	c.grids[layerID] = g
}

// RegisterFilter registers the filter set of a layer.
func (c *Coordinator) RegisterFilter(layerID string, s *Set) {
	c.filters[layerID] = s
}

// RegisterTag registers a tag set under its name.
func (c *Coordinator) RegisterTag(s *Set) {
	c.tags[s.Name()] = s
}

// Filter returns a layer's filter set, or nil.
func (c *Coordinator) Filter(layerID string) *Set {
	return c.filters[layerID]
}

// Tag returns the tag set for name, or nil.
func (c *Coordinator) Tag(name string) *Set {
	return c.tags[name]
}

// Renderer returns the sink applied changes go to.
func (c *Coordinator) Renderer() Renderer {
	return c.renderer
}

// Visible evaluates the combined visibility rule for m against current state.
func (c *Coordinator) Visible(m *Marker) bool {
	g, ok := c.grids[m.layer]
	if !ok || !g.Loaded(m) {
		return false
	}
	if f, ok := c.filters[m.layer]; ok && !f.Visible() {
		return false
	}
	visible := true
	m.tags.Each(func(tag string) {
		if s, ok := c.tags[tag]; ok && !s.Visible() {
			visible = false
		}
	})
	return visible
}

// Recompute applies the rule to m and reports whether its applied state
// changed. Calling it again without an intervening change is a no-op.
func (c *Coordinator) Recompute(m *Marker) bool {
	metrics.RecomputeTotal.Inc()
	want := c.Visible(m)
	if want == m.applied {
		return false
	}
	if want {
		m.show(c.renderer)
		metrics.AppliedTotal.WithLabelValues("shown").Inc()
	} else {
		m.hide(c.renderer)
		metrics.AppliedTotal.WithLabelValues("hidden").Inc()
	}
	return true
}

// RecomputeAll recomputes every marker in ms and returns how many changed.
func (c *Coordinator) RecomputeAll(ms []*Marker) int {
	changed := 0
	for _, m := range ms {
		if c.Recompute(m) {
			changed++
		}
	}
	return changed
}
