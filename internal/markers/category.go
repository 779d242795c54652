package markers

// Category is a named group of layers toggled together.
type Category struct {
	name   string
	layers []*Layer
}

// Name returns the category name.
func (c *Category) Name() string { return c.name }

// Layers returns the category's layers in data order.
func (c *Category) Layers() []*Layer {
	out := make([]*Layer, len(c.layers))
	copy(out, c.layers)
	return out
}

// SetVisible toggles every layer and returns how many markers changed.
func (c *Category) SetVisible(on bool) int {
	changed := 0
	for _, l := range c.layers {
		changed += l.SetVisible(on)
	}
	return changed
}

// Show turns every layer on.
func (c *Category) Show() int { return c.SetVisible(true) }

// Hide turns every layer off.
func (c *Category) Hide() int { return c.SetVisible(false) }

// Visible reports whether any layer is on.
func (c *Category) Visible() bool {
	for _, l := range c.layers {
		if l.Visible() {
			return true
		}
	}
	return false
}
