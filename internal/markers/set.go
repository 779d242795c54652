package markers

// Set is a named, togglable collection of markers. The same type backs tile
// cells, layer filters and tags. A set only keeps books; the Coordinator is
// the one that turns set state into applied marker visibility.
type Set struct {
	name     string
	on       bool
	members  map[string]*Marker
	teardown func(*Marker)
}

// NewSet returns an empty set that starts hidden.
func NewSet(name string) *Set {
	return &Set{
		name:    name,
		members: make(map[string]*Marker),
	}
}

// OnClear sets the callback Clear runs for every former member.
func (s *Set) OnClear(fn func(*Marker)) *Set {
	s.teardown = fn
	return s
}

// Name returns the set name.
func (s *Set) Name() string {
	return s.name
}

// Add inserts m. Adding a member twice keeps a single entry.
func (s *Set) Add(m *Marker) {
	s.members[m.Key()] = m
}

// Remove drops m. Removing a non-member is a no-op.
func (s *Set) Remove(m *Marker) {
	delete(s.members, m.Key())
}

// Has reports whether m is a member.
func (s *Set) Has(m *Marker) bool {
	_, ok := s.members[m.Key()]
	return ok
}

// Get returns the member stored under a marker key, or nil.
func (s *Set) Get(key string) *Marker {
	return s.members[key]
}

// Clear empties the set, then runs the teardown callback for each former
// member. It returns the removed markers.
func (s *Set) Clear() []*Marker {
	removed := s.Members()
	s.members = make(map[string]*Marker)
	if s.teardown != nil {
		for _, m := range removed {
			s.teardown(m)
		}
	}
	return removed
}

// Show turns the set on.
func (s *Set) Show() {
	s.on = true
}

// Hide turns the set off.
func (s *Set) Hide() {
	s.on = false
}

// SetVisible sets the on flag.
func (s *Set) SetVisible(on bool) {
	s.on = on
}

// Visible reports the on flag.
func (s *Set) Visible() bool {
	return s.on
}

// Members returns a snapshot of the members in no particular order.
func (s *Set) Members() []*Marker {
	out := make([]*Marker, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.members)
}
