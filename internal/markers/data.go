package markers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// ErrInvalidData wraps every data-shape error found while loading a map.
var ErrInvalidData = errors.New("invalid map data")

// DefaultMaxZoom is the grid depth used when a map sets none.
const DefaultMaxZoom = 6

// InfoSource is a layer's popup content policy.
type InfoSource string

const (
	InfoWiki   InfoSource = "wiki"
	InfoInline InfoSource = "inline"
	InfoNone   InfoSource = "none"
)

// MapDef is the static definition of one game map.
type MapDef struct {
	ID         string        `json:"id" yaml:"id" doc:"Map identifier" example:"overworld"`
	Name       string        `json:"name" yaml:"name" doc:"Display name" example:"Overworld"`
	TileSize   float64       `json:"tileSize,omitempty" yaml:"tileSize,omitempty" doc:"Zoom-0 tile size in pixels" default:"256"`
	MaxZoom    int           `json:"maxZoom,omitempty" yaml:"maxZoom,omitempty" doc:"Deepest zoom level" default:"6"`
	Bounds     [2][2]float64 `json:"bounds" yaml:"bounds" doc:"World bound [[minX,minY],[maxX,maxY]]"`
	YUp        bool          `json:"yUp,omitempty" yaml:"yUp,omitempty" doc:"World y grows upward"`
	Tags       []TagDef      `json:"tags,omitempty" yaml:"tags,omitempty" doc:"Declared tag sets"`
	Categories []CategoryDef `json:"categories" yaml:"categories" doc:"Marker categories"`
}

// TagDef declares a tag set and its default visibility.
type TagDef struct {
	Name    string `json:"name" yaml:"name" doc:"Tag name" example:"Completed"`
	Visible *bool  `json:"visible,omitempty" yaml:"visible,omitempty" doc:"Shown by default; Completed starts hidden, other tags shown"`
}

// DefaultVisible resolves the tag's starting flag.
func (t TagDef) DefaultVisible() bool {
	if t.Visible != nil {
		return *t.Visible
	}
	return t.Name != TagCompleted
}

// CategoryDef groups layers.
type CategoryDef struct {
	Name    string     `json:"name" yaml:"name" doc:"Category name"`
	Visible *bool      `json:"visible,omitempty" yaml:"visible,omitempty" doc:"Shown by default"`
	Layers  []LayerDef `json:"layers" yaml:"layers" doc:"Layers in this category"`
}

// LayerDef describes a layer and its markers.
type LayerDef struct {
	ID      string      `json:"id,omitempty" yaml:"id,omitempty" doc:"Layer identifier, derived from the name when empty"`
	Name    string      `json:"name" yaml:"name" doc:"Display name"`
	Link    string      `json:"link,omitempty" yaml:"link,omitempty" doc:"Wiki page for the layer"`
	MinZoom int         `json:"minZoom,omitempty" yaml:"minZoom,omitempty" doc:"Markers draw label-only below this zoom"`
	MaxZoom int         `json:"maxZoom,omitempty" yaml:"maxZoom,omitempty" doc:"Grid depth for this layer, capped by the map"`
	Icon    *Icon       `json:"icon,omitempty" yaml:"icon,omitempty" doc:"Marker icon"`
	Info    InfoSource  `json:"info,omitempty" yaml:"info,omitempty" enum:"wiki,inline,none" doc:"Popup content source"`
	Visible *bool       `json:"visible,omitempty" yaml:"visible,omitempty" doc:"Shown by default"`
	Markers []MarkerDef `json:"markers" yaml:"markers" doc:"Markers"`
}

// Icon is a layer's shared marker icon.
type Icon struct {
	URL       string `json:"url" yaml:"url" doc:"Icon image URL"`
	Width     int    `json:"width,omitempty" yaml:"width,omitempty" doc:"Icon width in pixels"`
	Height    int    `json:"height,omitempty" yaml:"height,omitempty" doc:"Icon height in pixels"`
	ClassName string `json:"className,omitempty" yaml:"className,omitempty" doc:"CSS class"`
}

// MarkerDef is a marker as found in map data.
type MarkerDef struct {
	ID          string      `json:"id" yaml:"id" doc:"Marker identifier, unique in its layer"`
	Name        string      `json:"name" yaml:"name" doc:"Display name"`
	Coordinates []float64   `json:"coordinates" yaml:"coordinates" doc:"[x, y] or [x, y, elevation]"`
	Link        string      `json:"link,omitempty" yaml:"link,omitempty" doc:"Wiki page"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" doc:"Inline popup text"`
	Path        [][]float64 `json:"path,omitempty" yaml:"path,omitempty" doc:"Connecting line"`
	Tags        []string    `json:"tags,omitempty" yaml:"tags,omitempty" doc:"Initial tags"`
}

// Decode parses a map definition. format is "json" or "yaml".
func Decode(data []byte, format string) (*MapDef, error) {
	var def MapDef
	var err error
	switch strings.ToLower(format) {
	case "json":
		err = json.Unmarshal(data, &def)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &def)
	default:
		return nil, fmt.Errorf("unsupported map data format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// DecodeFile reads and validates a .json, .yaml or .yml map definition.
// A definition without an ID takes one from the file name.
func DecodeFile(path string) (*MapDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map data: %w", err)
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	def, err := Decode(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if def.ID == "" {
		def.ID = GenerateID(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	return def, nil
}

// Validate applies defaults and fails on the first data-shape error, naming
// the category, layer and marker it was found in.
func (d *MapDef) Validate() error {
	if d.TileSize == 0 {
		d.TileSize = DefaultTileSize
	}
	if d.MaxZoom == 0 {
		d.MaxZoom = DefaultMaxZoom
	}
	if d.MaxZoom < 0 || d.MaxZoom > MaxZoomLimit {
		return fmt.Errorf("%w: max zoom %d out of range [0,%d]", ErrInvalidData, d.MaxZoom, MaxZoomLimit)
	}
	if _, err := NewProjection(d.Bound(), d.TileSize, d.YUp); err != nil {
		return err
	}
	for i, t := range d.Tags {
		if t.Name == "" {
			return fmt.Errorf("%w: tag %d has no name", ErrInvalidData, i)
		}
	}

	layerIDs := make(map[string]string)
	for ci := range d.Categories {
		c := &d.Categories[ci]
		if c.Name == "" {
			return fmt.Errorf("%w: category %d has no name", ErrInvalidData, ci)
		}
		for li := range c.Layers {
			l := &c.Layers[li]
			where := fmt.Sprintf("category %q layer %d", c.Name, li)
			if l.Name == "" {
				return fmt.Errorf("%w: %s has no name", ErrInvalidData, where)
			}
			if l.ID == "" {
				l.ID = GenerateID(l.Name)
			}
			if l.ID == "" || strings.Contains(l.ID, "/") {
				return fmt.Errorf("%w: %s has invalid id %q", ErrInvalidData, where, l.ID)
			}
			where = fmt.Sprintf("category %q layer %q", c.Name, l.ID)
			if prev, dup := layerIDs[l.ID]; dup {
				return fmt.Errorf("%w: %s duplicates a layer in category %q", ErrInvalidData, where, prev)
			}
			layerIDs[l.ID] = c.Name
			switch l.Info {
			case "":
				l.Info = InfoWiki
			case InfoWiki, InfoInline, InfoNone:
			default:
				return fmt.Errorf("%w: %s has unknown info source %q", ErrInvalidData, where, l.Info)
			}
			if l.MaxZoom < 0 || l.MinZoom < 0 {
				return fmt.Errorf("%w: %s has a negative zoom bound", ErrInvalidData, where)
			}
			if err := validateMarkers(where, l.Markers); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMarkers(where string, ms []MarkerDef) error {
	seen := make(map[string]bool, len(ms))
	for i, m := range ms {
		switch {
		case m.ID == "":
			return fmt.Errorf("%w: %s marker %d has no id", ErrInvalidData, where, i)
		case m.Name == "":
			return fmt.Errorf("%w: %s marker %q has no name", ErrInvalidData, where, m.ID)
		case len(m.Coordinates) < 2 || len(m.Coordinates) > 3:
			return fmt.Errorf("%w: %s marker %q needs 2 or 3 coordinates, got %d", ErrInvalidData, where, m.ID, len(m.Coordinates))
		case strings.Contains(m.ID, "/"):
			return fmt.Errorf("%w: %s marker %q has invalid id", ErrInvalidData, where, m.ID)
		case seen[m.ID]:
			return fmt.Errorf("%w: %s marker %q is duplicated", ErrInvalidData, where, m.ID)
		}
		for pi, p := range m.Path {
			if len(p) < 2 {
				return fmt.Errorf("%w: %s marker %q path point %d needs 2 coordinates", ErrInvalidData, where, m.ID, pi)
			}
		}
		seen[m.ID] = true
	}
	return nil
}

// Bound returns the world bound as an orb.Bound.
func (d *MapDef) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{d.Bounds[0][0], d.Bounds[0][1]},
		Max: orb.Point{d.Bounds[1][0], d.Bounds[1][1]},
	}
}

// GenerateID creates a URL-safe ID from a name.
func GenerateID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
