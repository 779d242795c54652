// Package markertile renders a map's shown markers as Mapbox Vector Tiles.
//
// Marker positions live in zoom-0 pixel space, so a tile (z, x, y) covers
// [x, x+1) * tileSize/2^z on each axis. Features are written directly in
// tile-local coordinates; one MVT layer is emitted per marker layer.
package markertile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-wikimap/internal/markers"
)

// Render returns the gzipped MVT for tile (z, x, y), holding every shown
// marker that falls in it. An empty tile returns nil. The caller must
// serialise access to mp and have validated the tile with CheckTile.
func Render(mp *markers.Map, z, x, y int) ([]byte, error) {
	layers := Layers(mp, z, x, y)
	if len(layers) == 0 {
		return nil, nil
	}
	data, err := mvt.MarshalGzipped(layers)
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", z, x, y, err)
	}
	return data, nil
}

// Layers builds the MVT layers for tile (z, x, y) without encoding them.
func Layers(mp *markers.Map, z, x, y int) mvt.Layers {
	tileSize := mp.Projection().TileSize
	tile := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	tr := newTransform(tileSize, tile)

	var out mvt.Layers
	for _, l := range mp.Layers() {
		fc := geojson.NewFeatureCollection()
		for _, m := range l.Markers() {
			if !m.Applied() || markers.TileAt(m.Projected(), tile.Z, tileSize) != tile {
				continue
			}
			fc.Append(feature(m, tr.point(m.Projected()), nil))
			if len(m.Path()) > 0 {
				fc.Append(feature(m, nil, tr.path(mp.Projection(), m.Path())))
			}
		}
		if len(fc.Features) == 0 {
			continue
		}

		layer := mvt.NewLayer(l.ID(), fc)
		if eps := simplifyEpsilon(tile.Z); eps > 0 {
			layer.Simplify(simplify.DouglasPeucker(eps))
		}
		layer.Clip(mvt.MapboxGLDefaultExtentBound)
		layer.RemoveEmpty(0.5, 0.5)
		if len(layer.Features) > 0 {
			out = append(out, layer)
		}
	}
	return out
}

func feature(m *markers.Marker, pt orb.Geometry, path orb.LineString) *geojson.Feature {
	var f *geojson.Feature
	if path != nil {
		f = geojson.NewFeature(path)
		f.Properties["kind"] = "path"
	} else {
		f = geojson.NewFeature(pt)
		f.Properties["kind"] = "marker"
	}
	f.Properties["key"] = m.Key()
	f.Properties["name"] = m.Name()
	f.Properties["layer"] = m.LayerID()
	f.Properties["presentation"] = m.Presentation().String()
	f.Properties["completed"] = m.Completed()
	return f
}

// transform maps zoom-0 pixels to tile-local MVT extent coordinates.
type transform struct {
	scale  float64
	origin orb.Point
}

func newTransform(tileSize float64, t maptile.Tile) transform {
	n := float64(uint32(1) << t.Z)
	extent := float64(mvt.DefaultExtent)
	return transform{
		scale:  n / tileSize * extent,
		origin: orb.Point{float64(t.X) * extent, float64(t.Y) * extent},
	}
}

func (tr transform) point(p orb.Point) orb.Point {
	return orb.Point{p[0]*tr.scale - tr.origin[0], p[1]*tr.scale - tr.origin[1]}
}

func (tr transform) path(proj markers.Projection, ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[i] = tr.point(proj.Project(p))
	}
	return out
}

// simplifyEpsilon returns the simplification tolerance in extent units for
// a zoom level. Less detail at lower zooms.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom <= 2:
		return 8
	case zoom <= 5:
		return 4
	default:
		return 0
	}
}
