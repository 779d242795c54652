package markers

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultTileSize is the zoom-0 tile edge in pixels when a map sets none.
const DefaultTileSize = 256

// Projection maps game-world coordinates linearly onto zoom-0 pixel space,
// where the single zoom-0 tile spans [0, TileSize) on both axes and pixel y
// grows downward.
type Projection struct {
	Bound    orb.Bound
	TileSize float64
	// YUp is set when world y grows northward (screen up).
	YUp bool
}

// NewProjection validates the world bound and tile size.
func NewProjection(bound orb.Bound, tileSize float64, yUp bool) (Projection, error) {
	if bound.Max[0] <= bound.Min[0] || bound.Max[1] <= bound.Min[1] {
		return Projection{}, fmt.Errorf("%w: map bounds %v have no area", ErrInvalidData, bound)
	}
	if tileSize <= 0 || !isPowerOfTwo(tileSize) {
		return Projection{}, fmt.Errorf("%w: tile size %v is not a power of two", ErrInvalidData, tileSize)
	}
	return Projection{Bound: bound, TileSize: tileSize, YUp: yUp}, nil
}

// Project converts a world point to zoom-0 pixels.
func (p Projection) Project(pt orb.Point) orb.Point {
	w := p.Bound.Max[0] - p.Bound.Min[0]
	h := p.Bound.Max[1] - p.Bound.Min[1]
	x := (pt[0] - p.Bound.Min[0]) / w * p.TileSize
	y := (pt[1] - p.Bound.Min[1]) / h * p.TileSize
	if p.YUp {
		y = p.TileSize - y
	}
	return orb.Point{x, y}
}

// Unproject converts zoom-0 pixels back to world coordinates.
func (p Projection) Unproject(px orb.Point) orb.Point {
	w := p.Bound.Max[0] - p.Bound.Min[0]
	h := p.Bound.Max[1] - p.Bound.Min[1]
	y := px[1]
	if p.YUp {
		y = p.TileSize - y
	}
	return orb.Point{
		p.Bound.Min[0] + px[0]/p.TileSize*w,
		p.Bound.Min[1] + y/p.TileSize*h,
	}
}

// TileBound returns the world area covered by t.
func (p Projection) TileBound(t maptile.Tile) orb.Bound {
	size := p.TileSize / float64(uint32(1)<<uint32(t.Z))
	a := p.Unproject(orb.Point{float64(t.X) * size, float64(t.Y) * size})
	b := p.Unproject(orb.Point{float64(t.X+1) * size, float64(t.Y+1) * size})
	return orb.MultiPoint{a, b}.Bound()
}

func isPowerOfTwo(v float64) bool {
	n := int64(v)
	return float64(n) == v && n > 0 && n&(n-1) == 0
}
