// Package pmtiles implements the PMTiles v3 tile ID scheme.
//
// Tile IDs number every tile of every zoom level along a Hilbert curve, so
// a single uint64 addresses any (z, x, y). Derived from
// github.com/protomaps/go-pmtiles (BSD-3-Clause).
package pmtiles

// ZxyToID returns the Hilbert tile ID of (z, x, y).
func ZxyToID(z uint8, x uint32, y uint32) uint64 {
	var acc uint64 = (1<<(z*2) - 1) / 3
	n := uint32(z - 1)
	for s := uint32(1 << n); s > 0; s >>= 1 {
		var rx = s & x
		var ry = s & y
		acc += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return acc
}

// IDToZxy inverts ZxyToID.
func IDToZxy(id uint64) (uint8, uint32, uint32) {
	var acc uint64
	for z := uint8(0); z < 32; z++ {
		count := uint64(1) << (2 * z)
		if acc+count > id {
			return idOnLevel(z, id-acc)
		}
		acc += count
	}
	panic("pmtiles: tile id out of range")
}

func idOnLevel(z uint8, pos uint64) (uint8, uint32, uint32) {
	var n uint32 = 1 << z
	var x, y uint32
	t := pos
	for s := uint32(1); s < n; s <<= 1 {
		rx := uint32(1 & (t / 2))
		ry := uint32(1 & (t ^ uint64(rx)))
		x, y = rotate(s, x, y, rx, ry)
		x += s * rx
		y += s * ry
		t /= 4
	}
	return z, x, y
}

func rotate(n uint32, x uint32, y uint32, rx uint32, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx != 0 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}
