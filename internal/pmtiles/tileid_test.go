package pmtiles

import "testing"

func TestZxyToID(t *testing.T) {
	tests := []struct {
		z    uint8
		x, y uint32
		id   uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
	}
	for _, tt := range tests {
		if got := ZxyToID(tt.z, tt.x, tt.y); got != tt.id {
			t.Errorf("ZxyToID(%d,%d,%d)=%d, want %d", tt.z, tt.x, tt.y, got, tt.id)
		}
	}
}

func TestIDRoundTrip(t *testing.T) {
	seen := make(map[uint64]bool)
	for z := uint8(0); z <= 6; z++ {
		n := uint32(1) << z
		for x := uint32(0); x < n; x++ {
			for y := uint32(0); y < n; y++ {
				id := ZxyToID(z, x, y)
				if seen[id] {
					t.Fatalf("duplicate id %d at %d/%d/%d", id, z, x, y)
				}
				seen[id] = true
				gz, gx, gy := IDToZxy(id)
				if gz != z || gx != x || gy != y {
					t.Fatalf("IDToZxy(%d)=%d/%d/%d, want %d/%d/%d", id, gz, gx, gy, z, x, y)
				}
			}
		}
	}
}
