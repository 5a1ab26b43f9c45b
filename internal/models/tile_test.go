package models

import "testing"

func TestVolumeIndexCoords(t *testing.T) {
	v := Volume{Z: 3, Y: 4, X: 5}
	for i := 0; i < v.Pixels(); i++ {
		z, y, x := v.Coords(i)
		if v.Index(z, y, x) != i {
			t.Fatalf("Index(Coords(%d)) = %d", i, v.Index(z, y, x))
		}
	}
}

func TestTilesCoverVolumeOnce(t *testing.T) {
	v := Volume{Z: 2, Y: 7, X: 3}

	for _, rows := range []int{0, 1, 3, 7, 100} {
		covered := make([]int, v.Pixels())
		for _, tile := range v.Tiles(rows) {
			for y := tile.Y0; y < tile.Y1; y++ {
				for x := 0; x < v.X; x++ {
					covered[v.Index(tile.Z, y, x)]++
				}
			}
		}
		for i, n := range covered {
			if n != 1 {
				t.Fatalf("tileRows=%d: pixel %d covered %d times", rows, i, n)
			}
		}
	}

	if got := len(v.Tiles(3)); got != 6 {
		t.Errorf("Expected 6 tiles of 3 rows, got %d", got)
	}
}

func TestBands(t *testing.T) {
	v := Volume{Z: 1, Y: 10, X: 1}
	bands := v.Bands(4)
	want := []Band{{0, 4}, {4, 8}, {8, 10}}
	if len(bands) != len(want) {
		t.Fatalf("Got %d bands, want %d", len(bands), len(want))
	}
	for i := range want {
		if bands[i] != want[i] {
			t.Errorf("Band %d = %+v, want %+v", i, bands[i], want[i])
		}
	}
	if got := v.Bands(0); len(got) != 1 || got[0] != (Band{0, 10}) {
		t.Errorf("Expected a single band, got %+v", got)
	}
}
