package models

// Volume is the (z, y, x) extent of a decode pass. Per-pixel arrays are
// stored row-major in (z, y, x) order.
type Volume struct {
	Z int
	Y int
	X int
}

// Pixels is the number of positions in the volume.
func (v Volume) Pixels() int {
	return v.Z * v.Y * v.X
}

// Index returns the flat index of (z, y, x).
func (v Volume) Index(z, y, x int) int {
	return (z*v.Y+y)*v.X + x
}

// Coords is the inverse of Index.
func (v Volume) Coords(i int) (z, y, x int) {
	plane := v.Y * v.X
	z = i / plane
	rem := i % plane
	return z, rem / v.X, rem % v.X
}

// Tile is a band of rows within one z-plane; tiles are the unit of work of
// the per-pixel decoding stage.
type Tile struct {
	// Z is the z-plane the tile belongs to
	Z int

	// Y0 and Y1 bound the rows of the tile, [Y0, Y1)
	Y0, Y1 int
}

// Band is a range of rows spanning every z-plane; bands are the unit of work
// of the labeling stage, whose neighborhoods may cross z-planes.
type Band struct {
	Y0, Y1 int
}

// Tiles splits the volume into one tile per z-plane and run of tileRows rows.
// tileRows < 1 selects whole planes.
func (v Volume) Tiles(tileRows int) []Tile {
	if tileRows < 1 || tileRows > v.Y {
		tileRows = v.Y
	}

	tiles := make([]Tile, 0, v.Z*((v.Y+tileRows-1)/tileRows))
	for z := 0; z < v.Z; z++ {
		for y0 := 0; y0 < v.Y; y0 += tileRows {
			y1 := y0 + tileRows
			if y1 > v.Y {
				y1 = v.Y
			}
			tiles = append(tiles, Tile{Z: z, Y0: y0, Y1: y1})
		}
	}
	return tiles
}

// Bands splits the rows into runs of bandRows rows. bandRows < 1 selects a
// single band.
func (v Volume) Bands(bandRows int) []Band {
	if bandRows < 1 || bandRows > v.Y {
		bandRows = v.Y
	}

	bands := make([]Band, 0, (v.Y+bandRows-1)/bandRows)
	for y0 := 0; y0 < v.Y; y0 += bandRows {
		y1 := y0 + bandRows
		if y1 > v.Y {
			y1 = v.Y
		}
		bands = append(bands, Band{Y0: y0, Y1: y1})
	}
	return bands
}
