// Package labeling groups adjacent passing pixels that decoded to the same
// target into connected components.
//
// Labeling runs a union-find pass over horizontal bands of rows in parallel,
// joins components across band borders in a second, sequential pass, and
// then numbers components 1..n in the raster order of their first pixel. The
// result does not depend on the number of bands or workers.
package labeling

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"merfishdecode/internal/logger"
	"merfishdecode/internal/models"
	"merfishdecode/pkg/errs"
)

// Labeler labels decoded pixels.
type Labeler struct {
	Connectivity Connectivity

	// NumWorkers bounds the bands labeled at once (all CPUs if < 1)
	NumWorkers int

	// BandRows is the height of a band (a single band if < 1)
	BandRows int

	Log logger.ILogger
}

// Component is one labeled region: its id, the target shared by all its
// pixels and the flat (z, y, x) indices of its pixels in raster order.
type Component struct {
	Label  int32
	Target int
	Pixels []int
}

// Labeling is the output of a labeling pass. Components[i] has label i+1.
type Labeling struct {
	Image      *LabelImage
	Components []Component
}

// Label groups the pixels with passed set into components of equal target.
func (l *Labeler) Label(volume models.Volume, targets []int, passed []bool) (*Labeling, error) {
	n := volume.Pixels()
	if len(targets) != n || len(passed) != n {
		return nil, errs.DataShapef("volume has %d pixels, got %d targets and %d pass flags", n, len(targets), len(passed))
	}
	if n > math.MaxInt32 {
		return nil, errs.DataShapef("volume of %d pixels exceeds the label range", n)
	}
	if _, err := ParseConnectivity(int(l.Connectivity)); err != nil {
		return nil, err
	}

	workers := l.NumWorkers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	log := l.Log
	if log == nil {
		log = &logger.NullLogger{}
	}

	uf := newUnionFind(n)
	bands := volume.Bands(l.BandRows)
	backward := l.Connectivity.backward()
	log.Debugf("Labeling %d pixels with %v in %d bands", n, l.Connectivity, len(bands))

	var g errgroup.Group
	g.SetLimit(workers)
	for _, band := range bands {
		band := band
		g.Go(func() error {
			labelBand(uf, volume, band, backward, targets, passed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mergeBands(uf, volume, bands, l.Connectivity.neighbors(), targets, passed)

	return flatten(uf, volume, targets, passed), nil
}

// labelBand unions every passing pixel of the band with its earlier
// neighbors inside the same band.
func labelBand(uf *unionFind, v models.Volume, band models.Band, backward []offset, targets []int, passed []bool) {
	for z := 0; z < v.Z; z++ {
		for y := band.Y0; y < band.Y1; y++ {
			for x := 0; x < v.X; x++ {
				p := v.Index(z, y, x)
				if !passed[p] {
					continue
				}
				uf.parent[p] = int32(p)

				for _, o := range backward {
					nz, ny, nx := z+o.dz, y+o.dy, x+o.dx
					if nz < 0 || ny < band.Y0 || ny >= band.Y1 || nx < 0 || nx >= v.X {
						continue
					}
					q := v.Index(nz, ny, nx)
					if passed[q] && targets[q] == targets[p] {
						uf.union(p, q)
					}
				}
			}
		}
	}
}

// mergeBands joins components across the border above each band but the
// first. Every neighbor pair that spans two bands has one pixel in the first
// row of the lower band.
func mergeBands(uf *unionFind, v models.Volume, bands []models.Band, neighbors []offset, targets []int, passed []bool) {
	for _, band := range bands[1:] {
		y := band.Y0
		for z := 0; z < v.Z; z++ {
			for x := 0; x < v.X; x++ {
				p := v.Index(z, y, x)
				if !passed[p] {
					continue
				}
				for _, o := range neighbors {
					if o.dy != -1 {
						continue
					}
					nz, nx := z+o.dz, x+o.dx
					if nz < 0 || nz >= v.Z || nx < 0 || nx >= v.X {
						continue
					}
					q := v.Index(nz, y-1, nx)
					if passed[q] && targets[q] == targets[p] {
						uf.union(p, q)
					}
				}
			}
		}
	}
}

// flatten numbers components in raster order of their first pixel, which is
// also their union-find root.
func flatten(uf *unionFind, v models.Volume, targets []int, passed []bool) *Labeling {
	img := NewLabelImage(v)
	rootLabel := make([]int32, v.Pixels())
	var comps []Component

	for p := range passed {
		if !passed[p] {
			continue
		}
		root := uf.find(p)
		label := rootLabel[root]
		if label == 0 {
			comps = append(comps, Component{Label: int32(len(comps) + 1), Target: targets[p]})
			label = int32(len(comps))
			rootLabel[root] = label
		}
		img.Labels[p] = label
		comps[label-1].Pixels = append(comps[label-1].Pixels, p)
	}

	return &Labeling{Image: img, Components: comps}
}

// unionFind is a disjoint-set forest whose roots are the smallest index of
// their set.
type unionFind struct {
	parent []int32
}

func newUnionFind(n int) *unionFind {
	return &unionFind{parent: make([]int32, n)}
}

func (u *unionFind) find(i int) int {
	for int(u.parent[i]) != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = int(u.parent[i])
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra < rb:
		u.parent[rb] = int32(ra)
	case rb < ra:
		u.parent[ra] = int32(rb)
	}
}
