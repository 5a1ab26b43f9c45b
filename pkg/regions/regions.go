// Package regions measures labeled components and filters them by area.
package regions

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"merfishdecode/internal/models"
	"merfishdecode/pkg/decoding"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
	"merfishdecode/pkg/tensor"
)

// BoundingBox is the extent of a region; minimums are inclusive, maximums
// exclusive.
type BoundingBox struct {
	Z0, Y0, X0 int
	Z1, Y1, X1 int
}

// Region holds the measured properties of one labeled component.
type Region struct {
	Label  int32
	Target int

	// Area is the number of member pixels
	Area int

	// Centroid is the mean (z, y, x) coordinate of the member pixels
	Z, Y, X float64

	// MeanIntensity is the mean magnitude of the member pixel vectors
	MeanIntensity float64

	// MeanDistance is the mean distance of the member pixels to their codeword
	MeanDistance float64

	// MeanTrace is the mean normalized pixel vector; nil when not measured
	MeanTrace []float64

	// Radius is the radius of a disk (or ball, for volume labeling) of equal area
	Radius float64

	BBox BoundingBox
}

// Measurer computes region properties.
type Measurer struct {
	// Is3D selects the ball-equivalent radius
	Is3D bool

	// Extractor, when set, provides the pixel vectors for MeanTrace
	Extractor *tensor.Extractor

	// NumWorkers bounds the regions measured at once (all CPUs if < 1)
	NumWorkers int
}

// Measure returns one Region per component, in label order.
func (m *Measurer) Measure(lab *labeling.Labeling, dec *decoding.Result) ([]Region, error) {
	v := lab.Image.Volume
	if dec.Volume != v {
		return nil, errs.DataShapef("label image volume %+v does not match decoded volume %+v", v, dec.Volume)
	}
	if m.Extractor != nil && m.Extractor.NumPixels() != v.Pixels() {
		return nil, errs.DataShapef("extractor has %d pixels, label image has %d", m.Extractor.NumPixels(), v.Pixels())
	}

	workers := m.NumWorkers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	out := make([]Region, len(lab.Components))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range lab.Components {
		i := i
		g.Go(func() error {
			out[i] = m.measure(v, lab.Components[i], dec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Measurer) measure(v models.Volume, c labeling.Component, dec *decoding.Result) Region {
	n := len(c.Pixels)
	r := Region{
		Label:  c.Label,
		Target: c.Target,
		Area:   n,
		BBox:   BoundingBox{Z0: v.Z, Y0: v.Y, X0: v.X},
	}

	mags := make([]float64, n)
	dists := make([]float64, n)
	var vec []float64
	if m.Extractor != nil {
		r.MeanTrace = make([]float64, m.Extractor.Len())
		vec = make([]float64, m.Extractor.Len())
	}

	var sz, sy, sx float64
	for i, p := range c.Pixels {
		z, y, x := v.Coords(p)
		sz += float64(z)
		sy += float64(y)
		sx += float64(x)
		r.BBox.extend(z, y, x)

		mags[i] = dec.Magnitudes[p]
		dists[i] = dec.Distances[p]
		if vec != nil && mags[i] > 0 {
			vec = m.Extractor.Vector(p, vec)
			floats.AddScaled(r.MeanTrace, 1/mags[i], vec)
		}
	}

	count := float64(n)
	r.Z, r.Y, r.X = sz/count, sy/count, sx/count
	r.MeanIntensity = stat.Mean(mags, nil)
	r.MeanDistance = stat.Mean(dists, nil)
	if r.MeanTrace != nil {
		floats.Scale(1/count, r.MeanTrace)
	}
	r.Radius = EquivalentRadius(n, m.Is3D)
	return r
}

func (b *BoundingBox) extend(z, y, x int) {
	b.Z0, b.Z1 = min(b.Z0, z), max(b.Z1, z+1)
	b.Y0, b.Y1 = min(b.Y0, y), max(b.Y1, y+1)
	b.X0, b.X1 = min(b.X0, x), max(b.X1, x+1)
}

// EquivalentRadius is the radius of a disk of the given area, or of a ball
// of the given volume when is3D is set.
func EquivalentRadius(area int, is3D bool) float64 {
	a := float64(area)
	if is3D {
		return math.Cbrt(3 * a / (4 * math.Pi))
	}
	return math.Sqrt(a / math.Pi)
}
