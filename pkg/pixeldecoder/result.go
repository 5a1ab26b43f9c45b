package pixeldecoder

import (
	"gonum.org/v1/gonum/stat"

	"merfishdecode/pkg/decoding"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
	"merfishdecode/pkg/regions"
)

// Spot is one row of the spot table: a retained region and its properties.
type Spot struct {
	// Label is the spot's id in the label image; spot i carries label i+1.
	Label int32

	Target   string
	TargetID int

	// IsBlank marks control barcodes.
	IsBlank bool

	// Z, Y and X are the centroid coordinates in pixels.
	Z, Y, X float64

	Area          int
	MeanIntensity float64
	MeanDistance  float64
	MeanTrace     []float64
	Radius        float64
	BBox          regions.BoundingBox

	// Passed is set for every emitted spot: all of its pixels met both
	// thresholds and its area lies within bounds.
	Passed bool
}

// SpotTable is the ordered list of retained spots.
type SpotTable []Spot

// CountByTarget returns the number of spots per target name.
func (t SpotTable) CountByTarget() map[string]int {
	counts := make(map[string]int)
	for _, s := range t {
		counts[s.Target]++
	}
	return counts
}

// Summary aggregates a decode run.
type Summary struct {
	Pixels         int
	PassedPixels   int
	Regions        int
	Spots          int
	RejectedByArea int
	BlankSpots     int

	// BlankFraction is BlankSpots / Spots, 0 without spots.
	BlankFraction float64

	AreaMean        float64
	AreaStdDev      float64
	IntensityMean   float64
	IntensityStdDev float64
}

func summarize(dec *decoding.Result, spots SpotTable, found, rejected int) Summary {
	s := Summary{
		Pixels:         dec.Volume.Pixels(),
		PassedPixels:   dec.PassedCount(),
		Regions:        found,
		Spots:          len(spots),
		RejectedByArea: rejected,
	}
	if len(spots) == 0 {
		return s
	}

	areas := make([]float64, len(spots))
	intensities := make([]float64, len(spots))
	for i, sp := range spots {
		areas[i] = float64(sp.Area)
		intensities[i] = sp.MeanIntensity
		if sp.IsBlank {
			s.BlankSpots++
		}
	}
	s.BlankFraction = float64(s.BlankSpots) / float64(len(spots))
	s.AreaMean, s.AreaStdDev = meanStdDev(areas)
	s.IntensityMean, s.IntensityStdDev = meanStdDev(intensities)
	return s
}

func meanStdDev(x []float64) (mean, std float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

// Result is the output of a decode run.
type Result struct {
	// Spots has one row per retained region, in label order.
	Spots SpotTable

	// LabelImage holds the retained regions; 0 is background.
	LabelImage *labeling.LabelImage

	// PassMask marks the pixels that met both decoding thresholds.
	PassMask []bool

	// Decoded holds the per-pixel targets, distances and magnitudes.
	Decoded *decoding.Result

	Summary Summary
}

// Validate checks that spots and label image describe the same regions:
// labels run 1..len(Spots) without gaps, each spot's area is the pixel count
// of its label, and labeled pixels all passed.
func (r *Result) Validate() error {
	n := r.LabelImage.Volume.Pixels()
	if len(r.PassMask) != n {
		return errs.DataShapef("pass mask has %d pixels, label image has %d", len(r.PassMask), n)
	}

	areas := r.LabelImage.Areas()
	if len(areas)-1 != len(r.Spots) {
		return errs.DataShapef("label image holds %d labels, spot table has %d rows", len(areas)-1, len(r.Spots))
	}
	for i, s := range r.Spots {
		label := int32(i + 1)
		if s.Label != label {
			return errs.DataShapef("spot %d carries label %d, want %d", i, s.Label, label)
		}
		if areas[label] != s.Area {
			return errs.DataShapef("spot %d has area %d, label image has %d pixels", i, s.Area, areas[label])
		}
	}
	for p, l := range r.LabelImage.Labels {
		if l != 0 && !r.PassMask[p] {
			return errs.DataShapef("pixel %d has label %d but failed decoding", p, l)
		}
	}
	return nil
}
