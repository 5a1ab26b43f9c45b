package regions

import (
	"math"

	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
)

// Bounds is the accepted area range [MinArea, MaxArea]. MaxArea may be +Inf.
type Bounds struct {
	MinArea int
	MaxArea float64
}

// Validate checks the range before any region is filtered.
func (b Bounds) Validate() error {
	if b.MinArea < 1 {
		return errs.Configurationf("min area must be at least 1, got %d", b.MinArea)
	}
	if math.IsNaN(b.MaxArea) || b.MaxArea < float64(b.MinArea) {
		return errs.Configurationf("max area must be at least min area (%d), got %v", b.MinArea, b.MaxArea)
	}
	return nil
}

// Keep reports whether a region of the given area lies within the bounds.
func (b Bounds) Keep(area int) bool {
	return area >= b.MinArea && float64(area) <= b.MaxArea
}

// Filter drops the regions outside the bounds, zeroing their pixels in img,
// and renumbers the survivors 1..k in their original order, in both the
// image and the returned regions. regions[i] must carry label i+1.
func Filter(img *labeling.LabelImage, regions []Region, b Bounds) (kept []Region, rejected int, err error) {
	if err := b.Validate(); err != nil {
		return nil, 0, err
	}

	mapping := make([]int32, len(regions)+1)
	for i, r := range regions {
		if r.Label != int32(i+1) {
			return nil, 0, errs.DataShapef("region %d carries label %d", i, r.Label)
		}
		if !b.Keep(r.Area) {
			rejected++
			continue
		}
		r.Label = int32(len(kept) + 1)
		mapping[i+1] = r.Label
		kept = append(kept, r)
	}

	if top := img.Max(); int(top) > len(regions) {
		return nil, 0, errs.DataShapef("label image holds label %d beyond %d regions", top, len(regions))
	}
	img.Relabel(mapping)
	return kept, rejected, nil
}
