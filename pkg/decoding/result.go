package decoding

import "merfishdecode/internal/models"

// Result holds the per-pixel outcome of a decode pass, each slice indexed by
// the flat (z, y, x) pixel index.
type Result struct {
	Volume models.Volume

	Targets    []int
	Distances  []float64
	Magnitudes []float64
	Passed     []bool
}

func newResult(v models.Volume) *Result {
	n := v.Pixels()
	return &Result{
		Volume:     v,
		Targets:    make([]int, n),
		Distances:  make([]float64, n),
		Magnitudes: make([]float64, n),
		Passed:     make([]bool, n),
	}
}

// Pixel returns the outcome of one pixel.
func (r *Result) Pixel(i int) Pixel {
	return Pixel{
		Target:    r.Targets[i],
		Distance:  r.Distances[i],
		Magnitude: r.Magnitudes[i],
		Passed:    r.Passed[i],
	}
}

// PassedCount is the number of pixels that met both thresholds.
func (r *Result) PassedCount() int {
	n := 0
	for _, p := range r.Passed {
		if p {
			n++
		}
	}
	return n
}

// PassMask returns a copy of the pass/fail mask.
func (r *Result) PassMask() []bool {
	out := make([]bool, len(r.Passed))
	copy(out, r.Passed)
	return out
}
