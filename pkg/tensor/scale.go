package tensor

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"merfishdecode/pkg/errs"
)

// TileFunc transforms the (z, y, x) volume of one (round, channel) pair. It
// must write every value of dst and must not keep src or dst.
type TileFunc func(round, channel int, src, dst []float64) error

// MapTiles applies fn to each (round, channel) tile independently and returns
// a new tensor; t is not modified. Tiles are processed by up to numWorkers
// goroutines (all CPUs when numWorkers < 1).
func MapTiles(t *Tensor, numWorkers int, fn TileFunc) (*Tensor, error) {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	s := t.shape
	n := s.Pixels()
	out := make([]float64, len(t.data))

	var g errgroup.Group
	g.SetLimit(numWorkers)
	for r := 0; r < s.Rounds; r++ {
		for c := 0; c < s.Channels; c++ {
			r, c := r, c
			start := (r*s.Channels + c) * n
			g.Go(func() error {
				return fn(r, c, t.data[start:start+n], out[start:start+n])
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := validateValues(out); err != nil {
		return nil, err
	}
	return &Tensor{shape: s, data: out}, nil
}

// ScaleByRoundChannel divides every tile by its scale factor, indexed
// factors[round][channel]. This is the per-(round, channel) normalization the
// filtering stage applies before decoding.
func ScaleByRoundChannel(t *Tensor, factors [][]float64, numWorkers int) (*Tensor, error) {
	s := t.shape
	if len(factors) != s.Rounds {
		return nil, errs.Configurationf("scale factors cover %d rounds, tensor has %d", len(factors), s.Rounds)
	}
	for r, row := range factors {
		if len(row) != s.Channels {
			return nil, errs.Configurationf("scale factors for round %d cover %d channels, tensor has %d",
				r, len(row), s.Channels)
		}
		for c, f := range row {
			if !(f > 0) || math.IsInf(f, 0) {
				return nil, errs.Configurationf("scale factor for (r=%d, c=%d) must be positive, got %v", r, c, f)
			}
		}
	}

	return MapTiles(t, numWorkers, func(round, channel int, src, dst []float64) error {
		f := factors[round][channel]
		for i, v := range src {
			dst[i] = v / f
		}
		return nil
	})
}
