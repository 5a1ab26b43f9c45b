package tensor

import (
	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/errs"
)

// Extractor reads per-pixel vectors out of a tensor, ordered by a codebook
// layout. Building it is the point where a tensor/codebook mismatch is caught.
type Extractor struct {
	tensor *Tensor
	layout codebook.Layout

	// offsets[k] is the start of the tile holding vector component k
	offsets []int
}

// NewExtractor prepares vector extraction for layout. The tensor must have
// exactly layout.Rounds rounds and layout.Channels channels.
func NewExtractor(t *Tensor, layout codebook.Layout) (*Extractor, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	s := t.Shape()
	if s.Rounds != layout.Rounds || s.Channels != layout.Channels {
		return nil, errs.Configurationf("tensor has %d rounds x %d channels, codebook expects %d x %d",
			s.Rounds, s.Channels, layout.Rounds, layout.Channels)
	}

	plane := s.Pixels()
	offsets := make([]int, layout.Len())
	for r := 0; r < s.Rounds; r++ {
		for c := 0; c < s.Channels; c++ {
			offsets[layout.Index(r, c)] = (r*s.Channels + c) * plane
		}
	}

	return &Extractor{tensor: t, layout: layout, offsets: offsets}, nil
}

// Len is the length of every extracted vector.
func (e *Extractor) Len() int { return len(e.offsets) }

// NumPixels is the number of (z, y, x) positions.
func (e *Extractor) NumPixels() int { return e.tensor.shape.Pixels() }

// Layout returns the codebook layout vectors are ordered by.
func (e *Extractor) Layout() codebook.Layout { return e.layout }

// Shape returns the shape of the underlying tensor.
func (e *Extractor) Shape() Shape { return e.tensor.shape }

// Vector writes the vector of a flat (z, y, x) pixel index into dst, growing
// it when needed, and returns it.
func (e *Extractor) Vector(pixel int, dst []float64) []float64 {
	if cap(dst) < len(e.offsets) {
		dst = make([]float64, len(e.offsets))
	}
	dst = dst[:len(e.offsets)]
	data := e.tensor.data
	for k, off := range e.offsets {
		dst[k] = data[off+pixel]
	}
	return dst
}

// VectorAt is Vector addressed by coordinates.
func (e *Extractor) VectorAt(z, y, x int, dst []float64) []float64 {
	s := e.tensor.shape
	return e.Vector((z*s.Y+y)*s.X+x, dst)
}

// Each streams every pixel vector in (z, y, x) raster order. The slice passed
// to fn is reused between calls.
func (e *Extractor) Each(fn func(pixel int, v []float64)) {
	buf := make([]float64, len(e.offsets))
	for p := 0; p < e.NumPixels(); p++ {
		fn(p, e.Vector(p, buf))
	}
}
