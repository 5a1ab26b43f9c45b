// Package tensor holds the filtered 5D image stack (round, channel, z, y, x)
// handed over by the filtering stage, and turns it into per-pixel vectors.
package tensor

import (
	"fmt"
	"math"

	"merfishdecode/pkg/errs"
)

// Axis names one dimension of the image stack.
type Axis int

const (
	Round Axis = iota
	Channel
	ZPlane
	Y
	X
)

var axisNames = [...]string{"r", "c", "z", "y", "x"}

func (a Axis) String() string {
	if a < Round || a > X {
		return fmt.Sprintf("Axis(%d)", int(a))
	}
	return axisNames[a]
}

// Shape is the size of each axis.
type Shape struct {
	Rounds   int
	Channels int
	Z        int
	Y        int
	X        int
}

// Dims returns the sizes in axis order (r, c, z, y, x).
func (s Shape) Dims() [5]int {
	return [5]int{s.Rounds, s.Channels, s.Z, s.Y, s.X}
}

// Size is the total number of values.
func (s Shape) Size() int {
	return s.Rounds * s.Channels * s.Z * s.Y * s.X
}

// Pixels is the number of (z, y, x) positions.
func (s Shape) Pixels() int {
	return s.Z * s.Y * s.X
}

// Offset returns the flat index of a value; data is stored row-major in
// (r, c, z, y, x) order.
func (s Shape) Offset(r, c, z, y, x int) int {
	return (((r*s.Channels+c)*s.Z+z)*s.Y+y)*s.X + x
}

// Validate reports a DataShapeError naming the first empty axis.
func (s Shape) Validate() error {
	for i, n := range s.Dims() {
		if n < 1 {
			return errs.DataShapef("axis %s has size %d", Axis(i), n)
		}
	}
	return nil
}

// Tensor is an immutable stack of non-negative intensities.
type Tensor struct {
	shape Shape
	data  []float64
}

// New copies data into a tensor of the given shape.
func New(shape Shape, data []float64) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.Size() {
		return nil, errs.DataShapef("shape %v needs %d values, got %d", shape.Dims(), shape.Size(), len(data))
	}
	if err := validateValues(data); err != nil {
		return nil, err
	}

	t := &Tensor{shape: shape, data: make([]float64, len(data))}
	copy(t.data, data)
	return t, nil
}

// FromNested builds a tensor from a [r][c][z][y][x] nested slice. Every level
// must be non-empty and rectangular.
func FromNested(values [][][][][]float64) (*Tensor, error) {
	shape := Shape{Rounds: len(values)}
	if shape.Rounds > 0 {
		shape.Channels = len(values[0])
		if shape.Channels > 0 {
			shape.Z = len(values[0][0])
			if shape.Z > 0 {
				shape.Y = len(values[0][0][0])
				if shape.Y > 0 {
					shape.X = len(values[0][0][0][0])
				}
			}
		}
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	data := make([]float64, 0, shape.Size())
	for r, channels := range values {
		if len(channels) != shape.Channels {
			return nil, errs.DataShapef("round %d has %d channels, expected %d", r, len(channels), shape.Channels)
		}
		for c, planes := range channels {
			if len(planes) != shape.Z {
				return nil, errs.DataShapef("(r=%d, c=%d) has %d z-planes, expected %d", r, c, len(planes), shape.Z)
			}
			for z, rows := range planes {
				if len(rows) != shape.Y {
					return nil, errs.DataShapef("(r=%d, c=%d, z=%d) has %d rows, expected %d", r, c, z, len(rows), shape.Y)
				}
				for y, row := range rows {
					if len(row) != shape.X {
						return nil, errs.DataShapef("(r=%d, c=%d, z=%d, y=%d) has %d columns, expected %d",
							r, c, z, y, len(row), shape.X)
					}
					data = append(data, row...)
				}
			}
		}
	}

	if err := validateValues(data); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape, data: data}, nil
}

func validateValues(data []float64) error {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.DataShapef("non-numeric intensity %v at offset %d", v, i)
		}
		if v < 0 {
			return errs.DataShapef("negative intensity %v at offset %d", v, i)
		}
	}
	return nil
}

// Shape returns the tensor shape.
func (t *Tensor) Shape() Shape { return t.shape }

// At returns the value at (r, c, z, y, x).
func (t *Tensor) At(r, c, z, y, x int) float64 {
	return t.data[t.shape.Offset(r, c, z, y, x)]
}

// Tile returns a copy of the (z, y, x) volume of one (round, channel) pair.
func (t *Tensor) Tile(round, channel int) []float64 {
	n := t.shape.Pixels()
	start := (round*t.shape.Channels + channel) * n
	out := make([]float64, n)
	copy(out, t.data[start:start+n])
	return out
}

// Max returns the largest intensity in the tensor.
func (t *Tensor) Max() float64 {
	var max float64
	for _, v := range t.data {
		if v > max {
			max = v
		}
	}
	return max
}
