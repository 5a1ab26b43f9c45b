package tensor

import (
	"errors"
	"math"
	"testing"

	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/errs"
)

// createTestTensor fills every value with a code identifying its position,
// value = r*10000 + c*1000 + z*100 + y*10 + x.
func createTestTensor(t *testing.T, shape Shape) *Tensor {
	t.Helper()
	data := make([]float64, shape.Size())
	for r := 0; r < shape.Rounds; r++ {
		for c := 0; c < shape.Channels; c++ {
			for z := 0; z < shape.Z; z++ {
				for y := 0; y < shape.Y; y++ {
					for x := 0; x < shape.X; x++ {
						data[shape.Offset(r, c, z, y, x)] = float64(r*10000 + c*1000 + z*100 + y*10 + x)
					}
				}
			}
		}
	}
	tn, err := New(shape, data)
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}
	return tn
}

func TestNewValidation(t *testing.T) {
	shape := Shape{Rounds: 1, Channels: 1, Z: 1, Y: 2, X: 2}

	tests := []struct {
		name  string
		shape Shape
		data  []float64
	}{
		{"missing axis", Shape{Rounds: 1, Channels: 1, Z: 0, Y: 2, X: 2}, nil},
		{"wrong length", shape, []float64{1, 2, 3}},
		{"nan", shape, []float64{1, math.NaN(), 3, 4}},
		{"inf", shape, []float64{1, math.Inf(1), 3, 4}},
		{"negative", shape, []float64{1, -2, 3, 4}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.shape, tc.data)
			if !errs.IsDataShape(err) {
				t.Errorf("Expected a data shape error, got %v", err)
			}
		})
	}
}

func TestNewCopiesInput(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	tn, err := New(Shape{Rounds: 1, Channels: 1, Z: 1, Y: 2, X: 2}, data)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data[0] = 99
	if tn.At(0, 0, 0, 0, 0) != 1 {
		t.Errorf("Tensor should not alias its input")
	}
}

func TestFromNested(t *testing.T) {
	values := [][][][][]float64{
		{ // r0
			{{{1, 2}, {3, 4}}}, // c0
			{{{5, 6}, {7, 8}}}, // c1
		},
	}
	tn, err := FromNested(values)
	if err != nil {
		t.Fatalf("FromNested failed: %v", err)
	}
	want := Shape{Rounds: 1, Channels: 2, Z: 1, Y: 2, X: 2}
	if tn.Shape() != want {
		t.Fatalf("Shape = %+v, want %+v", tn.Shape(), want)
	}
	if tn.At(0, 1, 0, 1, 0) != 7 {
		t.Errorf("At(0,1,0,1,0) = %v, want 7", tn.At(0, 1, 0, 1, 0))
	}

	ragged := [][][][][]float64{{{{{1, 2}, {3}}}}}
	if _, err := FromNested(ragged); !errs.IsDataShape(err) {
		t.Errorf("Expected data shape error for ragged rows, got %v", err)
	}
	if _, err := FromNested([][][][][]float64{{}}); !errs.IsDataShape(err) {
		t.Errorf("Expected data shape error for missing channel axis, got %v", err)
	}
}

func TestExtractorOrdering(t *testing.T) {
	shape := Shape{Rounds: 2, Channels: 3, Z: 2, Y: 3, X: 4}
	tn := createTestTensor(t, shape)

	tests := []struct {
		order codebook.AxisOrder
		want  []float64
	}{
		// pixel (z=1, y=2, x=3): rounds outer, channels inner
		{codebook.RoundMajor, []float64{123, 1123, 2123, 10123, 11123, 12123}},
		// channels outer, rounds inner
		{codebook.ChannelMajor, []float64{123, 10123, 1123, 11123, 2123, 12123}},
	}

	for _, tc := range tests {
		t.Run(tc.order.String(), func(t *testing.T) {
			ex, err := NewExtractor(tn, codebook.Layout{Rounds: 2, Channels: 3, Order: tc.order})
			if err != nil {
				t.Fatalf("NewExtractor failed: %v", err)
			}
			got := ex.VectorAt(1, 2, 3, nil)
			if len(got) != len(tc.want) {
				t.Fatalf("Vector length %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("Vector = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestExtractorLayoutMismatch(t *testing.T) {
	tn := createTestTensor(t, Shape{Rounds: 2, Channels: 3, Z: 1, Y: 2, X: 2})
	_, err := NewExtractor(tn, codebook.Layout{Rounds: 3, Channels: 2})
	if !errs.IsConfiguration(err) {
		t.Errorf("Expected configuration error for 3x2 layout on 2x3 tensor, got %v", err)
	}
}

func TestExtractorEach(t *testing.T) {
	shape := Shape{Rounds: 1, Channels: 2, Z: 2, Y: 2, X: 2}
	tn := createTestTensor(t, shape)
	ex, err := NewExtractor(tn, codebook.Layout{Rounds: 1, Channels: 2})
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	count := 0
	ex.Each(func(pixel int, v []float64) {
		z, rem := pixel/4, pixel%4
		y, x := rem/2, rem%2
		want := float64(z*100 + y*10 + x)
		if v[0] != want || v[1] != want+1000 {
			t.Errorf("Pixel %d: got %v", pixel, v)
		}
		count++
	})
	if count != shape.Pixels() {
		t.Errorf("Visited %d pixels, want %d", count, shape.Pixels())
	}
}

func TestScaleByRoundChannel(t *testing.T) {
	shape := Shape{Rounds: 2, Channels: 2, Z: 1, Y: 2, X: 2}
	tn := createTestTensor(t, shape)
	factors := [][]float64{{1, 2}, {4, 8}}

	scaled, err := ScaleByRoundChannel(tn, factors, 2)
	if err != nil {
		t.Fatalf("ScaleByRoundChannel failed: %v", err)
	}

	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			for y := 0; y < 2; y++ {
				for x := 0; x < 2; x++ {
					want := tn.At(r, c, 0, y, x) / factors[r][c]
					if got := scaled.At(r, c, 0, y, x); got != want {
						t.Errorf("(%d,%d,0,%d,%d) = %v, want %v", r, c, y, x, got, want)
					}
				}
			}
		}
	}

	if tn.At(1, 1, 0, 1, 1) != 11011 {
		t.Errorf("Input tensor was modified")
	}

	if _, err := ScaleByRoundChannel(tn, [][]float64{{1, 2}}, 1); !errs.IsConfiguration(err) {
		t.Errorf("Expected configuration error for missing round, got %v", err)
	}
	if _, err := ScaleByRoundChannel(tn, [][]float64{{1, 0}, {1, 1}}, 1); !errs.IsConfiguration(err) {
		t.Errorf("Expected configuration error for zero factor, got %v", err)
	}
}

func TestMapTilesPropagatesErrors(t *testing.T) {
	tn := createTestTensor(t, Shape{Rounds: 2, Channels: 2, Z: 1, Y: 1, X: 1})
	boom := errors.New("boom")

	_, err := MapTiles(tn, 0, func(round, channel int, src, dst []float64) error {
		copy(dst, src)
		if round == 1 && channel == 0 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected tile error to propagate, got %v", err)
	}
}
