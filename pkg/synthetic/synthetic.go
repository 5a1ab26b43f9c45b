// Package synthetic builds artificial MERFISH experiments: a codebook of
// random barcodes and image stacks in which spots of known codewords are
// planted over Gaussian background noise.
package synthetic

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/tensor"
)

// maxPlacementAttempts bounds the tries to place one spot without overlap.
const maxPlacementAttempts = 1000

// RandomCodebook draws n distinct binary barcodes with onBits bits set, of
// which the last blanks are named "blank-<i>" and the others "gene-<i>".
func RandomCodebook(layout codebook.Layout, onBits, n, blanks int, seed uint64) (*codebook.Codebook, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	size := layout.Len()
	if onBits < 1 || onBits > size {
		return nil, errs.Configurationf("on bits must lie in [1, %d], got %d", size, onBits)
	}
	if blanks < 0 || blanks > n {
		return nil, errs.Configurationf("blank count must lie in [0, %d], got %d", n, blanks)
	}
	if n > binomial(size, onBits) {
		return nil, errs.Configurationf("cannot draw %d distinct barcodes of %d bits with %d set", n, size, onBits)
	}

	rng := rand.New(rand.NewSource(seed))
	seen := make(map[string]bool, n)
	entries := make([]codebook.Entry, 0, n)
	for len(entries) < n {
		cw := make([]float64, size)
		for _, i := range rng.Perm(size)[:onBits] {
			cw[i] = 1
		}
		key := fmt.Sprint(cw)
		if seen[key] {
			continue
		}
		seen[key] = true

		name := fmt.Sprintf("gene-%d", len(entries))
		if len(entries) >= n-blanks {
			name = fmt.Sprintf("blank-%d", len(entries)-(n-blanks))
		}
		entries = append(entries, codebook.Entry{Target: name, Codeword: cw})
	}
	return codebook.New(layout, entries)
}

func binomial(n, k int) int {
	r := 1
	for i := 1; i <= k; i++ {
		r = r * (n - k + i) / i
		if r > 1<<30 {
			return r
		}
	}
	return r
}

// Spot is a planted cuboid of one codeword.
type Spot struct {
	Target string

	// Z, Y and X are the corner of the spot with the smallest coordinates
	Z, Y, X int

	// Size is the edge length in y and x; Depth the extent in z
	Size  int
	Depth int

	// Brightness scales the codeword
	Brightness float64
}

// Builder renders spots into image stacks.
type Builder struct {
	Codebook *codebook.Codebook

	// Z, Y and X are the spatial extents of the image
	Z, Y, X int

	// NoiseStdDev is the standard deviation of the additive noise; values
	// are clamped at zero afterwards
	NoiseStdDev float64

	Seed uint64
}

func (b *Builder) shape() tensor.Shape {
	l := b.Codebook.Layout()
	return tensor.Shape{Rounds: l.Rounds, Channels: l.Channels, Z: b.Z, Y: b.Y, X: b.X}
}

// Build renders the spots. Overlapping spots add up.
func (b *Builder) Build(spots []Spot) (*tensor.Tensor, error) {
	if b.Codebook == nil {
		return nil, errs.Configurationf("codebook is required")
	}
	shape := b.shape()
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if b.NoiseStdDev < 0 {
		return nil, errs.Configurationf("noise standard deviation must be non-negative, got %v", b.NoiseStdDev)
	}

	layout := b.Codebook.Layout()
	data := make([]float64, shape.Size())
	for _, s := range spots {
		cw, err := b.codeword(s.Target)
		if err != nil {
			return nil, err
		}
		depth := max(s.Depth, 1)
		for z := s.Z; z < s.Z+depth; z++ {
			for y := s.Y; y < s.Y+s.Size; y++ {
				for x := s.X; x < s.X+s.Size; x++ {
					if z < 0 || z >= b.Z || y < 0 || y >= b.Y || x < 0 || x >= b.X {
						continue
					}
					for r := 0; r < layout.Rounds; r++ {
						for c := 0; c < layout.Channels; c++ {
							data[shape.Offset(r, c, z, y, x)] += s.Brightness * cw[layout.Index(r, c)]
						}
					}
				}
			}
		}
	}

	if b.NoiseStdDev > 0 {
		noise := distuv.Normal{Mu: 0, Sigma: b.NoiseStdDev, Src: rand.NewSource(b.Seed)}
		for i := range data {
			data[i] = max(data[i]+noise.Rand(), 0)
		}
	}

	return tensor.New(shape, data)
}

func (b *Builder) codeword(target string) ([]float64, error) {
	for i := 0; i < b.Codebook.Len(); i++ {
		if b.Codebook.TargetName(b.Codebook.CodewordTarget(i)) == target {
			return b.Codebook.Codeword(i), nil
		}
	}
	return nil, errs.Configurationf("target %q is not in the codebook", target)
}

// RandomSpots places n square spots of the given size at random positions
// of random z-planes, each codeword drawn uniformly from the codebook.
// Spots are kept at least one pixel apart, also across adjacent planes, so
// that no two touch under any connectivity.
func (b *Builder) RandomSpots(n, size int, brightness float64) ([]Spot, error) {
	if b.Codebook == nil {
		return nil, errs.Configurationf("codebook is required")
	}
	if b.Z < 1 || size < 1 || size > b.Y || size > b.X {
		return nil, errs.Configurationf("spot size %d does not fit a %dx%dx%d image", size, b.Z, b.Y, b.X)
	}

	rng := rand.New(rand.NewSource(b.Seed + 1))
	plane := b.Y * b.X
	occupied := make([]bool, b.Z*plane)
	free := func(z0, y0, x0 int) bool {
		for z := max(z0-1, 0); z < min(z0+2, b.Z); z++ {
			for y := max(y0-1, 0); y < min(y0+size+1, b.Y); y++ {
				for x := max(x0-1, 0); x < min(x0+size+1, b.X); x++ {
					if occupied[z*plane+y*b.X+x] {
						return false
					}
				}
			}
		}
		return true
	}

	spots := make([]Spot, 0, n)
	for len(spots) < n {
		placed := false
		for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
			z, y, x := rng.Intn(b.Z), rng.Intn(b.Y-size+1), rng.Intn(b.X-size+1)
			if !free(z, y, x) {
				continue
			}
			for yy := y; yy < y+size; yy++ {
				for xx := x; xx < x+size; xx++ {
					occupied[z*plane+yy*b.X+xx] = true
				}
			}
			i := rng.Intn(b.Codebook.Len())
			spots = append(spots, Spot{
				Target:     b.Codebook.TargetName(b.Codebook.CodewordTarget(i)),
				Z:          z,
				Y:          y,
				X:          x,
				Size:       size,
				Depth:      1,
				Brightness: brightness,
			})
			placed = true
			break
		}
		if !placed {
			return nil, errs.Configurationf("could only place %d of %d spots of size %d", len(spots), n, size)
		}
	}
	return spots, nil
}
