package synthetic

import (
	"testing"

	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/errs"
)

var layout = codebook.Layout{Rounds: 4, Channels: 2}

func createBuilder(t *testing.T) *Builder {
	t.Helper()
	cb, err := RandomCodebook(layout, 4, 10, 2, 1)
	if err != nil {
		t.Fatalf("RandomCodebook failed: %v", err)
	}
	return &Builder{Codebook: cb, Z: 2, Y: 16, X: 16, Seed: 42}
}

func TestRandomCodebook(t *testing.T) {
	cb, err := RandomCodebook(layout, 4, 10, 2, 1)
	if err != nil {
		t.Fatalf("RandomCodebook failed: %v", err)
	}
	if cb.Len() != 10 {
		t.Fatalf("Expected 10 codewords, got %d", cb.Len())
	}

	blanks := 0
	for i := 0; i < cb.Len(); i++ {
		sum := 0.0
		for _, v := range cb.Codeword(i) {
			sum += v
		}
		if sum != 4 {
			t.Errorf("Codeword %d has %v bits set, want 4", i, sum)
		}
		if cb.IsBlankTarget(cb.CodewordTarget(i)) {
			blanks++
		}
	}
	if blanks != 2 {
		t.Errorf("Expected 2 blank codewords, got %d", blanks)
	}

	again, err := RandomCodebook(layout, 4, 10, 2, 1)
	if err != nil {
		t.Fatalf("RandomCodebook failed: %v", err)
	}
	for i := 0; i < cb.Len(); i++ {
		a, b := cb.Codeword(i), again.Codeword(i)
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("Codebooks with equal seeds differ at codeword %d", i)
			}
		}
	}
}

func TestRandomCodebookErrors(t *testing.T) {
	tests := []struct {
		name              string
		onBits, n, blanks int
	}{
		{"no bits", 0, 1, 0},
		{"too many bits", 9, 1, 0},
		{"too many barcodes", 1, 9, 0},
		{"too many blanks", 2, 3, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := RandomCodebook(layout, tc.onBits, tc.n, tc.blanks, 1); !errs.IsConfiguration(err) {
				t.Errorf("Expected a configuration error, got %v", err)
			}
		})
	}
}

func TestBuildPlantsCodewords(t *testing.T) {
	b := createBuilder(t)
	target := b.Codebook.TargetName(b.Codebook.CodewordTarget(3))
	cw := b.Codebook.Codeword(3)

	tn, err := b.Build([]Spot{{Target: target, Z: 1, Y: 2, X: 3, Size: 2, Brightness: 5}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for r := 0; r < layout.Rounds; r++ {
		for c := 0; c < layout.Channels; c++ {
			want := 5 * cw[layout.Index(r, c)]
			if got := tn.At(r, c, 1, 3, 4); got != want {
				t.Errorf("(%d, %d) inside spot = %v, want %v", r, c, got, want)
			}
			if got := tn.At(r, c, 0, 3, 4); got != 0 {
				t.Errorf("(%d, %d) on another plane = %v, want 0", r, c, got)
			}
			if got := tn.At(r, c, 1, 4, 4); got != 0 {
				t.Errorf("(%d, %d) below spot = %v, want 0", r, c, got)
			}
		}
	}

	if _, err := b.Build([]Spot{{Target: "nope", Size: 1, Brightness: 1}}); !errs.IsConfiguration(err) {
		t.Errorf("Unknown target: expected a configuration error, got %v", err)
	}
}

func TestBuildNoise(t *testing.T) {
	b := createBuilder(t)
	b.NoiseStdDev = 0.5

	first, err := b.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	s := first.Shape()
	nonzero := 0
	for r := 0; r < s.Rounds; r++ {
		for c := 0; c < s.Channels; c++ {
			a, bb := first.Tile(r, c), second.Tile(r, c)
			for i := range a {
				if a[i] < 0 {
					t.Fatalf("Negative intensity %v", a[i])
				}
				if a[i] != bb[i] {
					t.Fatalf("Builds with equal seeds differ")
				}
				if a[i] > 0 {
					nonzero++
				}
			}
		}
	}
	if nonzero == 0 {
		t.Error("Noise left every value at zero")
	}
}

func TestRandomSpots(t *testing.T) {
	b := createBuilder(t)
	spots, err := b.RandomSpots(6, 2, 3)
	if err != nil {
		t.Fatalf("RandomSpots failed: %v", err)
	}
	if len(spots) != 6 {
		t.Fatalf("Expected 6 spots, got %d", len(spots))
	}

	for i, a := range spots {
		if _, err := b.codeword(a.Target); err != nil {
			t.Errorf("Spot %d has unknown target %q", i, a.Target)
		}
		for _, c := range spots[i+1:] {
			dz := a.Z - c.Z
			if dz < -1 || dz > 1 {
				continue
			}
			if a.Y <= c.Y+c.Size && c.Y <= a.Y+a.Size && a.X <= c.X+c.Size && c.X <= a.X+a.Size {
				t.Errorf("Spots %+v and %+v touch", a, c)
			}
		}
	}

	if _, err := b.RandomSpots(1, 17, 1); !errs.IsConfiguration(err) {
		t.Errorf("Oversized spot: expected a configuration error, got %v", err)
	}
	if _, err := b.RandomSpots(1000, 4, 1); !errs.IsConfiguration(err) {
		t.Errorf("Overfull image: expected a configuration error, got %v", err)
	}
}
