package labeling

import (
	"fmt"

	"merfishdecode/pkg/errs"
)

// Connectivity is the neighborhood used to join pixels into components,
// named by its number of neighbors. Four and Eight label each z-plane on its
// own; Six, Eighteen and TwentySix label the whole (z, y, x) volume.
type Connectivity int

const (
	Four      Connectivity = 4
	Eight     Connectivity = 8
	Six       Connectivity = 6
	Eighteen  Connectivity = 18
	TwentySix Connectivity = 26
)

// ParseConnectivity validates a neighbor count.
func ParseConnectivity(n int) (Connectivity, error) {
	switch c := Connectivity(n); c {
	case Four, Eight, Six, Eighteen, TwentySix:
		return c, nil
	}
	return 0, errs.Configurationf("connectivity must be one of 4, 8 (2D) or 6, 18, 26 (3D), got %d", n)
}

func (c Connectivity) String() string {
	return fmt.Sprintf("%d-connectivity", int(c))
}

// Is3D reports whether components may extend across z-planes.
func (c Connectivity) Is3D() bool {
	return c == Six || c == Eighteen || c == TwentySix
}

// rank is the largest number of axes a neighbor offset may change at once.
func (c Connectivity) rank() int {
	switch c {
	case Four, Six:
		return 1
	case Eight, Eighteen:
		return 2
	default:
		return 3
	}
}

type offset struct {
	dz, dy, dx int
}

// neighbors returns every offset of the neighborhood.
func (c Connectivity) neighbors() []offset {
	var out []offset
	dzs := []int{0}
	if c.Is3D() {
		dzs = []int{-1, 0, 1}
	}
	for _, dz := range dzs {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := abs(dz) + abs(dy) + abs(dx)
				if n == 0 || n > c.rank() {
					continue
				}
				out = append(out, offset{dz, dy, dx})
			}
		}
	}
	return out
}

// backward returns the offsets that point to pixels visited earlier in a
// (z, y, x) raster scan.
func (c Connectivity) backward() []offset {
	var out []offset
	for _, o := range c.neighbors() {
		if o.dz < 0 || (o.dz == 0 && o.dy < 0) || (o.dz == 0 && o.dy == 0 && o.dx < 0) {
			out = append(out, o)
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
