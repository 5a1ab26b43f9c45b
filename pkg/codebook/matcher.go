package codebook

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"merfishdecode/pkg/errs"
)

// kdTreeMinCodewords is the codebook size from which Euclidean lookups go
// through a k-d tree instead of a linear scan.
const kdTreeMinCodewords = 32

// Match is the result of a nearest-codeword lookup.
type Match struct {
	// Codeword is the index of the nearest codeword in construction order
	Codeword int

	// Target is the target id of that codeword
	Target int

	// Distance is the metric distance to the codeword's reference vector
	Distance float64
}

type matcherKey struct {
	metric    string
	normOrder int
	normalize bool
}

// Matcher is a codebook prepared for one (metric, norm order, codeword
// normalization) combination. It is safe for concurrent use.
type Matcher struct {
	cb        *Codebook
	metric    Metric
	normOrder int
	normalize bool

	// refs are the codewords as compared against normalized pixel vectors
	refs [][]float64
	tree *kdtree.Tree
}

// Matcher returns the prepared matcher for metric and normOrder. With
// normalizeCodewords set every codeword is divided by its own order-n norm,
// otherwise codewords are compared as given. Matchers are cached.
func (cb *Codebook) Matcher(metric Metric, normOrder int, normalizeCodewords bool) (*Matcher, error) {
	if metric == nil {
		return nil, errs.Configurationf("metric is required")
	}
	if normOrder < 1 {
		return nil, errs.Configurationf("norm order must be a positive integer, got %d", normOrder)
	}

	key := matcherKey{metric: metric.Name(), normOrder: normOrder, normalize: normalizeCodewords}
	if m, ok := cb.matchers.Get(key); ok {
		return m, nil
	}

	m := newMatcher(cb, metric, normOrder, normalizeCodewords, usesKDTree(metric, cb.Len()))
	cb.matchers.Add(key, m)
	return m, nil
}

func usesKDTree(metric Metric, numCodewords int) bool {
	name := metric.Name()
	return (name == Euclidean || name == SqEuclidean) && numCodewords >= kdTreeMinCodewords
}

func newMatcher(cb *Codebook, metric Metric, normOrder int, normalize bool, withTree bool) *Matcher {
	m := &Matcher{
		cb:        cb,
		metric:    metric,
		normOrder: normOrder,
		normalize: normalize,
		refs:      make([][]float64, len(cb.codewords)),
	}

	for i, cw := range cb.codewords {
		ref := make([]float64, len(cw))
		copy(ref, cw)
		if normalize {
			Normalize(ref, ref, normOrder)
		}
		m.refs[i] = ref
	}

	if withTree {
		pts := make(codePoints, len(m.refs))
		for i, ref := range m.refs {
			pts[i] = codePoint{vec: ref, idx: i}
		}
		m.tree = kdtree.New(pts, false)
	}

	return m
}

// Metric returns the metric the matcher was prepared for.
func (m *Matcher) Metric() Metric { return m.metric }

// NormOrder returns the norm order the matcher was prepared for.
func (m *Matcher) NormOrder() int { return m.normOrder }

// Reference returns the reference vector codeword i is compared as.
func (m *Matcher) Reference(i int) []float64 {
	out := make([]float64, len(m.refs[i]))
	copy(out, m.refs[i])
	return out
}

// Nearest normalizes a copy of v by its order-n norm and returns the nearest
// codeword. A zero vector is compared unnormalized.
func (m *Matcher) Nearest(v []float64) (Match, error) {
	if len(v) != m.cb.layout.Len() {
		return Match{}, errs.Configurationf("pixel vector has length %d, codebook layout %dx%d needs %d",
			len(v), m.cb.layout.Rounds, m.cb.layout.Channels, m.cb.layout.Len())
	}
	normalized := make([]float64, len(v))
	copy(normalized, v)
	Normalize(normalized, normalized, m.normOrder)
	return m.NearestNormalized(normalized), nil
}

// NearestNormalized returns the nearest codeword to an already normalized
// vector of the layout's length. Distances within tieLimit of the minimum
// count as ties, and ties go to the codeword built first.
func (m *Matcher) NearestNormalized(v []float64) Match {
	if m.tree != nil {
		return m.nearestInTree(v)
	}

	var buf [256]float64
	dists := buf[:0]
	if len(m.refs) > len(buf) {
		dists = make([]float64, 0, len(m.refs))
	}
	minDist := math.Inf(1)
	for _, ref := range m.refs {
		d := m.metric.Distance(v, ref)
		dists = append(dists, d)
		if d < minDist {
			minDist = d
		}
	}

	limit := tieLimit(minDist)
	for i, d := range dists {
		if d <= limit {
			return m.match(i, d)
		}
	}
	// only reachable when every distance is NaN
	return m.match(0, dists[0])
}

// Tolerances under which two distances are treated as equal. Codewords at
// mathematically equal distance can differ by a few ulps after rounding.
const (
	tieRelTol = 1e-9
	tieAbsTol = 1e-12
)

// tieLimit is the largest distance still tied with minDist.
func tieLimit(minDist float64) float64 {
	return minDist + tieRelTol*minDist + tieAbsTol
}

func (m *Matcher) match(i int, d float64) Match {
	return Match{Codeword: i, Target: m.cb.targetIDs[i], Distance: d}
}

func (m *Matcher) nearestInTree(v []float64) Match {
	q := codePoint{vec: v, idx: -1}
	_, sq := m.tree.Nearest(q)

	// The tree works in squared distance with its own rounding. Gather every
	// codeword that could tie under the metric with a wide margin, then rank
	// the candidates exactly as the linear scan does.
	gather := sq + 4*(tieRelTol*sq+tieAbsTol*(1+math.Sqrt(sq)))
	keep := kdtree.NewDistKeeper(gather)
	m.tree.NearestSet(keep, q)

	type candidate struct {
		idx  int
		dist float64
	}
	cands := make([]candidate, 0, len(keep.Heap))
	minDist := math.Inf(1)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		idx := cd.Comparable.(codePoint).idx
		d := m.metric.Distance(v, m.refs[idx])
		cands = append(cands, candidate{idx: idx, dist: d})
		if d < minDist {
			minDist = d
		}
	}
	if len(cands) == 0 {
		// NaN input; fall back to the scan order
		return m.match(0, m.metric.Distance(v, m.refs[0]))
	}

	limit := tieLimit(minDist)
	best := -1
	var bestDist float64
	for _, c := range cands {
		if c.dist <= limit && (best < 0 || c.idx < best) {
			best, bestDist = c.idx, c.dist
		}
	}
	return m.match(best, bestDist)
}

// Nearest finds the codeword nearest to v after normalizing v (and the
// codewords) by their order-n norm.
func (cb *Codebook) Nearest(v []float64, metric Metric, normOrder int) (Match, error) {
	m, err := cb.Matcher(metric, normOrder, true)
	if err != nil {
		return Match{}, err
	}
	return m.Nearest(v)
}

// codePoint is a reference vector stored in the k-d tree.
type codePoint struct {
	vec []float64
	idx int
}

// Compare implements the kdtree.Comparable interface
func (p codePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.vec[d] - c.(codePoint).vec[d]
}

// Dims implements the kdtree.Comparable interface
func (p codePoint) Dims() int { return len(p.vec) }

// Distance returns the squared Euclidean distance, as the tree expects.
func (p codePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(codePoint)
	var sum float64
	for i, v := range p.vec {
		diff := v - q.vec[i]
		sum += diff * diff
	}
	return sum
}

type codePoints []codePoint

func (p codePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p codePoints) Len() int                              { return len(p) }
func (p codePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p codePoints) Pivot(d kdtree.Dim) int {
	plane := codePlane{codePoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfMedians(plane))
}

// codePlane implements sort.Interface and kdtree.SortSlicer for codePoints
type codePlane struct {
	codePoints
	kdtree.Dim
}

func (p codePlane) Less(i, j int) bool {
	return p.codePoints[i].vec[p.Dim] < p.codePoints[j].vec[p.Dim]
}

func (p codePlane) Slice(start, end int) kdtree.SortSlicer {
	return codePlane{codePoints: p.codePoints[start:end], Dim: p.Dim}
}

func (p codePlane) Swap(i, j int) {
	p.codePoints[i], p.codePoints[j] = p.codePoints[j], p.codePoints[i]
}
