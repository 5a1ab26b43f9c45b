package codebook

import (
	"math"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"

	"merfishdecode/pkg/errs"
)

// Metric measures the distance between a pixel vector and a codeword.
// Implementations must be safe for concurrent use.
type Metric interface {
	Name() string
	Distance(a, b []float64) float64
}

// Names of the built-in metrics.
const (
	Euclidean   = "euclidean"
	SqEuclidean = "sqeuclidean"
	Cityblock   = "cityblock"
	Chebyshev   = "chebyshev"
	Cosine      = "cosine"
)

type lpMetric struct {
	name string
	p    float64
}

func (m lpMetric) Name() string { return m.name }

func (m lpMetric) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, m.p)
}

type sqEuclideanMetric struct{}

func (sqEuclideanMetric) Name() string { return SqEuclidean }

func (sqEuclideanMetric) Distance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

type cosineMetric struct{}

func (cosineMetric) Name() string { return Cosine }

func (cosineMetric) Distance(a, b []float64) float64 {
	denom := floats.Norm(a, 2) * floats.Norm(b, 2)
	if denom == 0 {
		return 1
	}
	d := 1 - floats.Dot(a, b)/denom
	if d < 0 {
		return 0
	}
	return d
}

var (
	metricsMu sync.RWMutex
	metrics   = map[string]Metric{
		Euclidean:   lpMetric{name: Euclidean, p: 2},
		SqEuclidean: sqEuclideanMetric{},
		Cityblock:   lpMetric{name: Cityblock, p: 1},
		Chebyshev:   lpMetric{name: Chebyshev, p: math.Inf(1)},
		Cosine:      cosineMetric{},
	}
	metricAliases = map[string]string{
		"manhattan": Cityblock,
		"l1":        Cityblock,
		"l2":        Euclidean,
		"linf":      Chebyshev,
	}
)

// RegisterMetric makes a custom metric available to LookupMetric.
func RegisterMetric(m Metric) error {
	if m == nil || m.Name() == "" {
		return errs.Configurationf("metric must have a name")
	}
	name := strings.ToLower(m.Name())

	metricsMu.Lock()
	defer metricsMu.Unlock()
	if _, ok := metrics[name]; ok {
		return errs.Configurationf("metric %q is already registered", name)
	}
	if _, ok := metricAliases[name]; ok {
		return errs.Configurationf("metric %q is already registered", name)
	}
	metrics[name] = m
	return nil
}

// LookupMetric resolves a metric by name (case-insensitive, aliases allowed).
func LookupMetric(name string) (Metric, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := metricAliases[key]; ok {
		key = alias
	}

	metricsMu.RLock()
	m, ok := metrics[key]
	metricsMu.RUnlock()
	if !ok {
		return nil, errs.Configurationf("unknown metric %q (known: %s)", name, strings.Join(MetricNames(), ", "))
	}
	return m, nil
}

// MetricNames lists the registered metric names in sorted order.
func MetricNames() []string {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize writes v divided by its order-n norm into dst and returns the
// norm. dst is left untouched when the norm is zero. dst may alias v.
func Normalize(dst, v []float64, normOrder int) float64 {
	magnitude := floats.Norm(v, float64(normOrder))
	if magnitude > 0 {
		floats.ScaleTo(dst, 1/magnitude, v)
	}
	return magnitude
}
