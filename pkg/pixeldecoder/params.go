package pixeldecoder

import (
	"math"

	"merfishdecode/internal/logger"
	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/decoding"
	"merfishdecode/pkg/labeling"
	"merfishdecode/pkg/metrics"
	"merfishdecode/pkg/regions"
)

// Params holds every setting of a decode run.
type Params struct {
	// Params are the per-pixel decoding settings: metric, norm order,
	// distance and magnitude thresholds, codeword normalization and the
	// worker and tile layout.
	decoding.Params

	// MinArea is the smallest area (in pixels) of a retained spot.
	MinArea int

	// MaxArea is the largest area of a retained spot. +Inf disables the
	// upper bound.
	MaxArea float64

	// Connectivity selects the labeling neighborhood. 4 and 8 label each
	// z-plane on its own, 6, 18 and 26 label the whole volume.
	Connectivity labeling.Connectivity

	// MeasureTraces fills the mean pixel trace of every spot.
	MeasureTraces bool

	// Log receives one line per pipeline step. Nil discards.
	Log logger.ILogger

	// Metrics, when set, receives pixel and region counts and stage timings.
	Metrics *metrics.Collector
}

// DefaultParams returns the thresholds commonly used for MERFISH pixel
// decoding with a Euclidean metric on L2-normalized vectors.
func DefaultParams() Params {
	metric, _ := codebook.LookupMetric(codebook.Euclidean)
	return Params{
		Params: decoding.Params{
			Metric:             metric,
			NormOrder:          2,
			DistanceThreshold:  0.5176,
			MagnitudeThreshold: 1.77e-5,
			NormalizeCodewords: true,
		},
		MinArea:       2,
		MaxArea:       math.Inf(1),
		Connectivity:  labeling.Eighteen,
		MeasureTraces: true,
	}
}

// Bounds is the area range of retained spots.
func (p Params) Bounds() regions.Bounds {
	return regions.Bounds{MinArea: p.MinArea, MaxArea: p.MaxArea}
}

// Validate checks all settings. It runs before any pixel is processed.
func (p Params) Validate() error {
	if err := p.Params.Validate(); err != nil {
		return err
	}
	if err := p.Bounds().Validate(); err != nil {
		return err
	}
	_, err := labeling.ParseConnectivity(int(p.Connectivity))
	return err
}
