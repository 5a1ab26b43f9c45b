// Package decoding assigns every pixel of an image stack to its nearest
// codeword and decides whether that assignment is trusted.
//
// A pixel passes when its vector magnitude reaches the magnitude threshold and
// the distance from its normalized vector to the nearest codeword is at most
// the distance threshold. Pixels below the magnitude floor (and all-zero
// pixels) are rejected without any distance computation.
package decoding

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"merfishdecode/internal/logger"
	"merfishdecode/internal/models"
	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/tensor"
)

// Params controls per-pixel decoding.
type Params struct {
	// Metric measures pixel-to-codeword distance
	Metric codebook.Metric

	// NormOrder is n of the L-n norm used for magnitudes and normalization
	NormOrder int

	// DistanceThreshold is the largest accepted distance (inclusive). +Inf
	// accepts every nearest codeword.
	DistanceThreshold float64

	// MagnitudeThreshold is the smallest accepted pixel magnitude (inclusive)
	MagnitudeThreshold float64

	// NormalizeCodewords compares against codewords divided by their own norm
	NormalizeCodewords bool

	// NumWorkers bounds the number of tiles decoded at once (all CPUs if < 1)
	NumWorkers int

	// TileRows is the height of a decoding tile (whole planes if < 1)
	TileRows int
}

// Validate checks the parameters before any pixel is touched.
func (p Params) Validate() error {
	if p.Metric == nil {
		return errs.Configurationf("metric is required")
	}
	if p.NormOrder < 1 {
		return errs.Configurationf("norm order must be a positive integer, got %d", p.NormOrder)
	}
	if !(p.DistanceThreshold > 0) {
		return errs.Configurationf("distance threshold must be positive, got %v", p.DistanceThreshold)
	}
	if !(p.MagnitudeThreshold >= 0) || math.IsInf(p.MagnitudeThreshold, 0) {
		return errs.Configurationf("magnitude threshold must be non-negative and finite, got %v", p.MagnitudeThreshold)
	}
	return nil
}

// Pixel is the decoding outcome of one pixel vector.
type Pixel struct {
	// Target is the nearest codeword's target, or BackgroundTarget when the
	// pixel was rejected on magnitude
	Target int

	// Distance to the nearest codeword; +Inf when not computed
	Distance float64

	// Magnitude is the order-n norm of the raw vector
	Magnitude float64

	// Passed is set when both thresholds are met
	Passed bool
}

// Decoder decodes pixel vectors against one codebook.
type Decoder struct {
	cb      *codebook.Codebook
	matcher *codebook.Matcher
	params  Params
	log     logger.ILogger
}

// NewDecoder validates params and prepares the codebook matcher.
func NewDecoder(cb *codebook.Codebook, params Params, log logger.ILogger) (*Decoder, error) {
	if cb == nil {
		return nil, errs.Configurationf("codebook is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	matcher, err := cb.Matcher(params.Metric, params.NormOrder, params.NormalizeCodewords)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = &logger.NullLogger{}
	}
	if params.NumWorkers < 1 {
		params.NumWorkers = runtime.NumCPU()
	}

	return &Decoder{cb: cb, matcher: matcher, params: params, log: log}, nil
}

// Params returns the parameters the decoder runs with.
func (d *Decoder) Params() Params { return d.params }

// DecodeVector decodes a single raw pixel vector. scratch receives the
// normalized vector and must have the vector's length.
func (d *Decoder) DecodeVector(v, scratch []float64) Pixel {
	magnitude := codebook.Normalize(scratch, v, d.params.NormOrder)
	if magnitude == 0 || magnitude < d.params.MagnitudeThreshold {
		return Pixel{Target: codebook.BackgroundTarget, Distance: math.Inf(1), Magnitude: magnitude}
	}

	m := d.matcher.NearestNormalized(scratch)
	return Pixel{
		Target:    m.Target,
		Distance:  m.Distance,
		Magnitude: magnitude,
		Passed:    m.Distance <= d.params.DistanceThreshold,
	}
}

// Decode decodes every pixel the extractor yields. Tiles run concurrently;
// each pixel's result is written by exactly one worker, so the output does
// not depend on scheduling.
func (d *Decoder) Decode(ex *tensor.Extractor) (*Result, error) {
	layout := d.cb.Layout()
	if ex.Layout() != layout {
		return nil, errs.Configurationf("pixel vectors use layout %+v, codebook uses %+v", ex.Layout(), layout)
	}

	shape := ex.Shape()
	res := newResult(models.Volume{Z: shape.Z, Y: shape.Y, X: shape.X})
	tiles := res.Volume.Tiles(d.params.TileRows)
	d.log.Debugf("Decoding %d pixels in %d tiles with %d workers", res.Volume.Pixels(), len(tiles), d.params.NumWorkers)

	var g errgroup.Group
	g.SetLimit(d.params.NumWorkers)
	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			d.decodeTile(ex, res, tile)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}

func (d *Decoder) decodeTile(ex *tensor.Extractor, res *Result, tile models.Tile) {
	vec := make([]float64, ex.Len())
	scratch := make([]float64, ex.Len())

	start := res.Volume.Index(tile.Z, tile.Y0, 0)
	end := res.Volume.Index(tile.Z, tile.Y1-1, res.Volume.X-1) + 1
	for p := start; p < end; p++ {
		px := d.DecodeVector(ex.Vector(p, vec), scratch)
		res.Targets[p] = px.Target
		res.Distances[p] = px.Distance
		res.Magnitudes[p] = px.Magnitude
		res.Passed[p] = px.Passed
	}
}
