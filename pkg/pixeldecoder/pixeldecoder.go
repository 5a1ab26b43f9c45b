// Package pixeldecoder runs the complete pixel-based MERFISH decode: every
// pixel vector is matched to its nearest codeword, adjacent pixels of the
// same target are joined into regions, and regions of acceptable area
// become spots.
//
// The pipeline consists of these steps:
// 1. Extracting pixel vectors in codebook order
// 2. Decoding each pixel against the codebook
// 3. Labeling connected regions of passing pixels
// 4. Measuring regions and filtering them by area
// 5. Assembling the spot table, label image and pass mask
package pixeldecoder

import (
	"time"

	"github.com/pkg/errors"

	"merfishdecode/internal/logger"
	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/decoding"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
	"merfishdecode/pkg/regions"
	"merfishdecode/pkg/tensor"
)

// PixelSpotDecoder decodes image tensors against one codebook.
type PixelSpotDecoder struct {
	cb      *codebook.Codebook
	params  Params
	decoder *decoding.Decoder
	log     logger.ILogger
}

// New validates params and prepares a decoder for cb. Invalid settings are
// reported here, before any image is seen.
func New(cb *codebook.Codebook, params Params) (*PixelSpotDecoder, error) {
	if cb == nil {
		return nil, errs.Configurationf("codebook is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	log := params.Log
	if log == nil {
		log = &logger.NullLogger{}
	}

	dec, err := decoding.NewDecoder(cb, params.Params, log)
	if err != nil {
		return nil, err
	}
	params.Params = dec.Params()

	return &PixelSpotDecoder{cb: cb, params: params, decoder: dec, log: log}, nil
}

// Params returns the settings the decoder runs with.
func (d *PixelSpotDecoder) Params() Params { return d.params }

// Codebook returns the codebook spots are decoded against.
func (d *PixelSpotDecoder) Codebook() *codebook.Codebook { return d.cb }

// Run decodes one image tensor. The tensor is not modified.
func (d *PixelSpotDecoder) Run(t *tensor.Tensor) (*Result, error) {
	res, err := d.run(t)
	d.params.Metrics.RunFinished(err)
	return res, err
}

func (d *PixelSpotDecoder) run(t *tensor.Tensor) (*Result, error) {
	if t == nil {
		return nil, errs.DataShapef("image tensor is required")
	}

	// Step 1: Extract pixel vectors
	d.log.Infof("Step 1: Extracting pixel vectors...")
	ex, err := tensor.NewExtractor(t, d.cb.Layout())
	if err != nil {
		return nil, err
	}
	shape := t.Shape()
	d.log.Infof("Image has %d pixels (%dx%dx%d) of %d rounds x %d channels", shape.Pixels(), shape.Z, shape.Y, shape.X, shape.Rounds, shape.Channels)

	// Step 2: Decode every pixel
	d.log.Infof("Step 2: Decoding pixels against %d codewords...", d.cb.Len())
	start := time.Now()
	decoded, err := d.decoder.Decode(ex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode pixels")
	}
	d.params.Metrics.ObserveStage("decode", time.Since(start))
	passed := decoded.PassedCount()
	d.params.Metrics.AddPixels(passed, decoded.Volume.Pixels()-passed)
	d.log.Infof("%d of %d pixels passed the thresholds", passed, decoded.Volume.Pixels())

	// Step 3: Label connected regions
	d.log.Infof("Step 3: Labeling regions with %v...", d.params.Connectivity)
	start = time.Now()
	labeler := &labeling.Labeler{
		Connectivity: d.params.Connectivity,
		NumWorkers:   d.params.NumWorkers,
		BandRows:     d.params.TileRows,
		Log:          d.log,
	}
	lab, err := labeler.Label(decoded.Volume, decoded.Targets, decoded.Passed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to label regions")
	}
	d.params.Metrics.ObserveStage("label", time.Since(start))

	// Step 4: Measure and filter regions
	d.log.Infof("Step 4: Measuring %d regions and filtering by area...", len(lab.Components))
	start = time.Now()
	measurer := &regions.Measurer{
		Is3D:       d.params.Connectivity.Is3D(),
		NumWorkers: d.params.NumWorkers,
	}
	if d.params.MeasureTraces {
		measurer.Extractor = ex
	}
	found, err := measurer.Measure(lab, decoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to measure regions")
	}
	kept, rejected, err := regions.Filter(lab.Image, found, d.params.Bounds())
	if err != nil {
		return nil, errors.Wrap(err, "failed to filter regions")
	}
	d.params.Metrics.ObserveStage("regions", time.Since(start))
	d.params.Metrics.AddRegions(len(kept), rejected)
	d.log.Infof("Kept %d regions, rejected %d by area", len(kept), rejected)

	// Step 5: Assemble the result
	d.log.Infof("Step 5: Assembling spot table...")
	res := &Result{
		Spots:      d.spotTable(kept),
		LabelImage: lab.Image,
		PassMask:   decoded.PassMask(),
		Decoded:    decoded,
	}
	res.Summary = summarize(decoded, res.Spots, len(found), rejected)
	if err := res.Validate(); err != nil {
		return nil, errors.Wrap(err, "inconsistent decode result")
	}
	d.log.Debugf("Summary: %+v", res.Summary)

	return res, nil
}

func (d *PixelSpotDecoder) spotTable(kept []regions.Region) SpotTable {
	spots := make(SpotTable, len(kept))
	for i, r := range kept {
		spots[i] = Spot{
			Label:         r.Label,
			Target:        d.cb.TargetName(r.Target),
			TargetID:      r.Target,
			IsBlank:       d.cb.IsBlankTarget(r.Target),
			Z:             r.Z,
			Y:             r.Y,
			X:             r.X,
			Area:          r.Area,
			MeanIntensity: r.MeanIntensity,
			MeanDistance:  r.MeanDistance,
			MeanTrace:     r.MeanTrace,
			Radius:        r.Radius,
			BBox:          r.BBox,
			Passed:        true,
		}
	}
	return spots
}
