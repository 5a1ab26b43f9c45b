// Package export writes the diagnostic outputs of a decode run: spot tables,
// label and pass-mask images, and compressed label volumes.
package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"merfishdecode/internal/models"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
)

// Layer selects what a slice image shows.
type Layer int

const (
	// Labels colors every region by its label, background black
	Labels Layer = iota

	// PassMask shows pixels that passed decoding in white
	PassMask
)

func (l Layer) String() string {
	switch l {
	case Labels:
		return "labels"
	case PassMask:
		return "passmask"
	default:
		return fmt.Sprintf("Layer(%d)", int(l))
	}
}

// Viewer renders slices of a label image and its pass mask.
type Viewer struct {
	labels []int32
	mask   []bool

	// volume is the (z, y, x) extent both arrays are laid out in
	volume models.Volume
}

// NewViewer creates a viewer over a label image and the matching pass mask.
func NewViewer(img *labeling.LabelImage, passMask []bool) (*Viewer, error) {
	if len(passMask) != len(img.Labels) {
		return nil, errs.DataShapef("pass mask has %d pixels, label image has %d", len(passMask), len(img.Labels))
	}
	return &Viewer{labels: img.Labels, mask: passMask, volume: img.Volume}, nil
}

// LabelColor maps a label to a stable, fully opaque color; 0 is black.
func LabelColor(label int32) color.RGBA {
	if label == 0 {
		return color.RGBA{A: 255}
	}
	h := uint32(label) * 2654435761
	return color.RGBA{
		R: uint8(64 + (h>>24)%192),
		G: uint8(64 + (h>>16)%192),
		B: uint8(64 + (h>>8)%192),
		A: 255,
	}
}

func (v *Viewer) pixel(layer Layer, idx int) color.Color {
	if layer == PassMask {
		if v.mask[idx] {
			return color.Gray{Y: 255}
		}
		return color.Gray{}
	}
	return LabelColor(v.labels[idx])
}

// ExtractSlice renders the plane at position along axis ("x", "y" or "z").
func (v *Viewer) ExtractSlice(layer Layer, axis string, position int) (image.Image, error) {
	if layer != Labels && layer != PassMask {
		return nil, errs.Configurationf("invalid layer %v", layer)
	}
	if position < 0 {
		return nil, errs.Configurationf("position must be non-negative")
	}

	vol := v.volume
	var img *image.RGBA

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.X {
			return nil, errs.Configurationf("position %d exceeds width %d", position, vol.X)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Z, vol.Y))
		for y := 0; y < vol.Y; y++ {
			for z := 0; z < vol.Z; z++ {
				img.Set(z, y, v.pixel(layer, vol.Index(z, y, position)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= vol.Y {
			return nil, errs.Configurationf("position %d exceeds height %d", position, vol.Y)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.X, vol.Z))
		for z := 0; z < vol.Z; z++ {
			for x := 0; x < vol.X; x++ {
				img.Set(x, z, v.pixel(layer, vol.Index(z, position, x)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= vol.Z {
			return nil, errs.Configurationf("position %d exceeds depth %d", position, vol.Z)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.X, vol.Y))
		for y := 0; y < vol.Y; y++ {
			for x := 0; x < vol.X; x++ {
				img.Set(x, y, v.pixel(layer, vol.Index(position, y, x)))
			}
		}

	default:
		return nil, errs.Configurationf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves a slice as a PNG image; PNG keeps label colors exact.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return errors.Wrapf(err, "failed to encode %s", filename)
	}
	return file.Close()
}

// SaveSliceSequence saves every slice along axis into outputDir.
func (v *Viewer) SaveSliceSequence(layer Layer, axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.X
	case "y", "Y":
		maxPos = v.volume.Y
	case "z", "Z":
		maxPos = v.volume.Z
	default:
		return errs.Configurationf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(layer, axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%03d.png", layer, axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
