package export

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"merfishdecode/internal/models"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
	"merfishdecode/pkg/pixeldecoder"
	"merfishdecode/pkg/regions"
)

// createLabelImage returns a 2x3x4 label image where label k fills z-plane
// k-1 at row 1, plus a matching pass mask.
func createLabelImage() (*labeling.LabelImage, []bool) {
	img := labeling.NewLabelImage(models.Volume{Z: 2, Y: 3, X: 4})
	mask := make([]bool, len(img.Labels))
	for z := 0; z < 2; z++ {
		for x := 0; x < 4; x++ {
			i := img.Volume.Index(z, 1, x)
			img.Labels[i] = int32(z + 1)
			mask[i] = true
		}
	}
	return img, mask
}

// TestExtractSlice verifies slice dimensions and contents along every axis
func TestExtractSlice(t *testing.T) {
	img, mask := createLabelImage()
	viewer, err := NewViewer(img, mask)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	// Z slices show the XY plane
	slice, err := viewer.ExtractSlice(Labels, "z", 1)
	if err != nil {
		t.Fatalf("Failed to extract Z slice: %v", err)
	}
	if b := slice.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected Z slice dimensions 4x3, got %dx%d", b.Dx(), b.Dy())
	}
	if got := slice.At(2, 1); got != LabelColor(2) {
		t.Errorf("Expected label 2 color at (2, 1), got %v", got)
	}
	if got := slice.At(2, 0); got != LabelColor(0) {
		t.Errorf("Expected background at (2, 0), got %v", got)
	}

	// X slices show the YZ plane
	slice, err = viewer.ExtractSlice(PassMask, "x", 0)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := slice.Bounds(); b.Dx() != 2 || b.Dy() != 3 {
		t.Errorf("Expected X slice dimensions 2x3, got %dx%d", b.Dx(), b.Dy())
	}
	if r, _, _, _ := slice.At(1, 1).RGBA(); r != 0xffff {
		t.Errorf("Expected a white passing pixel, got red %d", r)
	}

	// Y slices show the XZ plane
	slice, err = viewer.ExtractSlice(Labels, "y", 1)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := slice.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("Expected Y slice dimensions 4x2, got %dx%d", b.Dx(), b.Dy())
	}

	// Invalid requests
	if _, err := viewer.ExtractSlice(Labels, "w", 0); !errs.IsConfiguration(err) {
		t.Errorf("Expected error for invalid axis, got %v", err)
	}
	if _, err := viewer.ExtractSlice(Labels, "z", 2); !errs.IsConfiguration(err) {
		t.Errorf("Expected error for out of bounds position, got %v", err)
	}
	if _, err := viewer.ExtractSlice(Layer(7), "z", 0); !errs.IsConfiguration(err) {
		t.Errorf("Expected error for invalid layer, got %v", err)
	}
}

// TestNewViewerMismatch verifies that mask and labels must align
func TestNewViewerMismatch(t *testing.T) {
	img, mask := createLabelImage()
	if _, err := NewViewer(img, mask[1:]); !errs.IsDataShape(err) {
		t.Errorf("Expected a data shape error, got %v", err)
	}
}

// TestLabelColor verifies that labels get distinct, stable colors
func TestLabelColor(t *testing.T) {
	seen := make(map[[3]uint8]int32)
	for l := int32(1); l <= 50; l++ {
		c := LabelColor(l)
		if c.A != 255 || c != LabelColor(l) {
			t.Fatalf("Unstable or transparent color for label %d", l)
		}
		key := [3]uint8{c.R, c.G, c.B}
		if prev, ok := seen[key]; ok {
			t.Errorf("Labels %d and %d share a color", prev, l)
		}
		seen[key] = l
	}
}

// TestSaveSliceSequence verifies that one PNG per slice is written
func TestSaveSliceSequence(t *testing.T) {
	img, mask := createLabelImage()
	viewer, err := NewViewer(img, mask)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "slices")
	if err := viewer.SaveSliceSequence(PassMask, "z", dir); err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}

	for _, name := range []string{"passmask_z_000.png", "passmask_z_001.png"} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Missing slice %s: %v", name, err)
		}
		decoded, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("Failed to decode %s: %v", name, err)
		}
		if decoded.Bounds() != image.Rect(0, 0, 4, 3) {
			t.Errorf("%s has bounds %v", name, decoded.Bounds())
		}
	}

	if err := viewer.SaveSliceSequence(Labels, "q", dir); !errs.IsConfiguration(err) {
		t.Errorf("Expected error for invalid axis, got %v", err)
	}
}

// TestWriteSpotTable verifies the CSV header and row contents
func TestWriteSpotTable(t *testing.T) {
	spots := pixeldecoder.SpotTable{
		{Label: 1, Target: "gene-1", Z: 0, Y: 1.5, X: 2.25, Area: 4, MeanIntensity: 3, MeanDistance: 0.125, Radius: 1, BBox: regions.BoundingBox{Z1: 1, Y1: 3, X1: 4}, Passed: true},
		{Label: 2, Target: "blank-0", IsBlank: true, Area: 1, Passed: true},
	}

	var buf bytes.Buffer
	if err := WriteSpotTable(&buf, spots); err != nil {
		t.Fatalf("WriteSpotTable failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse spot table: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d rows", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(SpotTableHeader, ",") {
		t.Errorf("Unexpected header %v", rows[0])
	}

	want := []string{"1", "gene-1", "false", "0", "1.5", "2.25", "4", "3", "0.125", "1", "0", "0", "0", "1", "3", "4", "true"}
	if strings.Join(rows[1], ",") != strings.Join(want, ",") {
		t.Errorf("Row 1 = %v, want %v", rows[1], want)
	}
	if rows[2][1] != "blank-0" || rows[2][2] != "true" {
		t.Errorf("Row 2 = %v", rows[2])
	}
}

// TestLabelVolumeRoundTrip verifies that compressed label volumes read back
// unchanged
func TestLabelVolumeRoundTrip(t *testing.T) {
	img, _ := createLabelImage()
	img.Labels[0] = 1 << 20

	path := filepath.Join(t.TempDir(), "labels.mflb")
	if err := SaveLabelVolume(img, path); err != nil {
		t.Fatalf("SaveLabelVolume failed: %v", err)
	}
	loaded, err := LoadLabelVolume(path)
	if err != nil {
		t.Fatalf("LoadLabelVolume failed: %v", err)
	}

	if loaded.Volume != img.Volume {
		t.Fatalf("Volume %+v, want %+v", loaded.Volume, img.Volume)
	}
	for i := range img.Labels {
		if loaded.Labels[i] != img.Labels[i] {
			t.Fatalf("Label %d = %d, want %d", i, loaded.Labels[i], img.Labels[i])
		}
	}
}

// TestReadLabelVolumeRejectsOversizedHeader verifies the header dimensions
// are checked before anything is allocated
func TestReadLabelVolumeRejectsOversizedHeader(t *testing.T) {
	tests := []struct {
		name    string
		z, y, x uint32
	}{
		{"huge volume", 1 << 20, 1 << 20, 1 << 10},
		{"huge plane", 1, math.MaxUint32, math.MaxUint32},
		{"just over the label range", 2, 1 << 15, 1 << 15},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			hdr := labelVolumeHeader{Magic: labelVolumeMagic, Version: labelVolumeVersion, Z: tc.z, Y: tc.y, X: tc.x}
			if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
				t.Fatalf("Failed to write header: %v", err)
			}
			if _, err := ReadLabelVolume(&buf); !errs.IsDataShape(err) {
				t.Errorf("Expected a data shape error, got %v", err)
			}
		})
	}
}

// TestReadLabelVolumeTruncated verifies a header promising more planes than
// the stream holds fails without allocating the whole volume
func TestReadLabelVolumeTruncated(t *testing.T) {
	var buf bytes.Buffer
	hdr := labelVolumeHeader{Magic: labelVolumeMagic, Version: labelVolumeVersion, Z: 1 << 10, Y: 1 << 10, X: 1 << 10}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	// a single chunk claiming a 4 GiB payload
	if err := binary.Write(&buf, binary.LittleEndian, uint32(math.MaxUint32)); err != nil {
		t.Fatalf("Failed to write chunk length: %v", err)
	}
	buf.WriteString("short")

	if _, err := ReadLabelVolume(&buf); err == nil {
		t.Errorf("Expected an error for a truncated volume")
	}
}

// TestReadLabelVolumeRejectsGarbage verifies the header check
func TestReadLabelVolumeRejectsGarbage(t *testing.T) {
	garbage := bytes.NewReader([]byte("this is not a label volume at all"))
	if _, err := ReadLabelVolume(garbage); !errs.IsDataShape(err) {
		t.Errorf("Expected a data shape error, got %v", err)
	}
}
