package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"merfishdecode/internal/models"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
)

// labelVolumeMagic starts every compressed label volume.
var labelVolumeMagic = [4]byte{'M', 'F', 'L', 'B'}

const labelVolumeVersion = 1

// labelVolumeHeader opens a label volume. One chunk per z-plane follows: the
// uint32 length of the compressed plane, then the plane's little-endian
// int32 labels compressed with zstd.
type labelVolumeHeader struct {
	Magic   [4]byte
	Version uint32
	Z, Y, X uint32
}

// WriteLabelVolume writes a label image as zstd-compressed z-plane chunks.
func WriteLabelVolume(w io.Writer, img *labeling.LabelImage) error {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return errors.Wrap(err, "failed to create zstd encoder")
	}
	defer enc.Close()

	v := img.Volume
	hdr := labelVolumeHeader{
		Magic:   labelVolumeMagic,
		Version: labelVolumeVersion,
		Z:       uint32(v.Z),
		Y:       uint32(v.Y),
		X:       uint32(v.X),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return errors.Wrap(err, "failed to write label volume header")
	}

	raw := make([]byte, 4*v.Y*v.X)
	var chunk []byte
	for z := 0; z < v.Z; z++ {
		for i, l := range img.Plane(z) {
			binary.LittleEndian.PutUint32(raw[4*i:], uint32(l))
		}
		chunk = enc.EncodeAll(raw, chunk[:0])

		if err := binary.Write(w, binary.LittleEndian, uint32(len(chunk))); err != nil {
			return errors.Wrapf(err, "failed to write plane %d", z)
		}
		if _, err := w.Write(chunk); err != nil {
			return errors.Wrapf(err, "failed to write plane %d", z)
		}
	}
	return nil
}

// ReadLabelVolume reads a label image written by WriteLabelVolume.
func ReadLabelVolume(r io.Reader) (*labeling.LabelImage, error) {
	var hdr labelVolumeHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "failed to read label volume header")
	}
	if hdr.Magic != labelVolumeMagic {
		return nil, errs.DataShapef("not a label volume")
	}
	if hdr.Version != labelVolumeVersion {
		return nil, errs.DataShapef("unsupported label volume version %d", hdr.Version)
	}

	vol := models.Volume{Z: int(hdr.Z), Y: int(hdr.Y), X: int(hdr.X)}
	if plane := uint64(hdr.Y) * uint64(hdr.X); plane > math.MaxInt32 || plane*uint64(hdr.Z) > math.MaxInt32 {
		return nil, errs.DataShapef("label volume %dx%dx%d exceeds the label range", hdr.Z, hdr.Y, hdr.X)
	}
	planeSize := vol.Y * vol.X

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(4*planeSize)+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd decoder")
	}
	defer dec.Close()

	// Buffers grow with the data actually read, never with the header alone.
	var labels []int32
	var chunk, raw []byte
	for z := 0; z < vol.Z; z++ {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errors.Wrapf(err, "failed to read plane %d", z)
		}
		chunk, err = readChunk(r, chunk[:0], n)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read plane %d", z)
		}

		raw, err = dec.DecodeAll(chunk, raw[:0])
		if err != nil {
			return nil, errs.DataShapef("failed to decompress plane %d: %v", z, err)
		}
		if len(raw) != 4*planeSize {
			return nil, errs.DataShapef("plane %d holds %d bytes, want %d", z, len(raw), 4*planeSize)
		}
		for i := 0; i < planeSize; i++ {
			labels = append(labels, int32(binary.LittleEndian.Uint32(raw[4*i:])))
		}
	}
	if labels == nil {
		labels = make([]int32, vol.Pixels())
	}
	return &labeling.LabelImage{Volume: vol, Labels: labels}, nil
}

// readChunk appends exactly n bytes from r to buf.
func readChunk(r io.Reader, buf []byte, n uint32) ([]byte, error) {
	w := bytes.NewBuffer(buf)
	got, err := io.Copy(w, io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if got != int64(n) {
		return nil, io.ErrUnexpectedEOF
	}
	return w.Bytes(), nil
}

// SaveLabelVolume writes a label image to a file.
func SaveLabelVolume(img *labeling.LabelImage, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := WriteLabelVolume(w, img); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write %s", filename)
	}
	return file.Close()
}

// LoadLabelVolume reads a label image from a file.
func LoadLabelVolume(filename string) (*labeling.LabelImage, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	return ReadLabelVolume(bufio.NewReader(file))
}
