package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"merfishdecode/pkg/pixeldecoder"
)

// SpotTableHeader lists the columns written by WriteSpotTable.
var SpotTableHeader = []string{
	"label", "target", "is_blank", "z", "y", "x", "area",
	"mean_intensity", "mean_distance", "radius",
	"z_min", "y_min", "x_min", "z_max", "y_max", "x_max", "passes_thresholds",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteSpotTable writes one CSV row per spot, preceded by SpotTableHeader.
func WriteSpotTable(w io.Writer, spots pixeldecoder.SpotTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SpotTableHeader); err != nil {
		return errors.Wrap(err, "failed to write spot table header")
	}

	for _, s := range spots {
		row := []string{
			strconv.Itoa(int(s.Label)),
			s.Target,
			strconv.FormatBool(s.IsBlank),
			formatFloat(s.Z),
			formatFloat(s.Y),
			formatFloat(s.X),
			strconv.Itoa(s.Area),
			formatFloat(s.MeanIntensity),
			formatFloat(s.MeanDistance),
			formatFloat(s.Radius),
			strconv.Itoa(s.BBox.Z0),
			strconv.Itoa(s.BBox.Y0),
			strconv.Itoa(s.BBox.X0),
			strconv.Itoa(s.BBox.Z1),
			strconv.Itoa(s.BBox.Y1),
			strconv.Itoa(s.BBox.X1),
			strconv.FormatBool(s.Passed),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write spot %d", s.Label)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush spot table")
}

// SaveSpotTable writes the spot table to a CSV file.
func SaveSpotTable(spots pixeldecoder.SpotTable, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer file.Close()

	if err := WriteSpotTable(file, spots); err != nil {
		return err
	}
	return file.Close()
}
