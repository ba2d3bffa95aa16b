package tabular

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/measurestack/measurestack/pkg/types"
)

// ReadCSV decodes a comma-separated sheet. name seeds default serials.
// Rows may have varying widths.
func ReadCSV(r io.Reader, name string) ([]types.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tabular: read csv %s: %w", name, err)
	}
	return toRecords(rows, name)
}
