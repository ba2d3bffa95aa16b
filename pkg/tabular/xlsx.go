package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/measurestack/measurestack/pkg/types"
)

// ReadXLSX decodes the first worksheet of an Office Open XML workbook.
func ReadXLSX(r io.Reader, name string) ([]types.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("tabular: open xlsx %s: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("tabular: read sheet %q of %s: %w", sheets[0], name, err)
	}
	return toRecords(rows, name)
}
