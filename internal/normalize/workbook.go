package normalize

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/aurumlab/gsr-backend/internal/models"
)

// ReadWorkbook parses the first sheet of an xlsx workbook. The header row is
// matched the same way as CSV; date cells stored as spreadsheet serials come
// through as all-digit tokens and normalize accordingly.
func ReadWorkbook(r io.Reader) ([]models.PriceRecord, int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, models.NewValidationError("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, 0, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return recordsFromRows(rows)
}
