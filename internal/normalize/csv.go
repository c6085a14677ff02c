package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aurumlab/gsr-backend/internal/models"
)

// matchColumns locates the date/gold/silver columns in a header row.
// Matching is case-insensitive on substrings, so "Date", "closing date",
// "Gold (USD/oz)", "XAU", "xag_usd" all resolve; column order is irrelevant.
func matchColumns(header []string) (dateIdx, goldIdx, silverIdx int, ok bool) {
	dateIdx, goldIdx, silverIdx = -1, -1, -1
	for i, name := range header {
		n := strings.ToLower(strings.TrimSpace(name))
		switch {
		case dateIdx < 0 && strings.Contains(n, "date"):
			dateIdx = i
		case goldIdx < 0 && (strings.Contains(n, "gold") || strings.Contains(n, "xau")):
			goldIdx = i
		case silverIdx < 0 && (strings.Contains(n, "silver") || strings.Contains(n, "xag")):
			silverIdx = i
		}
	}
	return dateIdx, goldIdx, silverIdx, dateIdx >= 0 && goldIdx >= 0 && silverIdx >= 0
}

// recordsFromRows scans a header-keyed table. Unparseable rows are dropped
// and counted, never fatal; a header without the three columns is a
// validation error.
func recordsFromRows(rows [][]string) ([]models.PriceRecord, int, error) {
	if len(rows) == 0 {
		return nil, 0, nil
	}
	di, gi, si, ok := matchColumns(rows[0])
	if !ok {
		return nil, 0, models.NewValidationError("header has no date/gold/silver columns: %v", rows[0])
	}

	var records []models.PriceRecord
	dropped := 0
	for _, row := range rows[1:] {
		if di >= len(row) || gi >= len(row) || si >= len(row) {
			dropped++
			continue
		}
		rec, err := ParseRow(row[di], row[gi], row[si])
		if err != nil {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped, nil
}

// ReadCSV parses a headered CSV stream into price records plus a count of
// dropped rows.
func ReadCSV(r io.Reader) ([]models.PriceRecord, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("read csv: %w", err)
	}
	return recordsFromRows(rows)
}

// WriteCSV serializes records with the canonical "date,gold,silver" header.
// Prices use the shortest representation that round-trips exactly.
func WriteCSV(w io.Writer, records []models.PriceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "gold", "silver"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Date,
			strconv.FormatFloat(rec.Gold, 'f', -1, 64),
			strconv.FormatFloat(rec.Silver, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", rec.Date, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
