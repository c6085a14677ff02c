// Package series holds the canonical daily price sequence: pure merge and
// window operations plus the persisted-cache façade.
package series

import (
	"sort"

	"github.com/aurumlab/gsr-backend/internal/models"
)

// SortDedupe returns a new series sorted ascending by date with at most one
// record per date. When a date appears more than once the last occurrence
// wins. Inputs are never mutated.
func SortDedupe(records []models.PriceRecord) []models.PriceRecord {
	byDate := make(map[string]models.PriceRecord, len(records))
	for _, rec := range records {
		byDate[rec.Date] = rec
	}
	out := make([]models.PriceRecord, 0, len(byDate))
	for _, rec := range byDate {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Merge combines two partial series. Where both carry a record for the same
// date, b wins (later source overrides earlier). The result is sorted
// ascending with no duplicate dates.
func Merge(a, b []models.PriceRecord) []models.PriceRecord {
	merged := make([]models.PriceRecord, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return SortDedupe(merged)
}

// Slice restricts a series to the inclusive [start, end] window. ISO dates
// compare lexicographically, so plain string comparison is chronological.
func Slice(records []models.PriceRecord, start, end string) []models.PriceRecord {
	out := make([]models.PriceRecord, 0)
	for _, rec := range records {
		if rec.Date >= start && rec.Date <= end {
			out = append(out, rec)
		}
	}
	return out
}

// Dates returns the set of dates present in the series.
func Dates(records []models.PriceRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, rec := range records {
		set[rec.Date] = struct{}{}
	}
	return set
}
