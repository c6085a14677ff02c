package series

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/aurumlab/gsr-backend/internal/models"
)

var blobDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DecodeBlob parses a persisted series blob. Both historical shapes are
// accepted: a flat array of {date,gold,silver} objects, or an object
// wrapping the same array under "rows". Any structural failure marks the
// whole blob corrupt.
func DecodeBlob(payload []byte) ([]models.PriceRecord, error) {
	var flat []models.PriceRecord
	if err := json.Unmarshal(payload, &flat); err == nil {
		return validateRecords(flat)
	}

	var wrapped struct {
		Rows []models.PriceRecord `json:"rows"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.Rows != nil {
		return validateRecords(wrapped.Rows)
	}

	return nil, fmt.Errorf("blob matches neither the flat nor the rows form")
}

// EncodeBlob serializes a series in the flat-array form, the only shape
// ever written.
func EncodeBlob(records []models.PriceRecord) ([]byte, error) {
	if records == nil {
		records = []models.PriceRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode series blob: %w", err)
	}
	return payload, nil
}

func validateRecords(records []models.PriceRecord) ([]models.PriceRecord, error) {
	for _, rec := range records {
		if !blobDateRe.MatchString(rec.Date) {
			return nil, fmt.Errorf("record date %q is not canonical", rec.Date)
		}
		if !validPrice(rec.Gold) || !validPrice(rec.Silver) {
			return nil, fmt.Errorf("record %s has invalid prices (gold=%v silver=%v)", rec.Date, rec.Gold, rec.Silver)
		}
	}
	return records, nil
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
