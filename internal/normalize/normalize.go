// Package normalize converts heterogeneous date and number representations
// from uploads and seed files into canonical daily price records.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aurumlab/gsr-backend/internal/models"
)

const dateLayout = "2006-01-02"

var (
	isoDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	allDigitRe = regexp.MustCompile(`^\d+$`)
	calendarRe = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2}|\d{4})$`)
	numJunkRe  = regexp.MustCompile(`[^0-9.\-]`)
)

// Spreadsheet serial day 1 is 1899-12-31.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Layouts tried last, for tokens no structured form recognizes.
var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

// ParseDate converts a date token to canonical "YYYY-MM-DD" form. Recognized
// in priority order: exact ISO dates, all-digit spreadsheet serials,
// slash/dash calendar dates, then a set of generic layouts. It never panics;
// unrecognizable tokens yield a ParseError.
func ParseDate(token string) (string, error) {
	s := strings.TrimSpace(token)
	if s == "" {
		return "", &models.ParseError{Token: token, Field: "date"}
	}

	if isoDateRe.MatchString(s) {
		if _, err := time.Parse(dateLayout, s); err == nil {
			return s, nil
		}
	}

	if allDigitRe.MatchString(s) {
		serial, err := strconv.Atoi(s)
		if err != nil {
			return "", &models.ParseError{Token: token, Field: "date"}
		}
		return serialEpoch.AddDate(0, 0, serial).Format(dateLayout), nil
	}

	if m := calendarRe.FindStringSubmatch(s); m != nil {
		if iso, ok := calendarDate(m); ok {
			return iso, nil
		}
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(dateLayout), nil
		}
	}

	return "", &models.ParseError{Token: token, Field: "date"}
}

// calendarDate resolves a matched a/b/y token. The first component reads as
// the month unless it exceeds 12, in which case the components swap so the
// larger is the day. Two-digit years below 70 land in the 2000s.
func calendarDate(m []string) (string, bool) {
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		if year < 70 {
			year += 2000
		} else {
			year += 1900
		}
	}

	month, day := a, b
	if a > 12 {
		month, day = b, a
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		// time.Date normalized an overflow like Feb 30
		return "", false
	}
	return t.Format(dateLayout), true
}

// ParseNumber strips currency symbols, commas and other junk from a numeric
// token and parses what remains. Non-finite results yield a ParseError.
func ParseNumber(token string) (float64, error) {
	s := numJunkRe.ReplaceAllString(strings.TrimSpace(token), "")
	if s == "" {
		return 0, &models.ParseError{Token: token}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &models.ParseError{Token: token}
	}
	return f, nil
}

// ParseRow builds a PriceRecord from raw tokens. The whole row is rejected
// when the date or either price fails to parse, or a price is not strictly
// positive. No partial records.
func ParseRow(dateTok, goldTok, silverTok string) (models.PriceRecord, error) {
	date, err := ParseDate(dateTok)
	if err != nil {
		return models.PriceRecord{}, err
	}
	gold, err := ParseNumber(goldTok)
	if err != nil {
		return models.PriceRecord{}, &models.ParseError{Token: goldTok, Field: "gold"}
	}
	silver, err := ParseNumber(silverTok)
	if err != nil {
		return models.PriceRecord{}, &models.ParseError{Token: silverTok, Field: "silver"}
	}
	if gold <= 0 {
		return models.PriceRecord{}, &models.ParseError{Token: goldTok, Field: "gold"}
	}
	if silver <= 0 {
		return models.PriceRecord{}, &models.ParseError{Token: silverTok, Field: "silver"}
	}
	return models.PriceRecord{Date: date, Gold: gold, Silver: silver}, nil
}
