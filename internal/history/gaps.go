package history

import "time"

const dateLayout = "2006-01-02"

// MaxChunkDays keeps each range request under typical provider limits on
// how wide a timeframe window may be (365 days).
const MaxChunkDays = 360

// Gap is a maximal run of consecutive calendar days missing from the series.
type Gap struct {
	Start string
	End   string
	Days  int
}

// EnumerateDays lists every calendar day from start to end inclusive.
// An unparseable or inverted range yields nil.
func EnumerateDays(start, end string) []string {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil || e.Before(s) {
		return nil
	}

	days := make([]string, 0, int(e.Sub(s).Hours()/24)+1)
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dateLayout))
	}
	return days
}

// MissingRanges scans the wanted days in order and groups consecutive
// absent ones into maximal gaps.
func MissingRanges(days []string, have map[string]struct{}) []Gap {
	var gaps []Gap
	for i := 0; i < len(days); {
		if _, ok := have[days[i]]; ok {
			i++
			continue
		}
		j := i
		for j+1 < len(days) {
			if _, ok := have[days[j+1]]; ok {
				break
			}
			j++
		}
		gaps = append(gaps, Gap{Start: days[i], End: days[j], Days: j - i + 1})
		i = j + 1
	}
	return gaps
}

// Chunks splits a gap into sequential sub-ranges of at most MaxChunkDays
// days, oldest first.
func Chunks(g Gap) []Gap {
	if g.Days <= MaxChunkDays {
		return []Gap{g}
	}

	days := EnumerateDays(g.Start, g.End)
	var chunks []Gap
	for i := 0; i < len(days); i += MaxChunkDays {
		j := i + MaxChunkDays - 1
		if j >= len(days) {
			j = len(days) - 1
		}
		chunks = append(chunks, Gap{Start: days[i], End: days[j], Days: j - i + 1})
	}
	return chunks
}

// LatestCompleteDay returns the most recent UTC day whose close is final,
// i.e. yesterday from the given instant.
func LatestCompleteDay(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(dateLayout)
}
