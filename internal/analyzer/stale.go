package analyzer

import "time"

// AnalyzeStale records every page's age and marks those saved more than
// thresholdDays ago.
func AnalyzeStale(reports []*Report, now time.Time, thresholdDays int) {
	threshold := time.Duration(thresholdDays) * 24 * time.Hour

	for _, r := range reports {
		age := now.Sub(r.Item.SavedAt())
		r.AgeDays = int(age.Hours() / 24)
		if age > threshold {
			r.Stale = true
		}
	}
}
