package analyzer

import (
	"testing"
	"time"

	"github.com/lotas/laterread/internal/types"
)

func TestAnalyzeStale(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) int64 { return now.Add(-d).UnixMilli() }
	reports := NewReports([]types.SavedItem{
		{URL: "https://fresh.com", Timestamp: at(time.Hour)},
		{URL: "https://stale.com", Timestamp: at(10 * 24 * time.Hour)},
		{URL: "https://very-stale.com", Timestamp: at(30 * 24 * time.Hour)},
	})

	AnalyzeStale(reports, now, 7)

	if reports[0].Stale {
		t.Error("fresh page should not be stale")
	}
	if !reports[1].Stale {
		t.Error("10-day page should be stale")
	}
	if reports[1].AgeDays != 10 {
		t.Errorf("expected 10 days, got %d", reports[1].AgeDays)
	}
	if !reports[2].Stale {
		t.Error("30-day page should be stale")
	}
}
