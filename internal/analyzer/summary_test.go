package analyzer

import "testing"

func TestComputeStats(t *testing.T) {
	reports := []*Report{
		{Stale: true},
		{Dead: true},
		{Duplicate: true},
		{Stale: true, Dead: true},
		{},
	}

	stats := ComputeStats(reports)
	if stats.Total != 5 {
		t.Errorf("total: got %d, want 5", stats.Total)
	}
	if stats.Stale != 2 {
		t.Errorf("stale: got %d, want 2", stats.Stale)
	}
	if stats.Dead != 2 {
		t.Errorf("dead: got %d, want 2", stats.Dead)
	}
	if stats.Duplicates != 1 {
		t.Errorf("duplicate: got %d, want 1", stats.Duplicates)
	}
}
