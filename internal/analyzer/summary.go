package analyzer

// Stats counts what the analyzers found.
type Stats struct {
	Total      int
	Stale      int
	Dead       int
	Duplicates int
}

func ComputeStats(reports []*Report) Stats {
	stats := Stats{Total: len(reports)}
	for _, r := range reports {
		if r.Stale {
			stats.Stale++
		}
		if r.Dead {
			stats.Dead++
		}
		if r.Duplicate {
			stats.Duplicates++
		}
	}
	return stats
}
