// Package analyzer inspects the saved list for pages that are gone, saved
// twice, or have been waiting a long time.
package analyzer

import "github.com/lotas/laterread/internal/types"

// Report is what was found about one saved item.
type Report struct {
	Item        types.SavedItem
	Dead        bool
	DeadReason  string
	Duplicate   bool
	DuplicateOf []string // ids of the other copies
	Stale       bool
	AgeDays     int
}

// NewReports returns one empty report per item, in order.
func NewReports(items []types.SavedItem) []*Report {
	out := make([]*Report, len(items))
	for i, it := range items {
		out[i] = &Report{Item: it}
	}
	return out
}
