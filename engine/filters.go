package engine

import (
	"strings"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// FILTERS: Dimension-Based Filtering via RecordView
// ============================================================================
// Single-pass filter: checks ALL constraints per row in one loop.
// Returns a SubView (index list into parent): zero data copy.
// ============================================================================

// ApplyFilters returns a view of rows matching all dimension filters.
// Dimensions are AND-combined; values within a dimension are OR-combined.
// Empty filter = no restriction (returns original view).
func ApplyFilters(view RecordView, filters Filters) RecordView {
	if filters.IsEmpty() {
		return view
	}

	sets := make(map[string]map[string]bool)
	for dim, allowed := range filters.Dimensions {
		if len(allowed) > 0 {
			sets[dim] = toLowerSet(allowed)
		}
	}

	return filterView(view, func(i int) bool {
		for dim, set := range sets {
			if !set[strings.ToLower(view.Dimension(i, dim))] {
				return false
			}
		}
		return true
	})
}

// FilterScope restricts a view to one store and a time period. An empty
// store or nil period leaves that side unrestricted.
func FilterScope(view RecordView, store dataset.StoreID, period *dataset.TimePeriod) RecordView {
	if store == "" && period == nil {
		return view
	}
	return filterView(view, func(i int) bool {
		if store != "" && view.Dimension(i, DimStore) != string(store) {
			return false
		}
		return period == nil || period.Contains(view.Month(i))
	})
}

func filterView(view RecordView, keep func(i int) bool) RecordView {
	n := view.Len()
	indices := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if keep(i) {
			indices = append(indices, i)
		}
	}
	return newSubView(view, indices)
}

// toLowerSet converts a string slice to a lowercase lookup set.
func toLowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(strings.TrimSpace(item))] = true
	}
	return set
}
