package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// AGGREGATORS: Grouping, Aggregation, and Sorting via RecordView
// ============================================================================
// All functions operate on RecordView: zero-copy access to the table.
// Grouping produces SubViews (index lists into parent view).
// A row that does not carry the measure is skipped, never read as zero.
// ============================================================================

// GroupAndAggregate is the main entry point for the aggregation pipeline.
// Pipeline: group → aggregate → sort → limit.
func GroupAndAggregate(
	view RecordView,
	groupBy []string,
	measure string,
	aggregation string,
	sortBy string,
	limit int,
) []Group {
	if view.Len() == 0 {
		return nil
	}

	// 1. Group
	var groups []Group
	if len(groupBy) == 0 {
		groups = []Group{{
			Key:   "all",
			Label: "Total",
			View:  view,
		}}
	} else if len(groupBy) == 1 {
		groups = groupBySingle(view, groupBy[0])
	} else {
		groups = groupByMulti(view, groupBy)
	}

	// 2. Aggregate
	for i := range groups {
		aggregateGroup(&groups[i], measure, aggregation)
		for j := range groups[i].SubGroups {
			aggregateGroup(&groups[i].SubGroups[j], measure, aggregation)
		}
	}

	// 3. Sort
	SortGroups(groups, sortBy)

	// 4. Limit
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	return groups
}

// ============================================================================
// GROUPING
// ============================================================================

func groupBySingle(view RecordView, dimension string) []Group {
	grouped := make(map[string][]int)
	order := make([]string, 0)

	for i := 0; i < view.Len(); i++ {
		key := view.Dimension(i, dimension)
		if _, exists := grouped[key]; !exists {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], i)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, Group{
			Key:   key,
			Label: key,
			View:  newSubView(view, grouped[key]),
		})
	}
	return groups
}

func groupByMulti(view RecordView, dimensions []string) []Group {
	primaryGroups := groupBySingle(view, dimensions[0])
	for i := range primaryGroups {
		primaryGroups[i].SubGroups = groupBySingle(primaryGroups[i].View, dimensions[1])
	}
	return primaryGroups
}

// ============================================================================
// AGGREGATION
// ============================================================================

func aggregateGroup(group *Group, measure string, aggregation string) {
	group.Count = group.View.Len()
	if group.Count == 0 {
		return
	}

	// A percent metric never sums; it is the ratio of its summed inputs.
	if dataset.IsPercent(dataset.MetricName(measure)) {
		switch aggregation {
		case "sum", "avg", "list", "growth", "":
			group.Value, _ = PercentOfSums(group.View, dataset.MetricName(measure))
			return
		}
	}

	switch aggregation {
	case "sum", "list":
		group.Value = SumMeasure(group.View, measure)
	case "count":
		group.Value = decimal.NewFromInt(int64(CountMeasure(group.View, measure)))
	case "avg":
		group.Value = AvgMeasure(group.View, measure)
	case "max":
		group.Value = MaxMeasure(group.View, measure)
	case "min":
		group.Value = MinMeasure(group.View, measure)
	case "none":
		// pass through
	default:
		group.Value = SumMeasure(group.View, measure)
	}
}

// SumMeasure sums a named measure across a view.
func SumMeasure(view RecordView, measure string) decimal.Decimal {
	total := decimal.Zero
	for i := 0; i < view.Len(); i++ {
		if v, ok := view.Measure(i, measure); ok {
			total = total.Add(v)
		}
	}
	return total
}

// CountMeasure counts rows that carry the measure.
func CountMeasure(view RecordView, measure string) int {
	n := 0
	for i := 0; i < view.Len(); i++ {
		if _, ok := view.Measure(i, measure); ok {
			n++
		}
	}
	return n
}

// HasMeasure reports whether any row carries the measure.
func HasMeasure(view RecordView, measure string) bool {
	for i := 0; i < view.Len(); i++ {
		if _, ok := view.Measure(i, measure); ok {
			return true
		}
	}
	return false
}

// AvgMeasure averages a named measure over the rows that carry it.
func AvgMeasure(view RecordView, measure string) decimal.Decimal {
	n := CountMeasure(view, measure)
	if n == 0 {
		return decimal.Zero
	}
	return SumMeasure(view, measure).Div(decimal.NewFromInt(int64(n)))
}

// MaxMeasure returns the largest value of a named measure.
func MaxMeasure(view RecordView, measure string) decimal.Decimal {
	m, _ := extremeMeasure(view, measure, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) })
	return m
}

// MinMeasure returns the smallest value of a named measure.
func MinMeasure(view RecordView, measure string) decimal.Decimal {
	m, _ := extremeMeasure(view, measure, func(a, b decimal.Decimal) bool { return a.LessThan(b) })
	return m
}

func extremeMeasure(view RecordView, measure string, better func(a, b decimal.Decimal) bool) (decimal.Decimal, bool) {
	best := decimal.Zero
	found := false
	for i := 0; i < view.Len(); i++ {
		v, ok := view.Measure(i, measure)
		if !ok {
			continue
		}
		if !found || better(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

// PercentOfSums aggregates a percent metric as 100 * ΣGross Margin / ΣGross
// Sales. False when the summed Gross Sales is zero.
func PercentOfSums(view RecordView, metric dataset.MetricName) (decimal.Decimal, bool) {
	if metric != dataset.GrossMarginPct {
		return AvgMeasure(view, string(metric)), HasMeasure(view, string(metric))
	}
	dv := NewDerivedView(view)
	gs := SumMeasure(dv, string(dataset.GrossSales))
	if gs.IsZero() {
		return decimal.Zero, false
	}
	gm := decimal.Zero
	for i := 0; i < dv.Len(); i++ {
		if _, ok := dv.Measure(i, string(dataset.GrossSales)); !ok {
			continue
		}
		if v, ok := dv.Measure(i, string(dataset.GrossMargin)); ok {
			gm = gm.Add(v)
		}
	}
	return gm.Mul(hundred).Div(gs), true
}

// ============================================================================
// SORTING
// ============================================================================

// SortGroups sorts aggregate groups by the specified sort mode.
// Sorting is stable, so ties keep grouping order.
func SortGroups(groups []Group, sortBy string) {
	switch sortBy {
	case "value_desc", "amount_desc":
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Value.GreaterThan(groups[j].Value) })
	case "value_asc", "amount_asc":
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Value.LessThan(groups[j].Value) })
	case "chronological", "date_asc":
		sort.SliceStable(groups, func(i, j int) bool { return periodOrder(groups[i].Key) < periodOrder(groups[j].Key) })
	case "reverse_chronological", "date_desc":
		sort.SliceStable(groups, func(i, j int) bool { return periodOrder(groups[i].Key) > periodOrder(groups[j].Key) })
	case "label_asc", "alpha_asc":
		sort.SliceStable(groups, func(i, j int) bool { return strings.ToLower(groups[i].Key) < strings.ToLower(groups[j].Key) })
	case "label_desc":
		sort.SliceStable(groups, func(i, j int) bool { return strings.ToLower(groups[i].Key) > strings.ToLower(groups[j].Key) })
	default:
		// preserve grouping order
	}
}

// periodOrder converts "Dec 24", "Q3 FY24" or "FY24" to a sortable int.
// Anything else sorts first.
func periodOrder(key string) int {
	p, err := dataset.ParsePeriodToken(key)
	if err != nil {
		return -1
	}
	return p.First().Index()
}

// ============================================================================
// FORMATTING UTILITIES
// ============================================================================

// FormatAmount formats an amount with a unit prefix and comma separators,
// rounded to two decimals: "INR 6,565,784.70".
func FormatAmount(amount decimal.Decimal, unit string) string {
	s := amount.Abs().StringFixed(2)
	intPart, decPart := s, "00"
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, decPart = s[:dot], s[dot+1:]
	}

	if len(intPart) > 3 {
		var parts []string
		for len(intPart) > 3 {
			parts = append([]string{intPart[len(intPart)-3:]}, parts...)
			intPart = intPart[:len(intPart)-3]
		}
		parts = append([]string{intPart}, parts...)
		intPart = strings.Join(parts, ",")
	}

	result := intPart + "." + decPart
	if unit != "" {
		result = unit + " " + result
	}
	if amount.Round(2).IsNegative() {
		result = "-" + result
	}
	return result
}

// FormatPercent formats a percentage with one decimal: "62.5%".
func FormatPercent(pct decimal.Decimal) string {
	return pct.StringFixed(1) + "%"
}

// FormatMetric formats a value the way its metric is read.
func FormatMetric(metric string, v decimal.Decimal, unit string) string {
	if dataset.IsPercent(dataset.MetricName(metric)) {
		return FormatPercent(v)
	}
	return FormatAmount(v, unit)
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", FormatInt(n/1000), n%1000)
}

// UniqueValues returns distinct values for a dimension across a view.
func UniqueValues(view RecordView, dimension string) []string {
	seen := make(map[string]bool)
	var result []string
	for i := 0; i < view.Len(); i++ {
		val := view.Dimension(i, dimension)
		if val != "" && !seen[val] {
			seen[val] = true
			result = append(result, val)
		}
	}
	return result
}

// LabelForDimension returns a display label for a dimension key.
func LabelForDimension(dimension string) string {
	switch dimension {
	case DimFiscalYear:
		return "Fiscal Year"
	case "":
		return ""
	}
	return strings.ToUpper(dimension[:1]) + dimension[1:]
}

// LabelForAggregation returns a human-readable label for an aggregation type.
func LabelForAggregation(aggregation string) string {
	switch aggregation {
	case "sum":
		return "Amount"
	case "count":
		return "Count"
	case "avg":
		return "Average"
	case "max":
		return "Maximum"
	case "min":
		return "Minimum"
	default:
		return "Value"
	}
}
