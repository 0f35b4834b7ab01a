package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// TEXT BUILDER: Produces TextData for single-value answers
// ============================================================================

// BuildText produces text response data from filtered rows.
func BuildText(spec QuerySpec, groups []Group, view RecordView, measure string, unit string) *TextData {
	if view.Len() == 0 {
		return &TextData{
			Value:  "0",
			Unit:   unit,
			Period: DerivePeriod(view),
		}
	}

	if spec.Aggregation == "growth" {
		return BuildGrowthText(view, measure, unit)
	}

	all := Group{View: view}
	aggregateGroup(&all, measure, spec.Aggregation)

	var formatted string
	if spec.Aggregation == "count" {
		formatted = FormatInt(int(all.Value.IntPart()))
	} else {
		formatted = FormatMetric(measure, all.Value, unit)
	}

	return &TextData{
		Value:    formatted,
		RawValue: all.Value,
		Unit:     unit,
		Period:   DerivePeriod(view),
		Count:    view.Len(),
	}
}

// ============================================================================
// GROWTH BUILDER
// ============================================================================

var halfPercent = decimal.NewFromFloat(0.5)

// BuildGrowthText compares the earliest and the latest month in the view.
func BuildGrowthText(view RecordView, measure string, unit string) *TextData {
	if view.Len() == 0 {
		return &TextData{
			Value:  "No data",
			Unit:   unit,
			Period: "No data",
		}
	}

	months := groupBySingle(view, DimMonth)
	for i := range months {
		aggregateGroup(&months[i], measure, "sum")
	}
	SortGroups(months, "chronological")

	if len(months) < 2 {
		total := months[0].Value
		period := DerivePeriod(view)
		return &TextData{
			Value:    FormatMetric(measure, total, unit),
			RawValue: total,
			Unit:     unit,
			Period:   period,
			Count:    view.Len(),
			Growth: &GrowthData{
				EarliestValue:  total,
				LatestValue:    total,
				EarliestPeriod: period,
				LatestPeriod:   period,
				Direction:      "insufficient data",
			},
		}
	}

	earliest := months[0]
	latest := months[len(months)-1]

	changeAmount := latest.Value.Sub(earliest.Value)
	changePercent := decimal.Zero
	if !earliest.Value.IsZero() {
		changePercent = changeAmount.Mul(hundred).Div(earliest.Value.Abs())
	}

	direction := "unchanged"
	if changePercent.GreaterThan(halfPercent) {
		direction = "increased"
	} else if changePercent.LessThan(halfPercent.Neg()) {
		direction = "decreased"
	}

	var displayValue string
	switch direction {
	case "increased":
		displayValue = "↑ " + FormatPercent(changePercent.Abs())
	case "decreased":
		displayValue = "↓ " + FormatPercent(changePercent.Abs())
	default:
		displayValue = "→ No change"
	}

	return &TextData{
		Value:    displayValue,
		RawValue: changePercent,
		Unit:     unit,
		Period:   fmt.Sprintf("%s – %s", earliest.Key, latest.Key),
		Count:    view.Len(),
		Growth: &GrowthData{
			EarliestValue:  earliest.Value,
			LatestValue:    latest.Value,
			EarliestPeriod: earliest.Key,
			LatestPeriod:   latest.Key,
			ChangeAmount:   changeAmount,
			ChangePercent:  changePercent,
			Direction:      direction,
		},
	}
}

// ============================================================================
// PERIOD HELPER
// ============================================================================

// DerivePeriod builds a human-readable period string from a view:
// "Dec 24" or "Apr 24 – Dec 24".
func DerivePeriod(view RecordView) string {
	if view.Len() == 0 {
		return "No data"
	}

	var first, last dataset.Month
	for i := 0; i < view.Len(); i++ {
		m := view.Month(i)
		if m.IsZero() {
			continue
		}
		if first.IsZero() || m.Before(first) {
			first = m
		}
		if last.IsZero() || last.Before(m) {
			last = m
		}
	}

	if first.IsZero() {
		return "All time"
	}
	if first == last {
		return first.Token()
	}
	return fmt.Sprintf("%s – %s", first.Token(), last.Token())
}
