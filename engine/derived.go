package engine

import (
	"github.com/shopspring/decimal"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// DERIVED METRICS: computed on read, never stored
// ============================================================================
//   Gross Margin   = Net Sales - COGS
//   Gross Margin % = 100 * Gross Margin / Gross Sales
//   Operating Cost = Aggregator Commission + Marketing + Labor Cost +
//                    Utility Cost + Other Opex + Rent + CAM
//   EBITDA         = Net Sales - (COGS + Operating Cost)
//
// A missing input counts as zero. A derived value exists for a row when at
// least one of its inputs exists. Gross Margin % is null when Gross Sales is
// zero or missing.
// ============================================================================

var hundred = decimal.NewFromInt(100)

// Lookup returns a base metric value for one row.
type Lookup func(dataset.MetricName) (decimal.Decimal, bool)

// Derive computes a derived metric from base values. The second result is
// false when the metric has no value for this row.
func Derive(metric dataset.MetricName, lookup Lookup) (decimal.Decimal, bool) {
	switch metric {
	case dataset.GrossMargin:
		return sumOf(lookup, []dataset.MetricName{dataset.NetSales}, []dataset.MetricName{dataset.COGS})

	case dataset.GrossMarginPct:
		gs, ok := lookup(dataset.GrossSales)
		if !ok || gs.IsZero() {
			return decimal.Zero, false
		}
		gm, ok := Derive(dataset.GrossMargin, lookup)
		if !ok {
			return decimal.Zero, false
		}
		return gm.Mul(hundred).Div(gs), true

	case dataset.OperatingCost:
		return sumOf(lookup, dataset.OperatingCostInputs(), nil)

	case dataset.EBITDA:
		costs := append([]dataset.MetricName{dataset.COGS}, dataset.OperatingCostInputs()...)
		return sumOf(lookup, []dataset.MetricName{dataset.NetSales}, costs)
	}
	return lookup(metric)
}

// sumOf adds plus and subtracts minus, treating missing values as zero.
func sumOf(lookup Lookup, plus, minus []dataset.MetricName) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, m := range plus {
		if v, ok := lookup(m); ok {
			total = total.Add(v)
			found = true
		}
	}
	for _, m := range minus {
		if v, ok := lookup(m); ok {
			total = total.Sub(v)
			found = true
		}
	}
	return total, found
}

// ============================================================================
// DERIVED VIEW: on-read computation (zero-copy)
// ============================================================================

// DerivedView wraps a RecordView and answers derived metrics on read.
// Stored metrics pass through unchanged.
type DerivedView struct {
	parent  RecordView
	mesKeys []string
}

// NewDerivedView wraps parent. Wrapping an already derived view is a no-op.
func NewDerivedView(parent RecordView) RecordView {
	if _, ok := parent.(*DerivedView); ok {
		return parent
	}
	keys := append([]string(nil), parent.MeasureKeys()...)
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for _, d := range dataset.DerivedMetrics() {
		if !seen[string(d)] {
			keys = append(keys, string(d))
		}
	}
	return &DerivedView{parent: parent, mesKeys: keys}
}

func (v *DerivedView) Len() int                           { return v.parent.Len() }
func (v *DerivedView) Dimension(i int, key string) string { return v.parent.Dimension(i, key) }
func (v *DerivedView) Month(i int) dataset.Month          { return v.parent.Month(i) }
func (v *DerivedView) DimensionKeys() []string            { return v.parent.DimensionKeys() }
func (v *DerivedView) MeasureKeys() []string              { return v.mesKeys }

func (v *DerivedView) Measure(i int, key string) (decimal.Decimal, bool) {
	metric := dataset.MetricName(key)
	if !dataset.IsDerived(metric) {
		return v.parent.Measure(i, key)
	}
	return Derive(metric, func(m dataset.MetricName) (decimal.Decimal, bool) {
		return v.parent.Measure(i, string(m))
	})
}

func metricName(key string) dataset.MetricName { return dataset.MetricName(key) }

func isPercentMeasure(key string) bool { return dataset.IsPercent(dataset.MetricName(key)) }
