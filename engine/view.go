package engine

import (
	"github.com/shopspring/decimal"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// RECORD VIEW: Zero-Copy Data Access Interface
// ============================================================================
// The engine never owns the loaded table. It reads through this interface.
//
// Implementations:
//   PivotView  : one row per (month, store) over a dataset.Table
//   SubView    : filtered subset (indices into parent, zero-copy)
//   DerivedView: wraps any view, computes derived metrics on read
//   ConcatView : virtual concatenation of two views
// ============================================================================

// RecordView provides indexed access to (month, store) rows.
// The engine calls Dimension/Measure in tight loops: keep implementations fast.
type RecordView interface {
	Len() int
	Dimension(index int, key string) string
	Month(index int) dataset.Month
	// Measure returns the metric value of row index; false when the row
	// carries no such metric.
	Measure(index int, key string) (decimal.Decimal, bool)
	DimensionKeys() []string
	MeasureKeys() []string
}

// ============================================================================
// PIVOT VIEW: wraps a dataset.Table
// ============================================================================

// PivotView exposes a table pivoted to one row per (month, store).
type PivotView struct {
	rows    []dataset.PivotRow
	mesKeys []string
}

// NewTableView creates a RecordView over t, ordered by month then store.
func NewTableView(t *dataset.Table) RecordView {
	v := &PivotView{rows: t.Pivot()}
	for _, m := range t.Metrics() {
		v.mesKeys = append(v.mesKeys, string(m))
	}
	return v
}

func (v *PivotView) Len() int { return len(v.rows) }

func (v *PivotView) Dimension(i int, key string) string {
	if i < 0 || i >= len(v.rows) {
		return ""
	}
	if key == DimStore {
		return string(v.rows[i].Store)
	}
	return monthDimension(v.rows[i].Month, key)
}

func (v *PivotView) Month(i int) dataset.Month {
	if i < 0 || i >= len(v.rows) {
		return dataset.Month{}
	}
	return v.rows[i].Month
}

func (v *PivotView) Measure(i int, key string) (decimal.Decimal, bool) {
	if i < 0 || i >= len(v.rows) {
		return decimal.Zero, false
	}
	d, ok := v.rows[i].Values[dataset.MetricName(key)]
	return d, ok
}

func (v *PivotView) DimensionKeys() []string { return []string{DimMonth, DimStore} }
func (v *PivotView) MeasureKeys() []string   { return v.mesKeys }

// monthDimension resolves month-derived dimensions. "quarter" and
// "fiscal_year" are virtual: "Q3 FY24", "FY24".
func monthDimension(m dataset.Month, key string) string {
	switch key {
	case DimMonth:
		return m.Token()
	case DimQuarter:
		return dataset.QuarterPeriod(m.FiscalYear(), m.FiscalQuarter()).Token()
	case DimFiscalYear:
		return dataset.FiscalYearPeriod(m.FiscalYear()).Token()
	}
	return ""
}

// ============================================================================
// SUB VIEW: filtered subset (zero-copy)
// ============================================================================

// SubView is a filtered subset of a parent RecordView.
// Holds indices into the parent: no data copy.
type SubView struct {
	parent  RecordView
	indices []int
}

func newSubView(parent RecordView, indices []int) RecordView {
	return &SubView{parent: parent, indices: indices}
}

func (v *SubView) Len() int { return len(v.indices) }

func (v *SubView) Dimension(i int, key string) string {
	if i < 0 || i >= len(v.indices) {
		return ""
	}
	return v.parent.Dimension(v.indices[i], key)
}

func (v *SubView) Month(i int) dataset.Month {
	if i < 0 || i >= len(v.indices) {
		return dataset.Month{}
	}
	return v.parent.Month(v.indices[i])
}

func (v *SubView) Measure(i int, key string) (decimal.Decimal, bool) {
	if i < 0 || i >= len(v.indices) {
		return decimal.Zero, false
	}
	return v.parent.Measure(v.indices[i], key)
}

func (v *SubView) DimensionKeys() []string { return v.parent.DimensionKeys() }
func (v *SubView) MeasureKeys() []string   { return v.parent.MeasureKeys() }

// ============================================================================
// CONCAT VIEW: virtual concatenation of two views
// ============================================================================

// ConcatView logically concatenates two RecordViews.
// Used for ratio period derivation without data copy.
type ConcatView struct {
	a, b RecordView
}

func newConcatView(a, b RecordView) RecordView {
	return &ConcatView{a: a, b: b}
}

func (v *ConcatView) Len() int { return v.a.Len() + v.b.Len() }

func (v *ConcatView) Dimension(i int, key string) string {
	if i < v.a.Len() {
		return v.a.Dimension(i, key)
	}
	return v.b.Dimension(i-v.a.Len(), key)
}

func (v *ConcatView) Month(i int) dataset.Month {
	if i < v.a.Len() {
		return v.a.Month(i)
	}
	return v.b.Month(i - v.a.Len())
}

func (v *ConcatView) Measure(i int, key string) (decimal.Decimal, bool) {
	if i < v.a.Len() {
		return v.a.Measure(i, key)
	}
	return v.b.Measure(i-v.a.Len(), key)
}

func (v *ConcatView) DimensionKeys() []string { return v.a.DimensionKeys() }
func (v *ConcatView) MeasureKeys() []string   { return v.a.MeasureKeys() }
