package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ============================================================================
// TABLE BUILDER: Produces a ResultTable from QuerySpec + Groups
// ============================================================================
// Column discovery uses view.DimensionKeys(); cells stay decimal until render.
// ============================================================================

// BuildTable produces the result table for a plan and a summary line for it.
func BuildTable(spec QuerySpec, groups []Group, view RecordView, measure string, unit string) (*ResultTable, *Summary) {
	if spec.Aggregation == "list" {
		return buildListTable(view, measure, unit)
	}
	return buildAggregatedTable(spec, groups, measure, unit)
}

// ============================================================================
// LIST TABLE: Row per (month, store)
// ============================================================================

func buildListTable(view RecordView, measure string, unit string) (*ResultTable, *Summary) {
	dimKeys := view.DimensionKeys()
	t := &ResultTable{
		ValueColumns: []Column{measureColumn(measure, measure)},
	}
	for _, key := range dimKeys {
		t.KeyColumns = append(t.KeyColumns, dimensionColumn(key))
	}

	total := decimal.Zero
	for i := 0; i < view.Len(); i++ {
		row := ResultRow{Keys: make([]string, 0, len(dimKeys))}
		for _, key := range dimKeys {
			row.Keys = append(row.Keys, view.Dimension(i, key))
		}
		v, ok := view.Measure(i, measure)
		row.Values = []decimal.NullDecimal{{Decimal: v, Valid: ok}}
		if ok {
			total = total.Add(v)
		}
		t.Rows = append(t.Rows, row)
	}

	summary := &Summary{
		Label: fmt.Sprintf("Total (%d rows)", view.Len()),
		Values: map[string]string{
			measure: FormatMetric(measure, total, unit),
		},
	}
	if isPercentMeasure(measure) {
		pct, _ := PercentOfSums(view, metricName(measure))
		summary.Values[measure] = FormatPercent(pct)
	}
	return t, summary
}

// ============================================================================
// AGGREGATED TABLE: Summary rows
// ============================================================================

func buildAggregatedTable(spec QuerySpec, groups []Group, measure string, unit string) (*ResultTable, *Summary) {
	t := &ResultTable{
		ValueColumns: []Column{
			measureColumn("value", LabelForAggregation(spec.Aggregation)+" of "+measure),
			{Key: "count", Label: "Count", Type: "number", Align: "center"},
		},
	}
	if isPercentMeasure(measure) {
		t.ValueColumns[0].Type = "percent"
	}

	switch {
	case len(spec.GroupBy) >= 2 && hasSubGroups(groups):
		t.KeyColumns = []Column{dimensionColumn(spec.GroupBy[0]), dimensionColumn(spec.GroupBy[1])}
	case len(spec.GroupBy) >= 1:
		t.KeyColumns = []Column{dimensionColumn(spec.GroupBy[0])}
	default:
		t.KeyColumns = []Column{{Key: "group", Label: "Group", Type: "text", Align: "left"}}
	}

	totalValue := decimal.Zero
	totalCount := 0
	for _, g := range groups {
		if len(t.KeyColumns) == 2 {
			for _, sg := range g.SubGroups {
				t.Rows = append(t.Rows, groupRow([]string{g.Label, sg.Label}, sg))
			}
		} else {
			t.Rows = append(t.Rows, groupRow([]string{g.Label}, g))
		}
		totalValue = totalValue.Add(g.Value)
		totalCount += g.Count
	}

	summary := &Summary{
		Label: "Total",
		Values: map[string]string{
			"count": fmt.Sprintf("%d", totalCount),
		},
	}
	if !isPercentMeasure(measure) && (spec.Aggregation == "sum" || spec.Aggregation == "count") {
		summary.Values["value"] = FormatAmount(totalValue, unit)
	}
	return t, summary
}

func groupRow(keys []string, g Group) ResultRow {
	return ResultRow{
		Keys: keys,
		Values: []decimal.NullDecimal{
			{Decimal: g.Value, Valid: true},
			{Decimal: decimal.NewFromInt(int64(g.Count)), Valid: true},
		},
	}
}

func dimensionColumn(key string) Column {
	return Column{Key: key, Label: LabelForDimension(key), Type: "text", Align: "left"}
}

func measureColumn(key, label string) Column {
	c := Column{Key: key, Label: label, Type: "currency", Align: "right"}
	if isPercentMeasure(label) {
		c.Type = "percent"
	}
	return c
}
