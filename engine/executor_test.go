package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteGroupedTable(t *testing.T) {
	res, err := Execute(QuerySpec{
		Intent:      "table",
		Aggregation: "sum",
		Measure:     "Net Sales",
		GroupBy:     []string{DimStore},
		SortBy:      "value_desc",
		Title:       "Net Sales by store",
	}, NewTableView(salesFixture()))
	require.NoError(t, err)
	require.NoError(t, res.Table.Validate())

	assert.Equal(t, "table", res.Type)
	assert.Equal(t, []string{"Store", "Amount of Net Sales", "Count"}, res.Table.Header())
	assert.Equal(t, [][]string{
		{"ITPL", "13565784.70", "2.00"},
		{"EGL", "9000000.00", "2.00"},
		{"ANN", "3000000.00", "1.00"},
	}, res.Table.Records())
	require.NotNil(t, res.TableData.Summary)
	assert.Equal(t, "INR 25,565,784.70", res.TableData.Summary.Values["value"])
}

func TestExecuteTextWithFilter(t *testing.T) {
	res, err := Execute(QuerySpec{
		Intent:      "text",
		Aggregation: "sum",
		Measure:     "Net Sales",
		Filters:     Filters{Dimensions: map[string][]string{DimMonth: {"dec 24"}}},
		Reply:       "Net Sales for {period} was {total}.",
	}, NewTableView(salesFixture()))
	require.NoError(t, err)

	text, ok := res.Data.(*TextData)
	require.True(t, ok)
	assert.Equal(t, "INR 14,565,784.70", text.Value)
	assert.Equal(t, "Dec 24", text.Period)
	assert.Equal(t, "Net Sales for Dec 24 was INR 14,565,784.70", res.Reply)
	assert.Equal(t, 1, res.Table.Len())
}

func TestExecuteDerivedMeasureAndQuarter(t *testing.T) {
	res, err := Execute(QuerySpec{
		Intent:      "table",
		Aggregation: "sum",
		Measure:     "EBITDA",
		GroupBy:     []string{DimQuarter},
	}, NewTableView(salesFixture()))
	require.NoError(t, err)
	require.Equal(t, 1, res.Table.Len())
	assert.Equal(t, "Q3 FY24", res.Table.Rows[0].Keys[0])
	// No costs in the fixture: EBITDA equals Net Sales minus marketing.
	assert.Equal(t, "24815784.70", res.Table.Rows[0].Values[0].Decimal.StringFixed(2))
}

func TestExecuteUnknownMeasure(t *testing.T) {
	_, err := Execute(QuerySpec{Intent: "text", Measure: "Footfall"}, NewTableView(salesFixture()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingMetric))
}

func TestExecuteEmptyFilter(t *testing.T) {
	res, err := Execute(QuerySpec{
		Intent:  "table",
		Measure: "Net Sales",
		Filters: Filters{Dimensions: map[string][]string{DimStore: {"HSR"}}},
	}, NewTableView(salesFixture()))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Table.Len())
	assert.Equal(t, "No rows match HSR.", res.Reply)
}

func TestExecuteRatio(t *testing.T) {
	res, err := Execute(QuerySpec{
		Intent:         "text",
		Aggregation:    "ratio",
		Measure:        "Net Sales",
		CompareFilters: &Filters{Dimensions: map[string][]string{DimStore: {"ITPL"}}},
		Reply:          "{numerator_label} is {ratio_percent} of {denominator_label}",
	}, NewTableView(salesFixture()))
	require.NoError(t, err)

	text := res.Data.(*TextData)
	require.NotNil(t, text.Ratio)
	assert.Equal(t, "53.1%", text.Value)
	assert.Equal(t, "ITPL is 53.1% of All", res.Reply)
}

func TestExecuteChart(t *testing.T) {
	res, err := Execute(QuerySpec{
		Intent:      "chart",
		Visualize:   "line",
		Aggregation: "sum",
		Measure:     "Net Sales",
		GroupBy:     []string{DimMonth, DimStore},
		SortBy:      "chronological",
	}, NewTableView(salesFixture()))
	require.NoError(t, err)
	require.NotNil(t, res.ChartConfig)
	assert.Equal(t, "line", res.ChartConfig.ChartType)
	require.Len(t, res.ChartConfig.Series, 3)
	assert.Equal(t, "EGL", res.ChartConfig.Series[0].Name)
	assert.Equal(t, 7000000.0, res.ChartConfig.Series[1].Data[0].Value)
	assert.Equal(t, 5, res.Table.Len())
}

func TestNormalizeQuerySpec(t *testing.T) {
	spec := NormalizeQuerySpec(QuerySpec{Intent: "chart", Aggregation: "list"})
	assert.Equal(t, "table", spec.Intent)

	spec = NormalizeQuerySpec(QuerySpec{Intent: "chart", Aggregation: "sum"})
	assert.Equal(t, "text", spec.Intent)

	spec = NormalizeQuerySpec(QuerySpec{Intent: "table", GroupBy: []string{"month", "store", "quarter"}})
	assert.Equal(t, []string{"month", "store"}, spec.GroupBy)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "INR 6,565,784.70", FormatAmount(dec("6565784.7"), "INR"))
	assert.Equal(t, "-INR 1,000.00", FormatAmount(dec("-1000"), "INR"))
	assert.Equal(t, "0.00", FormatAmount(decimal.Zero, ""))
	assert.Equal(t, "999.99", FormatAmount(dec("999.994"), ""))
	assert.Equal(t, "62.5%", FormatPercent(dec("62.5")))
	assert.Equal(t, "1,234,567", FormatInt(1234567))
}

func TestResultTableValidate(t *testing.T) {
	assert.ErrorIs(t, (&ResultTable{}).Validate(), ErrMalformedTable)

	bad := &ResultTable{
		KeyColumns:   []Column{{Key: "store"}},
		ValueColumns: []Column{{Key: "value"}},
		Rows:         []ResultRow{{Keys: []string{"EGL", "extra"}, Values: []decimal.NullDecimal{{}}}},
	}
	assert.ErrorIs(t, bad.Validate(), ErrMalformedTable)

	var nilTable *ResultTable
	assert.ErrorIs(t, nilTable.Validate(), ErrMalformedTable)
}
