package schema

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/storequery/dataset"
)

func TestCanonicalMetric(t *testing.T) {
	cases := map[string]dataset.MetricName{
		"Net Sales":                 dataset.NetSales,
		"  net   sales ":            dataset.NetSales,
		"Revenue":                   dataset.NetSales,
		"Gross Sales":               dataset.GrossSales,
		"COGS (food +packaging)":    dataset.COGS,
		"Aggregator commission":     dataset.AggregatorCommission,
		"Marketing & advertisement": dataset.Marketing,
		"store Labor Cost":          dataset.LaborCost,
		"Labour":                    dataset.LaborCost,
		"Utility Cost":              dataset.UtilityCost,
		"Other opex expenses":       dataset.OtherOpex,
		"Rent":                      dataset.Rent,
		"CAM charges":               dataset.CAM,
		"Gross margin":              dataset.GrossMargin,
		"EBITDA":                    dataset.EBITDA,
		"Operating Cost":            dataset.OperatingCost,
		"Total Operating Expenses":  dataset.OperatingCost,
		"GROSS REVENUE":             dataset.GrossSales,
		"Gross Margin %":            dataset.GrossMarginPct,
		"Current liabilities":       "",
		"Delivery charges":          "",
	}
	for label, want := range cases {
		got, ok := CanonicalMetric(label)
		if want == "" {
			assert.False(t, ok, label)
			continue
		}
		assert.True(t, ok, label)
		assert.Equal(t, want, got, label)
	}
}

func TestMetricLabelKeepsCustom(t *testing.T) {
	assert.Equal(t, dataset.MetricName("Delivery Charges"), MetricLabel("delivery   charges"))
	assert.Equal(t, dataset.MetricName("Delivery Charges"), MetricLabel("Delivery Charges"))
	assert.Equal(t, dataset.COGS, MetricLabel("cogs"))
}

func TestCanonicalNamesAreFixedPoints(t *testing.T) {
	for _, m := range append(dataset.BaseMetrics(), dataset.DerivedMetrics()...) {
		assert.Equal(t, m, MetricLabel(string(m)))
	}
}

func TestPercentAndTotalLabels(t *testing.T) {
	assert.True(t, IsPercentLabel("Gross margin %"))
	assert.True(t, IsPercentLabel("EBITDA pct"))
	assert.False(t, IsPercentLabel("EBITDA"))
	assert.True(t, IsTotalLabel(" TOTAL "))
	assert.True(t, IsTotalLabel("Grand Total"))
	assert.False(t, IsTotalLabel("Total Revenue"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "marketing & advertisement", Fold("Marketing & Advertisement!"))
	assert.Equal(t, "gross margin %", Fold("Gross-Margin (%)"))
}

func TestParseAmount(t *testing.T) {
	good := map[string]string{
		"1,234.50":       "1234.5",
		"₹ 6,565,784.70": "6565784.7",
		"$12":            "12",
		"(123)":          "-123",
		"-45.5":          "-45.5",
		"Rs. 1,000":      "1000",
		"1 000":          "1000",
	}
	for in, want := range good {
		d, ok, err := ParseAmount(in)
		require.NoError(t, err, in)
		require.True(t, ok, in)
		assert.True(t, decimal.RequireFromString(want).Equal(d), "%s → %s", in, d)
	}

	for _, blank := range []string{"", " ", "-", "NaN", "#N/A", "null"} {
		_, ok, err := ParseAmount(blank)
		assert.NoError(t, err, blank)
		assert.False(t, ok, blank)
	}

	_, ok, err := ParseAmount("twelve")
	assert.Error(t, err)
	assert.False(t, ok)
}
