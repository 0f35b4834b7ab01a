package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/storequery/dataset"
)

func newTestExtractor(opts ...Option) *Extractor {
	metrics := append([]dataset.MetricName{
		dataset.NetSales, dataset.GrossSales, dataset.COGS, dataset.Marketing,
		dataset.Rent, "Delivery Charges",
	}, dataset.DerivedMetrics()...)
	return New(metrics, []dataset.StoreID{"EGL", "ITPL", "ANN", "HSR"}, opts...)
}

func TestMetricSynonyms(t *testing.T) {
	e := newTestExtractor()
	cases := map[string]dataset.MetricName{
		"Which store had the highest revenue?":    dataset.NetSales,
		"Total turnover for EGL":                  dataset.NetSales,
		"gross revenue for EGL in Dec 24":         dataset.GrossSales,
		"Gross margin % for EGL":                  dataset.GrossMarginPct,
		"gross margin% for EGL":                   dataset.GrossMarginPct,
		"Gross margin for EGL":                    dataset.GrossMargin,
		"Marketing as % of sales":                 dataset.Marketing,
		"profit of ITPL":                          dataset.EBITDA,
		"MoM change in Marketing & advertisement": dataset.Marketing,
		"trend of delivery charges":               "Delivery Charges",
		"how are things going?":                   "",
	}
	for q, want := range cases {
		assert.Equal(t, want, e.Extract(q).Metric, q)
	}
}

func TestSynonymOrderIsTheContract(t *testing.T) {
	e := newTestExtractor(WithSynonyms([]Synonym{
		{Phrase: "revenue", Metric: dataset.NetSales},
		{Phrase: "gross revenue", Metric: dataset.GrossSales},
	}))
	// A generic phrase listed first shadows the specific one.
	assert.Equal(t, dataset.NetSales, e.Extract("gross revenue in FY24").Metric)
}

func TestStoreLeftmostWins(t *testing.T) {
	e := newTestExtractor()

	ent := e.Extract("Compare EGL and ITPL net sales")
	assert.Equal(t, dataset.StoreID("EGL"), ent.Store)
	assert.Equal(t, []dataset.StoreID{"EGL", "ITPL"}, ent.StoreCandidates)
	assert.True(t, ent.AmbiguousStore())

	ent = e.Extract("ITPL vs EGL net sales")
	assert.Equal(t, dataset.StoreID("ITPL"), ent.Store)

	// Same question, same answer.
	for i := 0; i < 5; i++ {
		assert.Equal(t, dataset.StoreID("ITPL"), e.Extract("ITPL vs EGL net sales").Store)
	}
}

func TestStoreWordBoundary(t *testing.T) {
	e := newTestExtractor()
	ent := e.Extract("annual net sales")
	assert.Empty(t, ent.Store)
	assert.Empty(t, ent.StoreCandidates)

	assert.Equal(t, dataset.StoreID("ANN"), e.Extract("EBITDA for ANN store").Store)
	assert.Equal(t, dataset.StoreID("HSR"), e.Extract("rent, hsr.").Store)
}

func TestFindPeriod(t *testing.T) {
	cases := map[string]string{
		"net sales in q3 fy24":        "Q3 FY24",
		"net sales in Q3 FY2024":      "Q3 FY24",
		"FY24 Q3 net sales":           "Q3 FY24",
		"ebitda for fy24":             "FY24",
		"ebitda for FY 2024":          "FY24",
		"ebitda for FY2024-25":        "FY24",
		"top stores in Dec 24":        "Dec 24",
		"top stores in December 2024": "Dec 24",
		"top stores in 24-Dec":        "Dec 24",
		"marketing spend in sept'24":  "Sep 24",
		"q1 fy25 vs may 24":           "Q1 FY25",
	}
	for q, want := range cases {
		p, ok := FindPeriod(Normalize(q))
		require.True(t, ok, q)
		assert.Equal(t, want, p.Token(), q)
	}

	_, ok := FindPeriod(Normalize("top 10 stores by net sales"))
	assert.False(t, ok)
}

func TestExtractedPeriodRoundTrip(t *testing.T) {
	e := newTestExtractor()
	ent := e.Extract("COGS for EGL in Q3 FY24")
	require.NotNil(t, ent.Period)
	assert.Equal(t, []dataset.Month{
		{Year: 2024, Month: time.October},
		{Year: 2024, Month: time.November},
		{Year: 2024, Month: time.December},
	}, ent.Period.Months())

	back, err := dataset.ParsePeriodToken(ent.Period.Token())
	require.NoError(t, err)
	assert.Equal(t, ent.Period.Months(), back.Months())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "gross margin % for egl", Normalize("Gross-Margin% for EGL?"))
	assert.Equal(t, "marketing & advertisement", Normalize("Marketing&Advertisement"))
}
