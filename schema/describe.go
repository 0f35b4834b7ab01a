package schema

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// DESCRIBE: dataset.Table → Config
// ============================================================================
// Two dimensions (month, store), one measure per stored metric and one
// synthetic measure per derived metric whose inputs are present.
// ============================================================================

const maxSamples = 10

// Describe builds the schema description of a normalized table.
func Describe(t *dataset.Table, name string) Config {
	if name == "" {
		name = "Store Financials"
	}
	months := t.Months()
	stores := t.Stores()

	monthTokens := make([]string, len(months))
	for i, m := range months {
		monthTokens[i] = m.Token()
	}
	storeCodes := make([]string, len(stores))
	for i, s := range stores {
		storeCodes[i] = string(s)
	}

	month := DefaultDimension("month", "Month", limitSamples(monthTokens, maxSamples))
	month.IsTemporal = true
	month.TemporalFormat = "MMM yy"
	month.TemporalOrder = "chronological"
	month.CardinalityHint = cardinalityHint(len(months))
	month.Description = "Calendar month; fiscal year starts in April"

	store := DefaultDimension("store", "Store", collectSamples(storeCodes, maxSamples))
	store.CardinalityHint = cardinalityHint(len(stores))
	store.Description = "Store code"

	cfg := Config{
		Name:           name,
		Version:        "1.0",
		Dimensions:     []DimensionMeta{month, store},
		Measures:       describeMeasures(t),
		RowCount:       t.Len(),
		DiscoveredFrom: "normalizer",
		DiscoveredAt:   time.Now().Format(time.RFC3339),
	}
	if len(months) > 0 {
		cfg.FirstMonth = months[0].Token()
		cfg.LastMonth = months[len(months)-1].Token()
	}
	return cfg
}

func describeMeasures(t *dataset.Table) []MeasureMeta {
	present := map[dataset.MetricName]bool{}
	for _, m := range t.Metrics() {
		present[m] = true
	}

	var measures []MeasureMeta
	for _, m := range dataset.BaseMetrics() {
		if present[m] {
			measures = append(measures, DefaultMeasure(string(m), string(m)))
			delete(present, m)
		}
	}
	var custom []string
	for m := range present {
		custom = append(custom, string(m))
	}
	sort.Strings(custom)
	for _, m := range custom {
		meta := DefaultMeasure(m, m)
		meta.Description = "Custom line item"
		measures = append(measures, meta)
	}

	for _, d := range dataset.DerivedMetrics() {
		if !derivable(t, d) {
			continue
		}
		meta := DefaultMeasure(string(d), string(d))
		meta.IsSynthetic = true
		meta.Formula = dataset.Formula(d)
		meta.Description = "Derived: " + meta.Formula
		if dataset.IsPercent(d) {
			meta.Unit = "percent"
			meta.IsCurrency = false
			meta.Format = "0.0%"
			meta.Aggregations = []string{"avg", "min", "max", "count"}
			meta.DefaultAggregation = "avg"
		}
		measures = append(measures, meta)
	}
	return measures
}

// derivable reports whether at least one input of d is stored; Gross Margin %
// additionally needs its Gross Sales denominator.
func derivable(t *dataset.Table, d dataset.MetricName) bool {
	if d == dataset.GrossMarginPct && !t.HasMetric(dataset.GrossSales) {
		return false
	}
	for _, in := range dataset.DerivedInputs(d) {
		if t.HasMetric(in) {
			return true
		}
	}
	return false
}

func cardinalityHint(n int) string {
	switch {
	case n <= 10:
		return "low"
	case n <= 100:
		return "medium"
	default:
		return "high"
	}
}

// collectSamples picks up to maxSamples values in sorted order.
func collectSamples(values []string, max int) []string {
	samples := append([]string(nil), values...)
	sort.Strings(samples)
	return limitSamples(samples, max)
}

func limitSamples(values []string, max int) []string {
	if len(values) > max {
		return values[:max]
	}
	return values
}

// ToSnakeCase converts "Net Sales" → "net_sales", "Gross Margin %" → "gross_margin_pct".
func ToSnakeCase(s string) string {
	s = strings.ReplaceAll(s, "%", " pct")
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}
