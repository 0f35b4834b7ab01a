package schema

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// VOCABULARY: Folds raw sheet labels into canonical metric names
// ============================================================================
// Rules are tried in order; the first whose keywords all appear wins. Order
// matters: "other opex" must resolve before the generic operating-cost rule,
// "gross sales" before plain "sales".
// ============================================================================

type labelRule struct {
	all    []string // every keyword must appear
	any    []string // at least one must appear (ignored when empty)
	metric dataset.MetricName
}

var labelRules = []labelRule{
	{any: []string{"ebitda"}, metric: dataset.EBITDA},
	{all: []string{"gross"}, any: []string{"margin", "profit"}, metric: dataset.GrossMargin},
	{all: []string{"other"}, any: []string{"opex", "expense", "expenses", "overheads"}, metric: dataset.OtherOpex},
	{all: []string{"operating"}, any: []string{"cost", "costs", "expense", "expenses"}, metric: dataset.OperatingCost},
	{any: []string{"cogs", "cost of goods", "food cost", "material cost"}, metric: dataset.COGS},
	{all: []string{"aggregator", "commission"}, metric: dataset.AggregatorCommission},
	{any: []string{"commission"}, metric: dataset.AggregatorCommission},
	{any: []string{"marketing", "advertisement", "advertising"}, metric: dataset.Marketing},
	{any: []string{"labour", "labor", "salary", "salaries", "wages", "manpower", "staff cost"}, metric: dataset.LaborCost},
	{any: []string{"utility", "utilities", "electricity"}, metric: dataset.UtilityCost},
	{any: []string{"cam", "common area", "maintenance charges"}, metric: dataset.CAM},
	{any: []string{"rent", "rental", "lease"}, metric: dataset.Rent},
	{all: []string{"gross"}, any: []string{"sales", "revenue"}, metric: dataset.GrossSales},
	{any: []string{"net sales", "net revenue", "revenue", "turnover", "sales"}, metric: dataset.NetSales},
}

// Fold lowercases with Unicode case folding, turns punctuation other than
// '%' and '&' into spaces and collapses whitespace.
func Fold(s string) string {
	// Casers carry state; build one per call.
	s = cases.Fold().String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '%' || r == '&':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsPhrase reports whether phrase occurs in folded on word boundaries.
func containsPhrase(folded, phrase string) bool {
	return strings.Contains(" "+folded+" ", " "+phrase+" ")
}

// CanonicalMetric maps a raw label onto the vocabulary. ok is false when no
// rule matched; the caller then keeps the label as a custom metric.
func CanonicalMetric(label string) (dataset.MetricName, bool) {
	folded := Fold(label)
	if folded == "" {
		return "", false
	}
	if exact, ok := exactMetrics[folded]; ok {
		return exact, true
	}
	for _, rule := range labelRules {
		if matchRule(folded, rule) {
			return rule.metric, true
		}
	}
	return "", false
}

var exactMetrics = func() map[string]dataset.MetricName {
	m := make(map[string]dataset.MetricName)
	for _, name := range append(dataset.BaseMetrics(), dataset.DerivedMetrics()...) {
		m[Fold(string(name))] = name
	}
	return m
}()

func matchRule(folded string, rule labelRule) bool {
	for _, kw := range rule.all {
		if !containsPhrase(folded, kw) {
			return false
		}
	}
	if len(rule.any) == 0 {
		return len(rule.all) > 0
	}
	for _, kw := range rule.any {
		if containsPhrase(folded, kw) {
			return true
		}
	}
	return false
}

// MetricLabel canonicalizes label, keeping unknown labels as title-cased
// custom metrics so they stay queryable.
func MetricLabel(label string) dataset.MetricName {
	if m, ok := CanonicalMetric(label); ok {
		return m
	}
	return dataset.MetricName(cases.Title(language.English).String(strings.Join(strings.Fields(label), " ")))
}

// IsPercentLabel reports ratio columns that are never ingested.
func IsPercentLabel(label string) bool {
	folded := Fold(label)
	return strings.Contains(folded, "%") ||
		containsPhrase(folded, "pct") ||
		containsPhrase(folded, "percent") ||
		containsPhrase(folded, "percentage")
}

// IsTotalLabel reports summary rows and columns.
func IsTotalLabel(label string) bool {
	folded := Fold(label)
	return folded == "total" || folded == "grand total" || folded == "sub total" || folded == "subtotal"
}

// ============================================================================
// HEADER ALIASES
// ============================================================================

type headerRole int

const (
	headerNone headerRole = iota
	headerMonth
	headerStore
	headerMetric
	headerAmount
)

var headerAliases = map[string]headerRole{
	"month":        headerMonth,
	"period":       headerMonth,
	"date":         headerMonth,
	"month year":   headerMonth,
	"store":        headerStore,
	"store code":   headerStore,
	"store name":   headerStore,
	"outlet":       headerStore,
	"branch":       headerStore,
	"location":     headerStore,
	"metric":       headerMetric,
	"line item":    headerMetric,
	"particulars":  headerMetric,
	"head":         headerMetric,
	"account":      headerMetric,
	"amount":       headerAmount,
	"value":        headerAmount,
	"amt":          headerAmount,
	"amount inr":   headerAmount,
	"amount in rs": headerAmount,
}

func roleOf(cell string) headerRole {
	return headerAliases[Fold(cell)]
}
