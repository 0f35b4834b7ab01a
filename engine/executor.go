package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ============================================================================
// EXECUTOR: QuerySpec execution + Placeholder Resolution
// ============================================================================
// Entry point: Execute(spec, view, opts...)
//
// Pipeline:
//   1. Wrap the view so derived metrics resolve on read
//   2. Apply filters from QuerySpec → SubView
//   3. Group and aggregate
//   4. Dispatch to builder (chart / table / text)
//   5. Resolve reply template placeholders
//   6. Return Result
//
// This function never calls an AI service. All computation is local.
// ============================================================================

// Execute runs a QuerySpec against a RecordView and returns a render-ready Result.
// This is what the fallback calls after the model produced a plan.
//
// Options:
//   - WithDisplayUnit(unit): currency label in replies
//   - WithDefaultMeasure(key): sets the measure when QuerySpec.Measure is empty
func Execute(spec QuerySpec, view RecordView, opts ...Option) (*Result, error) {
	cfg := applyOptions(opts)
	view = NewDerivedView(view)

	measure := spec.Measure
	if measure == "" {
		measure = cfg.DefaultMeasure
	}
	if !containsKey(view.MeasureKeys(), measure) {
		return nil, &MissingMetricError{Metric: metricName(measure)}
	}

	if view.Len() == 0 {
		return &Result{
			Success: true,
			Type:    "text",
			Reply:   "No data available to analyze.",
		}, nil
	}

	log.Printf("🔧 storequery: Processing %d rows, intent=%s, visualize=%s, aggregation=%s, measure=%s",
		view.Len(), spec.Intent, spec.Visualize, spec.Aggregation, measure)

	// ── RATIO AGGREGATION (early return) ──────────────────────────────────
	if spec.Aggregation == "ratio" && spec.CompareFilters != nil {
		return executeRatio(spec, view, measure, cfg)
	}

	// 1. Apply filters → SubView (zero-copy)
	filtered := ApplyFilters(view, spec.Filters)

	if filtered.Len() == 0 {
		return &Result{
			Success:   true,
			Type:      "table",
			Reply:     "No rows match " + buildFilterLabel(&spec.Filters) + ".",
			Table:     &ResultTable{ValueColumns: []Column{measureColumn(measure, measure)}},
			QuerySpec: &spec,
		}, nil
	}

	log.Printf("🔧 storequery: %d rows after filtering (from %d)", filtered.Len(), view.Len())

	// 2. Group and aggregate
	groups := GroupAndAggregate(filtered, spec.GroupBy, measure, spec.Aggregation, spec.SortBy, spec.Limit)

	// 3. Dispatch to builder
	result := &Result{
		Success:     true,
		Title:       spec.Title,
		DisplayUnit: cfg.DisplayUnit,
		QuerySpec:   &spec,
	}

	switch spec.Intent {
	case "chart":
		result.Type = "chart"
		result.ChartConfig = BuildChart(spec, groups)
		if result.ChartConfig == nil {
			result.Type = "text"
			result.Reply = "Not enough data to generate a chart."
			return result, nil
		}
		result.Table, _ = buildAggregatedTable(spec, groups, measure, cfg.DisplayUnit)

	case "table":
		var summary *Summary
		result.Type = "table"
		result.Table, summary = BuildTable(spec, groups, filtered, measure, cfg.DisplayUnit)
		result.TableData = result.Table.ToTableData(spec.Title)
		result.TableData.Summary = summary

	default:
		result.Type = "text"
		text := BuildText(spec, groups, filtered, measure, cfg.DisplayUnit)
		result.Data = text
		result.Table = singleValueTable(measure, text.RawValue)
		if spec.Aggregation == "growth" && text.Growth != nil && text.Growth.Direction == "insufficient data" {
			result.Reply = fmt.Sprintf("Your data shows %s for %s. Need at least 2 months of data to show trends.",
				text.Value, text.Period)
			return result, nil
		}
	}

	// 4. Resolve reply template placeholders
	result.Reply = ResolvePlaceholders(spec.Reply, groups, filtered, measure, cfg.DisplayUnit)

	return result, nil
}

func singleValueTable(measure string, v decimal.Decimal) *ResultTable {
	return &ResultTable{
		ValueColumns: []Column{measureColumn(measure, measure)},
		Rows:         []ResultRow{{Keys: []string{}, Values: []decimal.NullDecimal{{Decimal: v, Valid: true}}}},
	}
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// ============================================================================
// RATIO EXECUTION (early return path)
// ============================================================================

func executeRatio(spec QuerySpec, view RecordView, measure string, cfg *config) (*Result, error) {
	denominator := ApplyFilters(view, spec.Filters)
	numerator := ApplyFilters(view, *spec.CompareFilters)

	denomSum := SumMeasure(denominator, measure)
	numSum := SumMeasure(numerator, measure)

	pct := decimal.Zero
	if !denomSum.IsZero() {
		pct = numSum.Mul(hundred).Div(denomSum)
	}

	numLabel := buildFilterLabel(spec.CompareFilters)
	denomLabel := buildFilterLabel(&spec.Filters)

	displayValue := FormatPercent(pct)
	// ConcatView for period derivation: no data copy
	period := DerivePeriod(newConcatView(denominator, numerator))

	textData := &TextData{
		Value:    displayValue,
		RawValue: pct,
		Unit:     cfg.DisplayUnit,
		Period:   period,
		Count:    numerator.Len() + denominator.Len(),
		Ratio: &RatioData{
			NumeratorTotal:   numSum,
			DenominatorTotal: denomSum,
			Percentage:       pct,
			NumeratorLabel:   numLabel,
			DenominatorLabel: denomLabel,
		},
	}

	reply := spec.Reply
	replacements := map[string]string{
		"{ratio_percent}":     displayValue,
		"{numerator_total}":   FormatAmount(numSum, cfg.DisplayUnit),
		"{denominator_total}": FormatAmount(denomSum, cfg.DisplayUnit),
		"{numerator_label}":   numLabel,
		"{denominator_label}": denomLabel,
		"{period}":            period,
		"{total}":             FormatAmount(numSum, cfg.DisplayUnit),
	}
	for k, v := range replacements {
		reply = strings.ReplaceAll(reply, k, v)
	}
	if reply == "" {
		reply = fmt.Sprintf("%s is %s of %s.", numLabel, displayValue, denomLabel)
	}

	log.Printf("📊 storequery: Ratio: %s / %s = %s", numLabel, denomLabel, displayValue)

	return &Result{
		Success:     true,
		Type:        "text",
		Title:       spec.Title,
		Reply:       stripUnresolvedPlaceholders(reply),
		Data:        textData,
		Table:       singleValueTable("ratio %", pct),
		DisplayUnit: cfg.DisplayUnit,
		QuerySpec:   &spec,
	}, nil
}

// ============================================================================
// PLACEHOLDER RESOLUTION
// ============================================================================

// ResolvePlaceholders substitutes computed values into the reply template.
func ResolvePlaceholders(template string, groups []Group, view RecordView, measure string, unit string) string {
	if template == "" {
		return buildDefaultReply(view, measure, unit)
	}

	all := Group{View: view}
	aggregateGroup(&all, measure, "sum")
	count := view.Len()
	period := DerivePeriod(view)

	replacements := map[string]string{
		"{total}":    FormatMetric(measure, all.Value, unit),
		"{count}":    fmt.Sprintf("%d", count),
		"{period}":   period,
		"{currency}": unit,
		"{metric}":   measure,
	}

	if len(groups) > 0 {
		topGroup := groups[0]
		for _, g := range groups[1:] {
			if g.Value.GreaterThan(topGroup.Value) {
				topGroup = g
			}
		}
		replacements["{top_category}"] = topGroup.Label
		replacements["{top_amount}"] = FormatMetric(measure, topGroup.Value, unit)
	}

	if CountMeasure(view, measure) > 0 {
		replacements["{avg}"] = FormatMetric(measure, AvgMeasure(view, measure), unit)
		replacements["{max}"] = FormatMetric(measure, MaxMeasure(view, measure), unit)
		replacements["{min}"] = FormatMetric(measure, MinMeasure(view, measure), unit)
	}

	growthData := BuildGrowthText(view, measure, unit)
	if g := growthData.Growth; g != nil && g.Direction != "insufficient data" {
		replacements["{growth_percent}"] = FormatPercent(g.ChangePercent)
		replacements["{change_amount}"] = FormatMetric(measure, g.ChangeAmount, unit)
		replacements["{earliest_value}"] = FormatMetric(measure, g.EarliestValue, unit)
		replacements["{latest_value}"] = FormatMetric(measure, g.LatestValue, unit)
		replacements["{earliest_period}"] = g.EarliestPeriod
		replacements["{latest_period}"] = g.LatestPeriod
		replacements["{direction}"] = g.Direction
	}

	result := template
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return stripUnresolvedPlaceholders(result)
}

// ============================================================================
// QUERYSPEC NORMALIZATION
// ============================================================================

// NormalizeQuerySpec applies deterministic rules to fix common model inconsistencies.
func NormalizeQuerySpec(spec QuerySpec) QuerySpec {
	changed := false

	// Rule 1: "list" aggregation must be a table
	if spec.Aggregation == "list" && spec.Intent != "table" {
		spec.Intent = "table"
		spec.Visualize = "table"
		changed = true
	}

	// Rule 2: Charts must have a groupBy dimension
	if spec.Intent == "chart" && len(spec.GroupBy) == 0 {
		spec.Intent = "text"
		spec.Visualize = "text"
		changed = true
	}

	// Rule 3: max/min with no groupBy → text
	if (spec.Aggregation == "max" || spec.Aggregation == "min") && len(spec.GroupBy) == 0 {
		spec.Intent = "text"
		spec.Visualize = "text"
		changed = true
	}

	// Rule 4: more than two group-by dimensions cannot be rendered
	if len(spec.GroupBy) > 2 {
		spec.GroupBy = spec.GroupBy[:2]
		changed = true
	}

	if changed {
		log.Printf("🔧 NormalizeQuerySpec: Adjusted → intent=%s, groupBy=%v, aggregation=%s",
			spec.Intent, spec.GroupBy, spec.Aggregation)
	}

	return spec
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func buildDefaultReply(view RecordView, measure string, unit string) string {
	if view.Len() == 0 {
		return "No matching rows found."
	}
	all := Group{View: view}
	aggregateGroup(&all, measure, "sum")
	return fmt.Sprintf("%s across %d rows (%s): %s.",
		measure, view.Len(), DerivePeriod(view), FormatMetric(measure, all.Value, unit))
}

// buildFilterLabel creates a human-readable label from Filters.
func buildFilterLabel(f *Filters) string {
	if f == nil || f.IsEmpty() {
		return "All"
	}

	parts := []string{}
	for _, dim := range sortedKeys(f.Dimensions) {
		if vals := f.Dimensions[dim]; len(vals) > 0 {
			parts = append(parts, strings.Join(vals, ", "))
		}
	}
	return strings.Join(parts, " / ")
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var placeholderRegex = regexp.MustCompile(`\{[a-z_]+\}`)

func stripUnresolvedPlaceholders(text string) string {
	cleaned := placeholderRegex.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, " .—-–")
	if cleaned == "" {
		return text
	}
	return cleaned
}
