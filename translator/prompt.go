package translator

import (
	"fmt"
	"strings"

	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/schema"
)

// ============================================================================
// PROMPT BUILDER: Schema-Driven Prompt Generation
// ============================================================================
// System instructions are generated from schema.Config:
//   - Dimensions → listed with sample values
//   - Measures → listed with aggregation types and formulas
//   - Response format → depends on Mode
//
// The user prompt carries the question and the capped row sample.
// ============================================================================

// BuildPrompt generates the system instructions for a mode.
func BuildPrompt(sch schema.Config, mode Mode) string {
	var b strings.Builder

	// ── Header ────────────────────────────────────────────────────────────
	b.WriteString(fmt.Sprintf(`You are an analyst for "%s", monthly financials per store.

`, sch.Name))
	if sch.FirstMonth != "" {
		b.WriteString(fmt.Sprintf("DATA COVERS: %s to %s (%d observations). Fiscal years start in April; \"Q3 FY24\" is Oct–Dec 2024.\n\n",
			sch.FirstMonth, sch.LastMonth, sch.RowCount))
	}

	// ── Schema Description ────────────────────────────────────────────────
	b.WriteString("DATA MODEL:\n")
	b.WriteString(buildDimensionDescription(sch))
	b.WriteString(buildMeasureDescription(sch))
	b.WriteString("\n")

	if mode == ModeAnswer {
		b.WriteString(`YOUR ROLE:
Answer the question in two or three plain sentences using only the SAMPLE ROWS.
Say so when the sample does not contain what is asked. Do not invent stores, months or amounts.
`)
		return b.String()
	}

	b.WriteString(`YOUR ROLE:
Translate the question into a structured QuerySpec that a computation engine will execute.
You are a TRANSLATOR ONLY. Do NOT compute any values. The engine will do all computation locally.

`)

	// ── Response Format ───────────────────────────────────────────────────
	b.WriteString(buildResponseFormat(sch))

	// ── QuerySpec Rules ───────────────────────────────────────────────────
	b.WriteString(buildQuerySpecRules(sch))

	// ── Common Query Translations ─────────────────────────────────────────
	b.WriteString(buildExampleTranslations(sch))

	b.WriteString("\nRemember: You are a TRANSLATOR. Output structured instructions for the engine. Do NOT compute values.\n")

	return b.String()
}

// BuildUserPrompt renders the question and the row sample.
func BuildUserPrompt(question string, sample Sample, mode Mode) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("SAMPLE ROWS (%d of %d):\n", len(sample.Rows), sample.Total))
	b.WriteString(strings.Join(sample.Header, " | "))
	b.WriteString("\n")
	for _, row := range sample.Rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}

	b.WriteString("\nQUESTION: ")
	b.WriteString(question)
	b.WriteString("\n")

	if mode == ModeAnswer {
		return b.String()
	}

	if isRatioQuestion(question) {
		b.WriteString("\nHINT: This is a RATIO query. Use aggregation:\"ratio\" with BOTH \"filters\" (denominator) AND \"compareFilters\" (numerator).\n")
	}
	b.WriteString(fmt.Sprintf("\nRespond with the JSON, then a line %s, then a one-sentence summary.\n", SummarySeparator))
	return b.String()
}

var ratioKeywords = []string{"percentage of", "% of", "how much of", "portion of", "fraction of", "what part of"}

func isRatioQuestion(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range ratioKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SampleView renders up to limit rows of a view: the dimension columns,
// then every measure. Missing cells are blank.
func SampleView(view engine.RecordView, limit int) Sample {
	dims := view.DimensionKeys()
	measures := view.MeasureKeys()

	s := Sample{
		Header: append(append([]string{}, dims...), measures...),
		Total:  view.Len(),
	}
	n := view.Len()
	if limit > 0 && n > limit {
		n = limit
	}
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(s.Header))
		for _, d := range dims {
			row = append(row, view.Dimension(i, d))
		}
		for _, m := range measures {
			if v, ok := view.Measure(i, m); ok {
				row = append(row, v.StringFixed(2))
			} else {
				row = append(row, "")
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

// ============================================================================
// SECTION BUILDERS
// ============================================================================

func buildDimensionDescription(sch schema.Config) string {
	var b strings.Builder

	b.WriteString("DIMENSIONS (string fields for grouping and filtering):\n")
	for _, d := range sch.Dimensions {
		b.WriteString(fmt.Sprintf("- \"%s\"", d.Key))
		if d.Description != "" {
			b.WriteString(fmt.Sprintf(": %s", d.Description))
		}
		if len(d.SampleValues) > 0 {
			b.WriteString(fmt.Sprintf(" (values: [%s])", strings.Join(quotedValues(d.SampleValues), ", ")))
		}
		if d.IsTemporal {
			b.WriteString(fmt.Sprintf(" [TEMPORAL, format %s]", d.TemporalFormat))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("- \"%s\" and \"%s\" are derived from month (e.g. \"Q3 FY24\", \"FY24\")\n",
		engine.DimQuarter, engine.DimFiscalYear))
	return b.String()
}

func buildMeasureDescription(sch schema.Config) string {
	var b strings.Builder

	b.WriteString("\nMEASURES (numeric fields for aggregation):\n")
	for _, m := range sch.Measures {
		b.WriteString(fmt.Sprintf("- \"%s\"", m.Key))
		if m.Unit != "" {
			b.WriteString(fmt.Sprintf(" [unit: %s]", m.Unit))
		}
		if m.IsSynthetic {
			b.WriteString(fmt.Sprintf(" = %s", m.Formula))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildResponseFormat(sch schema.Config) string {
	filterExample := "{\n"
	for _, d := range sch.Dimensions {
		filterExample += fmt.Sprintf("      \"%s\": [],\n", d.Key)
	}
	filterExample += "    }"

	return fmt.Sprintf(`RESPONSE FORMAT (valid JSON, then the separator line, then the summary):
{
  "interpretation": {
    "visualType": "bar|line|table|text",
    "summary": "A one-line description of what will be shown",
    "confidence": 0.9
  },
  "querySpec": {
    "intent": "text|table|chart",
    "filters": {
      "dimensions": %s
    },
    "compareFilters": null,
    "aggregation": "sum|count|avg|max|min|list|growth|ratio|none",
    "measure": "%s",
    "groupBy": [],
    "sortBy": "value_desc|value_asc|date_asc|date_desc|alpha_asc",
    "limit": 0,
    "visualize": "bar|line|pie|stacked_bar|area|table|text",
    "title": "Chart or table title",
    "reply": "Template with {total}, {count}, {period}, {top_category}, {top_amount}, {avg}, {max}, {min}, {growth_percent}, {direction}, {ratio_percent} placeholders",
    "confidence": 0.9
  }
}
%s
One sentence describing the answer.

`, filterExample, sch.GetDefaultMeasure(), SummarySeparator)
}

func buildQuerySpecRules(sch schema.Config) string {
	dimKeys := make([]string, 0, len(sch.Dimensions)+2)
	for _, d := range sch.Dimensions {
		dimKeys = append(dimKeys, fmt.Sprintf("\"%s\"", d.Key))
	}
	dimKeys = append(dimKeys, fmt.Sprintf("\"%s\"", engine.DimQuarter), fmt.Sprintf("\"%s\"", engine.DimFiscalYear))

	return fmt.Sprintf(`QUERYSPEC RULES:

1. "intent": "text" for a single number, "table" for rows, "chart" for a visual breakdown.

2. "filters": keys are dimension names (%s).
   - Values must come from the DIMENSIONS above
   - Filters are AND across dimensions, OR within a dimension

3. "aggregation":
   - "sum" → total (default)
   - "count" → number of rows
   - "avg", "max", "min"
   - "list" → individual rows, always intent "table"
   - "growth" → change from earliest to latest month
   - "ratio" → "filters" is the DENOMINATOR, "compareFilters" the NUMERATOR
   - percent measures (unit: percent) are recomputed from their inputs, never summed

4. "measure": exactly one of the MEASURES above

5. "groupBy": at most two of %s
   - Charts must have at least one groupBy dimension

6. "sortBy": "value_desc" for rankings, "date_asc" for time series

7. "limit": max results (0 = all)

`, strings.Join(dimKeys, ", "), strings.Join(dimKeys, ", "))
}

func buildExampleTranslations(sch schema.Config) string {
	if len(sch.Measures) == 0 {
		return ""
	}
	measure := sch.GetDefaultMeasure()

	var b strings.Builder
	b.WriteString("EXAMPLE QUERY TRANSLATIONS:\n")
	b.WriteString(fmt.Sprintf("- \"%s by store\" → groupBy:[\"store\"], intent:\"chart\", visualize:\"bar\", aggregation:\"sum\", sortBy:\"value_desc\"\n", measure))
	b.WriteString(fmt.Sprintf("- \"%s over time\" → groupBy:[\"month\"], intent:\"chart\", visualize:\"line\", sortBy:\"date_asc\"\n", measure))
	b.WriteString("- \"has it increased?\" → intent:\"text\", aggregation:\"growth\"\n")
	b.WriteString(fmt.Sprintf("- \"quarterly %s per store\" → groupBy:[\"quarter\", \"store\"], intent:\"table\"\n", measure))
	b.WriteString("\n")
	return b.String()
}

// ============================================================================
// HELPERS
// ============================================================================

func quotedValues(vals []string) []string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = fmt.Sprintf("\"%s\"", v)
	}
	return quoted
}
