package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ============================================================================
// ENGINE TYPES: Store financials query model
// ============================================================================
// Two ways in:
//   Dispatcher.Dispatch: deterministic rule matched from the question
//   Execute(QuerySpec) : declarative plan, produced by the fallback
//
// Both produce a Result carrying a ResultTable plus render hints.
// ============================================================================

// Dimension keys every view exposes. Quarter and fiscal year are virtual,
// derived from the month on read.
const (
	DimMonth      = "month"
	DimStore      = "store"
	DimQuarter    = "quarter"
	DimFiscalYear = "fiscal_year"
)

// ============================================================================
// QUERYSPEC: Contract between the fallback and the engine
// ============================================================================

// QuerySpec defines what the engine should compute.
// The fallback LLM produces this; the engine consumes it. Nothing else
// generated by the model is ever executed.
type QuerySpec struct {
	Intent         string   `json:"intent"`                   // "text", "table", "chart"
	Filters        Filters  `json:"filters"`                  // Which rows to include
	CompareFilters *Filters `json:"compareFilters,omitempty"` // For ratio: numerator filters
	Aggregation    string   `json:"aggregation"`              // "sum", "count", "avg", "max", "min", "list", "growth", "ratio", "none"
	Measure        string   `json:"measure"`                  // Metric name (empty → default)
	GroupBy        []string `json:"groupBy"`                  // ["month"], ["store"], ["month", "store"]
	SortBy         string   `json:"sortBy"`                   // "value_desc", "value_asc", "date_asc", "date_desc", "alpha_asc"
	Limit          int      `json:"limit"`                    // 0 = all
	Visualize      string   `json:"visualize"`                // "bar", "line", "pie", "stacked_bar", "area", "table", "text"
	Title          string   `json:"title"`
	Reply          string   `json:"reply"` // Template: "Net Sales for {period} was {total}."
	Confidence     float64  `json:"confidence"`
}

// Filters define which rows to include.
// Keys are dimension names. Values are allowed values.
// OR within a dimension, AND across dimensions. Empty = all.
type Filters struct {
	Dimensions map[string][]string `json:"dimensions"`
}

// HasFilter returns true if a specific dimension filter is set.
func (f Filters) HasFilter(dimension string) bool {
	if f.Dimensions == nil {
		return false
	}
	vals, ok := f.Dimensions[dimension]
	return ok && len(vals) > 0
}

// IsEmpty returns true if no filters are set.
func (f Filters) IsEmpty() bool {
	for _, vals := range f.Dimensions {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

// ============================================================================
// RESULT TABLE: the tabular answer
// ============================================================================

// ResultTable is a rectangular table: key columns (month, store, ...) then
// value columns. A value cell may be null (e.g. MoM change of a first month).
type ResultTable struct {
	KeyColumns   []Column    `json:"keyColumns"`
	ValueColumns []Column    `json:"valueColumns"`
	Rows         []ResultRow `json:"rows"`
}

// ResultRow is one row of a ResultTable.
type ResultRow struct {
	Keys   []string              `json:"keys"`
	Values []decimal.NullDecimal `json:"values"`
}

// Len returns the number of rows.
func (t *ResultTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Validate checks the table is genuinely tabular: at least one column and
// every row as wide as the header.
func (t *ResultTable) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: no table", ErrMalformedTable)
	}
	if len(t.KeyColumns)+len(t.ValueColumns) == 0 {
		return fmt.Errorf("%w: no columns", ErrMalformedTable)
	}
	for i, r := range t.Rows {
		if len(r.Keys) != len(t.KeyColumns) || len(r.Values) != len(t.ValueColumns) {
			return fmt.Errorf("%w: row %d has %d+%d cells, header has %d+%d", ErrMalformedTable,
				i, len(r.Keys), len(r.Values), len(t.KeyColumns), len(t.ValueColumns))
		}
	}
	return nil
}

// Columns returns key columns followed by value columns.
func (t *ResultTable) Columns() []Column {
	cols := make([]Column, 0, len(t.KeyColumns)+len(t.ValueColumns))
	cols = append(cols, t.KeyColumns...)
	return append(cols, t.ValueColumns...)
}

// Header returns the column labels.
func (t *ResultTable) Header() []string {
	cols := t.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Label
	}
	return out
}

// Records renders every row as strings. Nulls render empty; amounts keep
// two decimals.
func (t *ResultTable) Records() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make([]string, 0, len(r.Keys)+len(r.Values))
		rec = append(rec, r.Keys...)
		for _, v := range r.Values {
			rec = append(rec, formatCell(v))
		}
		out = append(out, rec)
	}
	return out
}

// Value returns the cell of the named value column in row i.
func (t *ResultTable) Value(i int, key string) decimal.NullDecimal {
	for j, c := range t.ValueColumns {
		if c.Key == key && i >= 0 && i < len(t.Rows) {
			return t.Rows[i].Values[j]
		}
	}
	return decimal.NullDecimal{}
}

// Key returns the cell of the named key column in row i.
func (t *ResultTable) Key(i int, key string) string {
	for j, c := range t.KeyColumns {
		if c.Key == key && i >= 0 && i < len(t.Rows) {
			return t.Rows[i].Keys[j]
		}
	}
	return ""
}

// ToTableData converts to the render shape.
func (t *ResultTable) ToTableData(title string) *TableData {
	return &TableData{
		Title:   title,
		Columns: t.Columns(),
		Rows:    t.Records(),
	}
}

func formatCell(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}

// ============================================================================
// RESULT: Render-ready output
// ============================================================================

// Result is the engine's render-ready output.
type Result struct {
	Success bool   `json:"success"`
	Type    string `json:"type"` // "chart", "table", "text"
	Reply   string `json:"reply"`
	Title   string `json:"title"`
	Summary string `json:"summary"`

	// RuleID and Label identify the deterministic rule that produced this
	// result. Both are empty for fallback answers.
	RuleID string `json:"ruleId,omitempty"`
	Label  string `json:"label,omitempty"`

	// Table is always populated for tabular answers; the render shapes below
	// are derived from it.
	Table *ResultTable `json:"table,omitempty"`

	ChartConfig *ChartConfig `json:"chartConfig,omitempty"`
	TableData   *TableData   `json:"tableData,omitempty"`
	Data        interface{}  `json:"data,omitempty"` // *TextData for type="text"

	DisplayUnit string   `json:"displayUnit,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	QuerySpec      *QuerySpec      `json:"querySpec,omitempty"`
	Interpretation *Interpretation `json:"interpretation,omitempty"`
}

// ============================================================================
// GROUP: Intermediate computation result
// ============================================================================

// Group represents a grouped/aggregated result.
// Builders convert these into ChartConfig, TableData, or TextData.
type Group struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Value     decimal.Decimal `json:"value"`
	Count     int             `json:"count"`
	SubGroups []Group         `json:"subGroups,omitempty"`
	View      RecordView      `json:"-"`
}

// ============================================================================
// CHART TYPES
// ============================================================================

// ChartConfig defines how to render a chart.
type ChartConfig struct {
	ChartType  string        `json:"chartType"`
	Title      string        `json:"title"`
	XAxis      string        `json:"xAxis,omitempty"`
	YAxis      string        `json:"yAxis,omitempty"`
	Series     []ChartSeries `json:"series"`
	Colors     []string      `json:"colors,omitempty"`
	ShowLegend bool          `json:"showLegend"`
	ShowGrid   bool          `json:"showGrid"`
}

// ChartSeries represents a data series in a chart.
type ChartSeries struct {
	Name  string       `json:"name"`
	Data  []ChartPoint `json:"data"`
	Color string       `json:"color,omitempty"`
}

// ChartPoint is a single data point. Values are floats: charts are for
// eyes, tables keep exact decimals.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ============================================================================
// TABLE TYPES
// ============================================================================

// TableData defines how to render a table.
type TableData struct {
	Title   string     `json:"title"`
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Column defines a table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`  // "text", "number", "currency", "percent"
	Align string `json:"align"` // "left", "center", "right"
}

// Summary provides totals or aggregations for a table.
type Summary struct {
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}

// ============================================================================
// TEXT TYPES
// ============================================================================

// TextData is structured data for single-value answers (type="text").
type TextData struct {
	Value    string          `json:"value"`
	RawValue decimal.Decimal `json:"rawValue"`
	Unit     string          `json:"unit"`
	Period   string          `json:"period"`
	Count    int             `json:"count"`
	Growth   *GrowthData     `json:"growth,omitempty"`
	Ratio    *RatioData      `json:"ratio,omitempty"`
}

// GrowthData contains change-over-time metrics.
type GrowthData struct {
	EarliestValue  decimal.Decimal `json:"earliestValue"`
	LatestValue    decimal.Decimal `json:"latestValue"`
	EarliestPeriod string          `json:"earliestPeriod"`
	LatestPeriod   string          `json:"latestPeriod"`
	ChangeAmount   decimal.Decimal `json:"changeAmount"`
	ChangePercent  decimal.Decimal `json:"changePercent"`
	Direction      string          `json:"direction"` // "increased", "decreased", "unchanged", "insufficient data"
}

// RatioData contains cross-group percentage comparison.
type RatioData struct {
	NumeratorTotal   decimal.Decimal `json:"numeratorTotal"`
	DenominatorTotal decimal.Decimal `json:"denominatorTotal"`
	Percentage       decimal.Decimal `json:"percentage"`
	NumeratorLabel   string          `json:"numeratorLabel"`
	DenominatorLabel string          `json:"denominatorLabel"`
}

// ============================================================================
// INTERPRETATION: what the fallback understood
// ============================================================================

// Interpretation describes what the model understood from the question.
// The fallback attaches it next to the plan it executed.
type Interpretation struct {
	VisualType  string                `json:"visualType"`
	Summary     string                `json:"summary"`
	Details     []InterpretDetail     `json:"details"`
	Suggestions []InterpretSuggestion `json:"suggestions,omitempty"`
	Confidence  float64               `json:"confidence"`
}

// InterpretDetail is a label-value pair.
type InterpretDetail struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// InterpretSuggestion is a refinement option.
type InterpretSuggestion struct {
	Label    string `json:"label"`
	Modifier string `json:"modifier"`
}
