package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// RULE COMPUTATIONS: one function per RuleKind
// ============================================================================
// Each computation reads an already scoped, derived view and returns a
// ResultTable keyed by (month, store). Rows without the metric are skipped.
// ============================================================================

type computeFunc func(c *computation) (*ResultTable, error)

var computations = map[RuleKind]computeFunc{
	KindHighest:      computeExtreme,
	KindLowest:       computeExtreme,
	KindTop:          computeTopN,
	KindBottom:       computeTopN,
	KindShareOfSales: computeShareOfSales,
	KindMoM:          computeChange,
	KindYoY:          computeChange,
	KindAnomaly:      computeAnomaly,
	KindTotal:        computePerStore,
	KindAverage:      computePerStore,
	KindRanking:      computePerStore,
	KindTrend:        computeTrend,
	KindValues:       computeValues,
}

// computation is the input of one rule run.
type computation struct {
	rule     Rule
	question string // normalized
	view     RecordView
	cfg      *config
}

func (c *computation) metric() string { return string(c.rule.Metric) }

// present lists the row indices that carry the metric, in view order.
func (c *computation) present() []int {
	var idx []int
	for i := 0; i < c.view.Len(); i++ {
		if _, ok := c.view.Measure(i, c.metric()); ok {
			idx = append(idx, i)
		}
	}
	return idx
}

func (c *computation) value(i int) decimal.Decimal {
	v, _ := c.view.Measure(i, c.metric())
	return v
}

func (c *computation) table(extra ...Column) *ResultTable {
	t := &ResultTable{
		KeyColumns:   []Column{dimensionColumn(DimMonth), dimensionColumn(DimStore)},
		ValueColumns: []Column{measureColumn("value", c.metric())},
	}
	t.ValueColumns = append(t.ValueColumns, extra...)
	return t
}

func (c *computation) row(i int, values ...decimal.NullDecimal) ResultRow {
	vals := append([]decimal.NullDecimal{valid(c.value(i))}, values...)
	return ResultRow{
		Keys:   []string{c.view.Dimension(i, DimMonth), c.view.Dimension(i, DimStore)},
		Values: vals,
	}
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func percentColumn(key, label string) Column {
	return Column{Key: key, Label: label, Type: "percent", Align: "right"}
}

// ============================================================================
// HIGHEST / LOWEST: every row tied at the extreme
// ============================================================================

func computeExtreme(c *computation) (*ResultTable, error) {
	better := func(a, b decimal.Decimal) bool { return a.GreaterThan(b) }
	if c.rule.Kind == KindLowest {
		better = func(a, b decimal.Decimal) bool { return a.LessThan(b) }
	}
	best, _ := extremeMeasure(c.view, c.metric(), better)

	t := c.table()
	for _, i := range c.present() {
		if c.value(i).Equal(best) {
			t.Rows = append(t.Rows, c.row(i))
		}
	}
	return t, nil
}

// ============================================================================
// TOP / BOTTOM N: row level
// ============================================================================

var topNRe = regexp.MustCompile(`\b(?:top|bottom|best|worst)\s+(\d+)\b`)

func (c *computation) limit() int {
	if m := topNRe.FindStringSubmatch(c.question); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	if c.rule.Limit > 0 {
		return c.rule.Limit
	}
	return c.cfg.DefaultLimit
}

func computeTopN(c *computation) (*ResultTable, error) {
	idx := c.present()
	desc := c.rule.Kind == KindTop
	sort.SliceStable(idx, func(a, b int) bool {
		if desc {
			return c.value(idx[a]).GreaterThan(c.value(idx[b]))
		}
		return c.value(idx[a]).LessThan(c.value(idx[b]))
	})
	if n := c.limit(); len(idx) > n {
		idx = idx[:n]
	}

	t := c.table()
	for _, i := range idx {
		t.Rows = append(t.Rows, c.row(i))
	}
	return t, nil
}

// ============================================================================
// SHARE OF SALES: 100 * metric / Net Sales per row
// ============================================================================

func computeShareOfSales(c *computation) (*ResultTable, error) {
	ns := string(dataset.NetSales)
	if !HasMeasure(c.view, ns) {
		return nil, &MissingMetricError{Metric: dataset.NetSales}
	}

	type shareRow struct {
		i     int
		share decimal.NullDecimal
	}
	var rows []shareRow
	for _, i := range c.present() {
		r := shareRow{i: i}
		if sales, ok := c.view.Measure(i, ns); ok && !sales.IsZero() {
			r.share = valid(c.value(i).Mul(hundred).Div(sales))
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(a, b int) bool {
		sa, sb := rows[a].share, rows[b].share
		if sa.Valid != sb.Valid {
			return sa.Valid
		}
		return sa.Valid && sa.Decimal.GreaterThan(sb.Decimal)
	})

	t := c.table(percentColumn("share", "% of "+ns))
	for _, r := range rows {
		t.Rows = append(t.Rows, c.row(r.i, r.share))
	}
	return t, nil
}

// ============================================================================
// MOM / YOY: per store, positional lag over rows carrying the metric
// ============================================================================

func computeChange(c *computation) (*ResultTable, error) {
	lag, label := 1, "MoM change %"
	if c.rule.Kind == KindYoY {
		lag, label = 12, "YoY change %"
	}

	byStore := make(map[string][]int)
	for _, i := range c.present() {
		s := c.view.Dimension(i, DimStore)
		byStore[s] = append(byStore[s], i)
	}

	type changeRow struct {
		i      int
		change decimal.NullDecimal
	}
	var rows []changeRow
	for _, idx := range byStore {
		sort.SliceStable(idx, func(a, b int) bool {
			return c.view.Month(idx[a]).Before(c.view.Month(idx[b]))
		})
		for k, i := range idx {
			r := changeRow{i: i}
			if k >= lag {
				if prev := c.value(idx[k-lag]); !prev.IsZero() {
					r.change = valid(c.value(i).Sub(prev).Mul(hundred).Div(prev))
				}
			}
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		ma, mb := c.view.Month(rows[a].i), c.view.Month(rows[b].i)
		if ma != mb {
			return ma.Before(mb)
		}
		return c.view.Dimension(rows[a].i, DimStore) < c.view.Dimension(rows[b].i, DimStore)
	})

	t := c.table(percentColumn("change", label))
	for _, r := range rows {
		t.Rows = append(t.Rows, c.row(r.i, r.change))
	}
	return t, nil
}

// ============================================================================
// ANOMALY: |v - mean| > k * sample sd, evaluated exactly
// ============================================================================
// With D = n*v - Σ the test is D² * (n-1) > k² * Σ Dⱼ², which needs no
// square root and no division.

// Anomalies returns the positions in values that lie strictly more than k
// sample standard deviations from the mean. Fewer than two values never
// produce anomalies.
func Anomalies(values []decimal.Decimal, k decimal.Decimal) []int {
	n := len(values)
	if n < 2 {
		return nil
	}
	nd := decimal.NewFromInt(int64(n))
	sum := decimal.Sum(decimal.Zero, values...)

	devs := make([]decimal.Decimal, n)
	sumSq := decimal.Zero
	for j, v := range values {
		devs[j] = nd.Mul(v).Sub(sum)
		sumSq = sumSq.Add(devs[j].Mul(devs[j]))
	}
	rhs := k.Mul(k).Mul(sumSq)
	df := decimal.NewFromInt(int64(n - 1))

	var out []int
	for j, d := range devs {
		if d.Mul(d).Mul(df).GreaterThan(rhs) {
			out = append(out, j)
		}
	}
	return out
}

func computeAnomaly(c *computation) (*ResultTable, error) {
	idx := c.present()
	values := make([]decimal.Decimal, len(idx))
	for j, i := range idx {
		values[j] = c.value(i)
	}

	t := c.table(measureColumn("deviation", "Deviation from mean"))
	flagged := Anomalies(values, c.cfg.AnomalyThreshold)
	if len(flagged) == 0 {
		return t, nil
	}
	mean := decimal.Sum(decimal.Zero, values...).Div(decimal.NewFromInt(int64(len(values))))
	for _, j := range flagged {
		i := idx[j]
		t.Rows = append(t.Rows, c.row(i, valid(c.value(i).Sub(mean))))
	}
	return t, nil
}

// ============================================================================
// TOTAL / AVERAGE / RANKING: one row per store
// ============================================================================

func computePerStore(c *computation) (*ResultTable, error) {
	agg := "sum"
	if c.rule.Kind == KindAverage {
		agg = "avg"
	}

	groups := groupBySingle(c.view, DimStore)
	var kept []Group
	for _, g := range groups {
		if CountMeasure(g.View, c.metric()) == 0 {
			continue
		}
		aggregateGroup(&g, c.metric(), agg)
		kept = append(kept, g)
	}

	switch c.rule.Kind {
	case KindRanking:
		SortGroups(kept, "value_desc")
	default:
		SortGroups(kept, "label_asc")
	}

	var extra []Column
	if c.rule.Kind == KindRanking {
		extra = append(extra, Column{Key: "rank", Label: "Rank", Type: "number", Align: "center"})
	}
	t := c.table(extra...)
	t.ValueColumns[0].Label = LabelForAggregation(agg) + " of " + c.metric()
	for n, g := range kept {
		v := valid(g.Value)
		if isPercentMeasure(c.metric()) {
			pct, ok := PercentOfSums(g.View, c.rule.Metric)
			v = decimal.NullDecimal{Decimal: pct, Valid: ok}
		}
		row := ResultRow{Keys: []string{DerivePeriod(g.View), g.Key}, Values: []decimal.NullDecimal{v}}
		if c.rule.Kind == KindRanking {
			row.Values = append(row.Values, valid(decimal.NewFromInt(int64(n+1))))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ============================================================================
// TREND: one row per month, chronological
// ============================================================================

func computeTrend(c *computation) (*ResultTable, error) {
	stores := UniqueValues(c.view, DimStore)
	storeLabel := "All stores"
	if len(stores) == 1 {
		storeLabel = stores[0]
	}

	months := groupBySingle(c.view, DimMonth)
	SortGroups(months, "chronological")

	t := c.table()
	for _, g := range months {
		if CountMeasure(g.View, c.metric()) == 0 {
			continue
		}
		aggregateGroup(&g, c.metric(), "sum")
		v := valid(g.Value)
		if isPercentMeasure(c.metric()) {
			pct, ok := PercentOfSums(g.View, c.rule.Metric)
			v = decimal.NullDecimal{Decimal: pct, Valid: ok}
		}
		t.Rows = append(t.Rows, ResultRow{Keys: []string{g.Key, storeLabel}, Values: []decimal.NullDecimal{v}})
	}
	return t, nil
}

// ============================================================================
// VALUES: the metric per (month, store)
// ============================================================================

func computeValues(c *computation) (*ResultTable, error) {
	t := c.table()
	for _, i := range c.present() {
		t.Rows = append(t.Rows, c.row(i))
	}
	return t, nil
}

func runComputation(c *computation) (*ResultTable, error) {
	fn, ok := computations[c.rule.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuleKind, c.rule.Kind)
	}
	if c.view.Len() > 0 && !HasMeasure(c.view, c.metric()) {
		return nil, &MissingMetricError{Metric: c.rule.Metric}
	}
	return fn(c)
}
