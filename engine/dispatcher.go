package engine

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/spektr-org/storequery/dataset"
	"github.com/spektr-org/storequery/extract"
)

// ============================================================================
// DISPATCHER: question entities → one deterministic rule → Result
// ============================================================================
// Pipeline:
//   1. Match the most specific rule (Registry.Match)
//   2. Wrap the view so derived metrics resolve on read
//   3. Scope to the extracted store and period, before computing
//   4. Run the rule's computation
//   5. Build table / chart / text render shapes
//
// Only one rule runs per question. A failing computation is terminal.
// ============================================================================

// Dispatcher is immutable after construction and safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	cfg      *config
}

// NewDispatcher creates a dispatcher over a built registry.
//
// Options:
//   - WithAnomalyThreshold(k): standard deviations for anomaly rules (default 3)
//   - WithDefaultLimit(n): N for top/bottom rules (default 10)
//   - WithDisplayUnit(unit): currency label in replies (default "INR")
func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	return &Dispatcher{registry: registry, cfg: applyOptions(opts)}
}

// ForTable builds the default registry over the table's stored metrics plus
// every derived metric.
func ForTable(t *dataset.Table, opts ...Option) *Dispatcher {
	metrics := append(t.Metrics(), dataset.DerivedMetrics()...)
	return NewDispatcher(BuildRegistry(metrics, DefaultRuleSpecs()), opts...)
}

// Registry returns the rule registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Match selects the rule for a question without running it.
func (d *Dispatcher) Match(ent extract.Entities) (Rule, bool) {
	return d.registry.Match(ent.Question, ent.Metric)
}

// Dispatch matches and runs a rule. ErrNoRuleMatched means the caller
// should fall back.
func (d *Dispatcher) Dispatch(ent extract.Entities, view RecordView) (*Result, error) {
	rule, ok := d.Match(ent)
	if !ok {
		return nil, ErrNoRuleMatched
	}
	return d.Run(rule, ent, view)
}

// Run executes rule against view scoped by the entities. Errors are
// *RuleError.
func (d *Dispatcher) Run(rule Rule, ent extract.Entities, view RecordView) (*Result, error) {
	scoped := FilterScope(NewDerivedView(view), ent.Store, ent.Period)

	log.WithFields(log.Fields{
		"rule":  rule.ID,
		"store": ent.Store,
		"rows":  scoped.Len(),
	}).Debug("dispatching rule")

	result := &Result{
		Success:     true,
		Type:        "table",
		Title:       rule.Label,
		RuleID:      rule.ID,
		Label:       rule.Label,
		DisplayUnit: d.cfg.DisplayUnit,
	}

	if scoped.Len() == 0 {
		t := (&computation{rule: rule, view: scoped, cfg: d.cfg}).table()
		result.Table = t
		result.TableData = t.ToTableData(rule.Label)
		result.Reply = fmt.Sprintf("No data for %s.", scopeLabel(ent))
		return result, nil
	}

	table, err := runComputation(&computation{
		rule:     rule,
		question: ent.Question,
		view:     scoped,
		cfg:      d.cfg,
	})
	if err != nil {
		return nil, &RuleError{RuleID: rule.ID, Metric: rule.Metric, Err: err}
	}

	result.Table = table
	result.TableData = table.ToTableData(rule.Label)
	result.Reply = d.reply(rule, ent, table)
	result.Summary = fmt.Sprintf("%d rows · %s", table.Len(), DerivePeriod(scoped))

	if chart := d.chart(rule, table); chart != nil {
		result.Type = "chart"
		result.ChartConfig = chart
	} else if table.Len() == 1 && len(table.ValueColumns) == 1 {
		result.Type = "text"
		v := table.Rows[0].Values[0]
		result.Data = &TextData{
			Value:    FormatMetric(string(rule.Metric), v.Decimal, d.cfg.DisplayUnit),
			RawValue: v.Decimal,
			Unit:     d.cfg.DisplayUnit,
			Period:   table.Rows[0].Keys[0],
			Count:    1,
		}
	}

	log.Printf("✅ storequery: rule %s → %d rows", rule.ID, table.Len())
	return result, nil
}

// chart picks a chart for rule kinds that read well as one.
func (d *Dispatcher) chart(rule Rule, t *ResultTable) *ChartConfig {
	if t.Len() < 2 {
		return nil
	}
	spec := QuerySpec{Title: rule.Label, Measure: string(rule.Metric)}
	var groups []Group

	switch rule.Kind {
	case KindTrend:
		spec.Visualize, spec.GroupBy = "line", []string{DimMonth}
		groups = tableGroups(t, DimMonth, "", "value")
	case KindMoM, KindYoY:
		spec.Visualize, spec.GroupBy = "line", []string{DimMonth, DimStore}
		spec.Measure = t.ValueColumns[1].Label
		groups = tableGroups(t, DimMonth, DimStore, "change")
	case KindRanking, KindTotal, KindAverage:
		spec.Visualize, spec.GroupBy = "bar", []string{DimStore}
		groups = tableGroups(t, DimStore, "", "value")
	default:
		return nil
	}
	return BuildChart(spec, groups)
}

func (d *Dispatcher) reply(rule Rule, ent extract.Entities, t *ResultTable) string {
	metric := string(rule.Metric)
	scope := scopeLabel(ent)

	if t.Len() == 0 {
		if rule.Kind == KindAnomaly {
			return fmt.Sprintf("No anomalies in %s for %s (threshold %s standard deviations).",
				metric, scope, d.cfg.AnomalyThreshold.String())
		}
		return fmt.Sprintf("No %s values for %s.", metric, scope)
	}

	switch rule.Kind {
	case KindHighest, KindLowest:
		word := "highest"
		if rule.Kind == KindLowest {
			word = "lowest"
		}
		v := FormatMetric(metric, t.Rows[0].Values[0].Decimal, d.cfg.DisplayUnit)
		if t.Len() == 1 {
			return fmt.Sprintf("%s had the %s %s in %s: %s.", t.Rows[0].Keys[1], word, metric, t.Rows[0].Keys[0], v)
		}
		return fmt.Sprintf("%d rows tie for the %s %s at %s.", t.Len(), word, metric, v)
	case KindAnomaly:
		return fmt.Sprintf("%d anomalies in %s for %s.", t.Len(), metric, scope)
	case KindRanking:
		return fmt.Sprintf("%s leads the %s ranking for %s.", t.Rows[0].Keys[1], metric, scope)
	}
	return fmt.Sprintf("%s for %s: %d rows.", rule.Label, scope, t.Len())
}

// scopeLabel describes the store and period filters: "EGL, Q3 FY24".
func scopeLabel(ent extract.Entities) string {
	var parts []string
	if ent.Store != "" {
		parts = append(parts, string(ent.Store))
	} else {
		parts = append(parts, "all stores")
	}
	if ent.Period != nil {
		parts = append(parts, ent.Period.Token())
	} else {
		parts = append(parts, "all months")
	}
	return strings.Join(parts, ", ")
}
