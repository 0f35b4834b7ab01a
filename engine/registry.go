package engine

import (
	"sort"
	"strings"

	"github.com/spektr-org/storequery/dataset"
	"github.com/spektr-org/storequery/extract"
	"github.com/spektr-org/storequery/schema"
)

// ============================================================================
// RULE REGISTRY: declarative rules expanded once per metric
// ============================================================================
// A RuleSpec is data: an ID, a computation kind and trigger phrases with a
// {metric} slot. BuildRegistry expands every spec for every metric of the
// loaded dataset. Nothing is captured in closures.
//
// Matching: a trigger matches when every keyword token of the expanded
// phrase (stop words removed, simple plural folding) is a word of the
// question. Among matches the most specific wins:
//   1. more keyword tokens
//   2. trigger for the extracted metric
//   3. longer trigger text
//   4. spec declaration order, then metric order, then trigger order
// ============================================================================

// RuleKind names the computation a rule runs.
type RuleKind string

const (
	KindHighest      RuleKind = "highest"
	KindLowest       RuleKind = "lowest"
	KindTop          RuleKind = "top"
	KindBottom       RuleKind = "bottom"
	KindShareOfSales RuleKind = "share_of_sales"
	KindMoM          RuleKind = "mom"
	KindYoY          RuleKind = "yoy"
	KindAnomaly      RuleKind = "anomaly"
	KindTotal        RuleKind = "total"
	KindAverage      RuleKind = "average"
	KindTrend        RuleKind = "trend"
	KindRanking      RuleKind = "ranking"
	KindValues       RuleKind = "values"
)

// MetricSlot is replaced by the metric name in triggers and labels.
const MetricSlot = "{metric}"

// RuleSpec declares one family of rules.
type RuleSpec struct {
	ID          string               `json:"id" yaml:"id"`
	Kind        RuleKind             `json:"kind" yaml:"kind"`
	Triggers    []string             `json:"triggers" yaml:"triggers"`
	Label       string               `json:"label" yaml:"label"`
	Limit       int                  `json:"limit,omitempty" yaml:"limit,omitempty"`
	SkipMetrics []dataset.MetricName `json:"skipMetrics,omitempty" yaml:"skipMetrics,omitempty"`
}

// DefaultRuleSpecs is the built-in rule set, in declaration order.
func DefaultRuleSpecs() []RuleSpec {
	return []RuleSpec{
		{
			ID: "highest", Kind: KindHighest, Label: "Highest {metric}",
			Triggers: []string{"highest {metric}", "max {metric}", "maximum {metric}"},
		},
		{
			ID: "lowest", Kind: KindLowest, Label: "Lowest {metric}",
			Triggers: []string{"lowest {metric}", "min {metric}", "minimum {metric}"},
		},
		{
			ID: "top_stores", Kind: KindTop, Label: "Top stores by {metric}", Limit: 10,
			Triggers: []string{"top stores by {metric}", "best stores by {metric}"},
		},
		{
			ID: "bottom_stores", Kind: KindBottom, Label: "Bottom stores by {metric}", Limit: 10,
			Triggers: []string{"bottom stores by {metric}", "worst stores by {metric}"},
		},
		{
			ID: "share_of_sales", Kind: KindShareOfSales, Label: "{metric} as % of Net Sales",
			Triggers:    []string{"{metric} as % of sales", "{metric} % of sales", "{metric} as percent of sales"},
			SkipMetrics: []dataset.MetricName{dataset.NetSales, dataset.GrossMarginPct},
		},
		{
			ID: "mom", Kind: KindMoM, Label: "MoM change in {metric}",
			Triggers: []string{"mom change in {metric}", "mom {metric}", "month on month {metric}", "month over month {metric}"},
		},
		{
			ID: "yoy", Kind: KindYoY, Label: "YoY growth in {metric}",
			Triggers: []string{"yoy growth in {metric}", "yoy {metric}", "year on year {metric}", "year over year {metric}"},
		},
		{
			ID: "anomaly", Kind: KindAnomaly, Label: "Anomalies in {metric}",
			Triggers: []string{"anomaly in {metric}", "anomalies in {metric}", "outliers in {metric}"},
		},
		{
			ID: "total", Kind: KindTotal, Label: "Total {metric} by store",
			Triggers: []string{"total {metric}", "sum of {metric}"},
		},
		{
			ID: "average", Kind: KindAverage, Label: "Average {metric} by store",
			Triggers: []string{"average {metric}", "avg {metric}", "mean {metric}"},
		},
		{
			ID: "trend", Kind: KindTrend, Label: "Trend of {metric}",
			Triggers: []string{"trend of {metric}", "{metric} trend"},
		},
		{
			ID: "ranking", Kind: KindRanking, Label: "Store ranking by {metric}",
			Triggers: []string{
				"store profitability ranking by {metric}", "store ranking by {metric}",
				"rank stores by {metric}", "ranking by {metric}",
			},
		},
		{
			ID: "values", Kind: KindValues, Label: "{metric}",
			Triggers: []string{"{metric} for"},
		},
	}
}

// Rule is one spec bound to one metric.
type Rule struct {
	ID       string             `json:"id" yaml:"id"`
	SpecID   string             `json:"specId" yaml:"specId"`
	Kind     RuleKind           `json:"kind" yaml:"kind"`
	Metric   dataset.MetricName `json:"metric" yaml:"metric"`
	Label    string             `json:"label" yaml:"label"`
	Limit    int                `json:"limit,omitempty" yaml:"limit,omitempty"`
	Triggers []string           `json:"triggers" yaml:"triggers"`
}

type trigger struct {
	rule      int
	text      string
	tokens    []string
	specOrder int
	metOrder  int
	trigOrder int
}

// Registry holds expanded rules. It is immutable after BuildRegistry and
// safe for concurrent use.
type Registry struct {
	rules    []Rule
	byID     map[string]int
	triggers []trigger
}

// BuildRegistry expands specs once per metric.
func BuildRegistry(metrics []dataset.MetricName, specs []RuleSpec) *Registry {
	r := &Registry{byID: make(map[string]int)}

	for si, spec := range specs {
		for mi, metric := range metrics {
			if skips(spec, metric) {
				continue
			}
			id := spec.ID + "_" + schema.ToSnakeCase(string(metric))
			if _, dup := r.byID[id]; dup {
				continue
			}
			rule := Rule{
				ID:     id,
				SpecID: spec.ID,
				Kind:   spec.Kind,
				Metric: metric,
				Label:  strings.ReplaceAll(spec.Label, MetricSlot, string(metric)),
				Limit:  spec.Limit,
			}
			r.byID[id] = len(r.rules)
			for ti, t := range spec.Triggers {
				text := extract.Normalize(strings.ReplaceAll(t, MetricSlot, string(metric)))
				rule.Triggers = append(rule.Triggers, text)
				r.triggers = append(r.triggers, trigger{
					rule:      len(r.rules),
					text:      text,
					tokens:    keywordTokens(text),
					specOrder: si,
					metOrder:  mi,
					trigOrder: ti,
				})
			}
			r.rules = append(r.rules, rule)
		}
	}

	sort.SliceStable(r.triggers, func(i, j int) bool {
		return r.less(r.triggers[i], r.triggers[j], "")
	})
	return r
}

func skips(spec RuleSpec, metric dataset.MetricName) bool {
	for _, m := range spec.SkipMetrics {
		if m == metric {
			return true
		}
	}
	return false
}

// Rules returns every expanded rule in declaration order.
func (r *Registry) Rules() []Rule { return append([]Rule(nil), r.rules...) }

// Len returns the number of expanded rules.
func (r *Registry) Len() int { return len(r.rules) }

// Lookup finds a rule by ID.
func (r *Registry) Lookup(id string) (Rule, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Rule{}, false
	}
	return r.rules[i], true
}

// Match returns the most specific rule whose trigger the question satisfies.
// metric is the extracted metric; its canonical name counts as mentioned,
// so "highest revenue" satisfies "highest net sales".
func (r *Registry) Match(question string, metric dataset.MetricName) (Rule, bool) {
	q := extract.Normalize(question)
	if metric != "" {
		q += " " + extract.Normalize(string(metric))
	}
	words := make(map[string]bool)
	for _, w := range strings.Fields(q) {
		words[stem(w)] = true
	}

	best := -1
	for i, t := range r.triggers {
		if !allPresent(t.tokens, words) {
			continue
		}
		if best < 0 || r.less(t, r.triggers[best], metric) {
			best = i
		}
	}
	if best < 0 {
		return Rule{}, false
	}
	return r.rules[r.triggers[best].rule], true
}

// less orders triggers by specificity.
func (r *Registry) less(a, b trigger, metric dataset.MetricName) bool {
	if len(a.tokens) != len(b.tokens) {
		return len(a.tokens) > len(b.tokens)
	}
	if metric != "" {
		am, bm := r.rules[a.rule].Metric == metric, r.rules[b.rule].Metric == metric
		if am != bm {
			return am
		}
	}
	if len(a.text) != len(b.text) {
		return len(a.text) > len(b.text)
	}
	if a.specOrder != b.specOrder {
		return a.specOrder < b.specOrder
	}
	if a.metOrder != b.metOrder {
		return a.metOrder < b.metOrder
	}
	return a.trigOrder < b.trigOrder
}

func allPresent(tokens []string, words map[string]bool) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !words[t] {
			return false
		}
	}
	return true
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"by": true, "to": true, "is": true, "was": true, "were": true, "what": true,
	"which": true, "who": true, "did": true, "does": true, "do": true, "me": true,
	"show": true, "give": true, "tell": true, "please": true, "with": true,
	"per": true, "and": true, "or": true, "at": true, "from": true, "its": true,
	"it": true, "as": true, "over": true,
}

// keywordTokens drops stop words and folds plurals.
func keywordTokens(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		if stopWords[w] {
			continue
		}
		out = append(out, stem(w))
	}
	return out
}

// stem folds a trailing plural "s": "stores" and "store" compare equal.
func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}
