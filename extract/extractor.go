// Package extract pulls the three resolvable entities out of a question:
// a metric, a store code and a time period.
package extract

import (
	"sort"
	"strings"

	"github.com/spektr-org/storequery/dataset"
	"github.com/spektr-org/storequery/schema"
)

// ============================================================================
// ENTITY EXTRACTOR
// ============================================================================
// Matching is on word boundaries over the normalized question, so "ann"
// never matches inside "annual" and "cam" never inside "campaign".
// ============================================================================

// Entities is what a question resolved to. Zero values mean "not mentioned".
type Entities struct {
	Question        string              `json:"question"`
	Metric          dataset.MetricName  `json:"metric,omitempty"`
	Store           dataset.StoreID     `json:"store,omitempty"`
	StoreCandidates []dataset.StoreID   `json:"storeCandidates,omitempty"`
	Period          *dataset.TimePeriod `json:"period,omitempty"`
}

// HasMetric reports whether a metric was found.
func (e Entities) HasMetric() bool { return e.Metric != "" }

// AmbiguousStore reports whether more than one store code was mentioned.
func (e Entities) AmbiguousStore() bool { return len(e.StoreCandidates) > 1 }

// Option configures an Extractor.
type Option func(*Extractor)

// WithSynonyms replaces the default synonym table. Order is significant.
func WithSynonyms(s []Synonym) Option {
	return func(e *Extractor) {
		e.synonyms = normalizeSynonyms(s)
	}
}

// Extractor is immutable after construction and safe for concurrent use.
type Extractor struct {
	synonyms []Synonym
	metrics  []dataset.MetricName // sorted by normalized length, longest first
	stores   []dataset.StoreID
}

// New builds an extractor over the live metric and store sets.
func New(metrics []dataset.MetricName, stores []dataset.StoreID, opts ...Option) *Extractor {
	e := &Extractor{
		synonyms: normalizeSynonyms(DefaultSynonyms()),
		metrics:  append([]dataset.MetricName(nil), metrics...),
		stores:   append([]dataset.StoreID(nil), stores...),
	}
	sort.SliceStable(e.metrics, func(i, j int) bool {
		return len(Normalize(string(e.metrics[i]))) > len(Normalize(string(e.metrics[j])))
	})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ForTable builds an extractor from a table's stores, stored metrics and
// every derived metric.
func ForTable(t *dataset.Table, opts ...Option) *Extractor {
	metrics := append(t.Metrics(), dataset.DerivedMetrics()...)
	return New(metrics, t.Stores(), opts...)
}

// Synonyms returns the active synonym table.
func (e *Extractor) Synonyms() []Synonym {
	return append([]Synonym(nil), e.synonyms...)
}

// Extract resolves metric, store and period from question.
func (e *Extractor) Extract(question string) Entities {
	q := Normalize(question)
	ent := Entities{Question: q}
	ent.Metric = e.metric(q)
	ent.Store, ent.StoreCandidates = e.store(q)
	if p, ok := FindPeriod(q); ok {
		ent.Period = &p
	}
	return ent
}

// Normalize lowercases, turns punctuation other than '%' and '&' into spaces
// and collapses whitespace. '%' and '&' become standalone words.
func Normalize(s string) string {
	s = schema.Fold(s)
	s = strings.NewReplacer("%", " % ", "&", " & ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ContainsPhrase reports whether phrase occurs in the normalized text on word
// boundaries. Both arguments must already be normalized.
func ContainsPhrase(text, phrase string) bool {
	return phraseIndex(text, phrase) >= 0
}

func phraseIndex(text, phrase string) int {
	if phrase == "" {
		return -1
	}
	return strings.Index(" "+text+" ", " "+phrase+" ")
}

func (e *Extractor) metric(q string) dataset.MetricName {
	for _, s := range e.synonyms {
		if ContainsPhrase(q, s.Phrase) {
			return s.Metric
		}
	}
	for _, m := range e.metrics {
		if ContainsPhrase(q, Normalize(string(m))) {
			return m
		}
	}
	return ""
}

type storeHit struct {
	id  dataset.StoreID
	pos int
}

// store returns the leftmost mentioned store (ties go to the longer code)
// and every store mentioned, in the same order.
func (e *Extractor) store(q string) (dataset.StoreID, []dataset.StoreID) {
	var hits []storeHit
	for _, s := range e.stores {
		if pos := phraseIndex(q, Normalize(string(s))); pos >= 0 {
			hits = append(hits, storeHit{id: s, pos: pos})
		}
	}
	if len(hits) == 0 {
		return "", nil
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		if len(hits[i].id) != len(hits[j].id) {
			return len(hits[i].id) > len(hits[j].id)
		}
		return hits[i].id < hits[j].id
	})
	all := make([]dataset.StoreID, len(hits))
	for i, h := range hits {
		all[i] = h.id
	}
	return all[0], all
}

func normalizeSynonyms(in []Synonym) []Synonym {
	out := make([]Synonym, 0, len(in))
	for _, s := range in {
		p := Normalize(s.Phrase)
		if p == "" {
			continue
		}
		out = append(out, Synonym{Phrase: p, Metric: s.Metric})
	}
	return out
}
