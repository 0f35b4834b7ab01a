// Package dataset holds the canonical relational shape every upload is
// normalized into: observations of (month, store, metric, amount).
//
// A Table is immutable once built. Filtering, pivoting and every computation
// downstream return new values; nothing mutates a loaded table in place.
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoreID is a short uppercase store code such as "EGL" or "ITPL".
type StoreID string

// MetricName is a canonical metric label such as "Net Sales".
type MetricName string

// Observation is one immutable fact row.
type Observation struct {
	Month  Month           `json:"month"`
	Store  StoreID         `json:"store"`
	Metric MetricName      `json:"metric"`
	Amount decimal.Decimal `json:"amount"`
}

// DuplicatePolicy decides what happens when two observations share a
// (month, store, metric) key. Overwriting is never an option.
type DuplicatePolicy int

const (
	DuplicateSum DuplicatePolicy = iota
	DuplicateReject
)

// ErrDuplicateObservation is returned under DuplicateReject.
var ErrDuplicateObservation = errors.New("duplicate observation")

// DuplicateError names the offending key.
type DuplicateError struct {
	Month  Month
	Store  StoreID
	Metric MetricName
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate observation for %s / %s / %s", e.Month, e.Store, e.Metric)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateObservation }

type obsKey struct {
	month  int
	store  StoreID
	metric MetricName
}

// Table is the normalized, read-only observation set of one upload.
type Table struct {
	id      string
	obs     []Observation
	index   map[obsKey]int
	stores  []StoreID
	metrics []MetricName
	months  []Month
}

// NewTable validates uniqueness and sorts observations by month, store, metric.
func NewTable(obs []Observation, policy DuplicatePolicy) (*Table, error) {
	t := &Table{
		id:    uuid.New().String(),
		index: make(map[obsKey]int, len(obs)),
	}

	for _, o := range obs {
		o.Store = StoreID(strings.ToUpper(strings.TrimSpace(string(o.Store))))
		k := obsKey{month: o.Month.Index(), store: o.Store, metric: o.Metric}
		if i, exists := t.index[k]; exists {
			if policy == DuplicateReject {
				return nil, &DuplicateError{Month: o.Month, Store: o.Store, Metric: o.Metric}
			}
			t.obs[i].Amount = t.obs[i].Amount.Add(o.Amount)
			continue
		}
		t.index[k] = len(t.obs)
		t.obs = append(t.obs, o)
	}

	sort.SliceStable(t.obs, func(i, j int) bool {
		a, b := t.obs[i], t.obs[j]
		if a.Month.Index() != b.Month.Index() {
			return a.Month.Index() < b.Month.Index()
		}
		if a.Store != b.Store {
			return a.Store < b.Store
		}
		return a.Metric < b.Metric
	})
	t.reindex()
	return t, nil
}

// MustTable is NewTable with DuplicateSum; it cannot fail.
func MustTable(obs []Observation) *Table {
	t, _ := NewTable(obs, DuplicateSum)
	return t
}

func (t *Table) reindex() {
	t.index = make(map[obsKey]int, len(t.obs))
	storeSet := map[StoreID]bool{}
	metricSet := map[MetricName]bool{}
	monthSet := map[int]bool{}
	t.stores, t.metrics, t.months = nil, nil, nil

	for i, o := range t.obs {
		t.index[obsKey{month: o.Month.Index(), store: o.Store, metric: o.Metric}] = i
		if !storeSet[o.Store] {
			storeSet[o.Store] = true
			t.stores = append(t.stores, o.Store)
		}
		if !metricSet[o.Metric] {
			metricSet[o.Metric] = true
			t.metrics = append(t.metrics, o.Metric)
		}
		if !monthSet[o.Month.Index()] {
			monthSet[o.Month.Index()] = true
			t.months = append(t.months, o.Month)
		}
	}
	sort.Slice(t.stores, func(i, j int) bool { return t.stores[i] < t.stores[j] })
	sort.Slice(t.metrics, func(i, j int) bool { return t.metrics[i] < t.metrics[j] })
}

// ID identifies this load; a re-upload gets a new one.
func (t *Table) ID() string { return t.id }

// Len returns the number of observations.
func (t *Table) Len() int { return len(t.obs) }

// At returns observation i.
func (t *Table) At(i int) Observation { return t.obs[i] }

// Observations returns a copy of all rows.
func (t *Table) Observations() []Observation {
	out := make([]Observation, len(t.obs))
	copy(out, t.obs)
	return out
}

// Value looks up one cell.
func (t *Table) Value(m Month, s StoreID, metric MetricName) (decimal.Decimal, bool) {
	i, ok := t.index[obsKey{month: m.Index(), store: s, metric: metric}]
	if !ok {
		return decimal.Zero, false
	}
	return t.obs[i].Amount, true
}

// Stores returns the distinct store codes, sorted.
func (t *Table) Stores() []StoreID { return append([]StoreID(nil), t.stores...) }

// Metrics returns the distinct stored metric names, sorted.
func (t *Table) Metrics() []MetricName { return append([]MetricName(nil), t.metrics...) }

// Months returns the distinct months, chronological.
func (t *Table) Months() []Month { return append([]Month(nil), t.months...) }

// HasMetric reports whether any observation carries metric.
func (t *Table) HasMetric(metric MetricName) bool {
	for _, m := range t.metrics {
		if m == metric {
			return true
		}
	}
	return false
}

// Filter returns a new table with the observations keep accepts.
func (t *Table) Filter(keep func(Observation) bool) *Table {
	out := &Table{id: t.id}
	for _, o := range t.obs {
		if keep(o) {
			out.obs = append(out.obs, o)
		}
	}
	out.reindex()
	return out
}

// Equal compares contents, ignoring load IDs.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i := range t.obs {
		a, b := t.obs[i], o.obs[i]
		if a.Month != b.Month || a.Store != b.Store || a.Metric != b.Metric || !a.Amount.Equal(b.Amount) {
			return false
		}
	}
	return true
}

// ============================================================================
// PIVOT: (month, store) → {metric: amount}
// ============================================================================

// PivotRow is one (month, store) cell group of the wide view.
type PivotRow struct {
	Month  Month
	Store  StoreID
	Values map[MetricName]decimal.Decimal
}

// Pivot groups observations into one row per (month, store), ordered by month then store.
func (t *Table) Pivot() []PivotRow {
	var rows []PivotRow
	pos := make(map[[2]string]int)
	for _, o := range t.obs {
		k := [2]string{o.Month.Token(), string(o.Store)}
		i, ok := pos[k]
		if !ok {
			i = len(rows)
			pos[k] = i
			rows = append(rows, PivotRow{
				Month:  o.Month,
				Store:  o.Store,
				Values: make(map[MetricName]decimal.Decimal),
			})
		}
		rows[i].Values[o.Metric] = o.Amount
	}
	return rows
}
