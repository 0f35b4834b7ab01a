package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/spektr-org/storequery/dataset"
	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/extract"
	"github.com/spektr-org/storequery/schema"
	"github.com/spektr-org/storequery/translator"
)

// ============================================================================
// SESSION: One dataset, one question at a time, bounded history
// ============================================================================
// Ask pipeline:
//   1. Extract entities (metric, store, period)
//   2. Match a rule → run it (terminal on failure, no second rule)
//   3. No rule → fallback over the period-scoped view, if configured
//   4. Record the resolution in history, success or not
//
// The loaded dataset is immutable; Load swaps in a new one atomically.
// ============================================================================

var (
	// ErrNoDataset is returned by Ask before anything was loaded.
	ErrNoDataset = errors.New("no dataset loaded")

	// ErrNoFallback is returned when no rule matched and no fallback is set.
	ErrNoFallback = errors.New("no rule matched and no fallback configured")
)

// Fallback answers questions no rule covers. *translator.Delegator
// implements it.
type Fallback interface {
	Delegate(ctx context.Context, question string, sch schema.Config, view engine.RecordView) (*translator.Answer, error)
}

// DatasetInfo describes the loaded dataset.
type DatasetInfo struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	Rows       int              `json:"rows"`
	Stores     []string         `json:"stores"`
	Metrics    []string         `json:"metrics"`
	FirstMonth string           `json:"firstMonth,omitempty"`
	LastMonth  string           `json:"lastMonth,omitempty"`
	LoadedAt   time.Time        `json:"loadedAt"`
	Warnings   []schema.Warning `json:"warnings,omitempty"`
	Schema     schema.Config    `json:"schema"`
}

// loaded is everything derived from one dataset. Never mutated after
// construction.
type loaded struct {
	info       DatasetInfo
	table      *dataset.Table
	view       engine.RecordView
	extractor  *extract.Extractor
	dispatcher *engine.Dispatcher
}

// Option configures a Session.
type Option func(*Session)

// WithFallback sets the delegate for unmatched questions.
func WithFallback(f Fallback) Option {
	return func(s *Session) {
		s.fallback = f
	}
}

// WithHistorySize bounds the history buffer.
func WithHistorySize(n int) Option {
	return func(s *Session) {
		s.history = NewHistory(n)
	}
}

// WithEngineOptions passes options to every dispatcher the session builds.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithExtractorOptions passes options to every extractor the session builds.
func WithExtractorOptions(opts ...extract.Option) Option {
	return func(s *Session) {
		s.extractOpts = append(s.extractOpts, opts...)
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithNormalizer replaces the default normalizer used by Load.
func WithNormalizer(n *schema.Normalizer) Option {
	return func(s *Session) {
		s.normalizer = n
	}
}

// Session routes questions against one loaded dataset.
type Session struct {
	id          string
	ask         sync.Mutex
	data        atomic.Pointer[loaded]
	history     *History
	fallback    Fallback
	normalizer  *schema.Normalizer
	engineOpts  []engine.Option
	extractOpts []extract.Option
	metrics     *Metrics
}

// NewSession creates an empty session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		id:         uuid.New().String(),
		history:    NewHistory(DefaultHistorySize),
		normalizer: schema.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

// History returns the session history.
func (s *Session) History() *History { return s.history }

// HasFallback reports whether unmatched questions go to a model.
func (s *Session) HasFallback() bool { return s.fallback != nil }

// Load normalizes an upload and replaces the dataset. On error the
// previous dataset stays in place.
func (s *Session) Load(name string, r io.Reader) (*DatasetInfo, error) {
	res, err := s.normalizer.Load(name, r)
	if err != nil {
		return nil, err
	}
	return s.SetTable(res.Table, name, res.Warnings), nil
}

// SetTable replaces the dataset with an already normalized table.
func (s *Session) SetTable(t *dataset.Table, source string, warnings []schema.Warning) *DatasetInfo {
	sch := schema.Describe(t, source)
	l := &loaded{
		info: DatasetInfo{
			ID:         t.ID(),
			Source:     source,
			Rows:       t.Len(),
			FirstMonth: sch.FirstMonth,
			LastMonth:  sch.LastMonth,
			LoadedAt:   time.Now(),
			Warnings:   warnings,
			Schema:     sch,
		},
		table:      t,
		view:       engine.NewDerivedView(engine.NewTableView(t)),
		extractor:  extract.ForTable(t, s.extractOpts...),
		dispatcher: engine.ForTable(t, s.engineOpts...),
	}
	for _, st := range t.Stores() {
		l.info.Stores = append(l.info.Stores, string(st))
	}
	for _, m := range sch.Measures {
		l.info.Metrics = append(l.info.Metrics, m.Key)
	}

	s.data.Store(l)
	s.metrics.loaded()

	log.Printf("📦 storequery: dataset %s loaded from %q: %d observations, %d stores, %s to %s",
		l.info.ID, source, t.Len(), len(l.info.Stores), sch.FirstMonth, sch.LastMonth)

	info := l.info
	return &info
}

// Dataset describes the loaded dataset.
func (s *Session) Dataset() (*DatasetInfo, bool) {
	l := s.data.Load()
	if l == nil {
		return nil, false
	}
	info := l.info
	return &info, true
}

// Table returns the loaded table.
func (s *Session) Table() (*dataset.Table, bool) {
	l := s.data.Load()
	if l == nil {
		return nil, false
	}
	return l.table, true
}

// Rules returns the rules of the loaded dataset.
func (s *Session) Rules() ([]engine.Rule, error) {
	l := s.data.Load()
	if l == nil {
		return nil, ErrNoDataset
	}
	return l.dispatcher.Registry().Rules(), nil
}

// Ask resolves one question. Questions are serialized per session. The
// returned resolution is also in History; a non-nil error is the same as
// resolution.Err().
func (s *Session) Ask(ctx context.Context, question string) (*QueryResolution, error) {
	s.ask.Lock()
	defer s.ask.Unlock()

	l := s.data.Load()
	if l == nil {
		return nil, ErrNoDataset
	}

	start := time.Now()
	ent := l.extractor.Extract(question)
	res := &QueryResolution{
		ID:        uuid.New().String(),
		Question:  question,
		AskedAt:   start,
		DatasetID: l.info.ID,
		Metric:    string(ent.Metric),
		Store:     string(ent.Store),
	}
	for _, c := range ent.StoreCandidates {
		res.StoreCandidates = append(res.StoreCandidates, string(c))
	}
	if ent.Period != nil {
		res.Period = ent.Period.Token()
	}

	kind := ""
	if rule, ok := l.dispatcher.Match(ent); ok {
		kind = string(rule.Kind)
		s.runRule(res, l, rule, ent)
	} else {
		s.runFallback(ctx, res, l, ent)
	}

	if ent.AmbiguousStore() && res.err == nil {
		res.Reply += fmt.Sprintf(" (Several stores mentioned: %s; answered for %s.)",
			strings.Join(res.StoreCandidates, ", "), res.Store)
	}

	res.Duration = time.Since(start)
	s.history.Add(res)
	s.metrics.observe(res, kind, s.history.Len())

	log.WithFields(log.Fields{
		"session":  s.id,
		"source":   res.Source,
		"rule":     res.RuleID,
		"metric":   res.Metric,
		"store":    res.Store,
		"period":   res.Period,
		"duration": res.Duration,
	}).Info("question resolved")

	return res, res.err
}

func (s *Session) runRule(res *QueryResolution, l *loaded, rule engine.Rule, ent extract.Entities) {
	res.Source = SourceRule
	res.RuleID = rule.ID
	res.Label = rule.Label

	result, err := l.dispatcher.Run(rule, ent, l.view)
	if err != nil {
		res.fail(err)
		return
	}
	res.Result = result
	res.Reply = result.Reply
}

func (s *Session) runFallback(ctx context.Context, res *QueryResolution, l *loaded, ent extract.Entities) {
	if s.fallback == nil {
		res.Source = SourceNone
		res.fail(ErrNoFallback)
		res.Reply = suggestions(l, ent)
		return
	}

	res.Source = SourceFallback
	view := engine.FilterScope(l.view, "", ent.Period)
	ans, err := s.fallback.Delegate(ctx, res.Question, l.info.Schema, view)
	if err != nil {
		var genErr *translator.GenerationError
		if errors.As(err, &genErr) {
			res.Raw = genErr.Raw
		}
		res.fail(err)
		return
	}
	res.Result = ans.Result
	res.Reply = ans.Reply
	if ans.Result != nil {
		res.Label = ans.Result.Title
	}
}

func (r *QueryResolution) fail(err error) {
	r.err = err
	r.Error = err.Error()
	switch {
	case errors.Is(err, ErrNoFallback):
	case translator.IsRetryable(err), isExternal(err):
		r.Reply = "The assistant could not be reached. Please try again in a moment."
	default:
		r.Reply = "Could not answer: " + err.Error()
	}
}

func isExternal(err error) bool {
	var ext *translator.ExternalError
	return errors.As(err, &ext)
}

// suggestions lists questions the rules can answer for the loaded data.
func suggestions(l *loaded, ent extract.Entities) string {
	metric := string(ent.Metric)
	if metric == "" {
		metric = string(dataset.NetSales)
		if !l.table.HasMetric(dataset.NetSales) && len(l.info.Metrics) > 0 {
			metric = l.info.Metrics[0]
		}
	}
	examples := []string{
		fmt.Sprintf("Top 5 stores by %s", metric),
		fmt.Sprintf("Trend of %s", metric),
		fmt.Sprintf("MoM change in %s", metric),
		fmt.Sprintf("Anomaly in %s", metric),
	}
	return "I couldn't match that to a known question. Try: " + strings.Join(examples, "; ") + "."
}
