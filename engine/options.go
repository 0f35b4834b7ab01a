package engine

import "github.com/shopspring/decimal"

// ============================================================================
// ENGINE OPTIONS: Functional options for Execute() and NewDispatcher()
// ============================================================================

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	DisplayUnit      string          // unit printed next to amounts
	DefaultMeasure   string          // metric to aggregate if QuerySpec.Measure is empty
	AnomalyThreshold decimal.Decimal // k in |v - mean| > k * sd
	DefaultLimit     int             // top/bottom N when the question names none
}

// WithDisplayUnit sets the currency label used in replies (default "INR").
func WithDisplayUnit(unit string) Option {
	return func(c *config) {
		c.DisplayUnit = unit
	}
}

// WithDefaultMeasure sets the measure to aggregate when QuerySpec.Measure is empty.
func WithDefaultMeasure(measure string) Option {
	return func(c *config) {
		c.DefaultMeasure = measure
	}
}

// WithAnomalyThreshold sets the number of standard deviations beyond which
// a value is flagged. Non-positive values are ignored.
func WithAnomalyThreshold(k float64) Option {
	return func(c *config) {
		if k > 0 {
			c.AnomalyThreshold = decimal.NewFromFloat(k)
		}
	}
}

// WithDefaultLimit sets N for top/bottom rules when the question has no number.
func WithDefaultLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.DefaultLimit = n
		}
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		DisplayUnit:      "INR",
		DefaultMeasure:   "Net Sales",
		AnomalyThreshold: decimal.NewFromInt(3),
		DefaultLimit:     10,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
