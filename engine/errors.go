package engine

import (
	"errors"
	"fmt"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// SENTINEL ERRORS: Use with errors.Is()
// ============================================================================

var (
	// ErrNoRuleMatched means the dispatcher found no rule for the question.
	// The caller is expected to hand the question to the fallback.
	ErrNoRuleMatched = errors.New("no rule matched")

	// ErrMissingMetric is returned when a computation needs a metric that
	// the filtered data does not carry at all.
	ErrMissingMetric = errors.New("metric not present in data")

	// ErrUnknownRuleKind is returned for a RuleSpec whose kind has no computation.
	ErrUnknownRuleKind = errors.New("unknown rule kind")

	// ErrMalformedTable is returned when a result is not a rectangular table.
	ErrMalformedTable = errors.New("malformed result table")
)

// ============================================================================
// STRUCTURED ERRORS: Carry additional context
// ============================================================================

// RuleError is a failed rule computation. It is terminal: once a rule has
// been selected, its failure is reported to the user and no other rule or
// fallback is tried.
type RuleError struct {
	RuleID string
	Metric dataset.MetricName
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s failed: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// MissingMetricError names the metric that was absent.
type MissingMetricError struct {
	Metric dataset.MetricName
}

func (e *MissingMetricError) Error() string {
	return fmt.Sprintf("%s is not present in the data", e.Metric)
}

func (e *MissingMetricError) Unwrap() error { return ErrMissingMetric }

// ============================================================================
// ERROR HELPERS
// ============================================================================

// IsTerminal reports whether err ends the resolution of a question.
func IsTerminal(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}
