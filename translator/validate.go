package translator

import (
	"fmt"

	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/schema"
)

// ============================================================================
// PLAN VALIDATION: Allow-list check before execution
// ============================================================================

var (
	allowedIntents = map[string]bool{"text": true, "table": true, "chart": true}

	allowedAggregations = map[string]bool{
		"sum": true, "count": true, "avg": true, "max": true, "min": true,
		"list": true, "growth": true, "ratio": true, "none": true,
	}

	allowedSorts = map[string]bool{
		"": true, "value_desc": true, "value_asc": true, "amount_desc": true, "amount_asc": true,
		"date_asc": true, "date_desc": true, "chronological": true, "reverse_chronological": true,
		"alpha_asc": true, "label_asc": true, "label_desc": true,
	}

	allowedVisuals = map[string]bool{
		"": true, "bar": true, "line": true, "pie": true, "stacked_bar": true,
		"area": true, "table": true, "text": true,
	}
)

// ValidatePlan rejects a plan that names anything the engine or the
// dataset does not offer. Errors wrap ErrUnsafePlan.
func ValidatePlan(spec engine.QuerySpec, sch schema.Config) error {
	if !allowedIntents[spec.Intent] {
		return unsafe("intent %q", spec.Intent)
	}
	if !allowedAggregations[spec.Aggregation] {
		return unsafe("aggregation %q", spec.Aggregation)
	}
	if !allowedSorts[spec.SortBy] {
		return unsafe("sortBy %q", spec.SortBy)
	}
	if !allowedVisuals[spec.Visualize] {
		return unsafe("visualize %q", spec.Visualize)
	}
	if spec.Measure != "" && !sch.HasMeasure(spec.Measure) {
		return unsafe("measure %q", spec.Measure)
	}
	if spec.Limit < 0 {
		return unsafe("limit %d", spec.Limit)
	}

	dims := allowedDimensions(sch)
	for _, g := range spec.GroupBy {
		if !dims[g] {
			return unsafe("groupBy %q", g)
		}
	}
	if err := validateFilters(spec.Filters, dims); err != nil {
		return err
	}
	if spec.CompareFilters != nil {
		if err := validateFilters(*spec.CompareFilters, dims); err != nil {
			return err
		}
	}
	return nil
}

func validateFilters(f engine.Filters, dims map[string]bool) error {
	for dim := range f.Dimensions {
		if !dims[dim] {
			return unsafe("filter on %q", dim)
		}
	}
	return nil
}

func allowedDimensions(sch schema.Config) map[string]bool {
	dims := map[string]bool{
		engine.DimQuarter:    true,
		engine.DimFiscalYear: true,
	}
	for _, k := range sch.DimensionKeys() {
		dims[k] = true
	}
	return dims
}

func unsafe(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnsafePlan}, args...)...)
}
