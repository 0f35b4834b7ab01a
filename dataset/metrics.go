package dataset

// Canonical metric vocabulary. Derived metrics are never stored in a Table;
// they are recomputed from base metrics on read.
const (
	NetSales             MetricName = "Net Sales"
	GrossSales           MetricName = "Gross Sales"
	COGS                 MetricName = "COGS"
	Rent                 MetricName = "Rent"
	UtilityCost          MetricName = "Utility Cost"
	AggregatorCommission MetricName = "Aggregator Commission"
	Marketing            MetricName = "Marketing"
	OtherOpex            MetricName = "Other Opex"
	LaborCost            MetricName = "Labor Cost"
	CAM                  MetricName = "CAM"

	GrossMargin    MetricName = "Gross Margin"
	GrossMarginPct MetricName = "Gross Margin %"
	OperatingCost  MetricName = "Operating Cost"
	EBITDA         MetricName = "EBITDA"
)

// BaseMetrics lists the stored vocabulary in display order.
func BaseMetrics() []MetricName {
	return []MetricName{
		NetSales, GrossSales, COGS, AggregatorCommission, Marketing,
		LaborCost, UtilityCost, OtherOpex, Rent, CAM,
	}
}

// DerivedMetrics lists the computed vocabulary in dependency order.
func DerivedMetrics() []MetricName {
	return []MetricName{GrossMargin, GrossMarginPct, OperatingCost, EBITDA}
}

// OperatingCostInputs are summed into Operating Cost.
func OperatingCostInputs() []MetricName {
	return []MetricName{AggregatorCommission, Marketing, LaborCost, UtilityCost, OtherOpex, Rent, CAM}
}

// IsDerived reports whether m is computed rather than stored.
func IsDerived(m MetricName) bool {
	for _, d := range DerivedMetrics() {
		if d == m {
			return true
		}
	}
	return false
}

// IsPercent reports whether m is a ratio expressed in percent.
func IsPercent(m MetricName) bool { return m == GrossMarginPct }

// DerivedInputs returns the metrics m is computed from (nil for base metrics).
func DerivedInputs(m MetricName) []MetricName {
	switch m {
	case GrossMargin:
		return []MetricName{NetSales, COGS}
	case GrossMarginPct:
		return []MetricName{NetSales, COGS, GrossSales}
	case OperatingCost:
		return OperatingCostInputs()
	case EBITDA:
		return append([]MetricName{NetSales, COGS}, OperatingCostInputs()...)
	}
	return nil
}

// Formula describes how a derived metric is computed.
func Formula(m MetricName) string {
	switch m {
	case GrossMargin:
		return "Net Sales - COGS"
	case GrossMarginPct:
		return "100 * Gross Margin / Gross Sales"
	case OperatingCost:
		return "Aggregator Commission + Marketing + Labor Cost + Utility Cost + Other Opex + Rent + CAM"
	case EBITDA:
		return "Net Sales - (COGS + Operating Cost)"
	}
	return ""
}
