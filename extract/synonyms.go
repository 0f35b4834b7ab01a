package extract

import "github.com/spektr-org/storequery/dataset"

// Synonym maps a question phrase onto a canonical metric.
type Synonym struct {
	Phrase string             `json:"phrase" yaml:"phrase"`
	Metric dataset.MetricName `json:"metric" yaml:"metric"`
}

// DefaultSynonyms is the ordered synonym table. The first phrase found in a
// question wins, so longer and more specific phrases come first: "gross
// revenue" before "revenue", "gross margin %" before "gross margin", every
// cost line before the generic "sales".
func DefaultSynonyms() []Synonym {
	return []Synonym{
		{"gross margin %", dataset.GrossMarginPct},
		{"gross margin percent", dataset.GrossMarginPct},
		{"gross margin percentage", dataset.GrossMarginPct},
		{"gm %", dataset.GrossMarginPct},
		{"margin %", dataset.GrossMarginPct},

		{"gross revenue", dataset.GrossSales},
		{"gross sales", dataset.GrossSales},

		{"gross margin", dataset.GrossMargin},
		{"gross profit", dataset.GrossMargin},
		{"gm", dataset.GrossMargin},

		{"other opex", dataset.OtherOpex},
		{"other expenses", dataset.OtherOpex},
		{"operating cost", dataset.OperatingCost},
		{"operating costs", dataset.OperatingCost},
		{"operating expenses", dataset.OperatingCost},
		{"total opex", dataset.OperatingCost},

		{"operating profit", dataset.EBITDA},
		{"ebitda", dataset.EBITDA},
		{"profit", dataset.EBITDA},

		{"cost of goods sold", dataset.COGS},
		{"cost of goods", dataset.COGS},
		{"food cost", dataset.COGS},
		{"cogs", dataset.COGS},

		{"aggregator commission", dataset.AggregatorCommission},
		{"commission", dataset.AggregatorCommission},

		{"marketing", dataset.Marketing},
		{"advertisement", dataset.Marketing},
		{"advertising", dataset.Marketing},

		{"labor cost", dataset.LaborCost},
		{"labour cost", dataset.LaborCost},
		{"labor", dataset.LaborCost},
		{"labour", dataset.LaborCost},
		{"staff cost", dataset.LaborCost},
		{"salaries", dataset.LaborCost},

		{"utility cost", dataset.UtilityCost},
		{"utilities", dataset.UtilityCost},
		{"utility", dataset.UtilityCost},
		{"electricity", dataset.UtilityCost},

		{"rent", dataset.Rent},
		{"cam", dataset.CAM},
		{"common area maintenance", dataset.CAM},

		{"net sales", dataset.NetSales},
		{"net revenue", dataset.NetSales},
		{"revenue", dataset.NetSales},
		{"turnover", dataset.NetSales},
		{"sales", dataset.NetSales},
	}
}
