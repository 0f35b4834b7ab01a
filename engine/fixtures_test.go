package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/storequery/dataset"
	"github.com/spektr-org/storequery/extract"
)

func ob(year int, month time.Month, store string, metric dataset.MetricName, amount string) dataset.Observation {
	return dataset.Observation{
		Month:  dataset.NewMonth(year, month),
		Store:  dataset.StoreID(store),
		Metric: metric,
		Amount: decimal.RequireFromString(amount),
	}
}

// salesFixture has Net Sales for three stores over two months and some
// marketing spend.
func salesFixture() *dataset.Table {
	return dataset.MustTable([]dataset.Observation{
		ob(2024, time.November, "ITPL", dataset.NetSales, "7000000"),
		ob(2024, time.November, "EGL", dataset.NetSales, "4000000"),
		ob(2024, time.December, "ITPL", dataset.NetSales, "6565784.70"),
		ob(2024, time.December, "EGL", dataset.NetSales, "5000000"),
		ob(2024, time.December, "ANN", dataset.NetSales, "3000000"),
		ob(2024, time.November, "EGL", dataset.Marketing, "200000"),
		ob(2024, time.December, "EGL", dataset.Marketing, "250000"),
		ob(2024, time.December, "ANN", dataset.Marketing, "300000"),
	})
}

func ask(t *testing.T, tbl *dataset.Table, question string, opts ...Option) (*Result, error) {
	t.Helper()
	ent := extract.ForTable(tbl).Extract(question)
	return ForTable(tbl, opts...).Dispatch(ent, NewTableView(tbl))
}

func mustAsk(t *testing.T, tbl *dataset.Table, question string, opts ...Option) *Result {
	t.Helper()
	res, err := ask(t, tbl, question, opts...)
	require.NoError(t, err, question)
	require.NotNil(t, res.Table)
	require.NoError(t, res.Table.Validate())
	return res
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
