package dataset

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(month time.Month, store string, metric string, amount string) Observation {
	return Observation{
		Month:  Month{Year: 2024, Month: month},
		Store:  StoreID(store),
		Metric: MetricName(metric),
		Amount: decimal.RequireFromString(amount),
	}
}

func TestNewTableSumsDuplicates(t *testing.T) {
	tbl, err := NewTable([]Observation{
		obs(time.April, "EGL", "Rent", "100"),
		obs(time.April, "egl", "Rent", "50.5"),
	}, DuplicateSum)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())

	v, ok := tbl.Value(Month{Year: 2024, Month: time.April}, "EGL", "Rent")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("150.5").Equal(v))
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable([]Observation{
		obs(time.April, "EGL", "Rent", "100"),
		obs(time.April, "EGL", "Rent", "100"),
	}, DuplicateReject)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateObservation))

	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, StoreID("EGL"), dup.Store)
}

func TestTableOrderingAndAccessors(t *testing.T) {
	tbl := MustTable([]Observation{
		obs(time.May, "ITPL", "Net Sales", "2"),
		obs(time.April, "ITPL", "Net Sales", "1"),
		obs(time.April, "EGL", "COGS", "3"),
	})

	assert.Equal(t, []StoreID{"EGL", "ITPL"}, tbl.Stores())
	assert.Equal(t, []MetricName{"COGS", "Net Sales"}, tbl.Metrics())
	assert.Equal(t, []Month{{Year: 2024, Month: time.April}, {Year: 2024, Month: time.May}}, tbl.Months())
	assert.Equal(t, StoreID("EGL"), tbl.At(0).Store)
	assert.True(t, tbl.HasMetric("COGS"))
	assert.False(t, tbl.HasMetric("Rent"))
}

func TestFilterDoesNotMutate(t *testing.T) {
	tbl := MustTable([]Observation{
		obs(time.April, "EGL", "Rent", "1"),
		obs(time.April, "ITPL", "Rent", "2"),
	})
	only := tbl.Filter(func(o Observation) bool { return o.Store == "ITPL" })

	assert.Equal(t, 1, only.Len())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []StoreID{"EGL", "ITPL"}, tbl.Stores())
}

func TestPivot(t *testing.T) {
	tbl := MustTable([]Observation{
		obs(time.April, "EGL", "Net Sales", "10"),
		obs(time.April, "EGL", "COGS", "4"),
		obs(time.April, "ITPL", "Net Sales", "20"),
		obs(time.May, "EGL", "Net Sales", "11"),
	})
	rows := tbl.Pivot()
	require.Len(t, rows, 3)

	assert.Equal(t, StoreID("EGL"), rows[0].Store)
	assert.Len(t, rows[0].Values, 2)
	assert.Equal(t, StoreID("ITPL"), rows[1].Store)
	assert.Equal(t, time.May, rows[2].Month.Month)
}

func TestEqualIgnoresID(t *testing.T) {
	a := MustTable([]Observation{obs(time.April, "EGL", "Rent", "1.50")})
	b := MustTable([]Observation{obs(time.April, "EGL", "Rent", "1.5")})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.True(t, a.Equal(b))
}
