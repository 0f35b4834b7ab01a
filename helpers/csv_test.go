package helpers

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/schema"
)

func TestLongCSVRoundTrip(t *testing.T) {
	wide := "Month,Store,Net Sales,COGS,Rent\n" +
		"Dec 24,EGL,\"1,000.50\",400,100\n" +
		"Dec 24,ITPL,2000,,150\n" +
		"Nov 24,EGL,900,350,100\n"

	first, err := schema.New().FromCSV(strings.NewReader(wide), "wide.csv")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteLongCSV(&buf, first.Table))
	assert.True(t, strings.HasPrefix(buf.String(), "Month,Store,Metric,Amount\n"))

	second, err := schema.New().FromCSV(strings.NewReader(buf.String()), "long.csv")
	require.NoError(t, err)
	assert.True(t, first.Table.Equal(second.Table))

	var again bytes.Buffer
	require.NoError(t, WriteLongCSV(&again, second.Table))
	assert.Equal(t, buf.String(), again.String())
}

func resultTable() *engine.ResultTable {
	return &engine.ResultTable{
		KeyColumns:   []engine.Column{{Key: "month", Label: "Month"}, {Key: "store", Label: "Store"}},
		ValueColumns: []engine.Column{{Key: "change", Label: "MoM change %"}},
		Rows: []engine.ResultRow{
			{Keys: []string{"Nov 24", "EGL"}, Values: []decimal.NullDecimal{{}}},
			{Keys: []string{"Dec 24", "EGL"}, Values: []decimal.NullDecimal{decimal.NewNullDecimal(decimal.NewFromInt(25))}},
		},
	}
}

func TestWriteResultCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultCSV(&buf, resultTable()))
	assert.Equal(t, "Month,Store,MoM change %\nNov 24,EGL,\nDec 24,EGL,25.00\n", buf.String())

	bad := resultTable()
	bad.Rows[0].Keys = bad.Rows[0].Keys[:1]
	assert.ErrorIs(t, WriteResultCSV(&buf, bad), engine.ErrMalformedTable)
}

func TestWriteResultXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultXLSX(&buf, resultTable(), "MoM"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("MoM")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Month", "Store", "MoM change %"}, rows[0])
	assert.Equal(t, []string{"Nov 24", "EGL"}, rows[1])
	assert.Equal(t, "25", rows[2][2])
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "top_stores_by_net_sales", FileStem("Top stores by Net Sales"))
	assert.Equal(t, "gross_margin_pct_as_pct_of_net_sales", FileStem("Gross Margin % as % of Net Sales"))
	assert.Equal(t, "result", FileStem("  "))
}
