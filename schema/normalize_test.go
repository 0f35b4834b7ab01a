package schema

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// NORMALIZER TESTS
// ============================================================================

var dec24 = dataset.Month{Year: 2024, Month: time.December}

func amountOf(t *testing.T, tbl *dataset.Table, m dataset.Month, store dataset.StoreID, metric dataset.MetricName) string {
	t.Helper()
	v, ok := tbl.Value(m, store, metric)
	require.True(t, ok, "%s/%s/%s missing", m, store, metric)
	return v.String()
}

func TestFromCSVLongWithBOM(t *testing.T) {
	data := "\ufeffMonth,Store,Metric,Amount\n" +
		"Dec 24,egl,Revenue,100\n" +
		"December 2024,EGL,Net Sales,50\n" +
		"24-Dec,EGL,Rent,\"₹1,200\"\n" +
		"Dec 24,EGL,Gross margin %,40\n" +
		"Dec 24,EGL,EBITDA,10\n" +
		"Dec 24,EGL,Marketing,-\n"

	res, err := New().FromCSV(strings.NewReader(data), "upload.csv")
	require.NoError(t, err)
	tbl := res.Table

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "150", amountOf(t, tbl, dec24, "EGL", dataset.NetSales))
	assert.Equal(t, "1200", amountOf(t, tbl, dec24, "EGL", dataset.Rent))
	assert.False(t, tbl.HasMetric(dataset.EBITDA))
	assert.Len(t, res.SkippedColumns, 2)
	assert.Equal(t, "upload.csv", res.Source)
}

func TestFromCSVWideWithMonthColumn(t *testing.T) {
	data := "Store P&L,,,,,\n" +
		",,,,,\n" +
		"Month,Store,Net Sales,COGS (food +packaging),Gross margin %,EBITDA\n" +
		"Dec 24,EGL,\"1,000.50\",400,60%,10\n" +
		"Dec 24,ITPL,2000,(50),,\n" +
		"Dec 24,Total,3000,350,,\n" +
		"Dec 24,ANN,n/a,abc,,\n"

	res, err := New().FromCSV(strings.NewReader(data), "pnl.csv")
	require.NoError(t, err)
	tbl := res.Table

	assert.Equal(t, []dataset.StoreID{"EGL", "ITPL"}, tbl.Stores())
	assert.Equal(t, []dataset.MetricName{dataset.COGS, dataset.NetSales}, tbl.Metrics())
	assert.Equal(t, "1000.5", amountOf(t, tbl, dec24, "EGL", dataset.NetSales))
	assert.Equal(t, "-50", amountOf(t, tbl, dec24, "ITPL", dataset.COGS))

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Reason, "1 non-numeric")
	assert.False(t, res.Warnings[0].Skipped)
}

func TestFromCSVMonthFromFileName(t *testing.T) {
	data := "Store,Net Sales,Rent\nEGL,100,10\n"
	res, err := New().FromCSV(strings.NewReader(data), "uploads/Dec-24.csv")
	require.NoError(t, err)
	assert.Equal(t, []dataset.Month{dec24}, res.Table.Months())
}

func TestFromCSVWithoutMonthFails(t *testing.T) {
	data := "Store,Net Sales\nEGL,100\n"
	_, err := New().FromCSV(strings.NewReader(data), "stores.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoUsableSheets))

	var nu *NoUsableSheetsError
	require.True(t, errors.As(err, &nu))
	require.Len(t, nu.Warnings, 1)
	assert.True(t, nu.Warnings[0].Skipped)
	assert.Contains(t, nu.Warnings[0].Reason, "not a month")
}

func TestDuplicateRejectPolicy(t *testing.T) {
	data := "Month,Store,Metric,Amount\nDec 24,EGL,Rent,1\nDec 24,EGL,Rent,2\n"
	_, err := New(WithDuplicatePolicy(dataset.DuplicateReject)).FromCSV(strings.NewReader(data), "d.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrDuplicateObservation))
}

func workbook(t *testing.T, sheets map[string][][]interface{}, order []string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cellName, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			row := row
			require.NoError(t, f.SetSheetRow(name, cellName, &row))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestFromWorkbookMonthPerSheet(t *testing.T) {
	data := workbook(t, map[string][][]interface{}{
		"Apr 24": {
			{"Store", "Net Sales", "Rent"},
			{"EGL", 100, 10},
			{"ITPL", 200, 20},
		},
		"May 24": {
			{"Store", "Net Sales", "Rent"},
			{"EGL", 110, 10},
		},
		"Notes": {
			{"prepared by finance"},
		},
	}, []string{"Apr 24", "May 24", "Notes"})

	res, err := Load("fy25.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	tbl := res.Table

	assert.Equal(t, 6, tbl.Len())
	assert.Len(t, tbl.Months(), 2)
	assert.Equal(t, "110", amountOf(t, tbl, dataset.Month{Year: 2024, Month: time.May}, "EGL", dataset.NetSales))

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "Notes", res.Warnings[0].Sheet)
	assert.True(t, res.Warnings[0].Skipped)
	assert.Equal(t, "fy25.xlsx", res.Source)
}

func TestFromWorkbookTransposed(t *testing.T) {
	data := workbook(t, map[string][][]interface{}{
		"Jun 24": {
			{"Particulars", "EGL", "ITPL", "Total"},
			{"Net Sales", 100, 200, 300},
			{"Gross Margin", 40, 80, 120},
			{"Delivery charges", 5, 6, 11},
		},
	}, []string{"Jun 24"})

	// Magic-byte sniffing, no extension.
	res, err := Load("upload", bytes.NewReader(data))
	require.NoError(t, err)
	tbl := res.Table

	jun := dataset.Month{Year: 2024, Month: time.June}
	assert.Equal(t, []dataset.StoreID{"EGL", "ITPL"}, tbl.Stores())
	assert.Equal(t, "200", amountOf(t, tbl, jun, "ITPL", dataset.NetSales))
	assert.Equal(t, "6", amountOf(t, tbl, jun, "ITPL", "Delivery Charges"))
	assert.False(t, tbl.HasMetric(dataset.GrossMargin))
}

func TestFromWorkbookAllSheetsBad(t *testing.T) {
	data := workbook(t, map[string][][]interface{}{
		"Readme": {{"nothing here"}},
	}, []string{"Readme"})

	_, err := Load("bad.xlsx", bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoUsableSheets))
}

func TestNormalizeCanonicalLongIsNoOp(t *testing.T) {
	data := "Month,Store,Metric,Amount\n" +
		"Apr 24,EGL,COGS,40.25\n" +
		"Apr 24,EGL,Net Sales,100\n" +
		"Apr 24,ITPL,Delivery Charges,7\n"

	first, err := New().FromCSV(strings.NewReader(data), "a.csv")
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString("Month,Store,Metric,Amount\n")
	for _, o := range first.Table.Observations() {
		b.WriteString(o.Month.Token() + "," + string(o.Store) + "," + string(o.Metric) + "," + o.Amount.String() + "\n")
	}
	second, err := New().FromCSV(strings.NewReader(b.String()), "b.csv")
	require.NoError(t, err)

	assert.True(t, first.Table.Equal(second.Table))
	assert.True(t, decimal.RequireFromString("40.25").Equal(first.Table.At(0).Amount))
}

func TestMonthFromText(t *testing.T) {
	for _, in := range []string{"Dec 24", "P&L Dec-24", "Dec24", "December 2024 Actuals"} {
		m, ok := monthFromText(in)
		require.True(t, ok, in)
		assert.Equal(t, dec24, m, in)
	}
	_, ok := monthFromText("Sheet1")
	assert.False(t, ok)
}
