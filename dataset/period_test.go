package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonthForms(t *testing.T) {
	want := Month{Year: 2024, Month: time.December}
	for _, in := range []string{"Dec 24", "December 2024", "24-Dec", "Dec-2024", "dec'24", "2024-12", "12/2024", "DEC 2024", "2024-12-01 00:00:00"} {
		got, err := ParseMonth(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, "Dec 24", got.Token(), in)
	}
}

func TestParseMonthRejectsNoise(t *testing.T) {
	for _, in := range []string{"", "Total", "Marketing 24", "13/2024", "de 24"} {
		_, err := ParseMonth(in)
		assert.Error(t, err, in)
	}
}

func TestFiscalCalendar(t *testing.T) {
	apr := Month{Year: 2024, Month: time.April}
	assert.Equal(t, 2024, apr.FiscalYear())
	assert.Equal(t, 1, apr.FiscalQuarter())

	mar := Month{Year: 2025, Month: time.March}
	assert.Equal(t, 2024, mar.FiscalYear())
	assert.Equal(t, 4, mar.FiscalQuarter())

	dec := Month{Year: 2024, Month: time.December}
	assert.Equal(t, 3, dec.FiscalQuarter())
}

func TestQuarterMonths(t *testing.T) {
	p := QuarterPeriod(2024, 3)
	assert.Equal(t, "Q3 FY24", p.Token())
	assert.Equal(t, []Month{
		{Year: 2024, Month: time.October},
		{Year: 2024, Month: time.November},
		{Year: 2024, Month: time.December},
	}, p.Months())

	q4 := QuarterPeriod(2024, 4)
	assert.Equal(t, []Month{
		{Year: 2025, Month: time.January},
		{Year: 2025, Month: time.February},
		{Year: 2025, Month: time.March},
	}, q4.Months())
}

func TestFiscalYearRange(t *testing.T) {
	fy := FiscalYearPeriod(2024)
	assert.Equal(t, "FY24", fy.Token())
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), fy.Start())
	assert.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), fy.End())
	assert.Len(t, fy.Months(), 12)
	assert.True(t, fy.Contains(Month{Year: 2025, Month: time.March}))
	assert.False(t, fy.Contains(Month{Year: 2024, Month: time.March}))
}

func TestPeriodTokenRoundTrip(t *testing.T) {
	periods := []TimePeriod{
		MonthPeriod(Month{Year: 2024, Month: time.April}),
		QuarterPeriod(2024, 1),
		QuarterPeriod(2024, 3),
		QuarterPeriod(2023, 4),
		FiscalYearPeriod(2025),
	}
	for _, p := range periods {
		back, err := ParsePeriodToken(p.Token())
		require.NoError(t, err, p.Token())
		assert.Equal(t, p.Token(), back.Token())
		assert.Equal(t, p.Months(), back.Months(), p.Token())
	}
}

func TestMonthArithmetic(t *testing.T) {
	jan := Month{Year: 2025, Month: time.January}
	assert.Equal(t, Month{Year: 2024, Month: time.December}, jan.Add(-1))
	assert.Equal(t, Month{Year: 2026, Month: time.January}, jan.Add(12))
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), Month{Year: 2024, Month: time.February}.End())
}
