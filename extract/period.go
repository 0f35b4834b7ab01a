package extract

import (
	"regexp"
	"strconv"

	"github.com/spektr-org/storequery/dataset"
)

// Period forms, tried in this order: quarter, fiscal year, month.
var (
	quarterFirstRe = regexp.MustCompile(`\bq\s?([1-4])\s?fy\s?(\d{4}|\d{2})\b`)
	fyFirstRe      = regexp.MustCompile(`\bfy\s?(\d{4}|\d{2})(?:\s\d{2})?\s?q\s?([1-4])\b`)
	fiscalYearRe   = regexp.MustCompile(`\bfy\s?(\d{4}|\d{2})\b`)
	nameYearRe     = regexp.MustCompile(`\b([a-z]{3,9})\s?(\d{4}|\d{2})\b`)
	yearNameRe     = regexp.MustCompile(`\b(\d{4}|\d{2})\s?([a-z]{3,9})\b`)
)

// FindPeriod extracts the first period mentioned in a normalized question.
// "FY2024-25" normalizes to "fy2024 25" and reads as FY24.
func FindPeriod(q string) (dataset.TimePeriod, bool) {
	if m := quarterFirstRe.FindStringSubmatch(q); m != nil {
		quarter, _ := strconv.Atoi(m[1])
		return dataset.QuarterPeriod(expandYear(m[2]), quarter), true
	}
	if m := fyFirstRe.FindStringSubmatch(q); m != nil {
		quarter, _ := strconv.Atoi(m[2])
		return dataset.QuarterPeriod(expandYear(m[1]), quarter), true
	}
	if m := fiscalYearRe.FindStringSubmatch(q); m != nil {
		return dataset.FiscalYearPeriod(expandYear(m[1])), true
	}
	for _, m := range nameYearRe.FindAllStringSubmatch(q, -1) {
		if mon, ok := dataset.LookupMonthName(m[1]); ok {
			return dataset.MonthPeriod(dataset.Month{Year: expandYear(m[2]), Month: mon}), true
		}
	}
	for _, m := range yearNameRe.FindAllStringSubmatch(q, -1) {
		if mon, ok := dataset.LookupMonthName(m[2]); ok {
			return dataset.MonthPeriod(dataset.Month{Year: expandYear(m[1]), Month: mon}), true
		}
	}
	return dataset.TimePeriod{}, false
}

func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) <= 2 {
		return 2000 + y
	}
	return y
}
