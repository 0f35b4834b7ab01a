package dataset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// PERIODS: Calendar months tagged to an April-start fiscal year
// ============================================================================
// Canonical tokens:
//   Month       "Dec 24"
//   Quarter     "Q3 FY24"   (Q1 = Apr–Jun … Q4 = Jan–Mar of the next calendar year)
//   FiscalYear  "FY24"      (Apr 2024 → Mar 2025)
//
// Every textual form is normalized to one of these before filtering.
// ============================================================================

// FiscalYearStart is the first calendar month of a fiscal year.
const FiscalYearStart = time.April

// Month is a calendar month. The zero value means "no month".
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth builds a Month; out-of-range months are carried into the year.
func NewMonth(year int, month time.Month) Month {
	return MonthFromIndex(year*12 + int(month) - 1)
}

// MonthFromIndex is the inverse of Month.Index.
func MonthFromIndex(i int) Month {
	y := i / 12
	m := i % 12
	if m < 0 {
		m += 12
		y--
	}
	return Month{Year: y, Month: time.Month(m + 1)}
}

// IsZero reports whether m is unset.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Index returns a monotone integer usable for ordering and lag arithmetic.
func (m Month) Index() int { return m.Year*12 + int(m.Month) - 1 }

// Add moves n months forward (or backward for negative n).
func (m Month) Add(n int) Month { return MonthFromIndex(m.Index() + n) }

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool { return m.Index() < o.Index() }

// Token returns the canonical "Dec 24" form.
func (m Month) Token() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %02d", m.Month.String()[:3], m.Year%100)
}

func (m Month) String() string { return m.Token() }

// Start returns the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the month.
func (m Month) End() time.Time {
	return m.Add(1).Start().AddDate(0, 0, -1)
}

// FiscalYear returns the calendar year in which m's fiscal year starts.
func (m Month) FiscalYear() int {
	if m.Month >= FiscalYearStart {
		return m.Year
	}
	return m.Year - 1
}

// FiscalQuarter returns 1–4, Q1 being April–June.
func (m Month) FiscalQuarter() int {
	offset := (int(m.Month) - int(FiscalYearStart) + 12) % 12
	return offset/3 + 1
}

// MarshalText encodes the canonical token.
func (m Month) MarshalText() ([]byte, error) { return []byte(m.Token()), nil }

// UnmarshalText accepts any form ParseMonth accepts.
func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ============================================================================
// MONTH PARSING
// ============================================================================

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// LookupMonthName resolves "dec", "Sept" or "December" to a time.Month.
// At least the first three letters are required.
func LookupMonthName(word string) (time.Month, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	if len(word) < 3 {
		return 0, false
	}
	for i, full := range monthNames {
		if strings.HasPrefix(full, word) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

var (
	monthSeparators = strings.NewReplacer("'", " ", "’", " ", ",", " ", "-", " ", "/", " ", ".", " ", "_", " ")
	nameYearRe      = regexp.MustCompile(`^([a-z]{3,9})\s*(\d{2}|\d{4})$`)
	yearNameRe      = regexp.MustCompile(`^(\d{2}|\d{4})\s*([a-z]{3,9})$`)
	isoMonthRe      = regexp.MustCompile(`^(\d{4})\s+(\d{1,2})(?:\s+\d{1,2})?(?:\s+\d{2}:\d{2}(?::\d{2})?)?$`)
	numMonthYearRe  = regexp.MustCompile(`^(\d{1,2})\s+(\d{4})$`)
)

// ParseMonth normalizes "Dec 24", "December 2024", "24-Dec", "Dec-2024",
// "dec'24", "2024-12" and "12/2024" into a Month.
func ParseMonth(s string) (Month, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	text = strings.Join(strings.Fields(monthSeparators.Replace(text)), " ")
	if text == "" {
		return Month{}, fmt.Errorf("empty month")
	}

	if m := nameYearRe.FindStringSubmatch(text); m != nil {
		if mon, ok := LookupMonthName(m[1]); ok {
			return Month{Year: expandYear(m[2]), Month: mon}, nil
		}
	}
	if m := yearNameRe.FindStringSubmatch(text); m != nil {
		if mon, ok := LookupMonthName(m[2]); ok {
			return Month{Year: expandYear(m[1]), Month: mon}, nil
		}
	}
	if m := isoMonthRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		mon, _ := strconv.Atoi(m[2])
		if mon >= 1 && mon <= 12 {
			return Month{Year: year, Month: time.Month(mon)}, nil
		}
	}
	if m := numMonthYearRe.FindStringSubmatch(text); m != nil {
		mon, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if mon >= 1 && mon <= 12 {
			return Month{Year: year, Month: time.Month(mon)}, nil
		}
	}
	return Month{}, fmt.Errorf("unrecognized month %q", s)
}

// expandYear turns "24" into 2024 and leaves 4-digit years alone.
func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) <= 2 {
		return 2000 + y
	}
	return y
}

// ============================================================================
// TIME PERIOD
// ============================================================================

// PeriodKind discriminates TimePeriod.
type PeriodKind int

const (
	PeriodMonth PeriodKind = iota + 1
	PeriodQuarter
	PeriodFiscalYear
)

func (k PeriodKind) String() string {
	switch k {
	case PeriodMonth:
		return "month"
	case PeriodQuarter:
		return "quarter"
	case PeriodFiscalYear:
		return "fiscal_year"
	default:
		return "unknown"
	}
}

// TimePeriod is a month, a fiscal quarter or a fiscal year.
// FiscalYear holds the calendar year the fiscal year starts in (FY24 → 2024).
type TimePeriod struct {
	Kind       PeriodKind
	Month      Month
	Quarter    int
	FiscalYear int
}

// MonthPeriod wraps a single month.
func MonthPeriod(m Month) TimePeriod {
	return TimePeriod{Kind: PeriodMonth, Month: m, FiscalYear: m.FiscalYear(), Quarter: m.FiscalQuarter()}
}

// QuarterPeriod builds fiscal quarter q (1–4) of fiscal year fy.
func QuarterPeriod(fy, q int) TimePeriod {
	return TimePeriod{Kind: PeriodQuarter, Quarter: q, FiscalYear: fy}
}

// FiscalYearPeriod builds the April-start fiscal year fy.
func FiscalYearPeriod(fy int) TimePeriod {
	return TimePeriod{Kind: PeriodFiscalYear, FiscalYear: fy}
}

// Token returns the canonical token ("Dec 24", "Q3 FY24", "FY24").
func (p TimePeriod) Token() string {
	switch p.Kind {
	case PeriodMonth:
		return p.Month.Token()
	case PeriodQuarter:
		return fmt.Sprintf("Q%d FY%02d", p.Quarter, p.FiscalYear%100)
	case PeriodFiscalYear:
		return fmt.Sprintf("FY%02d", p.FiscalYear%100)
	}
	return ""
}

func (p TimePeriod) String() string { return p.Token() }

// First returns the earliest month of the period.
func (p TimePeriod) First() Month {
	switch p.Kind {
	case PeriodMonth:
		return p.Month
	case PeriodQuarter:
		return NewMonth(p.FiscalYear, FiscalYearStart).Add(3 * (p.Quarter - 1))
	case PeriodFiscalYear:
		return NewMonth(p.FiscalYear, FiscalYearStart)
	}
	return Month{}
}

// Last returns the latest month of the period.
func (p TimePeriod) Last() Month {
	switch p.Kind {
	case PeriodMonth:
		return p.Month
	case PeriodQuarter:
		return p.First().Add(2)
	case PeriodFiscalYear:
		return p.First().Add(11)
	}
	return Month{}
}

// Months lists every calendar month in the period, ascending.
func (p TimePeriod) Months() []Month {
	first, last := p.First(), p.Last()
	if first.IsZero() {
		return nil
	}
	out := make([]Month, 0, last.Index()-first.Index()+1)
	for i := first.Index(); i <= last.Index(); i++ {
		out = append(out, MonthFromIndex(i))
	}
	return out
}

// Contains reports whether month m falls inside the period.
func (p TimePeriod) Contains(m Month) bool {
	if p.Kind == 0 || m.IsZero() {
		return false
	}
	i := m.Index()
	return i >= p.First().Index() && i <= p.Last().Index()
}

// Start returns the first calendar day of the period.
func (p TimePeriod) Start() time.Time { return p.First().Start() }

// End returns the last calendar day of the period.
func (p TimePeriod) End() time.Time { return p.Last().End() }

// MarshalText encodes the canonical token.
func (p TimePeriod) MarshalText() ([]byte, error) { return []byte(p.Token()), nil }

// UnmarshalText decodes a canonical token.
func (p *TimePeriod) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriodToken(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

var (
	quarterTokenRe = regexp.MustCompile(`^q([1-4])\s*fy\s*(\d{2}|\d{4})$`)
	fyTokenRe      = regexp.MustCompile(`^fy\s*(\d{2}|\d{4})$`)
)

// ParsePeriodToken inverts TimePeriod.Token. Month tokens go through ParseMonth.
func ParsePeriodToken(token string) (TimePeriod, error) {
	t := strings.ToLower(strings.TrimSpace(token))
	if m := quarterTokenRe.FindStringSubmatch(t); m != nil {
		q, _ := strconv.Atoi(m[1])
		return QuarterPeriod(expandYear(m[2]), q), nil
	}
	if m := fyTokenRe.FindStringSubmatch(t); m != nil {
		return FiscalYearPeriod(expandYear(m[1])), nil
	}
	month, err := ParseMonth(token)
	if err != nil {
		return TimePeriod{}, fmt.Errorf("unrecognized period %q", token)
	}
	return MonthPeriod(month), nil
}
