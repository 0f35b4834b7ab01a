package schema

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/spektr-org/storequery/dataset"
)

// ============================================================================
// NORMALIZER: Any uploaded sheet → (month, store, metric, amount)
// ============================================================================
// Recognized layouts per sheet:
//   long     Month | Store | Metric | Amount
//   wide A   Store | [Month] | <metric> | <metric> ...   (month per sheet or column)
//   wide B   <metric label> | <STORE> | <STORE> ...      (transposed P&L, month per sheet)
//
// A sheet that cannot be read is skipped with a Warning; the load fails only
// when no sheet yields observations.
// ============================================================================

// ErrNoUsableSheets is returned when every sheet was skipped.
var ErrNoUsableSheets = errors.New("no usable sheets")

// Warning records a per-sheet problem. Skipped is true when the whole sheet
// was dropped.
type Warning struct {
	Sheet   string `json:"sheet"`
	Reason  string `json:"reason"`
	Skipped bool   `json:"skipped"`
}

// NoUsableSheetsError carries the warnings that explain an empty load.
type NoUsableSheetsError struct {
	Warnings []Warning
}

func (e *NoUsableSheetsError) Error() string {
	reasons := make([]string, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		reasons = append(reasons, fmt.Sprintf("%s: %s", w.Sheet, w.Reason))
	}
	return fmt.Sprintf("%s (%s)", ErrNoUsableSheets, strings.Join(reasons, "; "))
}

func (e *NoUsableSheetsError) Unwrap() error { return ErrNoUsableSheets }

// Sheet is one grid of raw cells.
type Sheet struct {
	Name string
	Rows [][]string
}

// Normalized is the outcome of a load.
type Normalized struct {
	Source         string
	Table          *dataset.Table
	Warnings       []Warning
	SkippedColumns []SkippedColumn
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithDuplicatePolicy sets how repeated (month, store, metric) keys combine.
func WithDuplicatePolicy(p dataset.DuplicatePolicy) Option {
	return func(n *Normalizer) {
		n.policy = p
	}
}

// Normalizer turns uploads into dataset tables. It holds no per-load state
// and is safe for concurrent use.
type Normalizer struct {
	policy dataset.DuplicatePolicy
}

// New creates a Normalizer. Duplicates are summed unless configured otherwise.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{policy: dataset.DuplicateSum}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Load sniffs the payload (extension, then zip magic) and dispatches to
// FromWorkbook or FromCSV.
func Load(name string, r io.Reader) (*Normalized, error) {
	return New().Load(name, r)
}

// Load reads the whole payload and normalizes it.
func (n *Normalizer) Load(name string, r io.Reader) (*Normalized, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if isWorkbook(name, data) {
		res, err := n.FromWorkbook(bytes.NewReader(data))
		if res != nil {
			res.Source = name
		}
		return res, err
	}
	return n.FromCSV(bytes.NewReader(data), name)
}

func isWorkbook(name string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return true
	case ".csv", ".txt":
		return false
	}
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// FromCSV normalizes a single CSV sheet. A UTF-8 BOM is stripped; name
// (without extension) doubles as the sheet name for month detection.
func (n *Normalizer) FromCSV(r io.Reader, name string) (*Normalized, error) {
	decoder := xunicode.BOMOverride(xunicode.UTF8.NewDecoder())
	reader := csv.NewReader(transform.NewReader(r, decoder))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV %s: %w", name, err)
		}
		rows = append(rows, row)
	}

	sheetName := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	res, err := n.FromSheets([]Sheet{{Name: sheetName, Rows: rows}})
	if res != nil {
		res.Source = name
	}
	return res, err
}

// FromWorkbook normalizes every sheet of an XLSX workbook.
func (n *Normalizer) FromWorkbook(r io.Reader) (*Normalized, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	var warnings []Warning
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			warnings = append(warnings, Warning{Sheet: name, Reason: err.Error(), Skipped: true})
			continue
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}

	res, err := n.FromSheets(sheets)
	if err != nil {
		var nu *NoUsableSheetsError
		if errors.As(err, &nu) {
			nu.Warnings = append(warnings, nu.Warnings...)
		}
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

// FromSheets normalizes pre-read grids.
func (n *Normalizer) FromSheets(sheets []Sheet) (*Normalized, error) {
	var (
		all      []dataset.Observation
		warnings []Warning
		skipped  []SkippedColumn
		seen     = map[string]bool{}
	)

	for _, sh := range sheets {
		p := &sheetParser{sheet: sh, skippedSeen: seen}
		obs, err := p.parse()
		warnings = append(warnings, p.warnings...)
		skipped = append(skipped, p.skipped...)
		if err != nil {
			log.Printf("⚠️  Skipping sheet %q: %v", sh.Name, err)
			warnings = append(warnings, Warning{Sheet: sh.Name, Reason: err.Error(), Skipped: true})
			continue
		}
		all = append(all, obs...)
	}

	if len(all) == 0 {
		if len(warnings) == 0 {
			warnings = append(warnings, Warning{Reason: "no sheets", Skipped: true})
		}
		return nil, &NoUsableSheetsError{Warnings: warnings}
	}

	table, err := dataset.NewTable(all, n.policy)
	if err != nil {
		return nil, fmt.Errorf("failed to build table: %w", err)
	}

	log.Printf("✅ Normalized %d observations (%d stores, %d metrics, %d months)",
		table.Len(), len(table.Stores()), len(table.Metrics()), len(table.Months()))

	return &Normalized{
		Table:          table,
		Warnings:       warnings,
		SkippedColumns: skipped,
	}, nil
}

// ============================================================================
// SHEET PARSER
// ============================================================================

type layout int

const (
	layoutLong layout = iota + 1
	layoutWideStores
	layoutWideMetrics
)

type sheetParser struct {
	sheet       Sheet
	warnings    []Warning
	skipped     []SkippedColumn
	skippedSeen map[string]bool

	badCells  int
	badMonths int
}

func (p *sheetParser) parse() ([]dataset.Observation, error) {
	headerIdx := findHeaderRow(p.sheet.Rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row found")
	}
	header := trimCells(p.sheet.Rows[headerIdx])
	body := p.sheet.Rows[headerIdx+1:]

	var (
		obs []dataset.Observation
		err error
	)
	switch detectLayout(header, body) {
	case layoutLong:
		obs, err = p.parseLong(header, body)
	case layoutWideStores:
		obs, err = p.parseWideStores(header, body)
	case layoutWideMetrics:
		obs, err = p.parseWideMetrics(header, body)
	default:
		return nil, fmt.Errorf("unrecognized layout (header %q)", strings.Join(header, ", "))
	}
	if err != nil {
		return nil, err
	}

	if p.badCells > 0 {
		p.warn(fmt.Sprintf("%d non-numeric cells ignored", p.badCells))
	}
	if p.badMonths > 0 {
		p.warn(fmt.Sprintf("%d rows with unreadable month ignored", p.badMonths))
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations")
	}
	return obs, nil
}

func (p *sheetParser) warn(reason string) {
	p.warnings = append(p.warnings, Warning{Sheet: p.sheet.Name, Reason: reason})
}

func (p *sheetParser) skip(label, reason string) {
	key := Fold(label) + "|" + reason
	if p.skippedSeen[key] {
		return
	}
	p.skippedSeen[key] = true
	p.skipped = append(p.skipped, SkippedColumn{Column: strings.TrimSpace(label), Reason: reason})
}

// metricFor applies the drop rules to a label; ok is false when dropped.
func (p *sheetParser) metricFor(label string) (dataset.MetricName, bool) {
	label = strings.TrimSpace(label)
	switch {
	case label == "":
		return "", false
	case IsTotalLabel(label):
		return "", false
	case IsPercentLabel(label):
		p.skip(label, "percentage column")
		return "", false
	}
	m := MetricLabel(label)
	if dataset.IsDerived(m) {
		p.skip(label, fmt.Sprintf("derived metric %s is recomputed from base metrics", m))
		return "", false
	}
	return m, true
}

func (p *sheetParser) amount(cell string) (dataset.Observation, bool) {
	d, ok, err := ParseAmount(cell)
	if err != nil {
		p.badCells++
		return dataset.Observation{}, false
	}
	return dataset.Observation{Amount: d}, ok
}

// sheetMonth reads the month from the sheet name ("Dec 24", "P&L May-24").
func (p *sheetParser) sheetMonth() (dataset.Month, bool) {
	return monthFromText(p.sheet.Name)
}

func monthFromText(text string) (dataset.Month, bool) {
	if m, err := dataset.ParseMonth(text); err == nil {
		return m, true
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == '\'' || r == '/'
	})
	for i := 0; i+1 < len(fields); i++ {
		if m, err := dataset.ParseMonth(fields[i] + " " + fields[i+1]); err == nil {
			return m, true
		}
	}
	for _, f := range fields {
		if m, err := dataset.ParseMonth(splitAlphaNum(f)); err == nil {
			return m, true
		}
	}
	return dataset.Month{}, false
}

// splitAlphaNum turns "May24" into "May 24".
func splitAlphaNum(s string) string {
	for i, r := range s {
		if i > 0 && unicode.IsDigit(r) != unicode.IsDigit(rune(s[i-1])) {
			return s[:i] + " " + s[i:]
		}
	}
	return s
}

func (p *sheetParser) parseLong(header []string, body [][]string) ([]dataset.Observation, error) {
	col := map[headerRole]int{}
	for i, h := range header {
		if r := roleOf(h); r != headerNone {
			if _, dup := col[r]; !dup {
				col[r] = i
			}
		}
	}

	var obs []dataset.Observation
	for _, row := range body {
		store := normalizeStore(cell(row, col[headerStore]))
		if store == "" {
			continue
		}
		metric, ok := p.metricFor(cell(row, col[headerMetric]))
		if !ok {
			continue
		}
		month, ok := monthFromText(cell(row, col[headerMonth]))
		if !ok {
			p.badMonths++
			continue
		}
		o, ok := p.amount(cell(row, col[headerAmount]))
		if !ok {
			continue
		}
		o.Month, o.Store, o.Metric = month, store, metric
		obs = append(obs, o)
	}
	return obs, nil
}

func (p *sheetParser) parseWideStores(header []string, body [][]string) ([]dataset.Observation, error) {
	storeCol, monthCol := -1, -1
	for i, h := range header {
		switch roleOf(h) {
		case headerStore:
			if storeCol < 0 {
				storeCol = i
			}
		case headerMonth:
			if monthCol < 0 {
				monthCol = i
			}
		}
	}

	sheetMonth, hasSheetMonth := p.sheetMonth()
	if monthCol < 0 && !hasSheetMonth {
		return nil, fmt.Errorf("no month column and sheet name %q is not a month", p.sheet.Name)
	}

	metrics := map[int]dataset.MetricName{}
	for i, h := range header {
		if i == storeCol || i == monthCol {
			continue
		}
		if m, ok := p.metricFor(h); ok {
			metrics[i] = m
		}
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("no metric columns")
	}

	var obs []dataset.Observation
	for _, row := range body {
		store := normalizeStore(cell(row, storeCol))
		if store == "" {
			continue
		}
		month := sheetMonth
		if monthCol >= 0 {
			m, ok := monthFromText(cell(row, monthCol))
			switch {
			case ok:
				month = m
			case !hasSheetMonth:
				p.badMonths++
				continue
			}
		}
		for i := range header {
			metric, ok := metrics[i]
			if !ok {
				continue
			}
			o, ok := p.amount(cell(row, i))
			if !ok {
				continue
			}
			o.Month, o.Store, o.Metric = month, store, metric
			obs = append(obs, o)
		}
	}
	return obs, nil
}

func (p *sheetParser) parseWideMetrics(header []string, body [][]string) ([]dataset.Observation, error) {
	month, ok := p.sheetMonth()
	if !ok {
		return nil, fmt.Errorf("sheet name %q is not a month", p.sheet.Name)
	}

	stores := map[int]dataset.StoreID{}
	for i, h := range header[1:] {
		if looksLikeStoreCode(h) {
			stores[i+1] = normalizeStore(h)
		}
	}

	var obs []dataset.Observation
	for _, row := range body {
		metric, ok := p.metricFor(cell(row, 0))
		if !ok {
			continue
		}
		for i := 1; i < len(header); i++ {
			store, ok := stores[i]
			if !ok {
				continue
			}
			o, ok := p.amount(cell(row, i))
			if !ok {
				continue
			}
			o.Month, o.Store, o.Metric = month, store, metric
			obs = append(obs, o)
		}
	}
	return obs, nil
}

// ============================================================================
// LAYOUT DETECTION
// ============================================================================

// findHeaderRow returns the first row with at least two non-empty cells that
// names a known header, metric or store code. Leading blank or title rows are
// skipped.
func findHeaderRow(rows [][]string) int {
	for i, row := range rows {
		nonEmpty := 0
		recognized := false
		for _, c := range row {
			c = strings.TrimSpace(c)
			if isBlankCell(c) {
				continue
			}
			nonEmpty++
			if roleOf(c) != headerNone || looksLikeStoreCode(c) {
				recognized = true
			} else if _, ok := CanonicalMetric(c); ok {
				recognized = true
			}
		}
		if nonEmpty >= 2 && recognized {
			return i
		}
	}
	return -1
}

func detectLayout(header []string, body [][]string) layout {
	roles := map[headerRole]bool{}
	for _, h := range header {
		roles[roleOf(h)] = true
	}
	if roles[headerMonth] && roles[headerStore] && roles[headerMetric] && roles[headerAmount] {
		return layoutLong
	}
	if roles[headerStore] {
		return layoutWideStores
	}

	if len(header) < 2 {
		return 0
	}
	storeCols := 0
	for _, h := range header[1:] {
		if looksLikeStoreCode(h) {
			storeCols++
		}
	}
	metricRows := 0
	for _, row := range body {
		if _, ok := CanonicalMetric(cell(row, 0)); ok {
			metricRows++
		}
	}
	if storeCols > 0 && metricRows > 0 {
		return layoutWideMetrics
	}
	return 0
}

// looksLikeStoreCode accepts short uppercase codes such as "EGL" or "ITPL2".
func looksLikeStoreCode(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 8 || IsTotalLabel(s) {
		return false
	}
	letters := 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	if letters == 0 {
		return false
	}
	if _, ok := dataset.LookupMonthName(s); ok {
		return false
	}
	if _, ok := exactMetrics[Fold(s)]; ok {
		return false
	}
	return roleOf(s) == headerNone
}

func normalizeStore(s string) dataset.StoreID {
	s = strings.TrimSpace(s)
	if isBlankCell(s) || IsTotalLabel(s) {
		return ""
	}
	return dataset.StoreID(strings.ToUpper(s))
}

func isBlankCell(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none", "#n/a", "n/a":
		return true
	}
	return false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
