package translator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/storequery/dataset"
	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/schema"
)

// fakeGenerator replays canned responses in order.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no more responses")
}

func fixture() (*dataset.Table, schema.Config, engine.RecordView) {
	var obs []dataset.Observation
	add := func(month time.Month, store string, metric dataset.MetricName, amount string) {
		obs = append(obs, dataset.Observation{
			Month:  dataset.NewMonth(2024, month),
			Store:  dataset.StoreID(store),
			Metric: metric,
			Amount: decimal.RequireFromString(amount),
		})
	}
	add(time.November, "EGL", dataset.NetSales, "4000")
	add(time.November, "ITPL", dataset.NetSales, "7000")
	add(time.December, "EGL", dataset.NetSales, "5000")
	add(time.December, "ITPL", dataset.NetSales, "6000")
	add(time.December, "EGL", dataset.COGS, "2000")
	tbl := dataset.MustTable(obs)
	return tbl, schema.Describe(tbl, "Test"), engine.NewTableView(tbl)
}

func testConfig() Config {
	cfg := DefaultGeminiConfig("key")
	cfg.Backoff = 0
	return cfg
}

const goodPlan = "```json\n" + `{
  "interpretation": {"visualType": "table", "summary": "Net Sales by store", "confidence": 0.8},
  "querySpec": {
    "intent": "table",
    "aggregation": "sum",
    "measure": "Net Sales",
    "groupBy": ["store"],
    "sortBy": "value_desc",
    "title": "Net Sales by store"
  }
}` + "\n```\n" + SummarySeparator + "\nITPL leads with 13,000.\n"

func TestDelegatePlan(t *testing.T) {
	_, sch, view := fixture()
	gen := &fakeGenerator{responses: []string{goodPlan}}

	ans, err := NewDelegator(gen, testConfig()).Delegate(context.Background(), "who sells more?", sch, view)
	require.NoError(t, err)

	assert.Equal(t, "ITPL leads with 13,000.", ans.Reply)
	assert.Equal(t, 1, ans.Attempts)
	require.NotNil(t, ans.Result)
	require.NoError(t, ans.Result.Table.Validate())
	assert.Equal(t, [][]string{
		{"ITPL", "13000.00", "2.00"},
		{"EGL", "9000.00", "2.00"},
	}, ans.Result.Table.Records())
	assert.InDelta(t, 0.8, ans.QuerySpec.Confidence, 1e-9)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, ModePlan, req.Mode)
	assert.Contains(t, req.SystemInstructions, `"Net Sales"`)
	assert.Contains(t, req.UserPrompt, "QUESTION: who sells more?")
	assert.Contains(t, req.Rows.Header, string(dataset.GrossMargin))
}

func TestDelegateDerivedMeasure(t *testing.T) {
	_, sch, view := fixture()
	gen := &fakeGenerator{responses: []string{
		`Here you go: {"intent":"text","aggregation":"sum","measure":"Gross Margin","filters":{"dimensions":{"store":["EGL"]}}}`,
	}}

	ans, err := NewDelegator(gen, testConfig()).Delegate(context.Background(), "EGL gross margin overall", sch, view)
	require.NoError(t, err)
	text := ans.Result.Data.(*engine.TextData)
	// 4000 + (5000 - 2000)
	assert.True(t, decimal.NewFromInt(7000).Equal(text.RawValue), text.RawValue.String())
	assert.Equal(t, ans.Result.Reply, ans.Reply)
}

func TestDelegateSampleIsCapped(t *testing.T) {
	_, sch, view := fixture()
	gen := &fakeGenerator{responses: []string{goodPlan}}
	cfg := testConfig()
	cfg.SampleRows = 2

	_, err := NewDelegator(gen, cfg).Delegate(context.Background(), "anything", sch, view)
	require.NoError(t, err)
	req := gen.requests[0]
	assert.Len(t, req.Rows.Rows, 2)
	assert.Equal(t, 4, req.Rows.Total)
	assert.Contains(t, req.UserPrompt, "SAMPLE ROWS (2 of 4)")
}

func TestDelegateMalformedResponse(t *testing.T) {
	_, sch, view := fixture()
	gen := &fakeGenerator{responses: []string{"I could not work that out, sorry."}}

	_, err := NewDelegator(gen, testConfig()).Delegate(context.Background(), "q", sch, view)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "I could not work that out, sorry.", genErr.Raw)
	assert.Len(t, gen.requests, 1, "malformed output is not retried")
}

func TestDelegateUnsafePlan(t *testing.T) {
	_, sch, view := fixture()
	cases := []string{
		`{"intent":"text","aggregation":"sum","measure":"Footfall"}`,
		`{"intent":"table","aggregation":"sum","measure":"Net Sales","groupBy":["region"]}`,
		`{"intent":"text","aggregation":"median","measure":"Net Sales"}`,
		`{"intent":"exec","aggregation":"sum","measure":"Net Sales"}`,
		`{"intent":"text","aggregation":"sum","measure":"Net Sales","filters":{"dimensions":{"city":["Pune"]}}}`,
	}
	for _, raw := range cases {
		gen := &fakeGenerator{responses: []string{raw}}
		_, err := NewDelegator(gen, testConfig()).Delegate(context.Background(), "q", sch, view)
		assert.ErrorIs(t, err, ErrUnsafePlan, raw)

		var genErr *GenerationError
		require.True(t, errors.As(err, &genErr), raw)
		assert.Equal(t, raw, genErr.Raw)
	}
}

func TestConfigDefaultsToOneRetry(t *testing.T) {
	assert.Equal(t, 1, Config{}.withDefaults().Retries)
	assert.Equal(t, 0, Config{Retries: -1}.withDefaults().Retries)
	assert.Equal(t, 3, Config{Retries: 3}.withDefaults().Retries)

	_, sch, view := fixture()
	gen := &fakeGenerator{
		errs:      []error{&StatusError{Code: http.StatusTooManyRequests}},
		responses: []string{"", goodPlan},
	}
	ans, err := NewDelegator(gen, Config{APIKey: "k"}).Delegate(context.Background(), "q", sch, view)
	require.NoError(t, err)
	assert.Equal(t, 2, ans.Attempts)
}

func TestDelegateRetriesOnceThenGivesUp(t *testing.T) {
	_, sch, view := fixture()

	gen := &fakeGenerator{
		errs:      []error{&StatusError{Code: http.StatusServiceUnavailable}},
		responses: []string{"", goodPlan},
	}
	ans, err := NewDelegator(gen, testConfig()).Delegate(context.Background(), "q", sch, view)
	require.NoError(t, err)
	assert.Equal(t, 2, ans.Attempts)

	gen = &fakeGenerator{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded, nil}, responses: []string{"", "", goodPlan}}
	_, err = NewDelegator(gen, testConfig()).Delegate(context.Background(), "q", sch, view)
	require.Error(t, err)
	var ext *ExternalError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, 2, ext.Attempts)
	assert.Len(t, gen.requests, 2)
	assert.False(t, IsRetryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDelegateDoesNotRetryClientErrors(t *testing.T) {
	_, sch, view := fixture()
	gen := &fakeGenerator{errs: []error{&StatusError{Code: http.StatusBadRequest, Body: "bad key"}}}

	_, err := NewDelegator(gen, testConfig()).Delegate(context.Background(), "q", sch, view)
	var ext *ExternalError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, 1, ext.Attempts)
}

func TestDelegateAnswerMode(t *testing.T) {
	_, sch, view := fixture()
	gen := &fakeGenerator{responses: []string{"  ITPL sold the most in Nov 24.  "}}
	cfg := testConfig()
	cfg.Mode = ModeAnswer

	ans, err := NewDelegator(gen, cfg).Delegate(context.Background(), "who sold most?", sch, view)
	require.NoError(t, err)
	assert.Equal(t, "ITPL sold the most in Nov 24.", ans.Reply)
	assert.Nil(t, ans.Result)
	assert.NotContains(t, gen.requests[0].SystemInstructions, "QUERYSPEC RULES")
}

func TestParsePlanShapes(t *testing.T) {
	plan, summary, err := parsePlan(`{"querySpec":{"intent":"chart","aggregation":"sum","measure":"Net Sales"}}`)
	require.NoError(t, err)
	assert.Equal(t, "", summary)
	assert.Equal(t, "text", plan.QuerySpec.Intent, "a chart without groupBy is normalized to text")

	plan, summary, err = parsePlan("Sure!\n```\n{\"intent\":\"table\",\"aggregation\":\"list\",\"title\":\"a {b} c\"}\n```\n---SUMMARY---\nAll rows.")
	require.NoError(t, err)
	assert.Equal(t, "All rows.", summary)
	assert.Equal(t, "a {b} c", plan.QuerySpec.Title)

	_, _, err = parsePlan(`{"note":"nothing here"}`)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, _, err = parsePlan(`{"intent": "text"`)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGeminiGenerator(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		gotBody = buf.String()
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(Config{APIKey: "k", Model: "test-model", Endpoint: srv.URL + "/models"}, srv.Client())
	out, err := g.Generate(context.Background(), Request{SystemInstructions: "sys", UserPrompt: "user"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Contains(t, gotBody, `"systemInstruction":{"parts":[{"text":"sys"}]}`)
	assert.Contains(t, gotBody, `"text":"user"`)
}

func TestGeminiGeneratorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGemini(Config{Endpoint: srv.URL}, srv.Client())
	_, err := g.Generate(context.Background(), Request{UserPrompt: "x"})
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)
	assert.True(t, IsRetryable(err))
}
