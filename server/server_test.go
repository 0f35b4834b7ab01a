package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/router"
	"github.com/spektr-org/storequery/schema"
	"github.com/spektr-org/storequery/translator"
)

const salesCSV = "Month,Store,Metric,Amount\n" +
	"Nov 24,ITPL,Net Sales,7000000\n" +
	"Nov 24,EGL,Net Sales,4000000\n" +
	"Dec 24,ITPL,Net Sales,6565784.70\n" +
	"Dec 24,EGL,Net Sales,5000000\n"

type stubFallback struct{ err error }

func (f stubFallback) Delegate(ctx context.Context, question string, sch schema.Config, view engine.RecordView) (*translator.Answer, error) {
	return nil, f.err
}

type resolution struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	RuleID string          `json:"ruleId"`
	Reply  string          `json:"reply"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

func newTestServer(t *testing.T, opts ...router.Option) (*httptest.Server, *router.Session) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts = append(opts, router.WithMetrics(router.NewMetrics(reg)))
	s := router.NewSession(opts...)
	srv := httptest.NewServer(NewRouter(NewHandler(s, 1), nil, reg))
	t.Cleanup(srv.Close)
	return srv, s
}

func upload(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/dataset?name=sales.csv", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func ask(t *testing.T, srv *httptest.Server, question string) (int, resolution) {
	t.Helper()
	body, _ := json.Marshal(AskRequest{Question: question})
	resp, err := http.Post(srv.URL+"/api/ask", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var res resolution
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return resp.StatusCode, res
}

func TestUploadAndGetDataset(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/dataset")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = upload(t, srv, salesCSV)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var info router.DatasetInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, 4, info.Rows)
	assert.Equal(t, "sales.csv", info.Source)
	assert.ElementsMatch(t, []string{"EGL", "ITPL"}, info.Stores)

	resp, err = http.Get(srv.URL + "/api/dataset")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadMultipart(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "stores.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte(salesCSV))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/dataset", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var info router.DatasetInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "stores.csv", info.Source)
}

func TestUploadRejectsUnusableFile(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := upload(t, srv, "just,some\nrandom,text\n")
	defer resp.Body.Close()
	assert.GreaterOrEqual(t, resp.StatusCode, 400)

	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "could not load dataset", e.Error)
	assert.NotEmpty(t, e.Details)
}

func TestAskStatuses(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(AskRequest{Question: "highest net sales"})
	resp, err := http.Post(srv.URL+"/api/ask", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	upload(t, srv, salesCSV).Body.Close()

	resp, err = http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(`{"question":"  "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	code, res := ask(t, srv, "Which store had the highest net sales in Dec 24?")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rule", res.Source)
	assert.Equal(t, "highest_net_sales", res.RuleID)
	assert.Contains(t, res.Reply, "ITPL")
	assert.NotEmpty(t, res.Result)

	code, res = ask(t, srv, "how is the weather?")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "none", res.Source)
	assert.NotEmpty(t, res.Error)
}

func TestAskUnreachableModel(t *testing.T) {
	fb := stubFallback{err: &translator.ExternalError{Attempts: 2, Err: context.DeadlineExceeded}}
	srv, _ := newTestServer(t, router.WithFallback(fb))
	upload(t, srv, salesCSV).Body.Close()

	code, res := ask(t, srv, "tell me something odd")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "fallback", res.Source)
	assert.Contains(t, res.Reply, "could not be reached")
}

func TestExport(t *testing.T) {
	srv, _ := newTestServer(t)
	upload(t, srv, salesCSV).Body.Close()
	_, res := ask(t, srv, "Top 5 stores by net sales")
	require.NotEmpty(t, res.ID)

	resp, err := http.Get(srv.URL + "/api/ask/export?id=" + res.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")
	var csvBody bytes.Buffer
	_, _ = csvBody.ReadFrom(resp.Body)
	assert.Contains(t, csvBody.String(), "ITPL")

	resp, err = http.Get(srv.URL + "/api/ask/export?format=xlsx&id=" + res.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Result")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rows), 3)

	resp, err = http.Get(srv.URL + "/api/ask/export?format=pdf&id=" + res.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/ask/export?id=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryRulesAndMetrics(t *testing.T) {
	srv, s := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/rules")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	upload(t, srv, salesCSV).Body.Close()
	ask(t, srv, "Which store had the highest net sales?")

	resp, err = http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	var hist struct {
		SessionID string       `json:"sessionId"`
		Capacity  int          `json:"capacity"`
		Entries   []resolution `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hist))
	resp.Body.Close()
	assert.Equal(t, s.ID(), hist.SessionID)
	assert.Equal(t, router.DefaultHistorySize, hist.Capacity)
	assert.Len(t, hist.Entries, 1)

	resp, err = http.Get(srv.URL + "/api/rules")
	require.NoError(t, err)
	var rules []RuleDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rules))
	resp.Body.Close()
	assert.NotEmpty(t, rules)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var metrics bytes.Buffer
	_, _ = metrics.ReadFrom(resp.Body)
	assert.Contains(t, metrics.String(), "storequery_router_questions_total")
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["dataset"])
	assert.Equal(t, false, body["fallback"])
}
