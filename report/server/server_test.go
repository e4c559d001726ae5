package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/history"
	"github.com/aws-samples/llmresilience/meter"
	"github.com/aws-samples/llmresilience/report"
)

func newTestServer(t *testing.T, store llmr.RunStore) (*httptest.Server, *report.Board, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	board := report.NewBoard()

	reg := prometheus.NewRegistry()
	m := meter.NewPromMeter(reg)
	m.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: "g", Status: llmr.StatusSuccess}})

	srv := httptest.NewServer(New(board, store, reg, zap.New(core).Sugar()).Router())
	t.Cleanup(srv.Close)
	return srv, board, logs
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthz(t *testing.T) {
	srv, _, logs := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	require.Eventually(t, func() bool { return logs.Len() > 0 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.All()[0].Message, "GET /healthz 200")
}

func TestReports(t *testing.T) {
	srv, board, _ := newTestServer(t, nil)

	resp, _ := get(t, srv.URL+"/reports/quota")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	board.Publish(report.Entry{Scenario: "quota", RunID: "r1", Flags: map[string]bool{"isolation_effective": true}})

	resp, body := get(t, srv.URL+"/reports/quota")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var e report.Entry
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "r1", e.RunID)
	assert.True(t, e.Flags["isolation_effective"])

	resp, body = get(t, srv.URL+"/reports")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []report.Entry
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 1)
}

func TestHistory(t *testing.T) {
	store := history.NewMemoryStore()
	require.NoError(t, store.Record(context.Background(), llmr.RunRecord{RunID: "r1", Scenario: "lb", Overall: llmr.Counts{Success: 4}}))
	srv, _, _ := newTestServer(t, store)

	resp, body := get(t, srv.URL+"/history/lb")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tot llmr.Totals
	require.NoError(t, json.Unmarshal(body, &tot))
	assert.Equal(t, 1, tot.Runs)
	assert.Equal(t, 4, tot.Overall.Success)
}

type brokenStore struct{}

func (brokenStore) Record(context.Context, llmr.RunRecord) error { return errors.New("down") }
func (brokenStore) Totals(context.Context, string) (llmr.Totals, error) {
	return llmr.Totals{}, errors.New("down")
}

func TestHistory_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp, _ := get(t, srv.URL+"/history/lb")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv, _, _ = newTestServer(t, brokenStore{})
	resp, _ = get(t, srv.URL+"/history/lb")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "llmr_requests_total")
}

func TestRequestLine(t *testing.T) {
	if raceEnabled {
		t.Skip("xxhash trips checkptr under -race")
	}
	line := requestLine("GET", "/reports?scenario=quota", 200, 1500*time.Microsecond)
	assert.True(t, strings.HasPrefix(line, "GET /reports?0x"))
	assert.True(t, strings.HasSuffix(line, " 200 in 1.50ms"))
	assert.Equal(t, "GET / 404 in 0.00ms", requestLine("GET", "", 404, 0))
}
