package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentieux/contentieux/internal/distribution"
	distributionhttp "github.com/contentieux/contentieux/internal/distribution/http"
	"github.com/contentieux/contentieux/internal/observability"
	"github.com/contentieux/contentieux/jobs"
	_ "github.com/contentieux/contentieux/testing"
)

type staticSource []distribution.CaseRecord

func (s staticSource) ListCaseRecords(ctx context.Context, period string) ([]distribution.CaseRecord, error) {
	return s, nil
}

func newTestApp(t *testing.T) (http.Handler, *observability.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", CurrencyCode: "EUR", CurrencyMinorUnits: 2, DefaultStatePercent: "60", ReportLocale: "fr"}
	metrics := observability.NewMetrics()
	source := staticSource{{
		CaseID:          "AFF-001",
		TotalOwed:       decimal.RequireFromString("300"),
		AmountCollected: decimal.RequireFromString("100"),
	}}
	svc, err := NewDistributionService(cfg, DistributionDeps{Source: source, Recorder: metrics, Logger: logger})
	require.NoError(t, err)
	router := NewRouter(RouterParams{
		Logger:              logger,
		Config:              cfg,
		DistributionHandler: distributionhttp.NewHandler(logger, svc, nil, nil, cfg.Formatter()),
		JobHandler:          jobs.NewHandler(nil, logger),
		Metrics:             metrics,
	})
	return router, metrics
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestApp(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Ratelimit-Limit"))
}

func TestRouterServesDistributionReport(t *testing.T) {
	router, _ := newTestApp(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/distribution/reports/2024-q1", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Period     string `json:"period"`
		StateShare string `json:"total_state_share"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "2024-Q1", body.Period)
	assert.Equal(t, "60", body.StateShare)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/distribution/reports/2024-13", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterExposesMetrics(t *testing.T) {
	router, _ := newTestApp(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/distribution/reports/2024", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `contentieux_distribution_reports_total{cached="false",outcome="ok"} 1`), body)
	assert.Contains(t, body, `route="/distribution/reports/{period}"`)
	assert.Contains(t, body, `route="/jobs/health"`)
}
