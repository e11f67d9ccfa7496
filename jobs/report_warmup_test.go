package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentieux/contentieux/internal/distribution"
	jobmetrics "github.com/contentieux/contentieux/internal/jobs"
)

type fakeReports struct {
	mu       sync.Mutex
	requests []distribution.ReportRequest
	errs     map[string]error
}

func (f *fakeReports) GetReport(ctx context.Context, req distribution.ReportRequest) (distribution.PeriodReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Period]; err != nil {
		return distribution.PeriodReport{}, err
	}
	return distribution.PeriodReport{PeriodLabel: req.Period}, nil
}

func (f *fakeReports) periods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, req := range f.requests {
		out = append(out, req.Period)
	}
	sort.Strings(out)
	return out
}

type fakeLister struct {
	periods []string
	limit   int
	err     error
}

func (f *fakeLister) ListPeriods(ctx context.Context, limit int) ([]string, error) {
	f.limit = limit
	return f.periods, f.err
}

func newWarmupJob(reports *fakeReports, lister *fakeLister) *ReportWarmupJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReportWarmupJob(reports, lister, logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func task(t *testing.T, payload ReportWarmupPayload) *asynq.Task {
	t.Helper()
	task, err := NewReportWarmupTask(payload)
	require.NoError(t, err)
	return task
}

func TestReportWarmupAllPeriods(t *testing.T) {
	reports := &fakeReports{errs: map[string]error{
		"2024-01": &distribution.RecordError{Index: 0, CaseID: "A", Err: distribution.ErrInvalidAmount},
	}}
	lister := &fakeLister{periods: []string{"2024-03", "2024-02", "2024-01"}}
	job := newWarmupJob(reports, lister)

	require.NoError(t, job.Handle(context.Background(), task(t, ReportWarmupPayload{Rule: "standard"})))
	assert.Equal(t, defaultWarmupPeriods, lister.limit)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, reports.periods())
	for _, req := range reports.requests {
		assert.Equal(t, "standard", req.RuleCode)
	}
}

func TestReportWarmupSinglePeriod(t *testing.T) {
	reports := &fakeReports{}
	lister := &fakeLister{err: errors.New("must not be called")}
	job := newWarmupJob(reports, lister)

	require.NoError(t, job.Handle(context.Background(), task(t, ReportWarmupPayload{Period: "2024-q2"})))
	assert.Equal(t, []string{"2024-Q2"}, reports.periods())
	assert.Zero(t, lister.limit)
}

func TestReportWarmupErrors(t *testing.T) {
	job := newWarmupJob(&fakeReports{}, &fakeLister{})

	err := job.Handle(context.Background(), asynq.NewTask(TaskReportWarmup, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), task(t, ReportWarmupPayload{Period: "2024-13"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	unknownRule := &fakeReports{errs: map[string]error{"2024": fmt.Errorf("%w: \"x\"", distribution.ErrRuleNotFound)}}
	err = newWarmupJob(unknownRule, &fakeLister{}).Handle(context.Background(), task(t, ReportWarmupPayload{Period: "2024", Rule: "x"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	down := errors.New("redis down")
	failing := &fakeReports{errs: map[string]error{"2024": down}}
	err = newWarmupJob(failing, &fakeLister{}).Handle(context.Background(), task(t, ReportWarmupPayload{Period: "2024"}))
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	listerDown := &fakeLister{err: errors.New("pg down")}
	err = newWarmupJob(&fakeReports{}, listerDown).Handle(context.Background(), task(t, ReportWarmupPayload{}))
	assert.EqualError(t, err, "pg down")

	var nilJob *ReportWarmupJob
	assert.Error(t, nilJob.Handle(context.Background(), task(t, ReportWarmupPayload{})))
}

func TestReportWarmupPayloadJSON(t *testing.T) {
	tk := task(t, ReportWarmupPayload{Period: "2024-Q1"})
	assert.Equal(t, TaskReportWarmup, tk.Type())
	var payload map[string]any
	require.NoError(t, json.Unmarshal(tk.Payload(), &payload))
	assert.Equal(t, map[string]any{"period": "2024-Q1"}, payload)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestJobsHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		inspector QueueInspector
		status    int
		body      string
	}{
		{nil, http.StatusOK, `{"queue":"default","pending":0,"active":0,"retry":0}`},
		{fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Active: 1}}, http.StatusOK, `{"queue":"default","pending":4,"active":1,"retry":0}`},
		{fakeInspector{err: errors.New("redis down")}, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		router := chi.NewRouter()
		NewHandler(tc.inspector, logger).MountRoutes(router)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, tc.status, rr.Code)
		if tc.body != "" {
			assert.JSONEq(t, tc.body, rr.Body.String())
		}
	}
}
