package distribution

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/contentieux/contentieux/internal/shared"
)

type mockSource struct {
	records []CaseRecord
	err     error
	calls   int
	period  string
}

func (m *mockSource) ListCaseRecords(ctx context.Context, period string) ([]CaseRecord, error) {
	m.calls++
	m.period = period
	return m.records, m.err
}

type mockRecorder struct {
	outcomes []string
	cached   int
	rejected int
}

func (m *mockRecorder) ReportBuilt(outcome string, cached bool) {
	m.outcomes = append(m.outcomes, outcome)
	if cached {
		m.cached++
	}
}

func (m *mockRecorder) RecordsRejected(count int) {
	m.rejected += count
}

func newTestService(t *testing.T, source RecordSource, recorder Recorder) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	book, err := NewRuleBook("standard", map[string]Rule{
		"standard": NewPercentageRule(d("60")),
		"moitie":   NewPercentageRule(d("50")),
	})
	if err != nil {
		t.Fatalf("rule book: %v", err)
	}
	svc, err := NewService(ServiceConfig{
		Source:   source,
		Rules:    book,
		Cache:    NewCache(client, time.Minute, nil),
		Recorder: recorder,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, mr
}

func TestGetReportCaches(t *testing.T) {
	source := &mockSource{records: []CaseRecord{
		record("AFF-001", "150.00", "100.00"),
		record("AFF-002", "200.00", "200.00"),
	}}
	recorder := &mockRecorder{}
	svc, _ := newTestService(t, source, recorder)
	ctx := context.Background()

	report, err := svc.GetReport(ctx, ReportRequest{Period: "2024-q1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.period != "2024-Q1" {
		t.Fatalf("expected normalised period, got %q", source.period)
	}
	if !report.TotalStateShare.Equal(d("180")) {
		t.Fatalf("expected state share 180 got %s", report.TotalStateShare)
	}

	// Second call should hit cache.
	cached, err := svc.GetReport(ctx, ReportRequest{Period: "2024-Q1", RuleCode: "STANDARD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cached report, source called %d times", source.calls)
	}
	if !cached.TotalCollectivityShare.Equal(report.TotalCollectivityShare) || cached.CaseCount != 2 {
		t.Fatalf("cached report differs: %+v", cached)
	}
	if !cached.StatePercent.Valid || !cached.StatePercent.Decimal.Equal(d("60")) {
		t.Fatalf("expected cached state percent 60 got %+v", cached.StatePercent)
	}
	if recorder.cached != 1 {
		t.Fatalf("expected one cached outcome, got %d", recorder.cached)
	}

	// Another rule is cached separately.
	if _, err := svc.GetReport(ctx, ReportRequest{Period: "2024-Q1", RuleCode: "moitie"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected a build per rule, calls %d", source.calls)
	}

	// Invalidation should trigger reload.
	if err := svc.Invalidate(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	source.records = append(source.records, record("AFF-003", "500.00", "300.00"))
	report, err = svc.GetReport(ctx, ReportRequest{Period: "2024-Q1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CaseCount != 3 {
		t.Fatalf("expected refreshed report with 3 cases got %d", report.CaseCount)
	}
	if source.calls != 3 {
		t.Fatalf("expected source to refresh, calls %d", source.calls)
	}
}

func TestGetReportCachesRejections(t *testing.T) {
	source := &mockSource{records: []CaseRecord{
		record("A", "10", "5"),
		record("A", "10", "5"),
	}}
	recorder := &mockRecorder{}
	svc, _ := newTestService(t, source, recorder)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		report, err := svc.GetReport(ctx, ReportRequest{Period: "2024-02", Policy: PolicySkip})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Rejected) != 1 {
			t.Fatalf("expected one rejection got %d", len(report.Rejected))
		}
		if !errors.Is(report.Rejected[0].Err, ErrDuplicateCase) {
			t.Fatalf("expected duplicate sentinel to survive the cache, got %v", report.Rejected[0].Err)
		}
	}
	if recorder.rejected != 1 {
		t.Fatalf("rejections should be counted once per build, got %d", recorder.rejected)
	}
}

func TestGetReportErrors(t *testing.T) {
	source := &mockSource{records: []CaseRecord{record("A", "10", "50")}}
	recorder := &mockRecorder{}
	svc, _ := newTestService(t, source, recorder)
	ctx := context.Background()

	if _, err := svc.GetReport(ctx, ReportRequest{Period: "Q1-2024"}); !errors.Is(err, shared.ErrInvalidPeriod) {
		t.Fatalf("expected invalid period, got %v", err)
	}
	if _, err := svc.GetReport(ctx, ReportRequest{Period: "2024", Policy: "ignore"}); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.GetReport(ctx, ReportRequest{Period: "2024", RuleCode: "unknown"}); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected rule not found, got %v", err)
	}
	_, err := svc.GetReport(ctx, ReportRequest{Period: "2024"})
	var recErr *RecordError
	if !errors.As(err, &recErr) || !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected record error, got %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected one source call, got %d", source.calls)
	}

	source.err = errors.New("db down")
	if _, err := svc.GetReport(ctx, ReportRequest{Period: "2023"}); err == nil {
		t.Fatal("expected source error")
	}
	want := []string{"invalid", "error"}
	if len(recorder.outcomes) != len(want) || recorder.outcomes[0] != want[0] || recorder.outcomes[1] != want[1] {
		t.Fatalf("unexpected outcomes %v", recorder.outcomes)
	}
}

func TestGetReportWithoutCache(t *testing.T) {
	book, err := SingleRuleBook(d("60"))
	if err != nil {
		t.Fatalf("rule book: %v", err)
	}
	source := &mockSource{records: []CaseRecord{record("A", "1", "1")}}
	svc, err := NewService(ServiceConfig{Source: source, Rules: book, Currency: Currency{Code: "XPF", MinorUnits: 0}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		report, err := svc.GetReport(ctx, ReportRequest{Period: "2024-S2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.TotalStateShare.Equal(d("1")) || report.Currency.Code != "XPF" {
			t.Fatalf("unexpected report %+v", report)
		}
	}
	if source.calls != 2 {
		t.Fatalf("expected uncached builds, calls %d", source.calls)
	}
	if err := svc.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate without cache: %v", err)
	}
}
