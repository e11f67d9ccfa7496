package distribution

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// rejectWrites fails every SET the way a read-only replica or a full
// maxmemory instance would, leaving reads and SETNX untouched.
type rejectWrites struct{}

func (rejectWrites) DialHook(next redis.DialHook) redis.DialHook { return next }

func (rejectWrites) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" {
			err := errors.New("OOM command not allowed when used memory > 'maxmemory'")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (rejectWrites) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestGetReportSurvivesCacheWriteFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	client.AddHook(rejectWrites{})
	logger, logs := bufferLogger()

	book, err := SingleRuleBook(d("60"))
	if err != nil {
		t.Fatalf("rule book: %v", err)
	}
	source := &mockSource{records: []CaseRecord{record("A", "100", "100")}}
	svc, err := NewService(ServiceConfig{
		Source: source,
		Rules:  book,
		Cache:  NewCache(client, time.Minute, logger),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		report, err := svc.GetReport(ctx, ReportRequest{Period: "2024-Q1"})
		if err != nil {
			t.Fatalf("call %d: report lost to cache failure: %v", i, err)
		}
		if !report.TotalStateShare.Equal(d("60")) {
			t.Fatalf("unexpected state share %s", report.TotalStateShare)
		}
	}
	if source.calls != 2 {
		t.Fatalf("expected a rebuild when nothing was cached, calls %d", source.calls)
	}
	if !strings.Contains(logs.String(), "cache write failed") {
		t.Fatalf("expected write failure to be logged, got %q", logs.String())
	}
}

func TestFetchReportFallsBackWhenRedisErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger, logs := bufferLogger()
	cache := NewCache(client, time.Minute, logger)

	mr.SetError("ERR cache unavailable")
	report, cached, err := cache.FetchReport(context.Background(), "distribution:report:x", func(context.Context) (PeriodReport, error) {
		return PeriodReport{PeriodLabel: "2024-Q1", CaseCount: 1}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached || report.PeriodLabel != "2024-Q1" {
		t.Fatalf("expected a freshly built report, got cached=%v %+v", cached, report)
	}
	out := logs.String()
	if !strings.Contains(out, "cache read failed") || !strings.Contains(out, "cache write failed") {
		t.Fatalf("expected read and write failures logged, got %q", out)
	}
}

func TestFetchReportIgnoresUndecodableEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger, _ := bufferLogger()
	cache := NewCache(client, time.Minute, logger)

	if err := mr.Set("distribution:report:y", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	report, cached, err := cache.FetchReport(context.Background(), "distribution:report:y", func(context.Context) (PeriodReport, error) {
		return PeriodReport{PeriodLabel: "2024-Q2"}, nil
	})
	if err != nil || cached || report.PeriodLabel != "2024-Q2" {
		t.Fatalf("expected rebuild, got %+v cached=%v err=%v", report, cached, err)
	}
	raw, err := mr.Get("distribution:report:y")
	if err != nil || !strings.Contains(raw, "2024-Q2") {
		t.Fatalf("expected entry overwritten, got %q err=%v", raw, err)
	}
}

func TestBumpChangesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute, nil)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "report", "2024-Q1")
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	after, err := cache.BuildKey(ctx, "report", "2024-Q1")
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if before != "distribution:report:2024-Q1:1" || after != "distribution:report:2024-Q1:2" {
		t.Fatalf("unexpected keys %q then %q", before, after)
	}
}
