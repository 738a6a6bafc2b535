package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-erp/vantage/internal/newbusiness"
)

type stubWarmupService struct {
	filters []newbusiness.Filter
	err     error
}

func (s *stubWarmupService) Summary(_ context.Context, f newbusiness.Filter) (newbusiness.Summary, error) {
	s.filters = append(s.filters, f)
	return newbusiness.Summary{}, s.err
}

func (s *stubWarmupService) NewCustomers(context.Context, newbusiness.Filter) ([]newbusiness.CustomerCredit, error) {
	return nil, s.err
}

func (s *stubWarmupService) NewProducts(context.Context, newbusiness.Filter) ([]newbusiness.ProductCredit, error) {
	return nil, s.err
}

func (s *stubWarmupService) NewCombos(context.Context, newbusiness.Filter) ([]newbusiness.ComboCredit, error) {
	return nil, s.err
}

func (s *stubWarmupService) Revenue(context.Context, newbusiness.Filter) ([]newbusiness.RevenueSummary, error) {
	return nil, s.err
}

func newWarmupTask(t *testing.T, payload WarmupPayload) *asynq.Task {
	t.Helper()
	task, err := NewWarmupTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestWarmupWarmsMonthAndYearWindows(t *testing.T) {
	stub := &stubWarmupService{}
	job := NewWarmupJob(stub, nil, nil)
	job.WithClock(func() time.Time {
		return time.Date(2025, time.March, 14, 8, 0, 0, 0, time.UTC)
	})

	if err := job.Handle(context.Background(), newWarmupTask(t, WarmupPayload{})); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(stub.filters) != 2 {
		t.Fatalf("expected 2 warmed windows, got %d", len(stub.filters))
	}
	mtd := stub.filters[0].Window
	if got := mtd.Start.Format("2006-01-02"); got != "2025-03-01" {
		t.Fatalf("month-to-date start = %s", got)
	}
	ytd := stub.filters[1].Window
	if got := ytd.Start.Format("2006-01-02"); got != "2025-01-01" {
		t.Fatalf("year-to-date start = %s", got)
	}
	for i, f := range stub.filters {
		if got := f.Window.End.Format("2006-01-02"); got != "2025-03-14" {
			t.Fatalf("window %d end = %s", i, got)
		}
	}
}

func TestWarmupHonorsPayloadAsOf(t *testing.T) {
	stub := &stubWarmupService{}
	job := NewWarmupJob(stub, nil, nil)

	task := newWarmupTask(t, WarmupPayload{AsOf: "2024-11-30", LookbackYears: 3})
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(stub.filters) != 2 {
		t.Fatalf("expected 2 warmed windows, got %d", len(stub.filters))
	}
	if got := stub.filters[0].Window.End.Format("2006-01-02"); got != "2024-11-30" {
		t.Fatalf("as_of end = %s", got)
	}
	if stub.filters[0].LookbackYears != 3 {
		t.Fatalf("lookback = %d, want 3", stub.filters[0].LookbackYears)
	}
}

func TestWarmupSkipsRetryOnBadPayload(t *testing.T) {
	job := NewWarmupJob(&stubWarmupService{}, nil, nil)

	task := asynq.NewTask(TaskNewBusinessWarmup, []byte("{not-json"))
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	badDate := newWarmupTask(t, WarmupPayload{AsOf: "30/11/2024"})
	if err := job.Handle(context.Background(), badDate); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for bad date, got %v", err)
	}
}

func TestWarmupPropagatesServiceError(t *testing.T) {
	wantErr := errors.New("warehouse down")
	job := NewWarmupJob(&stubWarmupService{err: wantErr}, nil, nil)

	if err := job.Handle(context.Background(), newWarmupTask(t, WarmupPayload{})); !errors.Is(err, wantErr) {
		t.Fatalf("expected service error, got %v", err)
	}
}
