package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshDueReports(now time.Time) (int, error) {
	r.calls.Add(1)
	return 1, r.err
}

func TestStartRejectsInvalidCron(t *testing.T) {
	s := New(&countingRefresher{})
	if err := s.Start("not a cron"); err == nil {
		s.Stop()
		t.Fatalf("expected error for invalid cron expression")
	}
}

func TestRefreshReportsCallsRefresher(t *testing.T) {
	r := &countingRefresher{}
	s := New(r)
	s.refreshReports()
	r.err = errors.New("db down")
	s.refreshReports()
	if got := r.calls.Load(); got != 2 {
		t.Fatalf("calls: got=%d want=2", got)
	}
}

func TestStartRunsScheduledJob(t *testing.T) {
	r := &countingRefresher{}
	s := New(r)
	if err := s.Start("* * * * *"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if n := len(s.scheduler.Jobs()); n != 1 {
		t.Fatalf("jobs: got=%d want=1", n)
	}
}
