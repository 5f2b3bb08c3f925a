package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type stubAuditor struct {
	skewed int
	err    error
	calls  int
}

func (a *stubAuditor) AuditIntegrity(ctx context.Context) (int, error) {
	a.calls++
	return a.skewed, a.err
}

func TestSchedulerRunsAudit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditor := &stubAuditor{skewed: 2}
	NewScheduler(auditor, logger, "@every 1h").RunIntegrityAudit()
	if auditor.calls != 1 {
		t.Fatalf("expected one audit call, got %d", auditor.calls)
	}

	failing := &stubAuditor{err: errors.New("db down")}
	NewScheduler(failing, logger, "@every 1h").RunIntegrityAudit()
	if failing.calls != 1 {
		t.Fatalf("expected one audit call, got %d", failing.calls)
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(&stubAuditor{}, logger, "not a schedule")
	if err := s.Start(); err == nil {
		t.Fatalf("expected invalid schedule to fail")
	}
}

func TestSchedulerEmptyScheduleDisablesAudit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(&stubAuditor{}, logger, "")
	if err := s.Start(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	<-s.Stop().Done()
}
