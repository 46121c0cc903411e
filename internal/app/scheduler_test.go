package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/joiedevivre/gifting-service/internal/config"
	"github.com/joiedevivre/gifting-service/internal/domain"
)

type passRunnerStub struct {
	calls int
	err   error
}

func (s *passRunnerStub) RunRevealPass(ctx context.Context) (*domain.RevealPassResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.RevealPassResult{Success: true}, nil
}

func newTestScheduler(runner RevealPassRunner, schedule string) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(runner, logger, config.Config{RevealPassSchedule: schedule})
}

func TestScheduler_DisabledScheduleDoesNotRegister(t *testing.T) {
	s := newTestScheduler(&passRunnerStub{}, "")
	if err := s.Start(); err != nil {
		t.Fatalf("expected disabled schedule to start cleanly, got %v", err)
	}
	if n := len(s.cron.Entries()); n != 0 {
		t.Fatalf("expected no cron entries, got %d", n)
	}
	<-s.Stop().Done()
}

func TestScheduler_InvalidScheduleFails(t *testing.T) {
	s := newTestScheduler(&passRunnerStub{}, "every quarter hour")
	if err := s.Start(); err == nil {
		t.Fatal("expected invalid cron expression to fail")
	}
}

func TestScheduler_RegistersRevealPass(t *testing.T) {
	s := newTestScheduler(&passRunnerStub{}, "*/15 * * * *")
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer func() { <-s.Stop().Done() }()
	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("expected one cron entry, got %d", n)
	}
}

func TestScheduler_RunRevealPassLogsErrors(t *testing.T) {
	runner := &passRunnerStub{err: errors.New("claim failed")}
	s := newTestScheduler(runner, "*/15 * * * *")
	s.runRevealPass()
	if runner.calls != 1 {
		t.Fatalf("expected one pass, got %d", runner.calls)
	}
}
