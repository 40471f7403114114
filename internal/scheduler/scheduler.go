// Package scheduler runs periodic broken-link scans.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/starford/linkmend/internal/linkservice"
)

// Scanner runs one scan pass.
type Scanner interface {
	Scan(ctx context.Context) (linkservice.ScanReport, error)
}

// ChangeFunc is called when the number of broken links differs from the
// previous scan.
type ChangeFunc func(broken int)

// Scheduler wraps a gocron scheduler holding the periodic scan job.
type Scheduler struct {
	scheduler gocron.Scheduler
	scanner   Scanner
	logger    *slog.Logger
	onChange  ChangeFunc

	lastBroken atomic.Int64
}

// New creates a scheduler. onChange may be nil.
func New(scanner Scanner, logger *slog.Logger, onChange ChangeFunc) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}
	sch := &Scheduler{scheduler: s, scanner: scanner, logger: logger, onChange: onChange}
	sch.lastBroken.Store(-1)
	return sch, nil
}

// ScheduleScan registers the scan job. Runs never overlap: a run that is
// still going when the next one is due pushes it back.
func (s *Scheduler) ScheduleScan(ctx context.Context, interval time.Duration) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.RunOnce, ctx),
		gocron.WithName("broken-link-scan"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("scheduler: create scan job: %w", err)
	}
	return job.ID().String(), nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler: started")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running scan.
func (s *Scheduler) Stop() error {
	s.logger.Info("scheduler: stopped")
	return s.scheduler.Shutdown()
}

// RunOnce performs one scan and reports a change in the broken count.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logger.Error("scheduler: scan failed", slog.String("error", err.Error()))
		return
	}
	n := len(report.Broken)
	s.logger.Info("scheduler: scan finished",
		slog.Int("broken", n),
		slog.Int("indexed", report.Sync.Indexed),
		slog.Int("removed", report.Sync.Removed),
		slog.Duration("duration", report.Duration))

	if prev := s.lastBroken.Swap(int64(n)); prev != int64(n) && s.onChange != nil {
		s.onChange(n)
	}
}
