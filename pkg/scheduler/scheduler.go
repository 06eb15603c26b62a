// Package scheduler drives the collectors on cron schedules and records
// every pass in the run ledger.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/civiclens/civiclens/pkg/collector"
	"github.com/civiclens/civiclens/pkg/manifest"
)

// Scheduler owns the cron runner and the jobs registered on it.
type Scheduler struct {
	cron   *cron.Cron
	ledger *manifest.Ledger
	log    *zap.Logger
}

// New builds a scheduler. The ledger may be nil, in which case runs are
// only logged.
func New(ledger *manifest.Ledger, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		ledger: ledger,
		log:    log,
	}
}

// Add schedules a collector. The spec is standard five-field cron; timeout
// bounds one pass so a hung API cannot block the next one.
func (s *Scheduler) Add(spec string, c collector.Collector, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runOnce(c, timeout)
	})
	if err != nil {
		return fmt.Errorf("bad schedule %q for %s: %w", spec, c.Name(), err)
	}
	s.log.Info("job scheduled", zap.String("collector", c.Name()), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) runOnce(c collector.Collector, timeout time.Duration) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var run *manifest.Run
	if s.ledger != nil {
		var info collector.RunInfo
		if d, ok := c.(collector.Describer); ok {
			info = d.Describe()
		}
		day := ""
		if !info.Day.IsZero() {
			day = info.Day.Format("2006-01-02")
		}
		var err error
		run, err = s.ledger.Start(c.Name(), info.Label, day, info.OutputFile)
		if err != nil {
			s.log.Error("failed to record run start", zap.Error(err))
		}
	}

	started := time.Now()
	n, err := c.Run(ctx)
	if err != nil {
		s.log.Error("collection pass failed", zap.String("collector", c.Name()),
			zap.Int("records", n), zap.Error(err))
	} else {
		s.log.Info("collection pass finished", zap.String("collector", c.Name()),
			zap.Int("records", n), zap.Duration("took", time.Since(started)))
	}

	if s.ledger != nil && run != nil {
		if ferr := s.ledger.Finish(run, n, err); ferr != nil {
			s.log.Error("failed to record run end", zap.Error(ferr))
		}
	}
}

// RunNow executes one collector outside its schedule, still going through
// the ledger.
func (s *Scheduler) RunNow(c collector.Collector, timeout time.Duration) {
	s.runOnce(c, timeout)
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
