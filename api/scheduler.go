/*
scheduler.go - Periodic commission and rebate recomputation

PURPOSE:
  Keeps the open period's figures current without anyone pressing
  "compute": on every tick the current month's commissions and the current
  quarter's rebates are recomputed for every active salesperson.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Every pass goes through the engine's tracked actions, so each one
    leaves a row in the run log
  - Recomputation never touches paid records' states (see the calculators)

CONFIGURATION:
  - Interval: How often to recompute (default: 24 hours)
  - Enabled:  Whether the scheduler is active

USAGE:
  s := NewScheduler(e, interval, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - engine/batch.go: tracked actions
  - runs/: run log
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/generic"
	"go.uber.org/zap"
)

// SchedulerActor is recorded as the calculating actor of scheduled runs.
const SchedulerActor = "scheduler"

// Scheduler recomputes the open period periodically.
type Scheduler struct {
	Engine   *engine.Engine
	Interval time.Duration
	Enabled  bool

	log    *zap.Logger
	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates an enabled scheduler.
func NewScheduler(e *engine.Engine, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		Engine:   e,
		Interval: interval,
		Enabled:  true,
		log:      log.Named("scheduler"),
		now:      time.Now,
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.Info("started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for a pass in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow recomputes the current month and quarter. Both are attempted; the
// errors are joined.
func (s *Scheduler) RunNow(ctx context.Context) error {
	now := s.now()
	year, month := now.Year(), int(now.Month())
	quarter := generic.QuarterOf(month)

	_, _, commErr := s.Engine.ComputeCommissions(ctx, engine.CommissionParams{
		Year: year, Month: month, Actor: SchedulerActor,
	})
	if commErr != nil {
		s.log.Warn("commission pass failed", zap.Int("year", year), zap.Int("month", month), zap.Error(commErr))
	}
	_, _, rapelErr := s.Engine.ComputeRapels(ctx, engine.RapelParams{Quarter: quarter, Year: year})
	if rapelErr != nil {
		s.log.Warn("rapel pass failed", zap.Int("year", year), zap.Int("quarter", quarter), zap.Error(rapelErr))
	}
	return errors.Join(commErr, rapelErr)
}

// NextRunTime returns when the next scheduled pass will occur.
func (s *Scheduler) NextRunTime() time.Time {
	return s.now().Add(s.Interval)
}
