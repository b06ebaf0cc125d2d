package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"mercator-hq/nettrace/pkg/capture/httpcapture"
	"mercator-hq/nettrace/pkg/config"
)

// Scheduler runs configured probes on their cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	runners []*Runner
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler builds a runner for every probe. Probes without a schedule
// are only run by RunAll.
func NewScheduler(probes []config.ProbeConfig, recorder httpcapture.Recorder, opts ...Option) (*Scheduler, error) {
	o := buildOptions(opts)
	s := &Scheduler{
		cron:   cron.New(),
		logger: o.logger.With("component", "probe.scheduler"),
	}

	for i := range probes {
		r, err := NewRunner(probes[i], recorder, opts...)
		if err != nil {
			return nil, fmt.Errorf("probe %d: %w", i, err)
		}
		s.runners = append(s.runners, r)

		if probes[i].Schedule == "" {
			continue
		}
		if _, err := s.cron.AddFunc(probes[i].Schedule, s.job(r)); err != nil {
			return nil, fmt.Errorf("probe %q: invalid schedule %q: %w", r.Name(), probes[i].Schedule, err)
		}
	}
	return s, nil
}

// Runners returns the configured runners.
func (s *Scheduler) Runners() []*Runner {
	return s.runners
}

// Scheduled returns the number of probes with a schedule.
func (s *Scheduler) Scheduled() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler. Runs use a context that is cancelled by
// Stop or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info("probe scheduler started", "probes", len(s.runners), "scheduled", s.Scheduled())
}

// Stop stops scheduling, cancels running probes and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()
	s.wg.Wait()
	s.logger.Info("probe scheduler stopped")
}

// RunAll runs every probe once, concurrently, and returns the results in
// configuration order.
func (s *Scheduler) RunAll(ctx context.Context) []Result {
	results := make([]Result, len(s.runners))
	var wg sync.WaitGroup
	for i, r := range s.runners {
		wg.Add(1)
		go func(i int, r *Runner) {
			defer wg.Done()
			results[i] = r.Run(ctx)
		}(i, r)
	}
	wg.Wait()
	return results
}

func (s *Scheduler) job(r *Runner) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		if ctx == nil || ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()

		defer s.wg.Done()
		r.Run(ctx)
	}
}
