package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/nettrace/pkg/config"

	"github.com/zoobzio/clockz"
)

// Store is the part of the span store the pruner needs.
type Store interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOldest(ctx context.Context, keep int64) (int64, error)
}

// Observer is notified after each pruning run.
type Observer interface {
	RecordPrune(deleted int64)
}

// Pruner enforces retention on stored spans.
type Pruner struct {
	store     Store
	config    config.RetentionConfig
	clock     clockz.Clock
	logger    *slog.Logger
	observer  Observer
	scheduler *Scheduler
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithClock sets the clock used to compute the age cutoff.
func WithClock(c clockz.Clock) Option {
	return func(p *Pruner) { p.clock = c }
}

// WithObserver registers an observer for pruning runs.
func WithObserver(o Observer) Option {
	return func(p *Pruner) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pruner) { p.logger = l }
}

// NewPruner creates a new retention pruner.
func NewPruner(store Store, cfg config.RetentionConfig, opts ...Option) *Pruner {
	p := &Pruner{
		store:  store,
		config: cfg,
		clock:  clockz.RealClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "spanstore.retention")
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes spans older than the retention period, then trims the
// oldest spans beyond MaxRecords. Either phase is skipped when its limit
// is zero. Returns the total number of spans deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.Days > 0 {
		cutoff := p.clock.Now().AddDate(0, 0, -p.config.Days)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by age failed: %w", err)
		}
		totalDeleted += deleted
		p.logger.Debug("pruned spans by age",
			"deleted_count", deleted,
			"cutoff", cutoff,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.store.DeleteOldest(ctx, p.config.MaxRecords)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by count failed: %w", err)
		}
		totalDeleted += deleted
		p.logger.Debug("pruned spans by count",
			"deleted_count", deleted,
			"max_records", p.config.MaxRecords,
		)
	}

	if p.observer != nil {
		p.observer.RecordPrune(totalDeleted)
	}

	if totalDeleted > 0 {
		p.logger.Info("span pruning completed",
			"total_deleted", totalDeleted,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	}

	return totalDeleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
