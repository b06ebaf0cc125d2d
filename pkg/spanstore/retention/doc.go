// Package retention prunes the span store by age and by record count.
//
// A Pruner runs two phases: spans that started more than Days ago are
// deleted, then the oldest spans beyond MaxRecords. The Scheduler runs the
// pruner on the configured cron schedule:
//
//	pruner := retention.NewPruner(store, cfg.Store.Retention,
//	    retention.WithObserver(collector))
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention
