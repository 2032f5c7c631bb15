package reaper

import (
	"context"
	"time"

	"github.com/shrekd/shrekd/core/infra/logging"
)

// Sweep reconciles every file under the storage root against the record
// store, catching files whose notifications were missed while the daemon was
// down or disconnected. It returns how many files were reclaimed. When
// another replica holds the sweep lock the sweep is skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			logging.Debug("reaper", "sweep skipped, lock held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
				logging.Warn("reaper", "release sweep lock", "error", err)
			}
		}()
	}
	slugs, err := r.files.List()
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		outcome, err := r.reconcile(ctx, slug)
		if err != nil {
			logging.Error("reaper", "sweep file", "slug", slug, "error", err)
			continue
		}
		if outcome == OutcomeRemoved || outcome == OutcomeDeferred {
			reclaimed++
		}
	}
	if pruned, err := r.files.PruneStaging(time.Now(), stagingMaxAge); err != nil {
		logging.Warn("reaper", "prune staging", "error", err)
	} else if pruned > 0 {
		logging.Info("reaper", "pruned stale uploads", "count", pruned)
	}
	r.metrics.AddSweepRemoved(reclaimed)
	return reclaimed, nil
}

// StartSweeper sweeps once immediately and then every interval until ctx is
// cancelled. A zero interval sweeps only once.
func (r *Reaper) StartSweeper(ctx context.Context, interval time.Duration) {
	r.sweepLogged(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepLogged(ctx)
		}
	}
}

func (r *Reaper) sweepLogged(ctx context.Context) {
	start := time.Now()
	n, err := r.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		logging.Error("reaper", "sweep failed", "error", err)
		return
	}
	logging.Info("reaper", "sweep done", "reclaimed", n, "took", time.Since(start).Round(time.Millisecond))
}
