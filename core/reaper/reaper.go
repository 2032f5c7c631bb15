package reaper

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shrekd/shrekd/core/infra/bus"
	"github.com/shrekd/shrekd/core/infra/filestore"
	"github.com/shrekd/shrekd/core/infra/locks"
	"github.com/shrekd/shrekd/core/infra/logging"
	"github.com/shrekd/shrekd/core/infra/metrics"
	"github.com/shrekd/shrekd/core/share"
)

// Outcome classifies how one notification or swept file was handled.
type Outcome string

const (
	OutcomeIgnored  Outcome = "ignored"
	OutcomeLive     Outcome = "live"
	OutcomeRemoved  Outcome = "removed"
	OutcomeAbsent   Outcome = "absent"
	OutcomeDeferred Outcome = "deferred"
	OutcomeError    Outcome = "error"
)

// stagingMaxAge bounds how long an interrupted upload may sit in staging.
const stagingMaxAge = 24 * time.Hour

// Files is the part of the file store the reaper needs.
type Files interface {
	RemoveUnless(slug string, live func() (bool, error)) (filestore.RemoveResult, error)
	List() ([]string, error)
	PruneStaging(now time.Time, olderThan time.Duration) (int, error)
}

// Options wires a Reaper. Source is only needed for Run.
type Options struct {
	Source  Source
	Records share.Existence
	Files   Files
	Prefix  string
	Metrics metrics.Metrics
	Events  bus.Publisher
	// SweepLock, when set, limits sweeps to one replica at a time.
	SweepLock locks.Locker
}

// Reaper removes files whose records no longer exist.
type Reaper struct {
	source  Source
	records share.Existence
	files   Files
	prefix  string
	metrics metrics.Metrics
	events  bus.Publisher
	lock    locks.Locker
}

func New(opts Options) *Reaper {
	r := &Reaper{
		source:  opts.Source,
		records: opts.Records,
		files:   opts.Files,
		prefix:  opts.Prefix,
		metrics: opts.Metrics,
		events:  opts.Events,
		lock:    opts.SweepLock,
	}
	if r.prefix == "" {
		r.prefix = share.DefaultPrefix
	}
	r.prefix += ":"
	if r.metrics == nil {
		r.metrics = metrics.Noop{}
	}
	if r.events == nil {
		r.events = bus.Noop{}
	}
	return r
}

// Run handles notifications one at a time until ctx is cancelled or the
// source closes. A failing event is logged and counted; the loop continues.
func (r *Reaper) Run(ctx context.Context) error {
	if r.source == nil {
		return errors.New("reaper: no event source")
	}
	events := r.source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				logging.Warn("reaper", "event source closed")
				return nil
			}
			outcome, err := r.Handle(ctx, evt)
			r.metrics.IncReaperEvent(string(outcome))
			if err != nil {
				logging.Error("reaper", "handle event", "kind", evt.Kind, "key", evt.Key, "error", err)
			}
		}
	}
}

// Handle reconciles a single notification.
func (r *Reaper) Handle(ctx context.Context, evt Event) (Outcome, error) {
	slug, ok := strings.CutPrefix(evt.Key, r.prefix)
	if !ok || share.ValidateSlug(slug) != nil {
		return OutcomeIgnored, nil
	}
	return r.reconcile(ctx, slug)
}

// reconcile removes the file for slug unless a record still holds the slug.
// The record is checked again under the file store lock, so a record created
// for the slug while this runs keeps the file it adopts.
func (r *Reaper) reconcile(ctx context.Context, slug string) (Outcome, error) {
	live, err := r.records.Exists(ctx, slug)
	if err != nil {
		return OutcomeError, err
	}
	if live {
		logging.Debug("reaper", "record still live", "slug", slug)
		return OutcomeLive, nil
	}
	res, err := r.files.RemoveUnless(slug, func() (bool, error) {
		return r.records.Exists(ctx, slug)
	})
	if err != nil {
		return OutcomeError, err
	}
	switch res {
	case filestore.Kept:
		logging.Debug("reaper", "slug reclaimed by a new record", "slug", slug)
		return OutcomeLive, nil
	case filestore.Removed:
		logging.Info("reaper", "file reclaimed", "slug", slug)
		r.reclaimed(slug)
		return OutcomeRemoved, nil
	case filestore.Deferred:
		logging.Info("reaper", "file in use; removal deferred", "slug", slug)
		r.reclaimed(slug)
		return OutcomeDeferred, nil
	default:
		return OutcomeAbsent, nil
	}
}

func (r *Reaper) reclaimed(slug string) {
	if err := r.events.PublishEvent(bus.Event{Type: bus.EventReclaimed, Slug: slug, Kind: string(share.KindFile)}); err != nil {
		logging.Warn("reaper", "publish event failed", "slug", slug, "error", err)
	}
}
