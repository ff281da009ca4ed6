package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

const (
	deadlineExceededCode        = 504
	deadlineExceededDescription = "callback deadline exceeded"
	defaultSweepInterval        = time.Minute
)

// Reconciler fails work items that have waited longer than a deadline for their callback,
// releasing the busy status of their targets through the normal failure path.
type Reconciler struct {
	processor *Processor
	store     WorkItemStore
	recorder  Recorder
	logger    zerolog.Logger
	deadline  time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewReconciler creates a reconciler. A deadline of zero or less disables it.
func NewReconciler(processor *Processor, deadline, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Reconciler{
		processor: processor,
		store:     processor.store,
		recorder:  processor.recorder,
		logger:    logger.With().Str("component", "reconciler").Logger(),
		deadline:  deadline,
		interval:  interval,
		now:       processor.now,
	}
}

// Enabled reports whether a pending deadline is configured.
func (r *Reconciler) Enabled() bool {
	return r.deadline > 0
}

// Run sweeps on every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.Enabled() {
		r.logger.Info().Msg("Pending deadline not configured, reconciler disabled")
		return nil
	}

	r.logger.Info().
		Dur("deadline", r.deadline).
		Dur("interval", r.interval).
		Msg("Reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Reconciler sweep failed")
			}
		}
	}
}

// Sweep resolves every dispatched work item older than the deadline as failed and returns how
// many were expired. Queued items are never expired.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}

	items, err := r.store.ListWorkItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list work items: %w", err)
	}

	cutoff := r.now().Add(-r.deadline)
	var result *multierror.Error
	expired := 0

	for _, item := range items {
		if item.DispatchedAt == nil || !item.DispatchedAt.Before(cutoff) {
			continue
		}

		r.logger.Warn().
			Str("work_item_id", item.ID).
			Str("kind", string(item.Kind)).
			Str("operation", string(item.Operation)).
			Time("dispatched_at", *item.DispatchedAt).
			Msg("Work item exceeded callback deadline")

		err := r.processor.Resolve(ctx, &Callback{
			RequestID:        item.ID,
			Status:           CallbackFail,
			ErrorCode:        deadlineExceededCode,
			ErrorDescription: deadlineExceededDescription,
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to expire work item %s: %w", item.ID, err))
			continue
		}
		expired++
	}

	if expired > 0 {
		r.recorder.RecordExpired(expired)
	}
	return expired, result.ErrorOrNil()
}
