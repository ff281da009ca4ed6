package senders

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// Reject refuses every work item.
type Reject struct {
	logger zerolog.Logger
}

// NewReject creates a rejecting sender.
func NewReject(logger zerolog.Logger) *Reject {
	return &Reject{logger: logger.With().Str("component", "reject-sender").Logger()}
}

// Send reports the item as failed so the processor rolls back its chain.
func (s *Reject) Send(_ context.Context, item *engine.WorkItem) (engine.DispatchResult, error) {
	s.logger.Warn().
		Str("work_item_id", item.ID).
		Str("action", item.Action().String()).
		Msg("Sender is rejecting work items")
	return engine.DispatchFailed, engine.NewTransportError("sender is rejecting work items", nil).
		WithCode(engine.ErrCodeDispatchFailed).
		WithResource(item.ID)
}
