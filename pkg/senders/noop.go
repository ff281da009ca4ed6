package senders

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// Noop completes every work item without contacting an executor.
type Noop struct {
	logger zerolog.Logger
}

// NewNoop creates a noop sender.
func NewNoop(logger zerolog.Logger) *Noop {
	return &Noop{logger: logger.With().Str("component", "noop-sender").Logger()}
}

// Send logs the item and reports it as completed.
func (s *Noop) Send(_ context.Context, item *engine.WorkItem) (engine.DispatchResult, error) {
	s.logger.Info().
		Str("work_item_id", item.ID).
		Str("kind", string(item.Kind)).
		Str("operation", string(item.Operation)).
		Msg("Noop sender completing work item")
	return engine.DispatchSucceeded, nil
}
