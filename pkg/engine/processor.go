package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/openfroyo/catalogd/pkg/engine"

// Synthesized callback values for synchronous dispatch results.
const (
	syncSuccessDescription = " "
	syncSuccessOutput      = "no output"
	dispatchFailedCode     = 502
)

// SpanStarter starts trace spans. Both trace.Tracer and telemetry.Tracer satisfy it.
type SpanStarter interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithTracer sets the tracer used for submit and resolve spans.
func WithTracer(tracer SpanStarter) ProcessorOption {
	return func(p *Processor) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for dispatch and audit timestamps.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// Processor dispatches work items and resolves their callbacks.
// It holds only references to its collaborators and is safe for concurrent use.
type Processor struct {
	store    Store
	sender   Sender
	recorder Recorder
	logger   zerolog.Logger
	tracer   SpanStarter
	now      func() time.Time
}

// NewProcessor creates a new work item processor.
func NewProcessor(store Store, sender Sender, recorder Recorder, logger zerolog.Logger, opts ...ProcessorOption) *Processor {
	if recorder == nil {
		recorder = NopRecorder{}
	}

	p := &Processor{
		store:    store,
		sender:   sender,
		recorder: recorder,
		logger:   logger.With().Str("component", "processor").Logger(),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit dispatches a persisted work item. When the sender completes the item synchronously,
// or fails to hand it off, the resulting callback is resolved on the calling path and any
// chain continuation is dispatched in turn, until an item is pending or the chain ends.
func (p *Processor) Submit(ctx context.Context, item *WorkItem) error {
	if item == nil {
		return NewValidationError("work item is nil", nil).WithCode(ErrCodeValidation)
	}

	ctx, span := p.tracer.Start(ctx, "workitem.submit", trace.WithAttributes(
		attribute.String("work_item.id", item.ID),
		attribute.String("work_item.action", item.Action().String()),
	))
	defer span.End()

	err := p.drive(ctx, item, nil)
	endSpan(span, err)
	return err
}

// Resolve applies a callback to its work item, then dispatches the chain continuation if any.
// A callback for an unknown work item, including one already resolved, is an integrity fault.
func (p *Processor) Resolve(ctx context.Context, cb *Callback) error {
	if cb == nil || cb.RequestID == "" {
		return NewValidationError("callback has no request id", nil).WithCode(ErrCodeValidation)
	}

	ctx, span := p.tracer.Start(ctx, "workitem.resolve", trace.WithAttributes(
		attribute.String("work_item.id", cb.RequestID),
		attribute.String("callback.status", cb.Status),
	))
	defer span.End()

	err := p.drive(ctx, nil, cb)
	endSpan(span, err)
	return err
}

// drive alternates dispatch and resolution without recursion. Exactly one of item and cb is
// set on entry.
func (p *Processor) drive(ctx context.Context, item *WorkItem, cb *Callback) error {
	for item != nil || cb != nil {
		if cb != nil {
			next, err := p.resolveOne(ctx, cb)
			if err != nil {
				return err
			}
			cb, item = nil, next
			continue
		}

		synthesized, err := p.dispatch(ctx, item)
		if err != nil {
			return err
		}
		item, cb = nil, synthesized
	}
	return nil
}

// dispatch hands the item to the sender. It returns a synthesized callback for synchronous
// results and nil when the item is pending.
func (p *Processor) dispatch(ctx context.Context, item *WorkItem) (*Callback, error) {
	dispatchedAt := p.now()
	item.DispatchedAt = &dispatchedAt
	if err := p.store.SaveWorkItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save work item %s before dispatch: %w", item.ID, err)
	}

	start := time.Now()
	result, sendErr := p.sender.Send(ctx, item)
	duration := time.Since(start)
	p.recorder.RecordDispatch(item.Action(), result, duration)
	trace.SpanFromContext(ctx).AddEvent("workitem.dispatched", trace.WithAttributes(
		attribute.String("work_item.id", item.ID),
		attribute.String("dispatch.result", result.String()),
	))

	logger := p.itemLogger(item)

	switch result {
	case DispatchSucceeded:
		logger.Info().Dur("duration", duration).Msg("Work item completed by sender, no callback expected")
		return &Callback{
			RequestID:        item.ID,
			Status:           CallbackSuccess,
			ErrorCode:        0,
			ErrorDescription: syncSuccessDescription,
			Output:           syncSuccessOutput,
		}, nil

	case DispatchPending:
		logger.Info().Dur("duration", duration).Msg("Work item dispatched, awaiting callback")
		return nil, nil

	default:
		description := "work item dispatch failed"
		if sendErr != nil {
			description = sendErr.Error()
		}
		logger.Warn().Err(sendErr).Dur("duration", duration).Msg("Work item dispatch failed")
		return &Callback{
			RequestID:        item.ID,
			Status:           CallbackFail,
			ErrorCode:        dispatchFailedCode,
			ErrorDescription: description,
		}, nil
	}
}

// resolveOne resolves a single callback and returns the chain continuation to dispatch, if any.
func (p *Processor) resolveOne(ctx context.Context, cb *Callback) (*WorkItem, error) {
	start := time.Now()

	item, err := p.store.GetWorkItem(ctx, cb.RequestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			fault := NewIntegrityError("callback for unknown work item", err).
				WithCode(ErrCodeUnknownWorkItem).
				WithResource(cb.RequestID)
			p.integrityFault(fault)
			return nil, fault
		}
		return nil, fmt.Errorf("failed to load work item %s: %w", cb.RequestID, err)
	}

	if err := p.store.DeleteWorkItem(ctx, item.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// A concurrent resolution of the same callback claimed the item first.
			fault := NewIntegrityError("work item already resolved", err).
				WithCode(ErrCodeUnknownWorkItem).
				WithResource(item.ID)
			p.integrityFault(fault)
			return nil, fault
		}
		return nil, fmt.Errorf("failed to delete work item %s: %w", item.ID, err)
	}

	success := cb.Succeeded()
	action := item.Action()
	logger := p.itemLogger(item)
	defer func() {
		p.recorder.RecordOutcome(action, success, time.Since(start))
	}()

	if success {
		logger.Info().Msg("Work item succeeded")
	} else {
		logger.Warn().
			Str("status", cb.Status).
			Int("error_code", cb.ErrorCode).
			Str("error_description", cb.ErrorDescription).
			Msg("Work item failed")
	}

	complete, ok := completions[action]
	if !ok {
		fault := NewIntegrityError("no completion handler for work item action", nil).
			WithCode(ErrCodeUnexpectedAction).
			WithResource(item.ID).
			WithOperation(action.String())
		p.integrityFault(fault)
		if err := p.discardChain(ctx, item); err != nil {
			return nil, multierror.Append(fault, err)
		}
		return nil, fault
	}

	advance, handlerErr := complete(p, ctx, item, success)

	if !success {
		var result *multierror.Error
		if handlerErr != nil {
			result = multierror.Append(result, handlerErr)
		}
		if err := p.discardChain(ctx, item); err != nil {
			result = multierror.Append(result, err)
		}
		return nil, result.ErrorOrNil()
	}

	var result *multierror.Error
	if err := p.writeAudit(ctx, item, cb.Output); err != nil {
		result = multierror.Append(result, err)
	}
	if handlerErr != nil {
		if IsIntegrity(handlerErr) {
			p.integrityFault(handlerErr)
		}
		result = multierror.Append(result, handlerErr)
	}

	var next *WorkItem
	if result == nil && advance {
		next, err = p.advance(ctx, item)
		if err != nil {
			if IsIntegrity(err) {
				p.integrityFault(err)
			}
			result = multierror.Append(result, err)
		}
	}

	// A chain that cannot continue drops its queued members.
	if result != nil {
		logger.Warn().Err(result).Msg("Chain continuation failed, discarding queued work items")
		if err := p.discardChain(ctx, item); err != nil {
			result = multierror.Append(result, err)
		}
		return nil, result.ErrorOrNil()
	}
	return next, nil
}

// advance loads the successor of item and marks its target busy for dispatch.
func (p *Processor) advance(ctx context.Context, item *WorkItem) (*WorkItem, error) {
	if item.NextID == "" {
		return nil, nil
	}

	next, err := p.store.GetWorkItem(ctx, item.NextID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, missingSuccessor(item, err)
		}
		return nil, fmt.Errorf("failed to load successor %s: %w", item.NextID, err)
	}

	if next.Kind == KindHost && next.Host != nil {
		if err := p.setHostStatus(ctx, next, HostStatusFor(next.Operation, false)); err != nil {
			return nil, err
		}
	}

	p.logger.Debug().
		Str("work_item_id", item.ID).
		Str("next_id", next.ID).
		Msg("Advancing chain")
	return next, nil
}

// discardChain deletes every member after item without dispatching it. Target entities are
// left untouched and no audit is written. The walk continues past delete errors and stops at
// a missing member or a cycle.
func (p *Processor) discardChain(ctx context.Context, item *WorkItem) error {
	var result *multierror.Error
	visited := map[string]struct{}{item.ID: {}}
	discarded := 0

	for id := item.NextID; id != ""; {
		if _, ok := visited[id]; ok {
			fault := NewIntegrityError("chain revisits a work item", nil).
				WithCode(ErrCodeChainCycle).
				WithResource(id)
			p.integrityFault(fault)
			result = multierror.Append(result, fault)
			break
		}
		visited[id] = struct{}{}

		member, err := p.store.GetWorkItem(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				p.logger.Warn().
					Str("work_item_id", item.ID).
					Str("next_id", id).
					Msg("Chain member already gone, stopping rollback")
				break
			}
			result = multierror.Append(result, fmt.Errorf("failed to load chain member %s: %w", id, err))
			break
		}

		if err := p.store.DeleteWorkItem(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			result = multierror.Append(result, fmt.Errorf("failed to delete chain member %s: %w", id, err))
		} else {
			discarded++
			trace.SpanFromContext(ctx).AddEvent("workitem.discarded", trace.WithAttributes(
				attribute.String("work_item.id", id),
				attribute.String("failed_id", item.ID),
			))
			p.itemLogger(member).Info().
				Str("failed_id", item.ID).
				Msg("Discarded queued work item after chain failure")
		}

		id = member.NextID
	}

	if discarded > 0 {
		p.recorder.RecordRollback(discarded)
	}
	return result.ErrorOrNil()
}

func (p *Processor) writeAudit(ctx context.Context, item *WorkItem, output string) error {
	audit := &Audit{
		ID:          item.ID,
		ServiceID:   item.Service.ID,
		Requestor:   item.Requestor.Username,
		RequestedAt: item.RequestedAt,
		PerformedAt: p.now(),
		Kind:        item.Kind,
		Operation:   item.Operation,
		Notes:       auditNotes(item),
	}
	if item.Module != nil {
		audit.ModuleName = item.Module.Name
	}
	if item.Host != nil {
		audit.HostName = item.Host.Name
	}
	if item.Endpoint != nil {
		audit.EndpointName = item.Endpoint.Name
	}

	if err := p.store.SaveAudit(ctx, audit, output); err != nil {
		return fmt.Errorf("failed to save audit for work item %s: %w", item.ID, err)
	}
	return nil
}

func (p *Processor) integrityFault(err error) {
	p.recorder.RecordIntegrityFault(ErrorCode(err))
	p.logger.Error().Err(err).Str("code", ErrorCode(err)).Msg("Work item integrity fault")
}

func (p *Processor) itemLogger(item *WorkItem) *zerolog.Logger {
	ctx := p.logger.With().
		Str("work_item_id", item.ID).
		Str("kind", string(item.Kind)).
		Str("operation", string(item.Operation))
	if item.NextID != "" {
		ctx = ctx.Str("next_id", item.NextID)
	}
	logger := ctx.Logger()
	return &logger
}

func missingSuccessor(item *WorkItem, err error) error {
	return NewIntegrityError("chain successor not found", err).
		WithCode(ErrCodeMissingSuccessor).
		WithResource(item.NextID).
		WithDetail("predecessor", item.ID)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
