package engine

import (
	"context"
	"errors"
	"fmt"
)

// completion applies the entity transition for a resolved work item. It reports whether the
// chain should advance to the successor; advance is only honored on success.
type completion func(p *Processor, ctx context.Context, item *WorkItem, success bool) (advance bool, err error)

// completions is the closed set of actions the processor can resolve.
var completions = map[Action]completion{
	{KindModule, OperationCreate}: (*Processor).completeModule,
	{KindModule, OperationUpdate}: (*Processor).completeModule,
	{KindModule, OperationDelete}: (*Processor).completeModule,

	{KindHost, OperationCreate}:  (*Processor).completeHostCreate,
	{KindHost, OperationDeploy}:  (*Processor).completeHostIdle,
	{KindHost, OperationRestart}: (*Processor).completeHostIdle,
	{KindHost, OperationDelete}:  (*Processor).completeHostDelete,

	{KindEndpoint, OperationCreate}: (*Processor).completeEndpointCreate,
	{KindEndpoint, OperationUpdate}: (*Processor).completeEndpointUpdate,
	{KindEndpoint, OperationDelete}: (*Processor).completeEndpointDelete,

	{KindMembership, OperationAdd}:    (*Processor).completeMembershipAdd,
	{KindMembership, OperationDelete}: (*Processor).completeMembershipDelete,
}

// SupportedActions returns every action the processor can resolve.
func SupportedActions() []Action {
	actions := make([]Action, 0, len(completions))
	for _, kind := range Kinds {
		for _, op := range Operations {
			a := Action{Kind: kind, Operation: op}
			if _, ok := completions[a]; ok {
				actions = append(actions, a)
			}
		}
	}
	return actions
}

// Supports reports whether the processor can resolve the action.
func Supports(a Action) bool {
	_, ok := completions[a]
	return ok
}

// Modules carry no status; only the audit is written.
func (p *Processor) completeModule(_ context.Context, _ *WorkItem, success bool) (bool, error) {
	return success, nil
}

func (p *Processor) completeHostCreate(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	host, err := p.targetHost(ctx, item)
	if err != nil || host == nil {
		return success, err
	}

	if !success {
		p.itemLogger(item).Warn().Str("host", host.Name).Msg("Host creation failed, removing host")
		return false, p.deleteHost(ctx, host)
	}

	if item.NextID == "" {
		p.itemLogger(item).Warn().Str("host", host.Name).Msg("Created host has no deploy work item")
		host.Status = StatusIdle
		return false, p.updateHost(ctx, host)
	}

	if _, err := p.store.GetWorkItem(ctx, item.NextID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("failed to load successor %s: %w", item.NextID, err)
		}
		host.Status = StatusIdle
		if uerr := p.updateHost(ctx, host); uerr != nil {
			return false, uerr
		}
		return false, missingSuccessor(item, err)
	}

	return true, nil
}

// completeHostIdle resolves deploy and restart. Failure leaves the host as-is.
func (p *Processor) completeHostIdle(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	if !success {
		return false, nil
	}

	host, err := p.targetHost(ctx, item)
	if err != nil || host == nil {
		return true, err
	}

	host.Status = StatusIdle
	return true, p.updateHost(ctx, host)
}

func (p *Processor) completeHostDelete(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	host, err := p.targetHost(ctx, item)
	if err != nil || host == nil {
		return success, err
	}

	if success {
		return true, p.deleteHost(ctx, host)
	}

	host.Status = StatusIdle
	return false, p.updateHost(ctx, host)
}

func (p *Processor) completeEndpointCreate(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	endpoint, err := p.targetEndpoint(ctx, item)
	if err != nil || endpoint == nil {
		return success, err
	}

	if !success {
		return false, p.deleteEndpoint(ctx, endpoint)
	}

	endpoint.Status = StatusIdle
	return true, p.updateEndpoint(ctx, endpoint)
}

// Only the external flag and service port of an endpoint are mutable.
func (p *Processor) completeEndpointUpdate(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	if !success {
		return false, nil
	}

	endpoint, err := p.targetEndpoint(ctx, item)
	if err != nil || endpoint == nil {
		return true, err
	}

	endpoint.Status = StatusIdle
	endpoint.External = item.Endpoint.External
	endpoint.ServicePort = item.Endpoint.ServicePort
	return true, p.updateEndpoint(ctx, endpoint)
}

func (p *Processor) completeEndpointDelete(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	endpoint, err := p.targetEndpoint(ctx, item)
	if err != nil || endpoint == nil {
		return success, err
	}

	if !success {
		endpoint.Status = StatusIdle
		return false, p.updateEndpoint(ctx, endpoint)
	}

	if err := p.store.DeleteMembershipRefsByEndpoint(ctx, endpoint.ID); err != nil {
		return false, fmt.Errorf("failed to delete memberships of endpoint %s: %w", endpoint.ID, err)
	}
	return true, p.deleteEndpoint(ctx, endpoint)
}

func (p *Processor) completeMembershipAdd(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	ref, err := p.targetMembership(ctx, item)
	if err != nil || ref == nil {
		return success, err
	}

	if !success {
		return false, p.deleteMembership(ctx, ref)
	}

	ref.Status = StatusIdle
	return true, p.updateMembership(ctx, ref)
}

func (p *Processor) completeMembershipDelete(ctx context.Context, item *WorkItem, success bool) (bool, error) {
	ref, err := p.targetMembership(ctx, item)
	if err != nil || ref == nil {
		return success, err
	}

	if success {
		return true, p.deleteMembership(ctx, ref)
	}

	ref.Status = StatusIdle
	return false, p.updateMembership(ctx, ref)
}

// targetHost loads the host a work item acts on. A host that no longer exists is logged and
// returned as nil so the transition is skipped.
func (p *Processor) targetHost(ctx context.Context, item *WorkItem) (*Host, error) {
	if item.Host == nil {
		return nil, missingSnapshot(item, "host")
	}

	host, err := p.store.GetHost(ctx, item.Service.ID, item.Host.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.itemLogger(item).Warn().Str("host_id", item.Host.ID).Msg("Target host not found, skipping transition")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load host %s: %w", item.Host.ID, err)
	}
	return host, nil
}

func (p *Processor) targetEndpoint(ctx context.Context, item *WorkItem) (*Endpoint, error) {
	if item.Endpoint == nil {
		return nil, missingSnapshot(item, "endpoint")
	}

	endpoint, err := p.store.GetEndpoint(ctx, item.Service.ID, item.Endpoint.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.itemLogger(item).Warn().Str("endpoint_id", item.Endpoint.ID).Msg("Target endpoint not found, skipping transition")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load endpoint %s: %w", item.Endpoint.ID, err)
	}
	return endpoint, nil
}

func (p *Processor) targetMembership(ctx context.Context, item *WorkItem) (*MembershipRef, error) {
	if item.Host == nil {
		return nil, missingSnapshot(item, "host")
	}
	if item.Endpoint == nil {
		return nil, missingSnapshot(item, "endpoint")
	}

	ref, err := p.store.GetMembershipRef(ctx, item.Host.ID, item.Endpoint.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.itemLogger(item).Error().
				Str("host_id", item.Host.ID).
				Str("endpoint_id", item.Endpoint.ID).
				Msg("Target membership not found, skipping transition")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load membership %s/%s: %w", item.Host.ID, item.Endpoint.ID, err)
	}
	return ref, nil
}

// setHostStatus marks the target host of item with status. A missing host is logged.
func (p *Processor) setHostStatus(ctx context.Context, item *WorkItem, status string) error {
	host, err := p.targetHost(ctx, item)
	if err != nil || host == nil {
		return err
	}
	host.Status = status
	return p.updateHost(ctx, host)
}

func (p *Processor) updateHost(ctx context.Context, host *Host) error {
	host.UpdatedAt = p.now()
	if err := p.store.UpdateHost(ctx, host); err != nil {
		return fmt.Errorf("failed to update host %s: %w", host.ID, err)
	}
	return nil
}

func (p *Processor) deleteHost(ctx context.Context, host *Host) error {
	if err := p.store.DeleteHost(ctx, host.ServiceID, host.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete host %s: %w", host.ID, err)
	}
	return nil
}

func (p *Processor) updateEndpoint(ctx context.Context, endpoint *Endpoint) error {
	endpoint.UpdatedAt = p.now()
	if err := p.store.UpdateEndpoint(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to update endpoint %s: %w", endpoint.ID, err)
	}
	return nil
}

func (p *Processor) deleteEndpoint(ctx context.Context, endpoint *Endpoint) error {
	if err := p.store.DeleteEndpoint(ctx, endpoint.ServiceID, endpoint.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete endpoint %s: %w", endpoint.ID, err)
	}
	return nil
}

func (p *Processor) updateMembership(ctx context.Context, ref *MembershipRef) error {
	if err := p.store.UpdateMembershipRef(ctx, ref); err != nil {
		return fmt.Errorf("failed to update membership %s/%s: %w", ref.HostID, ref.EndpointID, err)
	}
	return nil
}

func (p *Processor) deleteMembership(ctx context.Context, ref *MembershipRef) error {
	if err := p.store.DeleteMembershipRef(ctx, ref.HostID, ref.EndpointID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete membership %s/%s: %w", ref.HostID, ref.EndpointID, err)
	}
	return nil
}

func missingSnapshot(item *WorkItem, what string) error {
	return NewIntegrityError(fmt.Sprintf("work item carries no %s snapshot", what), nil).
		WithCode(ErrCodeMissingSnapshot).
		WithResource(item.ID).
		WithOperation(item.Action().String())
}
