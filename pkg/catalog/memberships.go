package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/catalogd/pkg/engine"
	"github.com/openfroyo/catalogd/pkg/telemetry"
)

// AddMemberships adds each requested host to each requested endpoint on the same network.
// Every membership is its own single item chain. Pairs on different networks are skipped.
func (s *Service) AddMemberships(ctx context.Context, req AddMembershipsRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.add_memberships",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	service, team, err := s.owner(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	hosts := make([]*engine.Host, 0, len(req.HostIDs))
	for _, id := range req.HostIDs {
		host, err := s.store.GetHost(ctx, req.ServiceID, id)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				return nil, notFound("host", id)
			}
			return nil, fmt.Errorf("failed to load host %s: %w", id, err)
		}
		hosts = append(hosts, host)
	}

	endpoints := make([]*engine.Endpoint, 0, len(req.EndpointIDs))
	for _, id := range req.EndpointIDs {
		endpoint, err := s.store.GetEndpoint(ctx, req.ServiceID, id)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				return nil, notFound("endpoint", id)
			}
			return nil, fmt.Errorf("failed to load endpoint %s: %w", id, err)
		}
		endpoints = append(endpoints, endpoint)
	}

	type pair struct {
		host     *engine.Host
		endpoint *engine.Endpoint
	}
	var pairs []pair
	for _, host := range hosts {
		for _, endpoint := range endpoints {
			if host.Network != endpoint.Network {
				s.logger.Warn().
					Str("host", host.Name).
					Str("endpoint", endpoint.Name).
					Msg("Host and endpoint are not on the same network, skipping")
				continue
			}

			ref, err := s.store.GetMembershipRef(ctx, host.ID, endpoint.ID)
			switch {
			case err == nil:
				if ref.IsBusy() {
					return nil, busy("membership", host.Name+"/"+endpoint.Name, ref.Status)
				}
				return nil, engine.NewConflictError(
					fmt.Sprintf("host %s is already a member of %s", host.Name, endpoint.Name), nil).
					WithCode(engine.ErrCodeAlreadyExists)
			case !errors.Is(err, engine.ErrNotFound):
				return nil, fmt.Errorf("failed to load membership %s/%s: %w", host.ID, endpoint.ID, err)
			}

			pairs = append(pairs, pair{host: host, endpoint: endpoint})
		}
	}

	if len(pairs) == 0 {
		return nil, engine.NewValidationError("no requested host shares a network with a requested endpoint", nil).
			WithCode(engine.ErrCodeValidation)
	}

	result = &Result{}
	for _, p := range pairs {
		ref := &engine.MembershipRef{HostID: p.host.ID, EndpointID: p.endpoint.ID, Status: engine.StatusAdding}
		if err := s.store.SaveMembershipRef(ctx, ref); err != nil {
			return nil, fmt.Errorf("failed to save membership %s/%s: %w", p.host.ID, p.endpoint.ID, err)
		}

		item := engine.NewWorkItem(engine.KindMembership, engine.OperationAdd, req.Requestor, team, serviceRef(service),
			engine.WithHost(p.host.Snapshot()),
			engine.WithEndpoint(p.endpoint.Snapshot()))

		ids, err := s.submitChain(ctx, []*engine.WorkItem{item})
		if err != nil {
			return nil, err
		}
		result.WorkItemIDs = append(result.WorkItemIDs, ids...)
	}
	return result, nil
}

// DeleteMembership removes an idle host from an endpoint.
func (s *Service) DeleteMembership(ctx context.Context, req DeleteMembershipRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.delete_membership",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	ref, err := s.store.GetMembershipRef(ctx, req.HostID, req.EndpointID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, notFound("membership", req.HostID+"/"+req.EndpointID)
		}
		return nil, fmt.Errorf("failed to load membership %s/%s: %w", req.HostID, req.EndpointID, err)
	}

	host, err := s.store.GetHost(ctx, req.ServiceID, req.HostID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, notFound("host", req.HostID)
		}
		return nil, fmt.Errorf("failed to load host %s: %w", req.HostID, err)
	}
	endpoint, err := s.store.GetEndpoint(ctx, req.ServiceID, req.EndpointID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, notFound("endpoint", req.EndpointID)
		}
		return nil, fmt.Errorf("failed to load endpoint %s: %w", req.EndpointID, err)
	}

	if ref.IsBusy() {
		return nil, busy("membership", host.Name+"/"+endpoint.Name, ref.Status)
	}

	service, team, err := s.owner(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	ref.Status = engine.StatusRemoving
	if err := s.store.UpdateMembershipRef(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to update membership %s/%s: %w", ref.HostID, ref.EndpointID, err)
	}

	item := engine.NewWorkItem(engine.KindMembership, engine.OperationDelete, req.Requestor, team, serviceRef(service),
		engine.WithHost(host.Snapshot()),
		engine.WithEndpoint(endpoint.Snapshot()))

	ids, err := s.submitChain(ctx, []*engine.WorkItem{item})
	if err != nil {
		return nil, err
	}
	return &Result{WorkItemIDs: ids, EndpointID: endpoint.ID}, nil
}
