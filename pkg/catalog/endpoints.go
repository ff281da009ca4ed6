package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
	"github.com/openfroyo/catalogd/pkg/telemetry"
)

// CreateEndpoint registers an endpoint in the Creating state and dispatches its create item.
func (s *Service) CreateEndpoint(ctx context.Context, req CreateEndpointRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.create_endpoint",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	if !config.Contains(s.Options().Networks, req.Network) {
		return nil, engine.NewValidationError(fmt.Sprintf("unknown network %q", req.Network), nil).
			WithCode(engine.ErrCodeValidation)
	}

	service, team, err := s.owner(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListEndpoints(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints of service %s: %w", req.ServiceID, err)
	}
	for _, endpoint := range existing {
		if endpoint.Name == req.Name {
			return nil, engine.NewConflictError(fmt.Sprintf("endpoint %s already exists", req.Name), nil).
				WithCode(engine.ErrCodeAlreadyExists).
				WithResource(endpoint.ID)
		}
	}

	now := s.now()
	endpoint := &engine.Endpoint{
		ID:          uuid.New().String(),
		Name:        req.Name,
		ServiceID:   service.ID,
		Network:     req.Network,
		Protocol:    req.Protocol,
		VIPPort:     req.VIPPort,
		ServicePort: req.ServicePort,
		External:    req.External,
		Status:      engine.StatusCreating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveEndpoint(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("failed to save endpoint %s: %w", endpoint.Name, err)
	}

	item := engine.NewWorkItem(engine.KindEndpoint, engine.OperationCreate, req.Requestor, team, serviceRef(service),
		engine.WithEndpoint(endpoint.Snapshot()))

	ids, err := s.submitChain(ctx, []*engine.WorkItem{item})
	if err != nil {
		return nil, err
	}
	return &Result{WorkItemIDs: ids, EndpointID: endpoint.ID}, nil
}

// UpdateEndpoint changes the service port and external flag of an idle endpoint. The new
// values are applied when the update succeeds.
func (s *Service) UpdateEndpoint(ctx context.Context, req UpdateEndpointRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.update_endpoint",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	endpoint, err := s.idleEndpoint(ctx, req.ServiceID, req.EndpointID)
	if err != nil {
		return nil, err
	}
	service, team, err := s.owner(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	snapshot := endpoint.Snapshot()
	snapshot.ServicePort = req.ServicePort
	snapshot.External = req.External

	endpoint.Status = engine.StatusUpdating
	endpoint.UpdatedAt = s.now()
	if err := s.store.UpdateEndpoint(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("failed to update endpoint %s: %w", endpoint.Name, err)
	}

	item := engine.NewWorkItem(engine.KindEndpoint, engine.OperationUpdate, req.Requestor, team, serviceRef(service),
		engine.WithEndpoint(snapshot))

	ids, err := s.submitChain(ctx, []*engine.WorkItem{item})
	if err != nil {
		return nil, err
	}
	return &Result{WorkItemIDs: ids, EndpointID: endpoint.ID}, nil
}

// DeleteEndpoint removes an idle endpoint. Its memberships go with it on success.
func (s *Service) DeleteEndpoint(ctx context.Context, req DeleteEndpointRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.delete_endpoint",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	endpoint, err := s.idleEndpoint(ctx, req.ServiceID, req.EndpointID)
	if err != nil {
		return nil, err
	}
	service, team, err := s.owner(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	endpoint.Status = engine.StatusDeleting
	endpoint.UpdatedAt = s.now()
	if err := s.store.UpdateEndpoint(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("failed to update endpoint %s: %w", endpoint.Name, err)
	}

	item := engine.NewWorkItem(engine.KindEndpoint, engine.OperationDelete, req.Requestor, team, serviceRef(service),
		engine.WithEndpoint(endpoint.Snapshot()))

	ids, err := s.submitChain(ctx, []*engine.WorkItem{item})
	if err != nil {
		return nil, err
	}
	return &Result{WorkItemIDs: ids, EndpointID: endpoint.ID}, nil
}

// idleEndpoint loads an endpoint and refuses it when an operation is in flight.
func (s *Service) idleEndpoint(ctx context.Context, serviceID, endpointID string) (*engine.Endpoint, error) {
	endpoint, err := s.store.GetEndpoint(ctx, serviceID, endpointID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, notFound("endpoint", endpointID)
		}
		return nil, fmt.Errorf("failed to load endpoint %s: %w", endpointID, err)
	}
	if endpoint.IsBusy() {
		return nil, busy("endpoint", endpoint.Name, endpoint.Status)
	}
	return endpoint, nil
}
