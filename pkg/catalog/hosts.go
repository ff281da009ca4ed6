package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
	"github.com/openfroyo/catalogd/pkg/telemetry"
)

// CreateHosts provisions req.Count hosts and deploys req.Version on each. Every host gets a
// create+deploy pair and all pairs form one chain, so hosts come up one at a time.
func (s *Service) CreateHosts(ctx context.Context, req CreateHostsRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.create_hosts",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	opts := s.Options()
	count := req.Count
	if count > opts.MaxFanOut {
		s.logger.Warn().Int("count", count).Int("max", opts.MaxFanOut).Msg("Reducing host count to fan-out limit")
		count = opts.MaxFanOut
	}

	for _, check := range []struct {
		what    string
		value   string
		options []string
	}{
		{"data center", req.DataCenter, opts.DataCenters},
		{"network", req.Network, opts.Networks},
		{"env", req.Env, opts.Envs},
		{"size", req.Size, opts.Sizes},
	} {
		if !config.Contains(check.options, check.value) {
			return nil, engine.NewValidationError(fmt.Sprintf("unknown %s %q", check.what, check.value), nil).
				WithCode(engine.ErrCodeValidation)
		}
	}

	service, team, err := s.owner(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	module, err := s.module(ctx, req.ServiceID, req.ModuleID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListHosts(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts of service %s: %w", req.ServiceID, err)
	}

	prefix := HostNamePrefix(req.DataCenter, req.Network, module.HostAbbr)
	first := s.nextHostNumber(prefix, existing)

	result = &Result{}
	items := make([]*engine.WorkItem, 0, 2*count)
	now := s.now()

	for i := 0; i < count; i++ {
		host := &engine.Host{
			ID:         uuid.New().String(),
			Name:       fmt.Sprintf("%s%03d", prefix, first+i),
			ServiceID:  service.ID,
			ModuleID:   module.ID,
			DataCenter: req.DataCenter,
			Network:    req.Network,
			Env:        req.Env,
			Size:       req.Size,
			Status:     engine.HostStatusFor(engine.OperationCreate, i > 0),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.SaveHost(ctx, host); err != nil {
			return nil, fmt.Errorf("failed to save host %s: %w", host.Name, err)
		}
		result.HostIDs = append(result.HostIDs, host.ID)

		snapshot := host.Snapshot()
		snapshot.Version = req.Version
		snapshot.Reason = req.Reason

		for _, operation := range []engine.Operation{engine.OperationCreate, engine.OperationDeploy} {
			items = append(items, engine.NewWorkItem(engine.KindHost, operation, req.Requestor, team, serviceRef(service),
				engine.WithModule(module.Snapshot()),
				engine.WithHost(snapshot)))
		}
	}

	result.WorkItemIDs, err = s.submitChain(ctx, items)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("service_id", service.ID).
		Str("module", module.Name).
		Int("count", count).
		Msg("Host creation requested")
	return result, nil
}

// HostNamePrefix returns the name prefix shared by hosts of a module in a data center and network.
func HostNamePrefix(dataCenter, network, hostAbbr string) string {
	return dataCenter + "-" + network + "-" + hostAbbr + "-"
}

// nextHostNumber returns one past the highest numeric suffix among hosts named with prefix.
func (s *Service) nextHostNumber(prefix string, hosts []*engine.Host) int {
	highest := 0
	for _, host := range hosts {
		if !strings.HasPrefix(host.Name, prefix) || len(host.Name) == len(prefix) {
			continue
		}
		n, err := strconv.Atoi(host.Name[len(prefix):])
		if err != nil {
			s.logger.Warn().Str("host", host.Name).Msg("Host name has no numeric suffix")
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}

// DeployHosts deploys req.Version to the selected idle hosts, one at a time.
func (s *Service) DeployHosts(ctx context.Context, req DeployHostsRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.deploy_hosts",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	return s.hostChain(ctx, req.Requestor, req.HostSelection, engine.OperationDeploy,
		func(snapshot *engine.HostSnapshot) {
			snapshot.Version = req.Version
			snapshot.Reason = req.Reason
		})
}

// RestartHosts restarts the selected idle hosts, one at a time. With req.Wait set it polls
// until the last work item resolves or the configured attempts run out.
func (s *Service) RestartHosts(ctx context.Context, req RestartHostsRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.restart_hosts",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	result, err = s.hostChain(ctx, req.Requestor, req.HostSelection, engine.OperationRestart,
		func(snapshot *engine.HostSnapshot) {
			snapshot.Reason = req.Reason
		})
	if err != nil || !req.Wait || len(result.WorkItemIDs) == 0 {
		return result, err
	}

	result.Completed, err = s.waitForWorkItem(ctx, result.WorkItemIDs[len(result.WorkItemIDs)-1])
	return result, err
}

// hostChain builds one chain of op over the selected hosts. The first host is labeled with
// the in-progress status and the others with the queued status.
func (s *Service) hostChain(
	ctx context.Context,
	requestor engine.Requestor,
	sel HostSelection,
	operation engine.Operation,
	decorate func(*engine.HostSnapshot),
) (*Result, error) {
	hosts, err := s.selectHosts(ctx, sel)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if len(hosts) == 0 {
		s.logger.Info().
			Str("service_id", sel.ServiceID).
			Str("operation", string(operation)).
			Msg("No idle hosts matched the selection")
		return result, nil
	}

	service, team, err := s.owner(ctx, sel.ServiceID)
	if err != nil {
		return nil, err
	}
	module, err := s.module(ctx, sel.ServiceID, sel.ModuleID)
	if err != nil {
		return nil, err
	}

	items := make([]*engine.WorkItem, 0, len(hosts))
	for i, host := range hosts {
		host.Status = engine.HostStatusFor(operation, i > 0)
		host.UpdatedAt = s.now()
		if err := s.store.UpdateHost(ctx, host); err != nil {
			return nil, fmt.Errorf("failed to update host %s: %w", host.Name, err)
		}
		result.HostIDs = append(result.HostIDs, host.ID)

		snapshot := host.Snapshot()
		decorate(&snapshot)
		items = append(items, engine.NewWorkItem(engine.KindHost, operation, requestor, team, serviceRef(service),
			engine.WithModule(module.Snapshot()),
			engine.WithHost(snapshot)))
	}

	result.WorkItemIDs, err = s.submitChain(ctx, items)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// selectHosts returns the idle hosts matching sel in name order. Busy hosts are skipped.
func (s *Service) selectHosts(ctx context.Context, sel HostSelection) ([]*engine.Host, error) {
	hosts, err := s.store.ListHosts(ctx, sel.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts of service %s: %w", sel.ServiceID, err)
	}

	wanted := make(map[string]bool, len(sel.HostIDs))
	for _, id := range sel.HostIDs {
		wanted[id] = true
	}

	var selected []*engine.Host
	for _, host := range hosts {
		if host.ModuleID != sel.ModuleID || host.Network != sel.Network {
			continue
		}
		if !sel.All && !wanted[host.ID] {
			continue
		}
		if host.IsBusy() {
			s.logger.Debug().Str("host", host.Name).Str("status", host.Status).Msg("Skipping busy host")
			continue
		}
		selected = append(selected, host)
	}
	return selected, nil
}

// waitForWorkItem polls until the work item is gone. It reports whether that happened
// within the configured attempts.
func (s *Service) waitForWorkItem(ctx context.Context, id string) (bool, error) {
	opts := s.Options()
	for attempt := 0; attempt < opts.RestartWaitAttempts; attempt++ {
		if _, err := s.store.GetWorkItem(ctx, id); err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				return true, nil
			}
			return false, fmt.Errorf("failed to poll work item %s: %w", id, err)
		}
		if err := s.sleep(ctx, opts.RestartWaitInterval); err != nil {
			return false, err
		}
	}

	_, err := s.store.GetWorkItem(ctx, id)
	if errors.Is(err, engine.ErrNotFound) {
		return true, nil
	}
	s.logger.Warn().Str("work_item_id", id).Int("attempts", opts.RestartWaitAttempts).Msg("Gave up waiting for restart chain")
	return false, nil
}

// DeleteHost decommissions an idle host.
func (s *Service) DeleteHost(ctx context.Context, req DeleteHostRequest) (result *Result, err error) {
	op := telemetry.StartOperation(ctx, "catalog.delete_host",
		telemetry.AttrServiceID.String(req.ServiceID))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	host, err := s.store.GetHost(ctx, req.ServiceID, req.HostID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, notFound("host", req.HostID)
		}
		return nil, fmt.Errorf("failed to load host %s: %w", req.HostID, err)
	}
	if host.IsBusy() {
		return nil, busy("host", host.Name, host.Status)
	}

	service, team, err := s.owner(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	host.Status = engine.StatusDeleting
	host.UpdatedAt = s.now()
	if err := s.store.UpdateHost(ctx, host); err != nil {
		return nil, fmt.Errorf("failed to update host %s: %w", host.Name, err)
	}

	snapshot := host.Snapshot()
	snapshot.Reason = req.Reason
	item := engine.NewWorkItem(engine.KindHost, engine.OperationDelete, req.Requestor, team, serviceRef(service),
		engine.WithHost(snapshot))

	ids, err := s.submitChain(ctx, []*engine.WorkItem{item})
	if err != nil {
		return nil, err
	}
	return &Result{WorkItemIDs: ids, HostIDs: []string{host.ID}}, nil
}
