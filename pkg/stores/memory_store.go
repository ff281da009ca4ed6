package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// MemoryStore implements engine.Store in process memory. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	workItems   map[string]*engine.WorkItem
	teams       map[string]*engine.Team
	services    map[string]*engine.Service
	modules     map[moduleKey]*engine.Module
	hosts       map[string]*engine.Host
	endpoints   map[string]*engine.Endpoint
	memberships map[membershipKey]*engine.MembershipRef
	audits      []auditRow
}

type moduleKey struct {
	serviceID string
	moduleID  string
}

type membershipKey struct {
	hostID     string
	endpointID string
}

type auditRow struct {
	audit  engine.Audit
	output string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workItems:   make(map[string]*engine.WorkItem),
		teams:       make(map[string]*engine.Team),
		services:    make(map[string]*engine.Service),
		modules:     make(map[moduleKey]*engine.Module),
		hosts:       make(map[string]*engine.Host),
		endpoints:   make(map[string]*engine.Endpoint),
		memberships: make(map[membershipKey]*engine.MembershipRef),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// GetWorkItem retrieves a work item by ID.
func (s *MemoryStore) GetWorkItem(_ context.Context, id string) (*engine.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.workItems[id]
	if !ok {
		return nil, fmt.Errorf("work item %s: %w", id, ErrNotFound)
	}
	return item.Clone(), nil
}

// SaveWorkItem inserts or replaces a work item.
func (s *MemoryStore) SaveWorkItem(_ context.Context, item *engine.WorkItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("work item id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workItems[item.ID] = item.Clone()
	return nil
}

// DeleteWorkItem removes a work item.
func (s *MemoryStore) DeleteWorkItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workItems[id]; !ok {
		return fmt.Errorf("work item %s: %w", id, ErrNotFound)
	}
	delete(s.workItems, id)
	return nil
}

// ListWorkItems returns all work items ordered by request time.
func (s *MemoryStore) ListWorkItems(_ context.Context) ([]*engine.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*engine.WorkItem, 0, len(s.workItems))
	for _, item := range s.workItems {
		items = append(items, item.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].RequestedAt.Equal(items[j].RequestedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].RequestedAt.Before(items[j].RequestedAt)
	})
	return items, nil
}

// GetHost retrieves a host of a service.
func (s *MemoryStore) GetHost(_ context.Context, serviceID, hostID string) (*engine.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	host, ok := s.hosts[hostID]
	if !ok || host.ServiceID != serviceID {
		return nil, fmt.Errorf("host %s: %w", hostID, ErrNotFound)
	}
	c := *host
	return &c, nil
}

// ListHosts returns the hosts of a service ordered by name.
func (s *MemoryStore) ListHosts(_ context.Context, serviceID string) ([]*engine.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hosts []*engine.Host
	for _, host := range s.hosts {
		if host.ServiceID == serviceID {
			c := *host
			hosts = append(hosts, &c)
		}
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, nil
}

// SaveHost inserts or replaces a host.
func (s *MemoryStore) SaveHost(_ context.Context, host *engine.Host) error {
	if host == nil || host.ID == "" {
		return fmt.Errorf("host id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *host
	s.hosts[host.ID] = &c
	return nil
}

// UpdateHost replaces an existing host.
func (s *MemoryStore) UpdateHost(_ context.Context, host *engine.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hosts[host.ID]; !ok {
		return fmt.Errorf("host %s: %w", host.ID, ErrNotFound)
	}
	c := *host
	s.hosts[host.ID] = &c
	return nil
}

// DeleteHost removes a host of a service.
func (s *MemoryStore) DeleteHost(_ context.Context, serviceID, hostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	host, ok := s.hosts[hostID]
	if !ok || host.ServiceID != serviceID {
		return fmt.Errorf("host %s: %w", hostID, ErrNotFound)
	}
	delete(s.hosts, hostID)
	return nil
}

// GetEndpoint retrieves an endpoint of a service.
func (s *MemoryStore) GetEndpoint(_ context.Context, serviceID, endpointID string) (*engine.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	endpoint, ok := s.endpoints[endpointID]
	if !ok || endpoint.ServiceID != serviceID {
		return nil, fmt.Errorf("endpoint %s: %w", endpointID, ErrNotFound)
	}
	c := *endpoint
	return &c, nil
}

// ListEndpoints returns the endpoints of a service ordered by name.
func (s *MemoryStore) ListEndpoints(_ context.Context, serviceID string) ([]*engine.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var endpoints []*engine.Endpoint
	for _, endpoint := range s.endpoints {
		if endpoint.ServiceID == serviceID {
			c := *endpoint
			endpoints = append(endpoints, &c)
		}
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Name < endpoints[j].Name })
	return endpoints, nil
}

// SaveEndpoint inserts or replaces an endpoint.
func (s *MemoryStore) SaveEndpoint(_ context.Context, endpoint *engine.Endpoint) error {
	if endpoint == nil || endpoint.ID == "" {
		return fmt.Errorf("endpoint id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *endpoint
	s.endpoints[endpoint.ID] = &c
	return nil
}

// UpdateEndpoint replaces an existing endpoint.
func (s *MemoryStore) UpdateEndpoint(_ context.Context, endpoint *engine.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[endpoint.ID]; !ok {
		return fmt.Errorf("endpoint %s: %w", endpoint.ID, ErrNotFound)
	}
	c := *endpoint
	s.endpoints[endpoint.ID] = &c
	return nil
}

// DeleteEndpoint removes an endpoint of a service.
func (s *MemoryStore) DeleteEndpoint(_ context.Context, serviceID, endpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint, ok := s.endpoints[endpointID]
	if !ok || endpoint.ServiceID != serviceID {
		return fmt.Errorf("endpoint %s: %w", endpointID, ErrNotFound)
	}
	delete(s.endpoints, endpointID)
	return nil
}

// GetMembershipRef retrieves the membership of a host in an endpoint.
func (s *MemoryStore) GetMembershipRef(_ context.Context, hostID, endpointID string) (*engine.MembershipRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.memberships[membershipKey{hostID, endpointID}]
	if !ok {
		return nil, fmt.Errorf("membership %s/%s: %w", hostID, endpointID, ErrNotFound)
	}
	c := *ref
	return &c, nil
}

// ListMembershipRefs returns the memberships of an endpoint ordered by host.
func (s *MemoryStore) ListMembershipRefs(_ context.Context, endpointID string) ([]*engine.MembershipRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []*engine.MembershipRef
	for key, ref := range s.memberships {
		if key.endpointID == endpointID {
			c := *ref
			refs = append(refs, &c)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].HostID < refs[j].HostID })
	return refs, nil
}

// SaveMembershipRef inserts or replaces a membership.
func (s *MemoryStore) SaveMembershipRef(_ context.Context, ref *engine.MembershipRef) error {
	if ref == nil || ref.HostID == "" || ref.EndpointID == "" {
		return fmt.Errorf("membership host id and endpoint id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *ref
	s.memberships[membershipKey{ref.HostID, ref.EndpointID}] = &c
	return nil
}

// UpdateMembershipRef replaces an existing membership.
func (s *MemoryStore) UpdateMembershipRef(_ context.Context, ref *engine.MembershipRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{ref.HostID, ref.EndpointID}
	if _, ok := s.memberships[key]; !ok {
		return fmt.Errorf("membership %s/%s: %w", ref.HostID, ref.EndpointID, ErrNotFound)
	}
	c := *ref
	s.memberships[key] = &c
	return nil
}

// DeleteMembershipRef removes a membership.
func (s *MemoryStore) DeleteMembershipRef(_ context.Context, hostID, endpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{hostID, endpointID}
	if _, ok := s.memberships[key]; !ok {
		return fmt.Errorf("membership %s/%s: %w", hostID, endpointID, ErrNotFound)
	}
	delete(s.memberships, key)
	return nil
}

// DeleteMembershipRefsByEndpoint removes every membership of an endpoint.
func (s *MemoryStore) DeleteMembershipRefsByEndpoint(_ context.Context, endpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.memberships {
		if key.endpointID == endpointID {
			delete(s.memberships, key)
		}
	}
	return nil
}

// GetTeam retrieves a team by ID.
func (s *MemoryStore) GetTeam(_ context.Context, teamID string) (*engine.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	c := *team
	return &c, nil
}

// SaveTeam inserts or replaces a team.
func (s *MemoryStore) SaveTeam(_ context.Context, team *engine.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *team
	s.teams[team.ID] = &c
	return nil
}

// GetService retrieves a service by ID.
func (s *MemoryStore) GetService(_ context.Context, serviceID string) (*engine.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	service, ok := s.services[serviceID]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	c := *service
	return &c, nil
}

// SaveService inserts or replaces a service.
func (s *MemoryStore) SaveService(_ context.Context, service *engine.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *service
	s.services[service.ID] = &c
	return nil
}

// ListServices returns every service ordered by id.
func (s *MemoryStore) ListServices(_ context.Context) ([]*engine.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]*engine.Service, 0, len(s.services))
	for _, service := range s.services {
		c := *service
		services = append(services, &c)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}

// GetModule retrieves a module of a service.
func (s *MemoryStore) GetModule(_ context.Context, serviceID, moduleID string) (*engine.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	module, ok := s.modules[moduleKey{serviceID, moduleID}]
	if !ok {
		return nil, fmt.Errorf("module %s: %w", moduleID, ErrNotFound)
	}
	c := *module
	return &c, nil
}

// SaveModule inserts or replaces a module.
func (s *MemoryStore) SaveModule(_ context.Context, module *engine.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *module
	s.modules[moduleKey{module.ServiceID, module.ID}] = &c
	return nil
}

// ListModules returns the modules of a service ordered by id.
func (s *MemoryStore) ListModules(_ context.Context, serviceID string) ([]*engine.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var modules []*engine.Module
	for key, module := range s.modules {
		if key.serviceID == serviceID {
			c := *module
			modules = append(modules, &c)
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })
	return modules, nil
}

// SaveAudit appends an audit record with the raw executor output.
func (s *MemoryStore) SaveAudit(_ context.Context, audit *engine.Audit, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audits = append(s.audits, auditRow{audit: *audit, output: output})
	return nil
}

// ListAudits returns the audit records of a service in insertion order.
func (s *MemoryStore) ListAudits(_ context.Context, serviceID string) ([]*engine.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var audits []*engine.Audit
	for _, row := range s.audits {
		if row.audit.ServiceID == serviceID {
			a := row.audit
			audits = append(audits, &a)
		}
	}
	return audits, nil
}

// AuditOutput returns the executor output stored with the audit of a work item.
func (s *MemoryStore) AuditOutput(_ context.Context, auditID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.audits {
		if row.audit.ID == auditID {
			return row.output, nil
		}
	}
	return "", fmt.Errorf("audit %s: %w", auditID, ErrNotFound)
}
