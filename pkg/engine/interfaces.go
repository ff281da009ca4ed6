package engine

import (
	"context"
	"time"
)

// WorkItemStore persists work items between dispatch and resolution.
type WorkItemStore interface {
	// GetWorkItem returns the work item with the given id, or an error wrapping ErrNotFound.
	GetWorkItem(ctx context.Context, id string) (*WorkItem, error)

	// SaveWorkItem inserts or replaces a work item.
	SaveWorkItem(ctx context.Context, item *WorkItem) error

	// DeleteWorkItem removes a work item. Deleting a missing item wraps ErrNotFound.
	DeleteWorkItem(ctx context.Context, id string) error

	// ListWorkItems returns all live work items ordered by request time.
	ListWorkItems(ctx context.Context) ([]*WorkItem, error)
}

// EntityStore persists the mutable entities work items act on.
type EntityStore interface {
	GetHost(ctx context.Context, serviceID, hostID string) (*Host, error)
	ListHosts(ctx context.Context, serviceID string) ([]*Host, error)
	SaveHost(ctx context.Context, host *Host) error
	UpdateHost(ctx context.Context, host *Host) error
	DeleteHost(ctx context.Context, serviceID, hostID string) error

	GetEndpoint(ctx context.Context, serviceID, endpointID string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, serviceID string) ([]*Endpoint, error)
	SaveEndpoint(ctx context.Context, endpoint *Endpoint) error
	UpdateEndpoint(ctx context.Context, endpoint *Endpoint) error
	DeleteEndpoint(ctx context.Context, serviceID, endpointID string) error

	GetMembershipRef(ctx context.Context, hostID, endpointID string) (*MembershipRef, error)
	ListMembershipRefs(ctx context.Context, endpointID string) ([]*MembershipRef, error)
	SaveMembershipRef(ctx context.Context, ref *MembershipRef) error
	UpdateMembershipRef(ctx context.Context, ref *MembershipRef) error
	DeleteMembershipRef(ctx context.Context, hostID, endpointID string) error

	// DeleteMembershipRefsByEndpoint removes every membership of the endpoint.
	DeleteMembershipRefsByEndpoint(ctx context.Context, endpointID string) error
}

// CatalogStore resolves the ownership records request handlers need.
type CatalogStore interface {
	GetTeam(ctx context.Context, teamID string) (*Team, error)
	SaveTeam(ctx context.Context, team *Team) error
	GetService(ctx context.Context, serviceID string) (*Service, error)
	SaveService(ctx context.Context, service *Service) error
	GetModule(ctx context.Context, serviceID, moduleID string) (*Module, error)
	SaveModule(ctx context.Context, module *Module) error

	// ListServices returns every service ordered by id.
	ListServices(ctx context.Context) ([]*Service, error)

	// ListModules returns the modules of a service ordered by id.
	ListModules(ctx context.Context, serviceID string) ([]*Module, error)
}

// AuditStore persists audit records.
type AuditStore interface {
	// SaveAudit stores the record together with the raw executor output.
	SaveAudit(ctx context.Context, audit *Audit, output string) error

	// ListAudits returns the audit records of a service, oldest first.
	ListAudits(ctx context.Context, serviceID string) ([]*Audit, error)
}

// Store is the storage collaborator of the processor and the catalog layer.
type Store interface {
	WorkItemStore
	EntityStore
	CatalogStore
	AuditStore

	// Close releases any resources held by the store.
	Close() error
}

// Sender hands a work item to an executor and classifies the response.
// The returned error is informational; a failed hand-off is reported as DispatchFailed.
type Sender interface {
	Send(ctx context.Context, item *WorkItem) (DispatchResult, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, item *WorkItem) (DispatchResult, error)

// Send calls f(ctx, item).
func (f SenderFunc) Send(ctx context.Context, item *WorkItem) (DispatchResult, error) {
	return f(ctx, item)
}

// Recorder receives processor measurements.
type Recorder interface {
	RecordDispatch(action Action, result DispatchResult, duration time.Duration)
	RecordOutcome(action Action, success bool, duration time.Duration)
	RecordIntegrityFault(code string)
	RecordRollback(count int)
	RecordExpired(count int)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) RecordDispatch(Action, DispatchResult, time.Duration) {}
func (NopRecorder) RecordOutcome(Action, bool, time.Duration)            {}
func (NopRecorder) RecordIntegrityFault(string)                          {}
func (NopRecorder) RecordRollback(int)                                   {}
func (NopRecorder) RecordExpired(int)                                    {}
