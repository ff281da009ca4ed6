package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Requestor identifies the user who asked for a change.
type Requestor struct {
	Username string `json:"username"`
	FullName string `json:"fullname,omitempty"`
}

// TeamRef identifies the team owning the target service.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ServiceRef identifies the service owning the target entity.
type ServiceRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ModuleSnapshot is the module data carried by a work item.
type ModuleSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Template string `json:"template,omitempty"`
	Type     string `json:"type,omitempty"`
}

// HostSnapshot is the host data carried by a work item.
type HostSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DataCenter string `json:"data_center,omitempty"`
	Network    string `json:"network,omitempty"`
	Env        string `json:"env,omitempty"`
	Size       string `json:"size,omitempty"`
	Version    string `json:"version,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// EndpointSnapshot is the endpoint data carried by a work item. For updates it holds the
// requested new values.
type EndpointSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Network     string `json:"network,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	VIPPort     int    `json:"vip_port,omitempty"`
	ServicePort int    `json:"service_port,omitempty"`
	External    bool   `json:"external"`
}

// WorkItem is the persisted unit of pending change handed to the executor.
type WorkItem struct {
	// ID is the unique identifier, also used as the callback correlation id.
	ID string `json:"id"`

	// Kind is the type of the target entity.
	Kind Kind `json:"kind"`

	// Operation is the requested change.
	Operation Operation `json:"operation"`

	// Requestor is the user who asked for the change.
	Requestor Requestor `json:"requestor"`

	// Team owns the service.
	Team TeamRef `json:"team"`

	// Service owns the target entity.
	Service ServiceRef `json:"service"`

	// Module, Host and Endpoint are set according to Kind.
	Module   *ModuleSnapshot   `json:"module,omitempty"`
	Host     *HostSnapshot     `json:"host,omitempty"`
	Endpoint *EndpointSnapshot `json:"endpoint,omitempty"`

	// NextID is the successor in the chain, empty for the tail.
	NextID string `json:"next_id,omitempty"`

	// RequestedAt is when the work item was created.
	RequestedAt time.Time `json:"requested_at"`

	// DispatchedAt is when the work item was handed to the sender. Nil while queued.
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// WorkItemOption configures a WorkItem built by NewWorkItem.
type WorkItemOption func(*WorkItem)

// WithModule attaches a module snapshot.
func WithModule(m ModuleSnapshot) WorkItemOption {
	return func(w *WorkItem) { w.Module = &m }
}

// WithHost attaches a host snapshot.
func WithHost(h HostSnapshot) WorkItemOption {
	return func(w *WorkItem) { w.Host = &h }
}

// WithEndpoint attaches an endpoint snapshot.
func WithEndpoint(e EndpointSnapshot) WorkItemOption {
	return func(w *WorkItem) { w.Endpoint = &e }
}

// NewWorkItem creates a work item with a fresh id and request timestamp.
func NewWorkItem(kind Kind, op Operation, requestor Requestor, team TeamRef, service ServiceRef, opts ...WorkItemOption) *WorkItem {
	w := &WorkItem{
		ID:          uuid.New().String(),
		Kind:        kind,
		Operation:   op,
		Requestor:   requestor,
		Team:        team,
		Service:     service,
		RequestedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Action returns the (kind, operation) pair of the work item.
func (w *WorkItem) Action() Action {
	return Action{Kind: w.Kind, Operation: w.Operation}
}

// Clone returns a deep copy of the work item.
func (w *WorkItem) Clone() *WorkItem {
	c := *w
	if w.Module != nil {
		m := *w.Module
		c.Module = &m
	}
	if w.Host != nil {
		h := *w.Host
		c.Host = &h
	}
	if w.Endpoint != nil {
		e := *w.Endpoint
		c.Endpoint = &e
	}
	if w.DispatchedAt != nil {
		t := *w.DispatchedAt
		c.DispatchedAt = &t
	}
	return &c
}

// Callback is the executor's report on a dispatched work item.
type Callback struct {
	RequestID        string `json:"requestId" validate:"required"`
	Status           string `json:"status" validate:"required"`
	ErrorCode        int    `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	Output           string `json:"output"`
}

// Succeeded reports whether the executor reported success.
func (c *Callback) Succeeded() bool {
	return strings.EqualFold(c.Status, CallbackSuccess)
}

// Team owns services.
type Team struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name" yaml:"name" validate:"required"`
}

// Service is a catalog entry owning modules, hosts and endpoints.
type Service struct {
	ID     string `json:"id" yaml:"id" validate:"required"`
	TeamID string `json:"team_id" yaml:"team_id" validate:"required"`
	Name   string `json:"name" yaml:"name" validate:"required"`
	Abbr   string `json:"abbr" yaml:"abbr"`
}

// Module is a deployable unit of a service.
type Module struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	ServiceID string `json:"service_id" yaml:"service_id" validate:"required"`
	Name      string `json:"name" yaml:"name" validate:"required"`
	HostAbbr  string `json:"host_abbr" yaml:"host_abbr" validate:"required,alphanum"`
	Template  string `json:"template,omitempty" yaml:"template,omitempty"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Snapshot copies the module into a work item snapshot.
func (m *Module) Snapshot() ModuleSnapshot {
	return ModuleSnapshot{
		ID:       m.ID,
		Name:     m.Name,
		Template: m.Template,
		Type:     m.Type,
	}
}

// Host is a provisioned machine running a module.
type Host struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ServiceID  string    `json:"service_id"`
	ModuleID   string    `json:"module_id"`
	DataCenter string    `json:"data_center"`
	Network    string    `json:"network"`
	Env        string    `json:"env"`
	Size       string    `json:"size"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsBusy reports whether an operation is in flight or queued on the host.
func (h *Host) IsBusy() bool {
	return h.Status != StatusIdle
}

// Snapshot copies the host into a work item snapshot.
func (h *Host) Snapshot() HostSnapshot {
	return HostSnapshot{
		ID:         h.ID,
		Name:       h.Name,
		DataCenter: h.DataCenter,
		Network:    h.Network,
		Env:        h.Env,
		Size:       h.Size,
	}
}

// Endpoint is a virtual endpoint (load balancer VIP) fronting hosts.
type Endpoint struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ServiceID   string    `json:"service_id"`
	Network     string    `json:"network"`
	Protocol    string    `json:"protocol"`
	VIPPort     int       `json:"vip_port"`
	ServicePort int       `json:"service_port"`
	External    bool      `json:"external"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsBusy reports whether an operation is in flight on the endpoint.
func (e *Endpoint) IsBusy() bool {
	return e.Status != StatusIdle
}

// Snapshot copies the endpoint into a work item snapshot.
func (e *Endpoint) Snapshot() EndpointSnapshot {
	return EndpointSnapshot{
		ID:          e.ID,
		Name:        e.Name,
		Network:     e.Network,
		Protocol:    e.Protocol,
		VIPPort:     e.VIPPort,
		ServicePort: e.ServicePort,
		External:    e.External,
	}
}

// MembershipRef records that a host is a member of an endpoint.
type MembershipRef struct {
	HostID     string `json:"host_id"`
	EndpointID string `json:"endpoint_id"`
	Status     string `json:"status"`
}

// IsBusy reports whether an operation is in flight on the membership.
func (m *MembershipRef) IsBusy() bool {
	return m.Status != StatusIdle
}

// Audit is the immutable record of a successfully resolved work item.
type Audit struct {
	ID           string    `json:"id"`
	ServiceID    string    `json:"service_id"`
	Requestor    string    `json:"requestor"`
	RequestedAt  time.Time `json:"requested_at"`
	PerformedAt  time.Time `json:"performed_at"`
	Kind         Kind      `json:"kind"`
	Operation    Operation `json:"operation"`
	ModuleName   string    `json:"module_name,omitempty"`
	HostName     string    `json:"host_name,omitempty"`
	EndpointName string    `json:"endpoint_name,omitempty"`

	// Notes is a JSON object of operation-specific notes, empty when there are none.
	Notes string `json:"notes"`
}
