package catalog

import "github.com/openfroyo/catalogd/pkg/engine"

// CreateHostsRequest provisions Count new hosts of a module and deploys Version to each.
type CreateHostsRequest struct {
	Requestor  engine.Requestor `json:"requestor"`
	ServiceID  string           `json:"serviceId" validate:"required"`
	ModuleID   string           `json:"moduleId" validate:"required"`
	DataCenter string           `json:"dataCenter" validate:"required"`
	Network    string           `json:"network" validate:"required"`
	Env        string           `json:"env" validate:"required"`
	Size       string           `json:"size" validate:"required"`
	Version    string           `json:"version" validate:"required"`
	Reason     string           `json:"reason"`
	Count      int              `json:"count" validate:"min=1"`
}

// HostSelection picks idle hosts of one module on one network.
type HostSelection struct {
	ServiceID string `json:"serviceId" validate:"required"`
	ModuleID  string `json:"moduleId" validate:"required"`
	Network   string `json:"network" validate:"required"`

	// HostIDs selects hosts by id. Ignored when All is set.
	HostIDs []string `json:"hostIds"`

	// All selects every matching host.
	All bool `json:"all"`
}

// DeployHostsRequest deploys Version to the selected hosts one after another.
type DeployHostsRequest struct {
	Requestor engine.Requestor `json:"requestor"`
	HostSelection
	Version string `json:"version" validate:"required"`
	Reason  string `json:"reason"`
}

// RestartHostsRequest restarts the selected hosts one after another.
type RestartHostsRequest struct {
	Requestor engine.Requestor `json:"requestor"`
	HostSelection
	Reason string `json:"reason"`

	// Wait blocks until the last work item of the chain resolves or the wait budget runs out.
	Wait bool `json:"wait"`
}

// DeleteHostRequest decommissions one host.
type DeleteHostRequest struct {
	Requestor engine.Requestor `json:"requestor"`
	ServiceID string           `json:"serviceId" validate:"required"`
	HostID    string           `json:"hostId" validate:"required"`
	Reason    string           `json:"reason"`
}

// CreateEndpointRequest creates a virtual endpoint.
type CreateEndpointRequest struct {
	Requestor   engine.Requestor `json:"requestor"`
	ServiceID   string           `json:"serviceId" validate:"required"`
	Name        string           `json:"name" validate:"required"`
	Network     string           `json:"network" validate:"required"`
	Protocol    string           `json:"protocol" validate:"required,oneof=HTTP HTTPS TCP UDP"`
	VIPPort     int              `json:"vipPort" validate:"required,min=1,max=65535"`
	ServicePort int              `json:"servicePort" validate:"required,min=1,max=65535"`
	External    bool             `json:"external"`
}

// UpdateEndpointRequest changes the mutable fields of an endpoint.
type UpdateEndpointRequest struct {
	Requestor   engine.Requestor `json:"requestor"`
	ServiceID   string           `json:"serviceId" validate:"required"`
	EndpointID  string           `json:"endpointId" validate:"required"`
	ServicePort int              `json:"servicePort" validate:"required,min=1,max=65535"`
	External    bool             `json:"external"`
}

// DeleteEndpointRequest removes an endpoint and its memberships.
type DeleteEndpointRequest struct {
	Requestor  engine.Requestor `json:"requestor"`
	ServiceID  string           `json:"serviceId" validate:"required"`
	EndpointID string           `json:"endpointId" validate:"required"`
}

// AddMembershipsRequest adds every listed host to every listed endpoint on the same network.
type AddMembershipsRequest struct {
	Requestor   engine.Requestor `json:"requestor"`
	ServiceID   string           `json:"serviceId" validate:"required"`
	HostIDs     []string         `json:"hostIds" validate:"required,min=1,dive,required"`
	EndpointIDs []string         `json:"endpointIds" validate:"required,min=1,dive,required"`
}

// DeleteMembershipRequest removes a host from an endpoint.
type DeleteMembershipRequest struct {
	Requestor  engine.Requestor `json:"requestor"`
	ServiceID  string           `json:"serviceId" validate:"required"`
	HostID     string           `json:"hostId" validate:"required"`
	EndpointID string           `json:"endpointId" validate:"required"`
}
