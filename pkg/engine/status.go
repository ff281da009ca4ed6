package engine

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the type of entity a work item targets.
type Kind string

const (
	// KindModule targets a service module.
	KindModule Kind = "module"

	// KindHost targets a single host.
	KindHost Kind = "host"

	// KindEndpoint targets a virtual endpoint.
	KindEndpoint Kind = "endpoint"

	// KindMembership targets the membership of a host in an endpoint.
	KindMembership Kind = "membership"
)

// Kinds lists every valid Kind.
var Kinds = []Kind{KindModule, KindHost, KindEndpoint, KindMembership}

// Validate checks if the kind is valid.
func (k Kind) Validate() error {
	switch k {
	case KindModule, KindHost, KindEndpoint, KindMembership:
		return nil
	default:
		return fmt.Errorf("invalid work item kind: %s", k)
	}
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*k = Kind(str)
	return k.Validate()
}

// Operation is the change a work item requests.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationUpdate  Operation = "update"
	OperationDeploy  Operation = "deploy"
	OperationRestart Operation = "restart"
	OperationDelete  Operation = "delete"
	OperationAdd     Operation = "add"
)

// Operations lists every valid Operation.
var Operations = []Operation{
	OperationCreate, OperationUpdate, OperationDeploy,
	OperationRestart, OperationDelete, OperationAdd,
}

// Validate checks if the operation is valid.
func (o Operation) Validate() error {
	switch o {
	case OperationCreate, OperationUpdate, OperationDeploy,
		OperationRestart, OperationDelete, OperationAdd:
		return nil
	default:
		return fmt.Errorf("invalid work item operation: %s", o)
	}
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = Operation(str)
	return o.Validate()
}

// Action is the (kind, operation) pair that selects a completion handler.
type Action struct {
	Kind      Kind
	Operation Operation
}

func (a Action) String() string {
	return string(a.Kind) + "/" + string(a.Operation)
}

// DispatchResult classifies a Sender hand-off.
type DispatchResult int

const (
	// DispatchFailed means the executor was unreachable or rejected the work item.
	DispatchFailed DispatchResult = iota

	// DispatchPending means the executor accepted the work item and will call back.
	DispatchPending

	// DispatchSucceeded means the executor performed the work synchronously.
	DispatchSucceeded
)

func (r DispatchResult) String() string {
	switch r {
	case DispatchSucceeded:
		return "succeeded"
	case DispatchPending:
		return "pending"
	default:
		return "failed"
	}
}

// Callback outcomes. Comparison is case-insensitive.
const (
	CallbackSuccess = "success"
	CallbackFail    = "fail"
)

// Entity status labels. StatusIdle means no operation is in flight or queued.
const (
	StatusIdle          = ""
	StatusCreating      = "Creating..."
	StatusCreateQueued  = "Create Queued"
	StatusDeploying     = "Deploying..."
	StatusDeployQueued  = "Deploy Queued"
	StatusRestarting    = "Restarting..."
	StatusRestartQueued = "Restart Queued"
	StatusDeleting      = "Deleting..."
	StatusUpdating      = "Updating..."
	StatusAdding        = "Adding..."
	StatusRemoving      = "Removing..."
)

// HostStatusFor returns the busy label a host carries while op is in flight, or queued
// behind another chain member.
func HostStatusFor(op Operation, queued bool) string {
	switch op {
	case OperationCreate:
		if queued {
			return StatusCreateQueued
		}
		return StatusCreating
	case OperationDeploy:
		if queued {
			return StatusDeployQueued
		}
		return StatusDeploying
	case OperationRestart:
		if queued {
			return StatusRestartQueued
		}
		return StatusRestarting
	case OperationDelete:
		return StatusDeleting
	default:
		return StatusUpdating
	}
}
