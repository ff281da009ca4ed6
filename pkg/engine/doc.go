// Package engine provides the work item orchestration core of catalogd.
//
// # Overview
//
// Engineers request infrastructure-affecting operations through the catalog: provisioning,
// deploying, restarting and deleting hosts, managing virtual endpoints and attaching hosts to
// them. None of that work happens inside catalogd. Each request is turned into one or more
// persisted WorkItems, handed to an external executor through a Sender, and completed later
// when the executor reports back with a Callback.
//
// # Core Domain Types
//
//   - WorkItem: one pending externally executed change, optionally linked to a successor
//   - Callback: the executor's report on a dispatched WorkItem
//   - Host, Endpoint, MembershipRef: mutable entities carrying a busy/idle status
//   - Audit: immutable record written once per successfully resolved WorkItem
//   - Kind, Operation, Action: the closed set of (kind, operation) pairs the engine completes
//
// # Chains
//
// Work items targeting several entities, or dependent operations on one entity, are linked
// into a linear chain with LinkChain. Only the head is dispatched. Each successor is dispatched
// after its predecessor resolves successfully; a failed resolution discards the remainder of
// the chain without dispatching it:
//
//	head, err := engine.LinkChain(create, deploy)
//	for _, item := range []*engine.WorkItem{create, deploy} {
//	    _ = store.SaveWorkItem(ctx, item)
//	}
//	err = processor.Submit(ctx, head)
//
// # Dispatch Results
//
// A Sender classifies every hand-off:
//
//   - DispatchSucceeded: the executor already did the work, the processor resolves a
//     synthesized success callback on the calling path
//   - DispatchPending: the executor accepted the work and will call back later
//   - DispatchFailed: transport error or rejection, resolved as a failed callback
//
// Synchronous resolution never recurses: Submit and Resolve drive a single loop that keeps
// dispatching continuations until one is pending or the chain ends.
//
// # Error Classification
//
//   - Configuration: bad sender configuration, fatal at startup
//   - Transport: executor unreachable, mapped to a failed dispatch
//   - Integrity: unknown callback id, unexpected action, missing successor; always surfaced
//   - Conflict: target entity busy
//   - Validation: malformed requests or chains
//
// A failure reported by the executor is an expected outcome and is not an error.
//
// # Thread Safety
//
// Processor holds no mutable state and is safe for concurrent use. Mutual exclusion on a
// target entity relies on its busy status, which callers check before building a chain.
package engine
