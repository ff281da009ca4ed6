// Package senders delivers work items to the external executor.
//
// Every sender implements engine.Sender and reports one of three results:
//
//   - Noop completes the item immediately with DispatchSucceeded. The processor
//     synthesizes a success callback and advances the chain in the same call.
//   - Webhook POSTs the item as JSON and returns DispatchPending on any 2xx answer.
//     The executor reports the outcome later through the callback endpoint.
//   - Reject refuses every item with DispatchFailed. It is useful for maintenance
//     windows, where queued chains should be rolled back instead of executed.
//
// New selects a sender from config.SenderConfig.
package senders
