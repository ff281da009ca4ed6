// Package catalog turns catalog requests into work item chains.
//
// Each request validates its input, marks the affected entities busy, builds the work items
// with snapshots of the entities they act on, links them into a chain, persists the chain and
// hands the head to a Submitter (normally *engine.Processor). Multi-host requests produce one
// chain so hosts are handled one at a time:
//
//	create 2 hosts:  create(h1) -> deploy(h1) -> create(h2) -> deploy(h2)
//	deploy 3 hosts:  deploy(h1) -> deploy(h2) -> deploy(h3)
//
// Busy entities are refused with a conflict error, or skipped when the request selects a
// group of hosts. Allowed data centers, networks, envs and sizes come from
// config.CatalogConfig and can be swapped at runtime with SetOptions.
package catalog
