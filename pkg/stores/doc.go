// Package stores provides persistence layer implementations for catalogd.
// It includes an in-memory store for development and tests and a SQLite-based
// store with WAL mode, embedded migrations and CRUD operations for work items,
// hosts, endpoints, memberships, catalog ownership records and audits.
package stores
