// Package storage provides the process-wide store shared by every
// connection: a record table keyed by id and an append-only action log.
// The Store serializes writes per table and delegates persistence to a
// Backend chosen once at startup.
package storage
