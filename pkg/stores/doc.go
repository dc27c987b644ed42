// Package stores provides the SQLite-backed persistence layer: the
// tracked infrastructure state store, the append-only checkpoint table,
// and the decision audit log.
package stores
