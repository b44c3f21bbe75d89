// Package sqlite provides the durable metadata store: the versioned
// document registry, chunk rows, the retrieval audit log and the sync
// lease, all in a single SQLite database with embedded migrations.
package sqlite
