// Package driving provides interfaces consumed by inbound adapters
// (primary ports): the sync orchestrator, the retrieval engine and the
// health checker.
package driving
