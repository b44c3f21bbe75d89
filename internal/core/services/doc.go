// Package services contains the core business logic: the sync
// orchestrator, the retrieval engine and the consistency health check.
// Services depend only on ports, never on concrete adapters.
package services
