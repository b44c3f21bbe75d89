// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): stores, the vector index, the embedding
// service and the document source.
package driven
