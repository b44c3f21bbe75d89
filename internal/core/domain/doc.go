// Package domain contains the core business entities of the knowledge base
// engine: versioned documents, retrieval chunks, scope filters and the
// retrieval audit log. It has no dependencies on adapters or services.
package domain
