// Package memory provides in-memory implementations of the storage
// ports. Used in tests and as a zero-setup backend for local
// experiments; nothing survives process exit.
package memory
