// Package memstore provides an in-memory store.TaskStore. It backs the
// "memory" database driver and the engine tests; its state is lost on restart.
package memstore
