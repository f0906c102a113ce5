// Package events provides an in-process event bus for task lifecycle
// notifications.
//
// The reconciliation engine emits a TypeTaskFinished event exactly once per
// task, when its conditional write turns the task terminal. Side effects that
// must happen once per task, such as deleting uploaded files or caching the
// result, are registered as handlers instead of being called from the engine.
package events
