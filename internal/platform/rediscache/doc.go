// Package rediscache provides an optional Redis cache of terminal generation
// tasks, filled from task.finished events and read by the status poll path.
package rediscache
