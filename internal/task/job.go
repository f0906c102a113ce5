package task

import (
	"context"

	"github.com/google/uuid"
)

// Job is a unit of work run by the WorkerPool.
type Job interface {
	// ID returns the job's unique identifier
	ID() uuid.UUID

	// Kind names the job for logs, e.g. "provider.fetch_status"
	Kind() string

	// Execute runs the job. ctx is canceled when the pool stops.
	Execute(ctx context.Context) error
}

// JobQueueReader provides read-only access to the job channel
// allowing workers to consume jobs without the ability to enqueue
type JobQueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs
	GetChannel() <-chan Job
}

// JobQueueWriter provides write access to the job queue
type JobQueueWriter interface {
	// Enqueue adds a job to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(job Job) error

	// Close closes the job queue, preventing further submission
	Close()
}
