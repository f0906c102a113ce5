package domain

import (
	"slices"
	"time"
)

// TaskStatus represents the lifecycle state of a generation task.
type TaskStatus string

// Possible task status values. Pending and running are both non-terminal and
// are treated identically by the state machine.
const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// IsTerminal reports whether no further transition may leave this status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

// IsValid reports whether s is one of the four known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSuccess, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// DefaultFailureMessage is recorded when the provider reports a failure
// without a message.
const DefaultFailureMessage = "image generation failed"

// GenerationTask is one image generation request and its lifecycle record.
// The ID is assigned by the provider at submission and never changes.
type GenerationTask struct {
	ID          string      `json:"task_id"`
	Prompt      string      `json:"prompt"`
	ImageURLs   []string    `json:"image_urls"`
	Resolution  Resolution  `json:"resolution"`
	AspectRatio AspectRatio `json:"aspect_ratio"`

	// LocalFiles lists uploads owned by the task. It is drained on the first
	// terminal transition.
	LocalFiles []string `json:"local_files"`

	Status         TaskStatus `json:"status"`
	ResultImageURL *string    `json:"result_image_url,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`

	// ChatID optionally links the task to a conversation thread. It is
	// metadata only.
	ChatID string `json:"chat_id,omitempty"`

	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Version is bumped by the store on every successful write and guards
	// conditional updates.
	Version int64 `json:"version"`
}

// NewGenerationTask builds a running task for a request the provider has
// accepted under taskID.
func NewGenerationTask(
	taskID string,
	req GenerationRequest,
	imageURLs []string,
	localFiles []string,
	now time.Time,
) (*GenerationTask, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}

	now = now.UTC()
	return &GenerationTask{
		ID:          taskID,
		Prompt:      req.Prompt,
		ImageURLs:   slices.Clone(imageURLs),
		Resolution:  req.Resolution,
		AspectRatio: req.AspectRatio,
		LocalFiles:  slices.Clone(localFiles),
		Status:      TaskStatusRunning,
		ChatID:      req.ChatID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Clone returns a deep copy of the task.
func (t *GenerationTask) Clone() *GenerationTask {
	if t == nil {
		return nil
	}
	c := *t
	c.ImageURLs = slices.Clone(t.ImageURLs)
	c.LocalFiles = slices.Clone(t.LocalFiles)
	if t.ResultImageURL != nil {
		v := *t.ResultImageURL
		c.ResultImageURL = &v
	}
	if t.ErrorMessage != nil {
		v := *t.ErrorMessage
		c.ErrorMessage = &v
	}
	if t.LastPolledAt != nil {
		v := *t.LastPolledAt
		c.LastPolledAt = &v
	}
	return &c
}

// PollDue reports whether enough time has passed since the last provider
// lookup. A task that was never polled is always due.
func (t *GenerationTask) PollDue(now time.Time, interval time.Duration) bool {
	if t.LastPolledAt == nil {
		return true
	}
	return now.Sub(*t.LastPolledAt) >= interval
}

// MarkPolled records a provider lookup at now.
func (t *GenerationTask) MarkPolled(now time.Time) {
	now = now.UTC()
	t.LastPolledAt = &now
	t.touch(now)
}

// touch advances UpdatedAt without ever moving it backwards.
func (t *GenerationTask) touch(now time.Time) {
	now = now.UTC()
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
	}
}

// OutcomeKind classifies what a provider reported about a task.
type OutcomeKind int

const (
	// OutcomePending means the provider has not finished; status is unchanged.
	OutcomePending OutcomeKind = iota
	// OutcomeSuccess means an image was produced.
	OutcomeSuccess
	// OutcomeFailure means generation failed for good.
	OutcomeFailure
)

// String returns a readable name for logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "pending"
	}
}

// Outcome is the normalized result reported by either the poll path or the
// webhook path.
type Outcome struct {
	Kind         OutcomeKind
	ResultURL    string
	ErrorMessage string
}

// PendingOutcome reports that the task is still running.
func PendingOutcome() Outcome {
	return Outcome{Kind: OutcomePending}
}

// SuccessOutcome reports a finished image at resultURL.
func SuccessOutcome(resultURL string) Outcome {
	return Outcome{Kind: OutcomeSuccess, ResultURL: resultURL}
}

// FailureOutcome reports a failed generation. An empty message is replaced
// with DefaultFailureMessage.
func FailureOutcome(message string) Outcome {
	if message == "" {
		message = DefaultFailureMessage
	}
	return Outcome{Kind: OutcomeFailure, ErrorMessage: message}
}

// IsPending reports whether the outcome leaves the task unchanged.
func (o Outcome) IsPending() bool {
	return o.Kind == OutcomePending
}

// status returns the terminal status this outcome leads to.
func (o Outcome) status() TaskStatus {
	if o.Kind == OutcomeSuccess {
		return TaskStatusSuccess
	}
	return TaskStatusFailed
}

// Transition describes the effect of applying an outcome to a task.
type Transition struct {
	// Changed is true when the task must be written back.
	Changed bool
	// Transitioned is true only for the move from non-terminal to terminal.
	Transitioned bool
	// Released holds the local files the task gave up on transition.
	Released []string
}

// ApplyOutcome runs the task state machine.
//
// A pending outcome changes nothing. A terminal outcome moves a non-terminal
// task into success or failed, records the result or error, and releases the
// task's local files. Once terminal, the same outcome only refreshes
// UpdatedAt, and a different outcome is ignored: the first transition wins.
func (t *GenerationTask) ApplyOutcome(o Outcome, now time.Time) Transition {
	if o.IsPending() {
		return Transition{}
	}

	target := o.status()
	if t.Status.IsTerminal() {
		if t.Status != target {
			return Transition{}
		}
		t.touch(now)
		return Transition{Changed: true}
	}

	t.Status = target
	switch target {
	case TaskStatusSuccess:
		url := o.ResultURL
		t.ResultImageURL = &url
		t.ErrorMessage = nil
	case TaskStatusFailed:
		msg := o.ErrorMessage
		if msg == "" {
			msg = DefaultFailureMessage
		}
		t.ErrorMessage = &msg
		t.ResultImageURL = nil
	}

	released := t.LocalFiles
	t.LocalFiles = []string{}
	t.touch(now)

	return Transition{
		Changed:      true,
		Transitioned: true,
		Released:     released,
	}
}
