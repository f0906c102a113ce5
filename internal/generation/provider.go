package generation

import (
	"context"

	"github.com/phrazzld/banana-api/internal/domain"
)

// Provider is the boundary between the application core and the external
// image generation service.
type Provider interface {
	// Submit starts a generation and returns the provider-assigned task ID.
	// Submit is never retried: a retry could start a second, billed generation.
	Submit(ctx context.Context, req SubmitRequest) (string, error)

	// FetchStatus reports the provider's current view of a task.
	FetchStatus(ctx context.Context, taskID string) (*StatusReport, error)
}

// SubmitRequest is the payload of a generation submission.
type SubmitRequest struct {
	Prompt      string
	ImageURLs   []string
	Resolution  domain.Resolution
	AspectRatio domain.AspectRatio
	// CallbackURL is where the provider delivers the completion webhook.
	CallbackURL string
}

// SuccessFlag is the provider's numeric task state.
type SuccessFlag int

// Provider task states. Both 2 and 3 are failures.
const (
	FlagRunning        SuccessFlag = 0
	FlagSucceeded      SuccessFlag = 1
	FlagCreateFailed   SuccessFlag = 2
	FlagGenerateFailed SuccessFlag = 3
)

// StatusReport is the normalized answer to a status lookup.
type StatusReport struct {
	TaskID         string
	SuccessFlag    SuccessFlag
	ResultImageURL string
	ErrorMessage   string
}

// Outcome maps the report onto the task state machine. A success flag
// without a result URL is treated as still running.
func (r *StatusReport) Outcome() domain.Outcome {
	switch r.SuccessFlag {
	case FlagSucceeded:
		if r.ResultImageURL == "" {
			return domain.PendingOutcome()
		}
		return domain.SuccessOutcome(r.ResultImageURL)
	case FlagCreateFailed, FlagGenerateFailed:
		return domain.FailureOutcome(r.ErrorMessage)
	default:
		return domain.PendingOutcome()
	}
}
