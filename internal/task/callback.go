package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/platform/logger"
	"github.com/phrazzld/banana-api/internal/store"
)

// ProviderSuccessCode is the top-level code the provider sends for a
// successful generation.
const ProviderSuccessCode = 200

// Callback is a decoded provider webhook.
type Callback struct {
	// Code is the provider's top-level code. Nil when absent.
	Code           *int
	Msg            string
	TaskID         string
	ResultImageURL string
}

// Outcome maps the callback onto the task state machine. ok is false for a
// payload that cannot be interpreted: no code, or a success without a result.
func (c Callback) Outcome() (domain.Outcome, bool) {
	if c.Code == nil {
		return domain.Outcome{}, false
	}
	if *c.Code == ProviderSuccessCode {
		if c.ResultImageURL == "" {
			return domain.Outcome{}, false
		}
		return domain.SuccessOutcome(c.ResultImageURL), true
	}
	return domain.FailureOutcome(c.Msg), true
}

// CallbackResult describes what a webhook delivery did.
type CallbackResult int

const (
	// CallbackMalformed means the payload was dropped.
	CallbackMalformed CallbackResult = iota
	// CallbackUnknownTask means no task has the delivered identity.
	CallbackUnknownTask
	// CallbackApplied means the delivery made the task terminal.
	CallbackApplied
	// CallbackDuplicate means the task already had this outcome.
	CallbackDuplicate
	// CallbackIgnored means the task already had a different outcome.
	CallbackIgnored
)

// String returns a readable name for logs.
func (r CallbackResult) String() string {
	switch r {
	case CallbackUnknownTask:
		return "unknown_task"
	case CallbackApplied:
		return "applied"
	case CallbackDuplicate:
		return "duplicate"
	case CallbackIgnored:
		return "ignored"
	default:
		return "malformed"
	}
}

// HandleCallback applies a provider webhook. Webhooks are trusted: they skip
// the poll throttle. Only storage failures are returned as errors; malformed
// payloads and unknown tasks are reported through the result.
func (e *Engine) HandleCallback(ctx context.Context, cb Callback) (CallbackResult, error) {
	log := logger.FromContextOrDefault(ctx, e.logger).With(slog.String("task_id", cb.TaskID))

	if cb.TaskID == "" {
		log.Warn("dropping callback without task id")
		return CallbackMalformed, nil
	}
	outcome, ok := cb.Outcome()
	if !ok {
		log.Warn("dropping malformed callback")
		return CallbackMalformed, nil
	}

	task, err := e.store.Get(ctx, cb.TaskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Info("callback for unknown task acknowledged")
			return CallbackUnknownTask, nil
		}
		return CallbackMalformed, err
	}

	if outcome.Kind == domain.OutcomeFailure {
		log.Error("provider reported generation failure",
			"code", *cb.Code,
			"message", outcome.ErrorMessage)
	}

	_, tr, err := e.apply(ctx, task, outcome, "webhook")
	if err != nil {
		return CallbackMalformed, err
	}

	switch {
	case tr.Transitioned:
		return CallbackApplied, nil
	case tr.Changed:
		return CallbackDuplicate, nil
	default:
		return CallbackIgnored, nil
	}
}
