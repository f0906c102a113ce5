package api

import "github.com/phrazzld/banana-api/internal/domain"

// CreateTaskRequest is the JSON form of a generation request.
type CreateTaskRequest struct {
	Prompt      string   `json:"prompt"      validate:"required"`
	Resolution  string   `json:"resolution"`
	AspectRatio string   `json:"aspectRatio"`
	ImageURLs   []string `json:"imageUrls"`
	ChatID      string   `json:"chatId"      validate:"omitempty,uuid"`
}

// CreateTaskResponse is returned once the provider accepted a generation.
type CreateTaskResponse struct {
	TaskID string `json:"taskId"`
}

// Provider-compatible status flags reported to clients.
const (
	StatusFlagRunning = 0
	StatusFlagSuccess = 1
	StatusFlagFailed  = 2
)

// TaskStatusEnvelope wraps a task status the way the provider does.
type TaskStatusEnvelope struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data TaskStatusData `json:"data"`
}

// TaskStatusData is the body of a status response.
type TaskStatusData struct {
	TaskID       string        `json:"taskId"`
	SuccessFlag  int           `json:"successFlag"`
	Response     *TaskResponse `json:"response"`
	ErrorMessage *string       `json:"errorMessage"`
}

// TaskResponse holds the result of a successful task.
type TaskResponse struct {
	ResultImageURL string `json:"resultImageUrl"`
}

// CallbackPayload is the provider's webhook body.
type CallbackPayload struct {
	Code *int         `json:"code"`
	Msg  string       `json:"msg"`
	Data CallbackData `json:"data"`
}

// CallbackData identifies the task a webhook is about.
type CallbackData struct {
	TaskID string        `json:"taskId"`
	Info   *CallbackInfo `json:"info"`
}

// CallbackInfo carries the result of a successful generation.
type CallbackInfo struct {
	ResultImageURL string `json:"resultImageUrl"`
}

// CallbackAck is the body returned to the provider for every handled webhook.
type CallbackAck struct {
	Status string `json:"status"`
}

// taskToStatusEnvelope converts a task to its client-facing status.
func taskToStatusEnvelope(task *domain.GenerationTask) TaskStatusEnvelope {
	data := TaskStatusData{
		TaskID:      task.ID,
		SuccessFlag: StatusFlagRunning,
	}

	switch task.Status {
	case domain.TaskStatusSuccess:
		data.SuccessFlag = StatusFlagSuccess
		if task.ResultImageURL != nil && *task.ResultImageURL != "" {
			data.Response = &TaskResponse{ResultImageURL: *task.ResultImageURL}
		}
	case domain.TaskStatusFailed:
		data.SuccessFlag = StatusFlagFailed
		data.ErrorMessage = task.ErrorMessage
	}

	return TaskStatusEnvelope{
		Code: 200,
		Msg:  "success",
		Data: data,
	}
}
