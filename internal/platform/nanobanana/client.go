package nanobanana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phrazzld/banana-api/internal/config"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/platform/logger"
)

// Client talks to the NanoBanana image generation API.
type Client struct {
	baseURL string
	// submit never retries; status retries transient failures.
	submit *resty.Client
	status *resty.Client
	logger *slog.Logger
}

// Ensure Client implements generation.Provider.
var _ generation.Provider = (*Client)(nil)

// NewClient creates a client from provider configuration.
func NewClient(cfg config.ProviderConfig, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is empty", generation.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: API key is empty", generation.ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	base := func() *resty.Client {
		return resty.New().
			SetAuthToken(cfg.APIKey).
			SetHeader("Accept", "application/json").
			SetTimeout(timeout)
	}

	status := base().
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		submit:  base(),
		status:  status,
		logger:  log.With(slog.String("component", "nanobanana_client")),
	}, nil
}

// Submit starts a generation with POST /generate-pro.
func (c *Client) Submit(ctx context.Context, req generation.SubmitRequest) (string, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	imageURLs := req.ImageURLs
	if imageURLs == nil {
		imageURLs = []string{}
	}
	body := generateRequest{
		Prompt:      req.Prompt,
		ImageURLs:   imageURLs,
		Resolution:  string(req.Resolution),
		AspectRatio: string(req.AspectRatio),
		CallBackURL: req.CallbackURL,
	}

	resp, err := c.submit.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + "/generate-pro")

	env, err := c.decode(resp, err)
	if err != nil {
		log.Warn("generation submit failed", slog.String("error", err.Error()))
		return "", err
	}

	var data generateData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", generation.NewUnavailableError(0, "malformed response data", err)
		}
	}
	if data.TaskID == "" {
		log.Warn("generation submit returned no task id", slog.String("provider_msg", env.Msg))
		return "", generation.NewRejectedError(nonEmpty(env.Msg, "provider returned no task id"))
	}

	log.Info("generation submitted",
		slog.String("task_id", data.TaskID),
		slog.Int("image_count", len(imageURLs)))
	return data.TaskID, nil
}

// FetchStatus reads a task's state with GET /record-info.
func (c *Client) FetchStatus(ctx context.Context, taskID string) (*generation.StatusReport, error) {
	resp, err := c.status.R().
		SetContext(ctx).
		SetQueryParam("taskId", taskID).
		Get(c.baseURL + "/record-info")

	env, err := c.decode(resp, err)
	if err != nil {
		return nil, err
	}

	var data recordInfoData
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, generation.NewRejectedError(nonEmpty(env.Msg, "provider returned no task data"))
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, generation.NewUnavailableError(0, "malformed response data", err)
	}

	report := &generation.StatusReport{
		TaskID:       nonEmpty(data.TaskID, taskID),
		SuccessFlag:  generation.SuccessFlag(data.SuccessFlag),
		ErrorMessage: data.ErrorMessage,
	}
	if data.Response != nil {
		report.ResultImageURL = nonEmpty(data.Response.ResultImageURL, data.Response.OriginImageURL)
	}
	return report, nil
}

// decode turns a resty result into the response envelope, mapping transport
// errors, non-2xx statuses and code != 200 onto provider errors.
func (c *Client) decode(resp *resty.Response, err error) (*envelope, error) {
	if err != nil {
		return nil, generation.NewUnavailableError(0, "", err)
	}
	if !resp.IsSuccess() {
		return nil, generation.NewUnavailableError(resp.StatusCode(), truncate(resp.String(), 200), nil)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, generation.NewUnavailableError(resp.StatusCode(), "malformed response body", err)
	}
	if env.Code != http.StatusOK {
		return nil, generation.NewRejectedError(nonEmpty(env.Msg, fmt.Sprintf("provider code %d", env.Code)))
	}
	return &env, nil
}

func nonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
