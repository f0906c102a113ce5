package generation_test

import (
	"errors"
	"testing"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/stretchr/testify/assert"
)

func TestStatusReportOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report generation.StatusReport
		want   domain.Outcome
	}{
		{
			name:   "running",
			report: generation.StatusReport{SuccessFlag: generation.FlagRunning},
			want:   domain.PendingOutcome(),
		},
		{
			name: "succeeded",
			report: generation.StatusReport{
				SuccessFlag:    generation.FlagSucceeded,
				ResultImageURL: "https://cdn.example.com/x.png",
			},
			want: domain.SuccessOutcome("https://cdn.example.com/x.png"),
		},
		{
			name:   "succeeded without url is still pending",
			report: generation.StatusReport{SuccessFlag: generation.FlagSucceeded},
			want:   domain.PendingOutcome(),
		},
		{
			name: "create failed",
			report: generation.StatusReport{
				SuccessFlag:  generation.FlagCreateFailed,
				ErrorMessage: "prompt rejected",
			},
			want: domain.FailureOutcome("prompt rejected"),
		},
		{
			name:   "generate failed without message",
			report: generation.StatusReport{SuccessFlag: generation.FlagGenerateFailed},
			want:   domain.FailureOutcome(domain.DefaultFailureMessage),
		},
		{
			name:   "unknown flag",
			report: generation.StatusReport{SuccessFlag: 9},
			want:   domain.PendingOutcome(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.report.Outcome())
		})
	}
}

func TestProviderError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	unavailable := generation.NewUnavailableError(503, "", cause)
	assert.ErrorIs(t, unavailable, generation.ErrProviderUnavailable)
	assert.ErrorIs(t, unavailable, cause)
	assert.NotErrorIs(t, unavailable, generation.ErrProviderRejected)
	assert.Equal(t, "image provider unavailable (status 503): connection refused", unavailable.Error())

	rejected := generation.NewRejectedError("insufficient credits")
	assert.ErrorIs(t, rejected, generation.ErrProviderRejected)
	assert.Equal(t, "insufficient credits", generation.ProviderMessage(rejected))
	assert.Equal(t, "image provider rejected the request: insufficient credits", rejected.Error())

	assert.Empty(t, generation.ProviderMessage(errors.New("plain")))
}
