package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// AnalyzePath is the path of the analysis endpoint, relative to the base URL.
const AnalyzePath = "/api/analyze"

// Remote is a gateway delegating the analysis to an HTTP service speaking the Request/Verdict JSON protocol.
type Remote struct {
	client *resty.Client
}

// NewRemote returns a gateway posting to baseURL. A zero timeout leaves requests bound only by their context.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Remote{client: c}
}

// Analyze posts p to the remote service. Any failure to obtain a valid verdict is reported as ErrAnalysisFailed.
func (r *Remote) Analyze(ctx context.Context, p moderation.SubmissionPayload) (moderation.Verdict, error) {
	var v moderation.Verdict
	var apiErr ErrorResponse

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(NewRequest(p)).
		SetResult(&v).
		SetError(&apiErr).
		Post(AnalyzePath)
	if err != nil {
		return moderation.Verdict{}, fmt.Errorf("%w: %v", moderation.ErrAnalysisFailed, err)
	}
	if resp.IsError() {
		slog.Warn("Remote analysis refused", "status", resp.StatusCode(), "error", apiErr.Error)
		return moderation.Verdict{}, fmt.Errorf("%w: remote returned %s: %s", moderation.ErrAnalysisFailed, resp.Status(), apiErr.Error)
	}
	if err := v.Validate(); err != nil {
		return moderation.Verdict{}, fmt.Errorf("%w: invalid verdict: %v", moderation.ErrAnalysisFailed, err)
	}
	return v, nil
}
