// Package analysis provides the gateways which turn a submission into a moderation verdict.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// Client analyses a submission and returns its verdict.
type Client interface {
	Analyze(ctx context.Context, p moderation.SubmissionPayload) (moderation.Verdict, error)
}

// DefaultLatency is the simulated latency of the mock gateway.
const DefaultLatency = 2 * time.Second

// Fixture is the verdict returned by the mock gateway. The image part is only included for submissions with an image.
var Fixture = moderation.Verdict{
	Decision:         moderation.Flagged,
	Confidence:       0.87,
	ProcessingTimeMs: 45,
	Text: moderation.TextAnalysis{
		Scores: map[moderation.Category]float64{
			moderation.Toxicity:   0.72,
			moderation.Harassment: 0.45,
			moderation.Hate:       0.15,
			moderation.Spam:       0.08,
		},
		Sentiment: "Negative",
		Language:  "en",
	},
	Image: &moderation.ImageAnalysis{
		Scores: map[moderation.Category]float64{
			moderation.Safety:     0.92,
			moderation.Violence:   0.05,
			moderation.Adult:      0.03,
			moderation.Suggestive: 0.12,
		},
		Labels: []moderation.Label{
			{Label: "Person", Confidence: 0.98},
			{Label: "Outdoors", Confidence: 0.89},
			{Label: "Text", Confidence: 0.76},
		},
	},
	Flags: []string{
		"High toxicity score detected",
		"Potentially harassing language identified",
	},
}

type options struct {
	latency time.Duration
	verdict moderation.Verdict
}

// Options represents an optional function to override Mock default values.
type Options func(*options)

// WithLatency overrides the simulated latency. Zero answers immediately.
func WithLatency(d time.Duration) Options {
	return func(o *options) {
		o.latency = d
	}
}

// WithVerdict overrides the verdict returned by the mock.
func WithVerdict(v moderation.Verdict) Options {
	return func(o *options) {
		o.verdict = v
	}
}

// Mock is a gateway returning a fixed verdict after a fixed delay.
type Mock struct {
	latency time.Duration
	verdict moderation.Verdict
}

// NewMock returns a mock gateway.
func NewMock(args ...Options) *Mock {
	opts := options{
		latency: DefaultLatency,
		verdict: Fixture,
	}
	for _, opt := range args {
		opt(&opts)
	}
	return &Mock{latency: opts.latency, verdict: opts.verdict}
}

// Analyze waits for the configured latency and returns a copy of the fixed verdict.
// The image analysis is dropped when the payload has no image.
func (m *Mock) Analyze(ctx context.Context, p moderation.SubmissionPayload) (moderation.Verdict, error) {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return moderation.Verdict{}, fmt.Errorf("%w: %v", moderation.ErrAnalysisFailed, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return moderation.Verdict{}, fmt.Errorf("%w: %v", moderation.ErrAnalysisFailed, err)
	}

	v := m.verdict.Clone()
	if !p.HasImage() {
		v.Image = nil
	}
	slog.Debug("Mock analysis done", "decision", v.Decision, "has_image", p.HasImage())
	return v, nil
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout bounds every analysis of next to d. An expired deadline surfaces as ErrAnalysisFailed.
// A non positive d returns next unchanged.
func WithTimeout(next Client, d time.Duration) Client {
	if d <= 0 {
		return next
	}
	return timeoutClient{next: next, timeout: d}
}

func (c timeoutClient) Analyze(ctx context.Context, p moderation.SubmissionPayload) (moderation.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := c.next.Analyze(ctx, p)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, moderation.ErrAnalysisFailed) {
		return moderation.Verdict{}, err
	}
	return moderation.Verdict{}, fmt.Errorf("%w: %v", moderation.ErrAnalysisFailed, err)
}
