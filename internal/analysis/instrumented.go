package analysis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

type instrumented struct {
	next     Client
	duration *prometheus.HistogramVec
	verdicts *prometheus.CounterVec
}

// Instrumented records the duration and outcome of every analysis made through next on reg.
func Instrumented(next Client, reg prometheus.Registerer) Client {
	labels := []string{"outcome"}
	return instrumented{
		next: next,
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "moderation_analysis_duration_seconds",
				Help: "Tracks the latencies of content analyses.",
				// The mock gateway sits at 2 seconds. Max of 40.96.
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 13),
			}, labels,
		),
		verdicts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_analysis_total",
				Help: "Tracks the number of content analyses by outcome and decision.",
			}, []string{"outcome", "decision"},
		),
	}
}

func (c instrumented) Analyze(ctx context.Context, p moderation.SubmissionPayload) (moderation.Verdict, error) {
	start := time.Now()
	v, err := c.next.Analyze(ctx, p)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	c.verdicts.WithLabelValues(outcome, string(v.Decision)).Inc()
	return v, err
}
