package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/ubuntu-moderation/internal/analysis"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

var (
	textPayload  = moderation.SubmissionPayload{Text: "you are terrible", SubmittedAt: time.Unix(1700000000, 0).UTC()}
	imagePayload = moderation.SubmissionPayload{
		Image:       &moderation.Image{Filename: "cat.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		SubmittedAt: time.Unix(1700000000, 0).UTC(),
	}
)

func TestMockAnalyze(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload moderation.SubmissionPayload

		wantImage bool
	}{
		"Text only has no image analysis": {payload: textPayload},
		"Image submission has image part": {payload: imagePayload, wantImage: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m := analysis.NewMock(analysis.WithLatency(0))
			v, err := m.Analyze(t.Context(), tc.payload)
			require.NoError(t, err, "Mock should never fail")

			require.NoError(t, v.Validate(), "Mock verdict should be valid")
			assert.True(t, v.Consistent(tc.payload), "Image analysis should be present iff an image was submitted")
			assert.Equal(t, moderation.Flagged, v.Decision, "Mock decision should be flagged")
			assert.InDelta(t, 0.87, v.Confidence, 1e-9, "Mock confidence should be fixed")
			assert.Equal(t, 45, v.ProcessingTimeMs, "Mock processing time should be fixed")
			assert.InDelta(t, 0.72, v.Text.Scores[moderation.Toxicity], 1e-9, "Mock toxicity should be fixed")
			assert.Equal(t, "en", v.Text.Language, "Mock language should be English")
			assert.Len(t, v.Flags, 2, "Mock should return two flags")
			if tc.wantImage {
				assert.Equal(t, []string{"Person", "Outdoors", "Text"},
					[]string{v.Image.Labels[0].Label, v.Image.Labels[1].Label, v.Image.Labels[2].Label},
					"Labels should keep their order")
			}
		})
	}
}

func TestMockReturnsCopies(t *testing.T) {
	t.Parallel()

	m := analysis.NewMock(analysis.WithLatency(0))
	v, err := m.Analyze(t.Context(), imagePayload)
	require.NoError(t, err, "Mock should never fail")
	v.Text.Scores[moderation.Toxicity] = 0
	v.Image.Labels[0].Label = "Dog"

	again, err := m.Analyze(t.Context(), imagePayload)
	require.NoError(t, err, "Mock should never fail")
	assert.InDelta(t, 0.72, again.Text.Scores[moderation.Toxicity], 1e-9, "Mutating a verdict should not alter the next one")
	assert.Equal(t, "Person", again.Image.Labels[0].Label, "Mutating a verdict should not alter the next one")
	assert.InDelta(t, 0.72, analysis.Fixture.Text.Scores[moderation.Toxicity], 1e-9, "Fixture should stay untouched")
}

func TestMockHonoursLatency(t *testing.T) {
	t.Parallel()

	m := analysis.NewMock(analysis.WithLatency(50 * time.Millisecond))
	start := time.Now()
	_, err := m.Analyze(t.Context(), textPayload)
	require.NoError(t, err, "Mock should never fail")
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "Mock should wait for its latency")
}

func TestMockAbandonedCaller(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		latency time.Duration
	}{
		"Cancelled while waiting": {latency: time.Minute},
		"Cancelled without delay": {latency: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			cancel()

			_, err := analysis.NewMock(analysis.WithLatency(tc.latency)).Analyze(ctx, textPayload)
			require.ErrorIs(t, err, moderation.ErrAnalysisFailed, "Cancelled analysis should fail")
		})
	}
}

type stubClient struct {
	v   moderation.Verdict
	err error
	// block until the context is done.
	block bool
}

func (s stubClient) Analyze(ctx context.Context, _ moderation.SubmissionPayload) (moderation.Verdict, error) {
	if s.block {
		<-ctx.Done()
		return moderation.Verdict{}, ctx.Err()
	}
	return s.v, s.err
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		client  stubClient
		timeout time.Duration

		wantErr bool
	}{
		"Fast answer passes through":  {client: stubClient{v: analysis.Fixture}, timeout: time.Second},
		"Zero timeout disables limit": {client: stubClient{v: analysis.Fixture}},

		// Error cases
		"Deadline surfaces as analysis failure":    {client: stubClient{block: true}, timeout: 10 * time.Millisecond, wantErr: true},
		"Plain errors surface as analysis failure": {client: stubClient{err: errors.New("boom")}, timeout: time.Second, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v, err := analysis.WithTimeout(tc.client, tc.timeout).Analyze(t.Context(), textPayload)
			if tc.wantErr {
				require.ErrorIs(t, err, moderation.ErrAnalysisFailed, "Analyze should fail with ErrAnalysisFailed")
				return
			}
			require.NoError(t, err, "Analyze should succeed")
			assert.Equal(t, moderation.Flagged, v.Decision, "Verdict should be passed through")
		})
	}
}

func TestInstrumented(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := analysis.Instrumented(stubClient{v: analysis.Fixture}, reg)
	_, err := c.Analyze(t.Context(), textPayload)
	require.NoError(t, err, "Analyze should succeed")

	failing := analysis.Instrumented(stubClient{err: moderation.ErrAnalysisFailed}, prometheus.NewRegistry())
	_, err = failing.Analyze(t.Context(), textPayload)
	require.ErrorIs(t, err, moderation.ErrAnalysisFailed, "Errors should be passed through")

	count, err := testutil.GatherAndCount(reg, "moderation_analysis_total", "moderation_analysis_duration_seconds")
	require.NoError(t, err, "Gathering metrics should not fail")
	assert.Equal(t, 2, count, "Expected one series for each metric")
}

func TestRemoteAnalyze(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		body   string

		wantErr bool
	}{
		"Valid verdict is returned": {status: http.StatusOK},

		// Error cases
		"Server error fails":    {status: http.StatusInternalServerError, body: `{"error":"down"}`, wantErr: true},
		"Unprocessable fails":   {status: http.StatusUnprocessableEntity, body: `{"error":"empty"}`, wantErr: true},
		"Malformed json fails":  {status: http.StatusOK, body: `{"decision":`, wantErr: true},
		"Invalid verdict fails": {status: http.StatusOK, body: `{"decision":"maybe","confidence":4}`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			gotCh := make(chan analysis.Request, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, analysis.AnalyzePath, r.URL.Path, "Remote should post to the analyze path")
				assert.Equal(t, http.MethodPost, r.Method, "Remote should post")
				var got analysis.Request
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got), "Request body should be JSON")
				gotCh <- got

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				if tc.body != "" {
					_, _ = w.Write([]byte(tc.body))
					return
				}
				_ = json.NewEncoder(w).Encode(analysis.Fixture)
			}))
			t.Cleanup(srv.Close)

			v, err := analysis.NewRemote(srv.URL, time.Second).Analyze(t.Context(), imagePayload)
			if tc.wantErr {
				require.ErrorIs(t, err, moderation.ErrAnalysisFailed, "Remote should fail with ErrAnalysisFailed")
				return
			}
			require.NoError(t, err, "Remote should succeed")
			assert.Equal(t, analysis.Fixture, v, "Remote should decode the verdict")
			got := <-gotCh
			assert.Equal(t, imagePayload, got.Payload(), "Remote should send the payload")
		})
	}
}

func TestRemoteUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := analysis.NewRemote(url, time.Second).Analyze(t.Context(), textPayload)
	require.ErrorIs(t, err, moderation.ErrAnalysisFailed, "Unreachable remote should fail with ErrAnalysisFailed")
}
