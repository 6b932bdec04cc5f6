package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ubuntu/ubuntu-moderation/internal/analysis"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice/metrics"
)

// Analyze exposes an analysis client over HTTP, speaking the protocol of analysis.Remote.
type Analyze struct {
	client         analysis.Client
	maxUploadBytes int64
}

// NewAnalyze creates a new Analyze handler backed by client.
func NewAnalyze(client analysis.Client, maxUploadBytes int64) *Analyze {
	return &Analyze{client: client, maxUploadBytes: maxUploadBytes}
}

// ServeHTTP analyses the JSON submission in the request body and answers with its verdict.
func (h *Analyze) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	metrics.ApplyLabels(r)
	slog.Info("Request recv'd", "req_id", reqID, "path", r.URL.Path)

	// base64 makes the body a third larger than the raw upload.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes*4/3+multipartMemory)
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Invalid analysis request", "req_id", reqID, "err", err)
		writeJSON(w, http.StatusBadRequest, analysis.ErrorResponse{Error: "invalid request body"})
		return
	}

	p := req.Payload()
	if err := p.Validate(); err != nil {
		slog.Info("Rejected analysis request", "req_id", reqID, "err", err)
		writeJSON(w, http.StatusUnprocessableEntity, analysis.ErrorResponse{Error: err.Error()})
		return
	}
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = time.Now()
	}

	v, err := h.client.Analyze(r.Context(), p)
	if err != nil {
		slog.Error("Content analysis failed", "req_id", reqID, "err", err)
		writeJSON(w, http.StatusBadGateway, analysis.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}
