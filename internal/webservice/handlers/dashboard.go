package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ubuntu/ubuntu-moderation/internal/dashboard"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice/metrics"
)

type dashboardData struct {
	dashboard.View
	Unavailable bool
}

// Dashboard serves the moderation dashboard.
type Dashboard struct {
	pages  *Pages
	source dashboard.Source
	now    func() time.Time
}

// NewDashboard creates a new Dashboard handler reading its figures from source.
func NewDashboard(pages *Pages, source dashboard.Source) *Dashboard {
	return &Dashboard{pages: pages, source: source, now: time.Now}
}

// ServeHTTP renders the dashboard page.
func (h *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	s, err := h.source.Fetch(r.Context())
	if err != nil {
		slog.Error("Failed to fetch dashboard snapshot", "err", err)
		h.pages.Render(w, http.StatusServiceUnavailable, PageDashboard, dashboardData{Unavailable: true})
		return
	}
	h.pages.Render(w, http.StatusOK, PageDashboard, dashboardData{View: dashboard.NewView(s, h.now())})
}

// API returns the raw dashboard snapshot as JSON.
func (h *Dashboard) API(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	s, err := h.source.Fetch(r.Context())
	if err != nil {
		slog.Error("Failed to fetch dashboard snapshot", "err", err)
		http.Error(w, "Dashboard data unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write JSON response", "err", err)
	}
}
