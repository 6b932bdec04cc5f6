package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ubuntu/ubuntu-moderation/internal/handoff"
	"github.com/ubuntu/ubuntu-moderation/internal/presenter"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice/metrics"
)

// Results serves the result of a submission.
type Results struct {
	pages *Pages
	store *handoff.Store
}

// NewResults creates a new Results handler reading the results handed off through store.
func NewResults(pages *Pages, store *handoff.Store) *Results {
	return &Results{pages: pages, store: store}
}

// ServeHTTP renders the result stored under the id path value.
// Without a usable result the client is redirected to the entry point.
func (h *Results) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	id := r.PathValue("id")
	rc, ok := h.store.Take(id)
	if !ok {
		slog.Info("No result to show, redirecting", "id", id)
		http.Redirect(w, r, presenter.EntryPoint, http.StatusSeeOther)
		return
	}

	v, err := presenter.Render(rc)
	if err != nil {
		slog.Warn("Unusable result, redirecting", "id", id, "err", err)
		http.Redirect(w, r, presenter.EntryPoint, http.StatusSeeOther)
		return
	}
	h.pages.Render(w, http.StatusOK, PageResults, v)
}
