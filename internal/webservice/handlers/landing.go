package handlers

import (
	"net/http"

	"github.com/ubuntu/ubuntu-moderation/internal/webservice/metrics"
)

// Item is an entry of a landing page list.
type Item struct {
	Title       string
	Description string
}

type landingData struct {
	Features []Item
	Steps    []Item
}

var landing = landingData{
	Features: []Item{
		{"Text Analysis", "Detect toxicity, harassment, hate speech and spam in any text."},
		{"Image Safety", "Identify violent, adult or suggestive imagery."},
		{"Lightning Fast", "Verdicts in milliseconds, built for real-time workloads."},
		{"Rich Analytics", "Follow decisions and trends from the dashboard."},
		{"Enterprise Security", "Content is analysed in memory and never stored."},
		{"Human-in-the-Loop", "Flagged content is routed to human reviewers."},
	},
	Steps: []Item{
		{"Submit Content", "Upload text, an image, or both."},
		{"AI Analysis", "Our models score the content across safety categories."},
		{"Get Results", "Review the decision, scores and detected issues."},
	},
}

// Landing serves the landing page.
type Landing struct {
	pages *Pages
}

// NewLanding creates a new Landing handler.
func NewLanding(pages *Pages) *Landing {
	return &Landing{pages: pages}
}

// ServeHTTP renders the landing page.
func (h *Landing) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	h.pages.Render(w, http.StatusOK, PageLanding, landing)
}
