// Package handlers provides HTTP handlers for the web service.
package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page names.
const (
	PageLanding   = "landing"
	PageUpload    = "upload"
	PageResults   = "results"
	PageDashboard = "dashboard"
)

var funcs = template.FuncMap{
	"previewURL": previewURL,
}

// Pages renders the HTML pages of the service.
type Pages struct {
	templates map[string]*template.Template
}

// NewPages parses the embedded page templates.
func NewPages() (*Pages, error) {
	base, err := template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parsing layout: %v", err)
	}

	p := &Pages{templates: make(map[string]*template.Template)}
	for _, name := range []string{PageLanding, PageUpload, PageResults, PageDashboard} {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning layout for %s: %v", name, err)
		}
		if _, err := t.ParseFS(templatesFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parsing page %s: %v", name, err)
		}
		p.templates[name] = t
	}
	return p, nil
}

// Render writes page with data and the given status code.
// The page is rendered to a buffer first so that a template error does not leave a partial response.
func (p *Pages) Render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := p.templates[page]
	if !ok {
		slog.Error("Unknown page", "page", page)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("Failed to render page", "page", page, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("Failed to write page", "page", page, "err", err)
	}
}

// previewURL trusts only image data URLs, everything else is dropped.
func previewURL(s string) template.URL {
	if !strings.HasPrefix(s, "data:image/") {
		return ""
	}
	//nolint:gosec // Only image data URLs built from the uploaded bytes reach here.
	return template.URL(s)
}
