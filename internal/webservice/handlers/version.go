package handlers

import (
	"fmt"
	"net/http"

	"github.com/ubuntu/ubuntu-moderation/internal/constants"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice/metrics"
)

// VersionHandler handles requests to the /version endpoint.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"version":"%s"}`, constants.Version)
}
