// Package dashboard provides the aggregate moderation statistics shown on the dashboard.
//
// The statistics are owned by an external analytics pipeline. This package only reads them.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// ErrNoSnapshot is returned when a source has nothing to serve yet.
var ErrNoSnapshot = errors.New("no dashboard snapshot available")

// Source provides dashboard snapshots.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// Trend is the change of a counter since last week, in percent.
type Trend struct {
	Value float64 `json:"value" yaml:"value" toml:"value"`
	Up    bool    `json:"up" yaml:"up" toml:"up"`
}

// Trends are the week over week changes of the headline counters.
type Trends struct {
	TotalScanned Trend `json:"total_scanned" yaml:"total_scanned" toml:"total_scanned"`
	Approved     Trend `json:"approved" yaml:"approved" toml:"approved"`
	Flagged      Trend `json:"flagged" yaml:"flagged" toml:"flagged"`
}

// Stats are the aggregate counters.
type Stats struct {
	TotalScanned        int64   `json:"total_scanned" yaml:"total_scanned" toml:"total_scanned"`
	Approved            int64   `json:"approved" yaml:"approved" toml:"approved"`
	Flagged             int64   `json:"flagged" yaml:"flagged" toml:"flagged"`
	Rejected            int64   `json:"rejected" yaml:"rejected" toml:"rejected"`
	AvgProcessingTimeMs int     `json:"avg_processing_time_ms" yaml:"avg_processing_time_ms" toml:"avg_processing_time_ms"`
	AccuracyPct         float64 `json:"accuracy_pct" yaml:"accuracy_pct" toml:"accuracy_pct"`
	Trends              Trends  `json:"trends" yaml:"trends" toml:"trends"`
}

// LogEntry is a recent moderation event.
type LogEntry struct {
	ID          string              `json:"id" yaml:"id" toml:"id"`
	ContentType string              `json:"content_type" yaml:"content_type" toml:"content_type"`
	Decision    moderation.Decision `json:"decision" yaml:"decision" toml:"decision"`
	Toxicity    float64             `json:"toxicity" yaml:"toxicity" toml:"toxicity"`
	At          time.Time           `json:"at,omitzero" yaml:"at,omitempty" toml:"at,omitempty"`
	// Relative is a preformatted age, used instead of At when set.
	Relative string `json:"relative,omitempty" yaml:"relative,omitempty" toml:"relative,omitempty"`
}

// Snapshot is what the dashboard shows at a point in time.
type Snapshot struct {
	Stats      Stats      `json:"stats" yaml:"stats" toml:"stats"`
	RecentLogs []LogEntry `json:"recent_logs" yaml:"recent_logs" toml:"recent_logs"`
}

// Static is a source serving fixed reference figures.
type Static struct {
	snapshot Snapshot
}

// NewStatic returns a source serving s. Without argument, it serves the reference figures.
func NewStatic(s ...Snapshot) Static {
	if len(s) > 0 {
		return Static{snapshot: s[0]}
	}
	return Static{snapshot: Reference()}
}

// Fetch returns the fixed snapshot.
func (s Static) Fetch(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot.clone(), nil
}

// Reference returns the reference figures served when no analytics source is configured.
func Reference() Snapshot {
	return Snapshot{
		Stats: Stats{
			TotalScanned:        12847,
			Approved:            11203,
			Flagged:             1456,
			Rejected:            188,
			AvgProcessingTimeMs: 42,
			AccuracyPct:         99.7,
			Trends: Trends{
				TotalScanned: Trend{Value: 12.5, Up: true},
				Approved:     Trend{Value: 3.2, Up: true},
				Flagged:      Trend{Value: 5.8, Up: false},
			},
		},
		RecentLogs: []LogEntry{
			{ID: "MOD-2024-001", ContentType: "Text + Image", Decision: moderation.Approved, Toxicity: 0.08, Relative: "2 mins ago"},
			{ID: "MOD-2024-002", ContentType: "Text", Decision: moderation.Flagged, Toxicity: 0.72, Relative: "5 mins ago"},
			{ID: "MOD-2024-003", ContentType: "Image", Decision: moderation.Approved, Toxicity: 0.03, Relative: "8 mins ago"},
			{ID: "MOD-2024-004", ContentType: "Text", Decision: moderation.Rejected, Toxicity: 0.91, Relative: "12 mins ago"},
			{ID: "MOD-2024-005", ContentType: "Text + Image", Decision: moderation.Flagged, Toxicity: 0.65, Relative: "15 mins ago"},
			{ID: "MOD-2024-006", ContentType: "Text", Decision: moderation.Approved, Toxicity: 0.12, Relative: "18 mins ago"},
			{ID: "MOD-2024-007", ContentType: "Image", Decision: moderation.Approved, Toxicity: 0.05, Relative: "22 mins ago"},
			{ID: "MOD-2024-008", ContentType: "Text", Decision: moderation.Flagged, Toxicity: 0.58, Relative: "25 mins ago"},
		},
	}
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.RecentLogs = append([]LogEntry(nil), s.RecentLogs...)
	return c
}
