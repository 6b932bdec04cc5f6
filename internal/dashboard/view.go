package dashboard

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// StatCard is a headline counter.
type StatCard struct {
	Title string
	Value string
	Trend *Trend
}

// TrendText formats the trend as shown under a card.
func (c StatCard) TrendText() string {
	if c.Trend == nil {
		return ""
	}
	arrow := "↓"
	if c.Trend.Up {
		arrow = "↑"
	}
	return fmt.Sprintf("%s %.1f%% from last week", arrow, c.Trend.Value)
}

// DistributionRow is one decision in the distribution panel.
type DistributionRow struct {
	Decision moderation.Decision
	Label    string
	Count    string
	Percent  int
}

// LogRow is one entry of the recent activity table.
type LogRow struct {
	ID          string
	ContentType string
	Decision    moderation.Decision
	Label       string
	Toxicity    string
	Severity    moderation.Severity
	Age         string
}

// View is what the dashboard page renders.
type View struct {
	Cards               []StatCard
	Distribution        []DistributionRow
	Logs                []LogRow
	AvgProcessingTimeMs int
	AccuracyPct         float64
	Status              string
}

// NewView formats s for display. now is used for entries without a preformatted age.
func NewView(s Snapshot, now time.Time) View {
	st := s.Stats
	v := View{
		Cards: []StatCard{
			{Title: "Total Scanned", Value: humanize.Comma(st.TotalScanned), Trend: &st.Trends.TotalScanned},
			{Title: "Approved", Value: humanize.Comma(st.Approved), Trend: &st.Trends.Approved},
			{Title: "Flagged", Value: humanize.Comma(st.Flagged), Trend: &st.Trends.Flagged},
			{Title: "Avg. Processing", Value: fmt.Sprintf("%dms", st.AvgProcessingTimeMs)},
		},
		Distribution: []DistributionRow{
			{Decision: moderation.Approved, Label: moderation.Approved.Label(), Count: humanize.Comma(st.Approved), Percent: Rate(st.Approved, st.TotalScanned)},
			{Decision: moderation.Flagged, Label: moderation.Flagged.Label(), Count: humanize.Comma(st.Flagged), Percent: Rate(st.Flagged, st.TotalScanned)},
			{Decision: moderation.Rejected, Label: moderation.Rejected.Label(), Count: humanize.Comma(st.Rejected), Percent: Rate(st.Rejected, st.TotalScanned)},
		},
		AvgProcessingTimeMs: st.AvgProcessingTimeMs,
		AccuracyPct:         st.AccuracyPct,
		Status:              "Healthy",
	}

	v.Logs = make([]LogRow, 0, len(s.RecentLogs))
	for _, e := range s.RecentLogs {
		age := e.Relative
		if age == "" && !e.At.IsZero() {
			age = humanize.RelTime(e.At, now, "ago", "from now")
		}
		v.Logs = append(v.Logs, LogRow{
			ID:          e.ID,
			ContentType: e.ContentType,
			Decision:    e.Decision,
			Label:       e.Decision.Label(),
			Toxicity:    fmt.Sprintf("%.2f", e.Toxicity),
			Severity:    moderation.SeverityOf(e.Toxicity),
			Age:         age,
		})
	}
	return v
}

// Rate returns part as a whole percentage of total, or 0 when total is not positive.
func Rate(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
