// Package presenter turns a result context into the view model of the result page.
package presenter

import (
	"time"

	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// EntryPoint is where users without a result context are sent.
const EntryPoint = "/upload"

// Badge is the headline decision.
type Badge struct {
	Label string
	Tone  string
}

// Gauge is a single scored category.
type Gauge struct {
	Label       string
	Description string
	Score       float64
	Percent     int
	Severity    moderation.Severity
}

// Tone is the visual treatment of the gauge.
func (g Gauge) Tone() string {
	return g.Severity.Tone()
}

// LabelView is a detected image label.
type LabelView struct {
	Label   string
	Percent int
}

// Content is the submission as it was sent.
type Content struct {
	Text        string
	HasText     bool
	HasImage    bool
	Preview     string
	SubmittedAt time.Time
}

// TextSection is the text analysis.
type TextSection struct {
	Gauges    []Gauge
	Sentiment string
	Language  string
}

// ImageSection is the image analysis.
type ImageSection struct {
	Gauges []Gauge
	Labels []LabelView
}

// View is everything the result page shows.
type View struct {
	Badge            Badge
	Decision         moderation.Decision
	ConfidencePct    int
	ProcessingTimeMs int
	Flags            []string
	ShowFlags        bool
	Content          Content
	Text             TextSection
	// Image is nil when nothing was analysed.
	Image *ImageSection
}

type gaugeSpec struct {
	category    moderation.Category
	label       string
	description string
	// invert shows 1-score, for categories where a high score is good.
	invert bool
}

var textGauges = []gaugeSpec{
	{moderation.Toxicity, "Toxicity", "Likelihood of offensive language", false},
	{moderation.Harassment, "Harassment", "Personal attacks or bullying", false},
	{moderation.Hate, "Hate Speech", "Discriminatory language", false},
	{moderation.Spam, "Spam", "Promotional or repetitive content", false},
}

var imageGauges = []gaugeSpec{
	{moderation.Safety, "Overall Safety", "General safety assessment", true},
	{moderation.Violence, "Violence", "Violent or graphic content", false},
	{moderation.Adult, "Adult Content", "Explicit material", false},
	{moderation.Suggestive, "Suggestive", "Potentially inappropriate", false},
}

// Render builds the result view. It fails with moderation.ErrMissingResultContext when rc is absent or incoherent,
// in which case the caller should send the user back to EntryPoint.
func Render(rc *moderation.ResultContext) (View, error) {
	if err := rc.Validate(); err != nil {
		return View{}, err
	}

	p, v := rc.Payload, rc.Verdict
	view := View{
		Badge:            Badge{Label: v.Decision.Label(), Tone: badgeTone(v.Decision)},
		Decision:         v.Decision,
		ConfidencePct:    moderation.Percent(v.Confidence),
		ProcessingTimeMs: v.ProcessingTimeMs,
		Flags:            v.Flags,
		ShowFlags:        len(v.Flags) > 0,
		Content: Content{
			Text:        p.Text,
			HasText:     p.HasText(),
			HasImage:    p.HasImage(),
			SubmittedAt: p.SubmittedAt,
		},
		Text: TextSection{
			Gauges:    gauges(textGauges, v.Text.Scores),
			Sentiment: v.Text.Sentiment,
			Language:  LanguageName(v.Text.Language),
		},
	}
	if p.Image != nil {
		view.Content.Preview = p.Image.Preview
	}

	if v.Image != nil {
		labels := make([]LabelView, 0, len(v.Image.Labels))
		for _, l := range v.Image.Labels {
			labels = append(labels, LabelView{Label: l.Label, Percent: moderation.Percent(l.Confidence)})
		}
		view.Image = &ImageSection{
			Gauges: gauges(imageGauges, v.Image.Scores),
			Labels: labels,
		}
	}

	return view, nil
}

// LanguageName returns the English name of a BCP 47 tag, or the tag itself when it cannot be parsed.
func LanguageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

func gauges(specs []gaugeSpec, scores map[moderation.Category]float64) []Gauge {
	gs := make([]Gauge, 0, len(specs))
	for _, s := range specs {
		score := scores[s.category]
		if s.invert {
			score = 1 - score
		}
		gs = append(gs, Gauge{
			Label:       s.label,
			Description: s.description,
			Score:       score,
			Percent:     moderation.Percent(score),
			Severity:    moderation.SeverityOf(score),
		})
	}
	return gs
}

func badgeTone(d moderation.Decision) string {
	switch d {
	case moderation.Approved:
		return "success"
	case moderation.Flagged:
		return "warning"
	case moderation.Rejected:
		return "destructive"
	}
	return "secondary"
}
