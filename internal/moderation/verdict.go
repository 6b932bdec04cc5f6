package moderation

import (
	"errors"
	"fmt"
)

// Decision is the outcome of an analysis.
type Decision string

const (
	// Approved content passed moderation.
	Approved Decision = "approved"
	// Flagged content needs a human review.
	Flagged Decision = "flagged"
	// Rejected content was refused.
	Rejected Decision = "rejected"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case Approved, Flagged, Rejected:
		return true
	}
	return false
}

// Label returns the human readable label of d.
func (d Decision) Label() string {
	switch d {
	case Approved:
		return "Approved"
	case Flagged:
		return "Flagged"
	case Rejected:
		return "Rejected"
	}
	return "Pending"
}

// Category names a scored dimension of an analysis.
type Category string

// Text categories.
const (
	Toxicity   Category = "toxicity"
	Harassment Category = "harassment"
	Hate       Category = "hate"
	Spam       Category = "spam"
)

// Image categories.
const (
	Safety     Category = "safety"
	Violence   Category = "violence"
	Adult      Category = "adult"
	Suggestive Category = "suggestive"
)

// TextCategories lists the text categories in display order.
var TextCategories = []Category{Toxicity, Harassment, Hate, Spam}

// ImageCategories lists the image categories in display order.
var ImageCategories = []Category{Safety, Violence, Adult, Suggestive}

// Label is an object or concept detected in an image.
type Label struct {
	Label      string  `json:"label" yaml:"label"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// TextAnalysis is the text part of a verdict.
type TextAnalysis struct {
	Scores    map[Category]float64 `json:"scores"`
	Sentiment string               `json:"sentiment"`
	// Language is a BCP 47 tag.
	Language string `json:"language"`
}

// ImageAnalysis is the image part of a verdict.
type ImageAnalysis struct {
	Scores map[Category]float64 `json:"scores"`
	Labels []Label              `json:"labels"`
}

// Verdict is the result of analysing a submission.
type Verdict struct {
	Decision         Decision       `json:"decision"`
	Confidence       float64        `json:"confidence"`
	ProcessingTimeMs int            `json:"processing_time_ms"`
	Text             TextAnalysis   `json:"text"`
	Image            *ImageAnalysis `json:"image,omitempty"`
	Flags            []string       `json:"flags"`
}

// Validate checks that the decision is known and that every score lies in [0, 1].
func (v Verdict) Validate() error {
	var errs []error
	if !v.Decision.Valid() {
		errs = append(errs, fmt.Errorf("unknown decision %q", v.Decision))
	}
	if !inUnitRange(v.Confidence) {
		errs = append(errs, fmt.Errorf("confidence %v out of range", v.Confidence))
	}
	if v.ProcessingTimeMs < 0 {
		errs = append(errs, fmt.Errorf("negative processing time %d", v.ProcessingTimeMs))
	}
	for c, s := range v.Text.Scores {
		if !inUnitRange(s) {
			errs = append(errs, fmt.Errorf("text score %s %v out of range", c, s))
		}
	}
	if v.Image != nil {
		for c, s := range v.Image.Scores {
			if !inUnitRange(s) {
				errs = append(errs, fmt.Errorf("image score %s %v out of range", c, s))
			}
		}
		for _, l := range v.Image.Labels {
			if !inUnitRange(l.Confidence) {
				errs = append(errs, fmt.Errorf("label %q confidence %v out of range", l.Label, l.Confidence))
			}
		}
	}
	return errors.Join(errs...)
}

// Consistent reports whether the verdict carries an image analysis exactly when the payload has an image.
func (v Verdict) Consistent(p SubmissionPayload) bool {
	return (v.Image != nil) == p.HasImage()
}

// Clone returns a deep copy of v.
func (v Verdict) Clone() Verdict {
	c := v
	c.Text.Scores = cloneScores(v.Text.Scores)
	c.Flags = append([]string(nil), v.Flags...)
	if v.Image != nil {
		img := ImageAnalysis{
			Scores: cloneScores(v.Image.Scores),
			Labels: append([]Label(nil), v.Image.Labels...),
		}
		c.Image = &img
	}
	return c
}

func cloneScores(m map[Category]float64) map[Category]float64 {
	if m == nil {
		return nil
	}
	c := make(map[Category]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}
