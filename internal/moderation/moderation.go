// Package moderation holds the data exchanged between the submission composer, the analysis gateway and the result presenter.
package moderation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidSubmission is returned when a submission carries neither non-blank text nor an image.
	ErrInvalidSubmission = errors.New("submission must contain non-blank text or an image")

	// ErrAnalysisFailed is returned when the analysis gateway could not produce a verdict.
	ErrAnalysisFailed = errors.New("content analysis failed")

	// ErrMissingResultContext is returned when a result is requested without a submission and its verdict.
	ErrMissingResultContext = errors.New("no result context available")
)

// Image is an image attached to a submission.
type Image struct {
	Filename string
	MIMEType string
	Data     []byte
	// Preview is a data URL of Data, set once it has been computed.
	Preview string
}

// IsImageMIME reports whether mime describes an image media type.
func IsImageMIME(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}

// DataURL returns the image content encoded as a data URL.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, base64.StdEncoding.EncodeToString(i.Data))
}

// SubmissionPayload is what is sent for analysis.
type SubmissionPayload struct {
	Text        string
	Image       *Image
	SubmittedAt time.Time
}

// HasText reports whether the payload carries non-blank text.
func (p SubmissionPayload) HasText() bool {
	return strings.TrimSpace(p.Text) != ""
}

// HasImage reports whether the payload carries an image.
func (p SubmissionPayload) HasImage() bool {
	return p.Image != nil
}

// Validate returns ErrInvalidSubmission if the payload has neither non-blank text nor an image.
func (p SubmissionPayload) Validate() error {
	if !p.HasText() && !p.HasImage() {
		return ErrInvalidSubmission
	}
	return nil
}

// ResultContext pairs a submission with the verdict it received.
type ResultContext struct {
	Payload SubmissionPayload
	Verdict Verdict
}

// Validate returns ErrMissingResultContext if rc is nil or does not hold a coherent submission and verdict.
func (rc *ResultContext) Validate() error {
	if rc == nil {
		return ErrMissingResultContext
	}
	if err := rc.Payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingResultContext, err)
	}
	if err := rc.Verdict.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingResultContext, err)
	}
	if !rc.Verdict.Consistent(rc.Payload) {
		return fmt.Errorf("%w: image analysis does not match submission", ErrMissingResultContext)
	}
	return nil
}
