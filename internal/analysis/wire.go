package analysis

import (
	"time"

	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// Request is the JSON body of an analysis request.
type Request struct {
	Text        string        `json:"text"`
	Image       *RequestImage `json:"image,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// RequestImage is the image part of a Request. Data is base64 encoded by encoding/json.
type RequestImage struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ErrorResponse is the JSON body returned when an analysis request is refused.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRequest converts a payload to its wire representation.
func NewRequest(p moderation.SubmissionPayload) Request {
	r := Request{Text: p.Text, SubmittedAt: p.SubmittedAt}
	if p.Image != nil {
		r.Image = &RequestImage{
			Filename: p.Image.Filename,
			MIMEType: p.Image.MIMEType,
			Data:     p.Image.Data,
		}
	}
	return r
}

// Payload converts the request back to a submission payload.
func (r Request) Payload() moderation.SubmissionPayload {
	p := moderation.SubmissionPayload{Text: r.Text, SubmittedAt: r.SubmittedAt}
	if r.Image != nil {
		p.Image = &moderation.Image{
			Filename: r.Image.Filename,
			MIMEType: r.Image.MIMEType,
			Data:     r.Image.Data,
		}
	}
	return p
}
